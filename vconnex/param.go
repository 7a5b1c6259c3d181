package vconnex

// ParamDescription points an entity at one native device parameter.
type ParamDescription struct {
	NativeParam string
	// Extended params live in ExtendedDeviceData instead of CmdGetData
	Extended   bool
	FromNative func(any) any
	ToNative   func(any) any
}

func Param(nativeParam string) *ParamDescription {
	return &ParamDescription{NativeParam: nativeParam}
}

func ExtendedParam(nativeParam string) *ParamDescription {
	return &ParamDescription{NativeParam: nativeParam, Extended: true}
}

func (p *ParamDescription) FromNativeValue(v any) any {
	if p.FromNative == nil {
		return v
	}
	return p.FromNative(v)
}

func (p *ParamDescription) ToNativeValue(v any) any {
	if p.ToNative == nil {
		return v
	}
	return p.ToNative(v)
}

// DataName is the data message the value is read from.
func (p *ParamDescription) DataName() string {
	if p.Extended {
		return ExtendedDeviceData
	}
	return CommandGetData
}

func (p *ParamDescription) FindDeviceParam(d Device) (ParamInfo, bool) {
	for _, pi := range d.Params {
		if pi.Key == p.NativeParam {
			return pi, true
		}
	}
	return ParamInfo{}, false
}

// numeric normalises values decoded from JSON or YAML.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
