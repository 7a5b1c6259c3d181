package vconnex

import (
	"fmt"
	"sort"

	"github.com/XANi/hassbridge/hass"
)

// EntityDescriptor is everything needed to build one entity for one device.
type EntityDescriptor struct {
	Key         string
	Name        string
	Platform    hass.Platform
	DeviceClass hass.DeviceClass
	StateClass  hass.StateClass
	Unit        string
	Features    hass.Feature
	// Param is set for sensors, binary sensors and switches
	Param *ParamDescription
	// Cover is set for covers
	Cover *CoverParams
}

type CoverParams struct {
	Open      *ParamDescription
	Close     *ParamDescription
	Stop      *ParamDescription
	OpenLevel *ParamDescription
}

// Template is one static table row.
type Template interface {
	Platform() hass.Platform
	validate() error
	// nativeParams lists parameters the template reads, for duplicate detection
	nativeParams() []string
	resolve(d Device, index, count int) []EntityDescriptor
}

type SensorTemplate struct {
	Param       *ParamDescription
	DeviceClass hass.DeviceClass
	StateClass  hass.StateClass
	Unit        string
}

func (t SensorTemplate) Platform() hass.Platform { return hass.PlatformSensor }

func (t SensorTemplate) validate() error {
	return validateParam("sensor", t.Param)
}

func (t SensorTemplate) nativeParams() []string { return []string{t.Param.NativeParam} }

func (t SensorTemplate) resolve(d Device, _, _ int) []EntityDescriptor {
	pi, ok := t.Param.FindDeviceParam(d)
	if !ok {
		return nil
	}
	return []EntityDescriptor{{
		Key:         paramKey(d, pi.Key),
		Name:        paramName(d, pi),
		Platform:    hass.PlatformSensor,
		DeviceClass: t.DeviceClass,
		StateClass:  t.StateClass,
		Unit:        t.Unit,
		Param:       t.Param,
	}}
}

type BinarySensorTemplate struct {
	Param       *ParamDescription
	DeviceClass hass.DeviceClass
}

func (t BinarySensorTemplate) Platform() hass.Platform { return hass.PlatformBinarySensor }

func (t BinarySensorTemplate) validate() error {
	return validateParam("binary sensor", t.Param)
}

func (t BinarySensorTemplate) nativeParams() []string { return []string{t.Param.NativeParam} }

func (t BinarySensorTemplate) resolve(d Device, _, _ int) []EntityDescriptor {
	pi, ok := t.Param.FindDeviceParam(d)
	if !ok {
		return nil
	}
	return []EntityDescriptor{{
		Key:         paramKey(d, pi.Key),
		Name:        paramName(d, pi),
		Platform:    hass.PlatformBinarySensor,
		DeviceClass: t.DeviceClass,
		Param:       t.Param,
	}}
}

// SwitchTemplate produces a switch for every device parameter of ParamType,
// in the order the device lists them.
type SwitchTemplate struct {
	ParamType   ParamType
	DeviceClass hass.DeviceClass
}

func (t SwitchTemplate) Platform() hass.Platform { return hass.PlatformSwitch }

func (t SwitchTemplate) validate() error {
	if t.ParamType == ParamTypeNone {
		return fmt.Errorf("switch template without param type: %w", ErrInvalidDeviceConfig)
	}
	return nil
}

func (t SwitchTemplate) nativeParams() []string { return nil }

func (t SwitchTemplate) resolve(d Device, _, _ int) []EntityDescriptor {
	var out []EntityDescriptor
	for _, pi := range d.Params {
		if pi.Type != t.ParamType {
			continue
		}
		out = append(out, EntityDescriptor{
			Key:         paramKey(d, pi.Key),
			Name:        paramName(d, pi),
			Platform:    hass.PlatformSwitch,
			DeviceClass: t.DeviceClass,
			Param:       Param(pi.Key),
		})
	}
	return out
}

// CoverTemplate is present on the device when its OpenLevel parameter is.
type CoverTemplate struct {
	Key         string
	DeviceClass hass.DeviceClass
	Open        *ParamDescription
	Close       *ParamDescription
	Stop        *ParamDescription
	OpenLevel   *ParamDescription
}

func (t CoverTemplate) Platform() hass.Platform { return hass.PlatformCover }

func (t CoverTemplate) validate() error {
	if t.Key == "" {
		return fmt.Errorf("cover template without key: %w", ErrInvalidDeviceConfig)
	}
	for _, p := range []*ParamDescription{t.Open, t.Close, t.OpenLevel} {
		if err := validateParam("cover "+t.Key, p); err != nil {
			return err
		}
	}
	if t.Stop != nil && t.Stop.NativeParam == "" {
		return fmt.Errorf("cover %s stop param without native param: %w", t.Key, ErrInvalidDeviceConfig)
	}
	return nil
}

func (t CoverTemplate) nativeParams() []string {
	out := []string{t.Open.NativeParam, t.Close.NativeParam, t.OpenLevel.NativeParam}
	if t.Stop != nil {
		out = append(out, t.Stop.NativeParam)
	}
	return out
}

func (t CoverTemplate) resolve(d Device, index, count int) []EntityDescriptor {
	if _, ok := t.OpenLevel.FindDeviceParam(d); !ok {
		return nil
	}
	name := d.Name
	if count > 1 {
		name = fmt.Sprintf("%s %d", d.Name, index+1)
	}
	features := hass.CoverFeatureOpen | hass.CoverFeatureClose | hass.CoverFeatureSetPosition
	if t.Stop != nil {
		features |= hass.CoverFeatureStop
	}
	return []EntityDescriptor{{
		Key:         paramKey(d, t.Key),
		Name:        name,
		Platform:    hass.PlatformCover,
		DeviceClass: t.DeviceClass,
		Features:    features,
		Cover: &CoverParams{
			Open:      t.Open,
			Close:     t.Close,
			Stop:      t.Stop,
			OpenLevel: t.OpenLevel,
		},
	}}
}

func validateParam(what string, p *ParamDescription) error {
	if p == nil || p.NativeParam == "" {
		return fmt.Errorf("%s template without native param: %w", what, ErrInvalidDeviceConfig)
	}
	return nil
}

func paramKey(d Device, native string) string {
	return d.DeviceID + "." + native
}

func paramName(d Device, pi ParamInfo) string {
	if pi.Name != "" {
		return pi.Name
	}
	return d.Name
}

// Table maps device type codes to the templates of one platform.
type Table struct {
	platform  hass.Platform
	templates map[DeviceTypeCode][]Template
}

// NewTable validates every template; a broken row fails the whole table.
func NewTable(platform hass.Platform, templates map[DeviceTypeCode][]Template) (*Table, error) {
	for code, list := range templates {
		if len(list) == 0 {
			return nil, fmt.Errorf("device type %d has no templates: %w", code, ErrInvalidDeviceConfig)
		}
		seen := map[string]bool{}
		for i, tmpl := range list {
			if tmpl == nil {
				return nil, fmt.Errorf("device type %d template %d is nil: %w", code, i, ErrInvalidDeviceConfig)
			}
			if tmpl.Platform() != platform {
				return nil, fmt.Errorf("device type %d template %d is %s in %s table: %w",
					code, i, tmpl.Platform(), platform, ErrInvalidDeviceConfig)
			}
			if err := tmpl.validate(); err != nil {
				return nil, fmt.Errorf("device type %d template %d: %w", code, i, err)
			}
			for _, p := range tmpl.nativeParams() {
				if seen[p] {
					return nil, fmt.Errorf("device type %d: param %s used twice: %w", code, p, ErrInvalidDeviceConfig)
				}
				seen[p] = true
			}
		}
	}
	return &Table{platform: platform, templates: templates}, nil
}

func MustTable(platform hass.Platform, templates map[DeviceTypeCode][]Template) *Table {
	t, err := NewTable(platform, templates)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Platform() hass.Platform {
	return t.platform
}

// Resolve returns descriptors for the device in table declaration order.
// Unknown device types and params missing from the device yield nothing.
func (t *Table) Resolve(d Device) []EntityDescriptor {
	list := t.templates[d.DeviceTypeCode]
	var out []EntityDescriptor
	seen := map[string]bool{}
	for i, tmpl := range list {
		for _, desc := range tmpl.resolve(d, i, len(list)) {
			if seen[desc.Key] {
				continue
			}
			seen[desc.Key] = true
			out = append(out, desc)
		}
	}
	return out
}

func (t *Table) DeviceTypes() []DeviceTypeCode {
	out := make([]DeviceTypeCode, 0, len(t.templates))
	for code := range t.templates {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
