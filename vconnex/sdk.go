package vconnex

import "context"

// ParamInfo is one capability advertised by a device.
type ParamInfo struct {
	Key  string    `yaml:"paramKey" json:"paramKey"`
	Name string    `yaml:"name" json:"name"`
	Type ParamType `yaml:"paramType" json:"paramType"`
}

type ParamValue struct {
	Param string `yaml:"param" json:"param"`
	Value any    `yaml:"value" json:"value"`
}

// DeviceData is one data message as last delivered by the SDK.
type DeviceData struct {
	DevV []ParamValue `yaml:"devV" json:"devV"`
}

// Device is an SDK snapshot. The SDK replaces snapshots instead of mutating
// them, so a Device obtained from DeviceManager can be read without locking.
type Device struct {
	DeviceID       string                `yaml:"deviceId" json:"deviceId"`
	Name           string                `yaml:"name" json:"name"`
	DeviceTypeCode DeviceTypeCode        `yaml:"deviceTypeCode" json:"deviceTypeCode"`
	DeviceTypeName string                `yaml:"deviceTypeName" json:"deviceTypeName"`
	Version        string                `yaml:"version" json:"version"`
	Params         []ParamInfo           `yaml:"params" json:"params"`
	Data           map[string]DeviceData `yaml:"data" json:"data"`
}

// Value returns raw value of param from data message name.
func (d Device) Value(name, param string) (any, bool) {
	msg, ok := d.Data[name]
	if !ok {
		return nil, false
	}
	for _, v := range msg.DevV {
		if v.Param == param {
			return v.Value, true
		}
	}
	return nil, false
}

type TokenData map[string]any

type API interface {
	IsValid(ctx context.Context) (bool, error)
	TokenData(ctx context.Context) (TokenData, error)
}

// Listener receives SDK push callbacks.
type Listener interface {
	OnDeviceAdded(d Device)
	OnDeviceRemoved(d Device)
	OnDeviceUpdate(newDevice, oldDevice Device)
	OnDeviceDataUpdate(deviceID string, message map[string]any)
}

type DeviceManager interface {
	Initialize(ctx context.Context) error
	IsInitialized() bool
	Release() error
	DeviceMap() map[string]Device
	Device(deviceID string) (Device, bool)
	SendCommand(ctx context.Context, deviceID, command string, values map[string]any) error
	AddListener(l Listener)
	RemoveListener(l Listener)
}

// SDK builds API clients and device managers.
type SDK interface {
	NewAPI(endpoint, clientID, clientSecret, projectCode string) (API, error)
	NewDeviceManager(api API) DeviceManager
}
