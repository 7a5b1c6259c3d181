package vconnex

const (
	Domain          = "vconnex"
	DomainName      = "Vconnex"
	ProjectCode     = "HASS"
	DefaultEndpoint = "https://hass-api.vconnex.vn"
)

// config entry data keys
const (
	ConfClientID     = "client_id"
	ConfClientSecret = "client_secret"
	ConfUserID       = "user_id"
	ConfProjectName  = "project_name"
	ConfEndpoint     = "endpoint"
)

// token data keys returned by the API
const (
	TokenUserID      = "userId"
	TokenProjectName = "projectName"
)

// bus topics; per-device topics get ".{deviceId}" appended
const (
	TopicDeviceAdded       = Domain + ".device_added"
	TopicDeviceUpdated     = Domain + ".device_updated"
	TopicDeviceRemoved     = Domain + ".device_removed"
	TopicDeviceDataUpdated = Domain + ".device_data_updated"
)

func DeviceTopic(topic, deviceID string) string {
	return topic + "." + deviceID
}

// device command and data message names
const (
	CommandSetData     = "CmdSetData"
	CommandGetData     = "CmdGetData"
	ExtendedDeviceData = "ExtendedDeviceData"
)

type ParamType int

const (
	ParamTypeNone ParamType = iota
	ParamTypeOnOff
	ParamTypeOpenClose
	ParamTypeYesNo
	ParamTypeAlert
	ParamTypeMoveNoMove
	ParamTypeRawValue
)

type DeviceTypeCode int
