package hass

// Platform is the entity kind, also used as the MQTT discovery component name.
type Platform string

const (
	PlatformFan          Platform = "fan"
	PlatformSwitch       Platform = "switch"
	PlatformSensor       Platform = "sensor"
	PlatformBinarySensor Platform = "binary_sensor"
	PlatformCover        Platform = "cover"
)

// DeviceClass as understood by Home Assistant
// https://www.home-assistant.io/integrations/sensor/#device-class
type DeviceClass string

var (
	DeviceClassCurrent        DeviceClass = "current"
	DeviceClassVoltage        DeviceClass = "voltage"
	DeviceClassPower          DeviceClass = "power"
	DeviceClassEnergy         DeviceClass = "energy"
	DeviceClassTemperature    DeviceClass = "temperature"
	DeviceClassHumidity       DeviceClass = "humidity"
	DeviceClassIlluminance    DeviceClass = "illuminance"
	DeviceClassBattery        DeviceClass = "battery"
	DeviceClassSignalStrength DeviceClass = "signal_strength"

	DeviceClassProblem DeviceClass = "problem"
	DeviceClassGas     DeviceClass = "gas"
	DeviceClassSmoke   DeviceClass = "smoke"
	DeviceClassMotion  DeviceClass = "motion"
	DeviceClassSafety  DeviceClass = "safety"
	DeviceClassDoor    DeviceClass = "door"

	DeviceClassSwitch  DeviceClass = "switch"
	DeviceClassCurtain DeviceClass = "curtain"
)

// StateClass
// https://developers.home-assistant.io/docs/core/entity/sensor/#available-state-classes
type StateClass string

const (
	StateClassMeasurement     StateClass = "measurement"
	StateClassTotalIncreasing StateClass = "total_increasing"
)

const (
	UnitAmpere       = "A"
	UnitVolt         = "V"
	UnitWatt         = "W"
	UnitKiloWattHour = "kWh"
	UnitCelsius      = "°C"
	UnitPercentage   = "%"
	UnitLux          = "lx"
)

// Feature is a bitmask of optional entity capabilities.
type Feature uint32

const (
	FanFeatureSetSpeed  Feature = 1
	FanFeatureDirection Feature = 4

	CoverFeatureOpen        Feature = 1
	CoverFeatureClose       Feature = 2
	CoverFeatureSetPosition Feature = 4
	CoverFeatureStop        Feature = 8
)

func (f Feature) Has(other Feature) bool {
	return f&other == other
}

// entity state strings
const (
	StateOn      = "on"
	StateOff     = "off"
	StateOpen    = "open"
	StateClosed  = "closed"
	StateOpening = "opening"
	StateClosing = "closing"
	StateUnknown = "unknown"
)

// service names accepted by Hub.CallService
const (
	ServiceTurnOn           = "turn_on"
	ServiceTurnOff          = "turn_off"
	ServiceSetSpeed         = "set_speed"
	ServiceSetDirection     = "set_direction"
	ServiceOpenCover        = "open_cover"
	ServiceCloseCover       = "close_cover"
	ServiceStopCover        = "stop_cover"
	ServiceSetCoverPosition = "set_cover_position"
)
