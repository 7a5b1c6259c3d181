package vconnex

import "github.com/XANi/hassbridge/hass"

func energySensor(p *ParamDescription) Template {
	return SensorTemplate{
		Param:       p,
		DeviceClass: hass.DeviceClassEnergy,
		StateClass:  hass.StateClassTotalIncreasing,
		Unit:        hass.UnitKiloWattHour,
	}
}

func measurement(p *ParamDescription, class hass.DeviceClass, unit string) Template {
	return SensorTemplate{
		Param:       p,
		DeviceClass: class,
		StateClass:  hass.StateClassMeasurement,
		Unit:        unit,
	}
}

func cost(p *ParamDescription) Template {
	return SensorTemplate{Param: p, StateClass: hass.StateClassMeasurement}
}

func battery() Template {
	return measurement(Param("battery"), hass.DeviceClassBattery, hass.UnitPercentage)
}

func rssi() Template {
	return measurement(Param("RSSI"), hass.DeviceClassSignalStrength, "")
}

func illuminance() Template {
	return measurement(Param("lux"), hass.DeviceClassIlluminance, hass.UnitLux)
}

var SensorTable = MustTable(hass.PlatformSensor, map[DeviceTypeCode][]Template{
	3009: {
		measurement(Param("Current"), hass.DeviceClassCurrent, hass.UnitAmpere),
		measurement(Param("Voltage"), hass.DeviceClassVoltage, hass.UnitVolt),
		measurement(Param("Power"), hass.DeviceClassPower, hass.UnitWatt),
		energySensor(Param("EnergyCount")),
		energySensor(Param("ExportEnergyCount")),
		energySensor(ExtendedParam("ConsumptionCountToday")),
		energySensor(ExtendedParam("ConsumptionCountThisMonth")),
		cost(ExtendedParam("ConsumptionCostThisMonth")),
		energySensor(ExtendedParam("ExportCountToday")),
		energySensor(ExtendedParam("ExportCountThisMonth")),
		cost(ExtendedParam("ExportCostThisMonth")),
	},
	3020: {
		measurement(Param("temp"), hass.DeviceClassTemperature, hass.UnitCelsius),
		measurement(Param("humi"), hass.DeviceClassHumidity, hass.UnitPercentage),
	},
	3029: {illuminance()},
	3049: {battery(), rssi()},
	3056: {battery()},
	3057: {battery(), rssi()},
	3066: {battery()},
	3067: {illuminance(), battery()},
	3076: {
		measurement(Param("current"), hass.DeviceClassCurrent, hass.UnitAmpere),
		measurement(Param("voltage"), hass.DeviceClassVoltage, hass.UnitVolt),
		measurement(Param("activepower"), hass.DeviceClassPower, hass.UnitWatt),
		energySensor(Param("energy")),
	},
})

func binary(param string, class hass.DeviceClass) []Template {
	return []Template{BinarySensorTemplate{Param: Param(param), DeviceClass: class}}
}

var BinarySensorTable = MustTable(hass.PlatformBinarySensor, map[DeviceTypeCode][]Template{
	3024: binary("waterLeak", hass.DeviceClassProblem),
	3027: binary("gasLeak", hass.DeviceClassGas),
	3028: binary("smokeAlarm", hass.DeviceClassSmoke),
	3029: binary("motion", hass.DeviceClassMotion),
	3043: binary("eleak", hass.DeviceClassSafety),
	3049: binary("smokeAlarm", hass.DeviceClassSmoke),
	3052: binary("eleak", hass.DeviceClassSafety),
	3056: binary("smokeAlarm", hass.DeviceClassSmoke),
	3057: binary("smokeAlarm", hass.DeviceClassSmoke),
	3066: binary("door", hass.DeviceClassDoor),
	3067: binary("motion", hass.DeviceClassMotion),
})

func onOffSwitches() []Template {
	return []Template{SwitchTemplate{ParamType: ParamTypeOnOff, DeviceClass: hass.DeviceClassSwitch}}
}

var SwitchTable = MustTable(hass.PlatformSwitch, map[DeviceTypeCode][]Template{
	3010: onOffSwitches(),
	3011: onOffSwitches(),
	3012: onOffSwitches(),
	3015: onOffSwitches(),
	3016: onOffSwitches(),
	3017: onOffSwitches(),
	3018: onOffSwitches(),
	3043: onOffSwitches(),
})

func curtain(key string, withStop bool) CoverTemplate {
	t := CoverTemplate{
		Key:         key,
		DeviceClass: hass.DeviceClassCurtain,
		Open:        Param("curtain_open"),
		Close:       Param("curtain_close"),
		OpenLevel:   Param("open_level"),
	}
	if withStop {
		t.Stop = Param("curtain_stop")
	}
	return t
}

var CoverTable = MustTable(hass.PlatformCover, map[DeviceTypeCode][]Template{
	3040: {curtain("cover_1", true)},
	3041: {
		curtain("cover_1", false),
		CoverTemplate{
			Key:         "cover_2",
			DeviceClass: hass.DeviceClassCurtain,
			Open:        Param("curtain_2_open"),
			Close:       Param("curtain_2_close"),
			OpenLevel:   Param("open_2_level"),
		},
	},
	3042: {curtain("cover_motor", true)},
	3048: {curtain("cover_motor", true)},
})

// Tables lists every platform table in setup order.
var Tables = []*Table{SwitchTable, SensorTable, BinarySensorTable, CoverTable}
