package queue

import (
	"github.com/XANi/hassbridge/hass"
)

// Discovery is the Home Assistant MQTT discovery payload, using abbreviated keys.
type Discovery struct {
	// https://www.home-assistant.io/integrations/sensor/#device-class
	DeviceClass hass.DeviceClass `json:"dev_cla,omitempty"`
	Unit        string           `json:"unit_of_meas,omitempty"`
	// https://developers.home-assistant.io/docs/core/entity/sensor/#available-state-classes
	StateClass        hass.StateClass `json:"stat_cla,omitempty"`
	Name              string          `json:"name"`
	StateTopic        string          `json:"stat_t"`
	CommandTopic      string          `json:"cmd_t,omitempty"`
	AvailabilityTopic string          `json:"avty_t"`
	AttributesTopic   string          `json:"json_attr_t"`
	UniqID            string          `json:"uniq_id"`
	PayloadOn         string          `json:"pl_on,omitempty"`
	PayloadOff        string          `json:"pl_off,omitempty"`
	// cover
	PositionTopic    string `json:"pos_t,omitempty"`
	SetPositionTopic string `json:"set_pos_t,omitempty"`
	PayloadStop      string `json:"pl_stop,omitempty"`
	// fan
	PresetModeCommandTopic string   `json:"pr_mode_cmd_t,omitempty"`
	PresetModeStateTopic   string   `json:"pr_mode_stat_t,omitempty"`
	PresetModes            []string `json:"pr_modes,omitempty"`
	DirectionCommandTopic  string   `json:"dir_cmd_t,omitempty"`
	DirectionStateTopic    string   `json:"dir_stat_t,omitempty"`

	Dev *Device `json:"dev"`
}

type Device struct {
	ID              string `json:"ids"`
	Name            string `json:"name"`
	SoftwareVersion string `json:"sw,omitempty"`
	Model           string `json:"mdl,omitempty"`
	Manufacturer    string `json:"mf,omitempty"`
}

// payloads for switch and fan commands, matching exported states
const (
	PayloadOn    = hass.StateOn
	PayloadOff   = hass.StateOff
	PayloadOpen  = "OPEN"
	PayloadClose = "CLOSE"
	PayloadStop  = "STOP"
)

// topics is the set of topics one entity is exported under.
type topics struct {
	base        string
	state       string
	attributes  string
	available   string
	command     string
	position    string
	setPosition string
	speed       string
	setSpeed    string
	direction   string
	setDir      string
}

func entityTopics(prefix string, e hass.Entity) topics {
	base := prefix + "/" + string(e.Platform()) + "/" + objectID(e.UniqueID())
	return topics{
		base:        base,
		state:       base + "/state",
		attributes:  base + "/attributes",
		available:   base + "/availability",
		command:     base + "/set",
		position:    base + "/position",
		setPosition: base + "/set_position",
		speed:       base + "/speed",
		setSpeed:    base + "/speed/set",
		direction:   base + "/direction",
		setDir:      base + "/direction/set",
	}
}

// NewDiscovery builds the discovery payload of e; command topics are only
// advertised for entities that accept the matching services.
func NewDiscovery(prefix string, e hass.Entity) Discovery {
	t := entityTopics(prefix, e)
	info := e.DeviceInfo()
	d := Discovery{
		DeviceClass:       e.DeviceClass(),
		Name:              e.Name(),
		StateTopic:        t.state,
		AvailabilityTopic: t.available,
		AttributesTopic:   t.attributes,
		UniqID:            e.UniqueID(),
		Dev: &Device{
			ID:              info.Identifier.Domain + "_" + info.Identifier.ID,
			Name:            info.Name,
			SoftwareVersion: info.SWVersion,
			Model:           info.Model,
			Manufacturer:    info.Manufacturer,
		},
	}
	if u, ok := e.(hass.Unit); ok {
		d.Unit = u.Unit()
	}
	if s, ok := e.(hass.StateClasser); ok {
		d.StateClass = s.StateClass()
	}
	switch e.Platform() {
	case hass.PlatformBinarySensor:
		d.PayloadOn, d.PayloadOff = PayloadOn, PayloadOff
	case hass.PlatformSwitch:
		d.PayloadOn, d.PayloadOff = PayloadOn, PayloadOff
		if _, ok := e.(hass.Toggle); ok {
			d.CommandTopic = t.command
		}
	case hass.PlatformFan:
		d.PayloadOn, d.PayloadOff = PayloadOn, PayloadOff
		d.CommandTopic = t.command
		f, _ := e.(hass.Featured)
		if f != nil && f.SupportedFeatures().Has(hass.FanFeatureSetSpeed) {
			d.PresetModeCommandTopic = t.setSpeed
			d.PresetModeStateTopic = t.speed
			d.PresetModes = []string{"low", "medium", "high"}
		}
		if f != nil && f.SupportedFeatures().Has(hass.FanFeatureDirection) {
			d.DirectionCommandTopic = t.setDir
			d.DirectionStateTopic = t.direction
		}
	case hass.PlatformCover:
		d.CommandTopic = t.command
		d.PositionTopic = t.position
		if f, ok := e.(hass.Featured); ok {
			if f.SupportedFeatures().Has(hass.CoverFeatureSetPosition) {
				d.SetPositionTopic = t.setPosition
			}
			if f.SupportedFeatures().Has(hass.CoverFeatureStop) {
				d.PayloadStop = PayloadStop
			}
		}
	}
	return d
}

// ConfigTopic is where discovery of e is published.
func ConfigTopic(discoveryPrefix, nodeID string, e hass.Entity) string {
	return discoveryPrefix + "/" + string(e.Platform()) + "/" + nodeID + "/" + objectID(e.UniqueID()) + "/config"
}
