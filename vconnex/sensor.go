package vconnex

import (
	"github.com/XANi/hassbridge/hass"
)

type Sensor struct {
	*Entity
}

func (s *Sensor) Unit() string                { return s.desc.Unit }
func (s *Sensor) StateClass() hass.StateClass { return s.desc.StateClass }

func (s *Sensor) State() hass.State {
	v, ok := s.paramValue(s.desc.Param)
	if !ok {
		return hass.State{State: hass.StateUnknown}
	}
	return hass.State{State: formatValue(v)}
}

// BinarySensor is on for any non-zero value of its parameter.
type BinarySensor struct {
	*Entity
}

func (b *BinarySensor) State() hass.State {
	on, ok := b.nonZero(b.desc.Param)
	switch {
	case !ok:
		return hass.State{State: hass.StateUnknown}
	case on:
		return hass.State{State: hass.StateOn}
	}
	return hass.State{State: hass.StateOff}
}
