package vconnex

import (
	"context"

	"github.com/XANi/hassbridge/hass"
)

// Switch drives one on/off parameter of a multi-gang switch or socket.
type Switch struct {
	*Entity
}

func (s *Switch) IsOn() (on bool, ok bool) {
	return s.nonZero(s.desc.Param)
}

func (s *Switch) State() hass.State {
	on, ok := s.IsOn()
	switch {
	case !ok:
		return hass.State{State: hass.StateUnknown}
	case on:
		return hass.State{State: hass.StateOn}
	}
	return hass.State{State: hass.StateOff}
}

func (s *Switch) TurnOn(ctx context.Context, _ hass.ServiceCall) error {
	return s.setParam(ctx, s.desc.Param, 1)
}

func (s *Switch) TurnOff(ctx context.Context) error {
	return s.setParam(ctx, s.desc.Param, 0)
}
