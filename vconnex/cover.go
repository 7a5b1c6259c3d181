package vconnex

import (
	"context"
	"fmt"

	"github.com/XANi/hassbridge/hass"
)

// Cover is a curtain motor. Position 0 is closed, 100 fully open.
type Cover struct {
	*Entity
}

func (c *Cover) SupportedFeatures() hass.Feature { return c.desc.Features }

// Position returns the reported open level.
func (c *Cover) Position() (int, bool) {
	v, ok := c.paramValue(c.desc.Cover.OpenLevel)
	if !ok {
		return 0, false
	}
	n, ok := numeric(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}

func (c *Cover) IsOpening() bool {
	on, ok := c.nonZero(c.desc.Cover.Open)
	return ok && on
}

func (c *Cover) IsClosing() bool {
	on, ok := c.nonZero(c.desc.Cover.Close)
	return ok && on
}

func (c *Cover) State() hass.State {
	st := hass.State{State: hass.StateUnknown, Attributes: map[string]any{}}
	pos, hasPos := c.Position()
	if hasPos {
		st.Attributes["current_position"] = pos
	}
	switch {
	case c.IsOpening():
		st.State = hass.StateOpening
	case c.IsClosing():
		st.State = hass.StateClosing
	case !hasPos:
	case pos == 0:
		st.State = hass.StateClosed
	default:
		st.State = hass.StateOpen
	}
	return st
}

func (c *Cover) OpenCover(ctx context.Context) error {
	return c.setParam(ctx, c.desc.Cover.Open, 1)
}

func (c *Cover) CloseCover(ctx context.Context) error {
	return c.setParam(ctx, c.desc.Cover.Close, 1)
}

func (c *Cover) StopCover(ctx context.Context) error {
	if c.desc.Cover.Stop == nil {
		return hass.ErrServiceNotSupported
	}
	return c.setParam(ctx, c.desc.Cover.Stop, 1)
}

func (c *Cover) SetCoverPosition(ctx context.Context, position int) error {
	if position < 0 || position > 100 {
		return fmt.Errorf("position %d out of 0..100 range", position)
	}
	return c.setParam(ctx, c.desc.Cover.OpenLevel, position)
}
