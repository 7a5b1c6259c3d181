package loopback

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/XANi/hassbridge/bond"
)

// NewBondClientFactory returns clients for fixture hubs; host and token must match.
func NewBondClientFactory(f BondFixture) bond.ClientFactory {
	return func(host, token string) (bond.Client, error) {
		for _, h := range f.Hubs {
			if h.Host != host {
				continue
			}
			if h.Token != token {
				return nil, fmt.Errorf("hub %s: %w", host, ErrUnauthorized)
			}
			return NewBondClient(h), nil
		}
		return nil, fmt.Errorf("no bond hub at %s", host)
	}
}

// BondClient tracks assumed state the way a Bond hub does.
type BondClient struct {
	devices []bond.Device
	state   map[string]bond.DeviceState
	sync.Mutex
}

func NewBondClient(h BondHub) *BondClient {
	c := &BondClient{
		devices: slices.Clone(h.Devices),
		state:   map[string]bond.DeviceState{},
	}
	for id, s := range h.State {
		c.state[id] = s
	}
	return c
}

func (c *BondClient) Devices(ctx context.Context) ([]bond.Device, error) {
	return slices.Clone(c.devices), nil
}

func (c *BondClient) device(id string) (bond.Device, bool) {
	i := slices.IndexFunc(c.devices, func(d bond.Device) bool { return d.ID == id })
	if i < 0 {
		return bond.Device{}, false
	}
	return c.devices[i], true
}

func (c *BondClient) DeviceState(ctx context.Context, deviceID string) (bond.DeviceState, error) {
	if _, ok := c.device(deviceID); !ok {
		return bond.DeviceState{}, fmt.Errorf("%s: %w", deviceID, ErrUnknownDevice)
	}
	c.Lock()
	defer c.Unlock()
	return c.state[deviceID], nil
}

func intPtr(i int) *int { return &i }

func (c *BondClient) Action(ctx context.Context, deviceID string, action bond.Action) error {
	d, ok := c.device(deviceID)
	if !ok {
		return fmt.Errorf("%s: %w", deviceID, ErrUnknownDevice)
	}
	if !slices.Contains(d.Actions, action.Name) {
		return fmt.Errorf("%s does not support %s", deviceID, action.Name)
	}
	c.Lock()
	defer c.Unlock()
	st := c.state[deviceID]
	switch action.Name {
	case bond.ActionTurnOn:
		st.Power = intPtr(1)
	case bond.ActionTurnOff:
		st.Power = intPtr(0)
	case bond.ActionSetSpeed:
		v, ok := action.Argument.(int)
		if !ok {
			return fmt.Errorf("speed argument %v is not an int", action.Argument)
		}
		st.Power = intPtr(1)
		st.Speed = intPtr(v)
	case bond.ActionSetDirection:
		v, ok := action.Argument.(int)
		if !ok {
			return fmt.Errorf("direction argument %v is not an int", action.Argument)
		}
		st.Direction = intPtr(v)
	}
	c.state[deviceID] = st
	return nil
}
