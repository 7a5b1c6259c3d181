package bond

import (
	"context"
	"fmt"
	"sync"

	"github.com/XANi/hassbridge/hass"
	"go.uber.org/zap"
)

const (
	DirectionNameForward = "forward"
	DirectionNameReverse = "reverse"
)

// Fan is a polled fan entity backed by a Bond device.
type Fan struct {
	device    Device
	client    Client
	log       *zap.SugaredLogger
	hub       *hass.Hub
	power     *int
	speed     *int
	direction *int
	available bool
	sync.RWMutex
}

func NewFan(log *zap.SugaredLogger, client Client, device Device) *Fan {
	return &Fan{
		device: device,
		client: client,
		log:    log,
	}
}

func (f *Fan) UniqueID() string              { return f.device.ID }
func (f *Fan) Name() string                  { return f.device.Name }
func (f *Fan) Platform() hass.Platform       { return hass.PlatformFan }
func (f *Fan) DeviceClass() hass.DeviceClass { return "" }

func (f *Fan) DeviceInfo() hass.DeviceInfo {
	return hass.DeviceInfo{
		Identifier:   hass.DeviceIdentifier{Domain: Domain, ID: f.device.ID},
		Manufacturer: "Olibra",
		Name:         f.device.Name,
		Model:        string(f.device.Type),
	}
}

func (f *Fan) Available() bool {
	f.RLock()
	defer f.RUnlock()
	return f.available
}

func (f *Fan) SupportedFeatures() hass.Feature {
	var features hass.Feature
	if f.device.SupportsSpeed() {
		features |= hass.FanFeatureSetSpeed
	}
	if f.device.SupportsDirection() {
		features |= hass.FanFeatureDirection
	}
	return features
}

// Speed returns current speed; ok is false when power or speed are unknown.
func (f *Fan) Speed() (speed Speed, ok bool) {
	f.RLock()
	defer f.RUnlock()
	if f.power != nil && *f.power == 0 {
		return SpeedOff, true
	}
	if f.power == nil || f.speed == nil || *f.speed == 0 {
		return "", false
	}
	maxSpeed, err := f.device.MaxSpeed()
	if err != nil {
		f.log.Warnf("%s", err)
		return "", false
	}
	s, err := ToHostSpeed(*f.speed, maxSpeed)
	if err != nil {
		f.log.Warnf("%s", err)
		return "", false
	}
	return s, true
}

func (f *Fan) SpeedList() []Speed {
	return SpeedList
}

// CurrentDirection is empty when the hub did not report a known direction.
func (f *Fan) CurrentDirection() string {
	f.RLock()
	defer f.RUnlock()
	if f.direction == nil {
		return ""
	}
	switch Direction(*f.direction) {
	case DirectionForward:
		return DirectionNameForward
	case DirectionReverse:
		return DirectionNameReverse
	}
	return ""
}

func (f *Fan) State() hass.State {
	st := hass.State{
		State:      hass.StateUnknown,
		Attributes: map[string]any{"speed_list": f.SpeedList()},
	}
	f.RLock()
	if f.power != nil {
		if *f.power == 0 {
			st.State = hass.StateOff
		} else {
			st.State = hass.StateOn
		}
	}
	f.RUnlock()
	if s, ok := f.Speed(); ok {
		st.Attributes["speed"] = s
	}
	if d := f.CurrentDirection(); d != "" {
		st.Attributes["direction"] = d
	}
	return st
}

// Update fetches assumed state of the fan from the hub.
func (f *Fan) Update(ctx context.Context) error {
	state, err := f.client.DeviceState(ctx, f.device.ID)
	f.Lock()
	defer f.Unlock()
	if err != nil {
		f.available = false
		return fmt.Errorf("device state of %s: %w", f.device.ID, err)
	}
	f.available = true
	f.power = state.Power
	f.speed = state.Speed
	f.direction = state.Direction
	return nil
}

func (f *Fan) SetSpeed(ctx context.Context, speed string) error {
	s, err := ParseSpeed(speed)
	if err != nil {
		return err
	}
	if s == SpeedOff {
		return f.TurnOff(ctx)
	}
	maxSpeed, err := f.device.MaxSpeed()
	if err != nil {
		return err
	}
	vendorSpeed, err := ToVendorSpeed(s, maxSpeed)
	if err != nil {
		return err
	}
	return f.action(ctx, SetSpeed(vendorSpeed))
}

func (f *Fan) TurnOn(ctx context.Context, call hass.ServiceCall) error {
	if call.Speed != "" {
		return f.SetSpeed(ctx, call.Speed)
	}
	return f.action(ctx, TurnOn())
}

func (f *Fan) TurnOff(ctx context.Context) error {
	return f.action(ctx, TurnOff())
}

func (f *Fan) SetDirection(ctx context.Context, direction string) error {
	d := DirectionForward
	if direction == DirectionNameReverse {
		d = DirectionReverse
	}
	return f.action(ctx, SetDirection(d))
}

// action sends a command and schedules a refresh; the hub only reports the
// new state on its next read.
func (f *Fan) action(ctx context.Context, a Action) error {
	f.log.Debugf("sending %s(%v) to %s", a.Name, a.Argument, f.device.ID)
	if err := f.client.Action(ctx, f.device.ID, a); err != nil {
		return fmt.Errorf("action %s on %s: %w", a.Name, f.device.ID, err)
	}
	f.RLock()
	h := f.hub
	f.RUnlock()
	if h != nil {
		h.AddJob(func(ctx context.Context) {
			if err := h.RunInExecutor(ctx, f.Update); err != nil {
				f.log.Warnf("refresh after %s failed: %s", a.Name, err)
				return
			}
			h.WriteState(f)
		})
	}
	return nil
}

func (f *Fan) AddedToHub(h *hass.Hub) error {
	f.Lock()
	defer f.Unlock()
	f.hub = h
	return nil
}

func (f *Fan) WillRemoveFromHub() {
	f.Lock()
	defer f.Unlock()
	f.hub = nil
}
