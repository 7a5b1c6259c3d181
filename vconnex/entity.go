package vconnex

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/XANi/hassbridge/hass"
	"go.uber.org/zap"
)

// Entity is the part shared by every vconnex entity kind. It never caches
// device values; each read takes the current snapshot from the manager.
type Entity struct {
	desc       EntityDescriptor
	device     Device
	manager    DeviceManager
	log        *zap.SugaredLogger
	self       hass.Entity
	disconnect []func()
	sync.Mutex
}

// NewEntity builds the entity kind matching the descriptor platform.
func NewEntity(log *zap.SugaredLogger, manager DeviceManager, device Device, desc EntityDescriptor) (hass.Entity, error) {
	base := &Entity{
		desc:    desc,
		device:  device,
		manager: manager,
		log:     log,
	}
	var e hass.Entity
	switch desc.Platform {
	case hass.PlatformSwitch:
		e = &Switch{Entity: base}
	case hass.PlatformSensor:
		e = &Sensor{Entity: base}
	case hass.PlatformBinarySensor:
		e = &BinarySensor{Entity: base}
	case hass.PlatformCover:
		if desc.Cover == nil {
			return nil, fmt.Errorf("cover %s without cover params: %w", desc.Key, ErrInvalidDeviceConfig)
		}
		e = &Cover{Entity: base}
	default:
		return nil, fmt.Errorf("unsupported platform %s for %s: %w", desc.Platform, desc.Key, ErrInvalidDeviceConfig)
	}
	if desc.Platform != hass.PlatformCover && desc.Param == nil {
		return nil, fmt.Errorf("%s %s without param: %w", desc.Platform, desc.Key, ErrInvalidDeviceConfig)
	}
	base.self = e
	return e, nil
}

func (e *Entity) UniqueID() string              { return Domain + "." + e.desc.Key }
func (e *Entity) Platform() hass.Platform       { return e.desc.Platform }
func (e *Entity) DeviceClass() hass.DeviceClass { return e.desc.DeviceClass }

func (e *Entity) Name() string {
	if e.desc.Name != "" {
		return e.desc.Name
	}
	return e.snapshot().Name
}

func (e *Entity) DeviceInfo() hass.DeviceInfo {
	d := e.snapshot()
	return hass.DeviceInfo{
		Identifier:   hass.DeviceIdentifier{Domain: Domain, ID: d.DeviceID},
		Manufacturer: DomainName,
		Name:         d.Name,
		Model:        d.DeviceTypeName,
		SWVersion:    d.Version,
	}
}

// Available is true once the device delivered any data message. A device the
// manager no longer knows is unavailable.
func (e *Entity) Available() bool {
	d, ok := e.manager.Device(e.device.DeviceID)
	return ok && len(d.Data) > 0
}

// snapshot returns the manager's current device, or the one the entity was
// built from if the manager already dropped it.
func (e *Entity) snapshot() Device {
	if d, ok := e.manager.Device(e.device.DeviceID); ok {
		return d
	}
	return e.device
}

// paramValue reads and converts p; ok is false if the device has not reported it.
func (e *Entity) paramValue(p *ParamDescription) (v any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("reading %s of %s: %v", p.NativeParam, e.device.DeviceID, r)
			v, ok = nil, false
		}
	}()
	raw, ok := e.snapshot().Value(p.DataName(), p.NativeParam)
	if !ok || raw == nil {
		return nil, false
	}
	return p.FromNativeValue(raw), true
}

// nonZero reports value != 0; unknown values give ok=false.
func (e *Entity) nonZero(p *ParamDescription) (on bool, ok bool) {
	v, ok := e.paramValue(p)
	if !ok {
		return false, false
	}
	if n, isNum := numeric(v); isNum {
		return n != 0, true
	}
	return true, true
}

func (e *Entity) sendCommand(ctx context.Context, command string, values map[string]any) error {
	e.log.Debugf("sending %s to %s: %v", command, e.device.DeviceID, values)
	if err := e.manager.SendCommand(ctx, e.device.DeviceID, command, values); err != nil {
		return fmt.Errorf("%s on %s: %w", command, e.device.DeviceID, err)
	}
	return nil
}

func (e *Entity) setParam(ctx context.Context, p *ParamDescription, v any) error {
	return e.sendCommand(ctx, CommandSetData, map[string]any{p.NativeParam: p.ToNativeValue(v)})
}

// AddedToHub re-publishes state whenever the device is updated, removed or
// reports new data.
func (e *Entity) AddedToHub(h *hass.Hub) error {
	e.Lock()
	defer e.Unlock()
	for _, topic := range []string{TopicDeviceUpdated, TopicDeviceRemoved, TopicDeviceDataUpdated} {
		e.disconnect = append(e.disconnect, h.Bus.Connect(DeviceTopic(topic, e.device.DeviceID), func(hass.Signal) {
			h.WriteState(e.self)
		}))
	}
	return nil
}

func (e *Entity) WillRemoveFromHub() {
	e.Lock()
	defer e.Unlock()
	for _, d := range e.disconnect {
		d()
	}
	e.disconnect = nil
}

// formatValue renders sensor values the way they are exported.
func formatValue(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}
