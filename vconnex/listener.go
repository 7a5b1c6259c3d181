package vconnex

import (
	"context"

	"github.com/XANi/hassbridge/hass"
	"go.uber.org/zap"
)

// DeviceListener relays SDK callbacks onto the hub bus. Callback failures are
// logged per device and never reach the SDK.
type DeviceListener struct {
	hub     *hass.Hub
	manager DeviceManager
	log     *zap.SugaredLogger
}

func NewDeviceListener(log *zap.SugaredLogger, hub *hass.Hub, manager DeviceManager) *DeviceListener {
	return &DeviceListener{hub: hub, manager: manager, log: log}
}

func (l *DeviceListener) isolate(deviceID, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("%s handler for %s failed: %v", event, deviceID, r)
		}
	}()
	fn()
}

// OnDeviceAdded announces the device and requests all of its values so new
// entities do not start out unknown.
func (l *DeviceListener) OnDeviceAdded(d Device) {
	l.isolate(d.DeviceID, "device added", func() {
		l.hub.Bus.Send(TopicDeviceAdded, []string{d.DeviceID})
		l.hub.AddExecutorJob(func(ctx context.Context) error {
			RetrieveDeviceData(ctx, l.log, l.manager, []Device{d})
			return nil
		})
	})
}

func (l *DeviceListener) OnDeviceRemoved(d Device) {
	l.isolate(d.DeviceID, "device removed", func() {
		l.hub.Bus.Send(DeviceTopic(TopicDeviceRemoved, d.DeviceID))
		id := hass.DeviceIdentifier{Domain: Domain, ID: d.DeviceID}
		l.hub.AddJob(func(ctx context.Context) {
			if err := l.hub.RemoveDevice(ctx, id); err != nil {
				l.log.Warnf("could not remove device %s from registry: %s", d.DeviceID, err)
			}
		})
	})
}

func (l *DeviceListener) OnDeviceUpdate(newDevice, _ Device) {
	l.isolate(newDevice.DeviceID, "device update", func() {
		l.hub.Bus.Send(DeviceTopic(TopicDeviceUpdated, newDevice.DeviceID))
	})
}

func (l *DeviceListener) OnDeviceDataUpdate(deviceID string, message map[string]any) {
	l.isolate(deviceID, "device data update", func() {
		l.hub.Bus.Send(DeviceTopic(TopicDeviceDataUpdated, deviceID), message)
	})
}
