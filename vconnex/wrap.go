package vconnex

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/XANi/hassbridge/hass"
	"go.uber.org/zap"
)

// Data is the per config entry state: the device manager and its listener.
type Data struct {
	// ConfigData is the entry data without the client secret.
	ConfigData map[string]string
	Manager    DeviceManager
	Listener   *DeviceListener
	log        *zap.SugaredLogger
	unload     []func()
}

// Init authenticates, initializes the device manager off the caller and
// requests the current values of every known device in the background.
func Init(ctx context.Context, hub *hass.Hub, log *zap.SugaredLogger, sdk SDK, entry hass.ConfigEntry) (*Data, error) {
	endpoint := entry.Data[ConfEndpoint]
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	clientID := entry.Data[ConfClientID]
	api, err := sdk.NewAPI(endpoint, clientID, entry.Data[ConfClientSecret], ProjectCode)
	if err != nil {
		return nil, fmt.Errorf("api for %s: %w", clientID, err)
	}
	var valid bool
	err = hub.RunInExecutor(ctx, func(ctx context.Context) error {
		var err error
		valid, err = api.IsValid(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("validating client %s: %w: %w", clientID, ErrCannotConnect, err)
	}
	if !valid {
		return nil, fmt.Errorf("client %s: %w", clientID, ErrInvalidCredentials)
	}
	manager := sdk.NewDeviceManager(api)
	err = hub.RunInExecutor(ctx, manager.Initialize)
	if err != nil {
		return nil, fmt.Errorf("initializing device manager: %w", err)
	}
	if !manager.IsInitialized() {
		return nil, ErrNotInitialized
	}
	devices := slices.Collect(maps.Values(manager.DeviceMap()))
	hub.AddExecutorJob(func(ctx context.Context) error {
		RetrieveDeviceData(ctx, log, manager, devices)
		return nil
	})
	listener := NewDeviceListener(log.Named("listener"), hub, manager)
	manager.AddListener(listener)

	cfg := maps.Clone(entry.Data)
	delete(cfg, ConfClientSecret)
	return &Data{
		ConfigData: cfg,
		Manager:    manager,
		Listener:   listener,
		log:        log,
	}, nil
}

// OnUnload registers fn to run on Release, before the manager is released.
func (d *Data) OnUnload(fn func()) {
	d.unload = append(d.unload, fn)
}

// Release tears the entry down. Errors are logged, the entry is gone either way.
func (d *Data) Release() {
	for _, fn := range d.unload {
		fn()
	}
	d.unload = nil
	d.Manager.RemoveListener(d.Listener)
	if err := d.Manager.Release(); err != nil {
		d.log.Errorf("releasing device manager: %s", err)
	}
}

// RetrieveDeviceData asks every device for all of its values. A failing
// device is logged and skipped.
func RetrieveDeviceData(ctx context.Context, log *zap.SugaredLogger, manager DeviceManager, devices []Device) {
	for _, d := range devices {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("requesting data of %s: %v", d.DeviceID, r)
				}
			}()
			if err := manager.SendCommand(ctx, d.DeviceID, CommandGetData, map[string]any{"all": 1}); err != nil {
				log.Warnf("requesting data of %s: %s", d.DeviceID, err)
			}
		}()
	}
}
