package bond

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/XANi/hassbridge/hass"
	"go.uber.org/zap"
)

const Domain = "bond"

const (
	ConfHost        = "host"
	ConfAccessToken = "access_token"
)

var ErrEntryNotLoaded = errors.New("config entry not loaded")

// ClientFactory builds an SDK client for one hub.
type ClientFactory func(host, token string) (Client, error)

type IntegrationConfig struct {
	Logger    *zap.SugaredLogger
	Hub       *hass.Hub
	NewClient ClientFactory
}

// Integration keeps one SDK client per loaded config entry.
type Integration struct {
	log       *zap.SugaredLogger
	hub       *hass.Hub
	newClient ClientFactory
	entries   map[string]Client
	sync.Mutex
}

func NewIntegration(cfg IntegrationConfig) *Integration {
	return &Integration{
		log:       cfg.Logger,
		hub:       cfg.Hub,
		newClient: cfg.NewClient,
		entries:   map[string]Client{},
	}
}

func (i *Integration) Domain() string { return Domain }

// SetupEntry connects to the hub and adds a fan entity per fan device.
func (i *Integration) SetupEntry(ctx context.Context, entry hass.ConfigEntry) error {
	client, err := i.newClient(entry.Data[ConfHost], entry.Data[ConfAccessToken])
	if err != nil {
		return fmt.Errorf("bond client for %s: %w", entry.Data[ConfHost], err)
	}
	var devices []Device
	err = i.hub.RunInExecutor(ctx, func(ctx context.Context) error {
		var err error
		devices, err = client.Devices(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("listing bond devices: %w", err)
	}
	var fans []hass.Entity
	for _, d := range devices {
		if !d.Type.IsFan() {
			continue
		}
		fans = append(fans, NewFan(i.log.Named(d.ID), client, d))
	}
	i.Lock()
	i.entries[entry.ID] = client
	i.Unlock()
	i.log.Infof("bond entry %s: %d fans out of %d devices", entry.ID, len(fans), len(devices))
	i.hub.AddEntities(ctx, entry.ID, fans, true)
	return nil
}

func (i *Integration) UnloadEntry(ctx context.Context, entryID string) error {
	i.Lock()
	_, ok := i.entries[entryID]
	delete(i.entries, entryID)
	i.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", entryID, ErrEntryNotLoaded)
	}
	i.hub.RemoveEntities(entryID)
	return nil
}
