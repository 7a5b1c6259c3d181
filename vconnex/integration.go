package vconnex

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/XANi/hassbridge/hass"
	"go.uber.org/zap"
)

type IntegrationConfig struct {
	Logger *zap.SugaredLogger
	Hub    *hass.Hub
	SDK    SDK
	// Tables defaults to Tables
	Tables []*Table
	// Stored lists persisted entries, the flow rejects their credentials too
	Stored EntryLister
}

type EntryLister interface {
	ConfigEntries(ctx context.Context, domain string) ([]hass.ConfigEntry, error)
}

// Integration owns the state of every loaded vconnex config entry.
type Integration struct {
	log     *zap.SugaredLogger
	hub     *hass.Hub
	sdk     SDK
	stored  EntryLister
	tables  []*Table
	entries map[string]*Data
	sync.RWMutex
}

func NewIntegration(cfg IntegrationConfig) *Integration {
	tables := cfg.Tables
	if tables == nil {
		tables = Tables
	}
	return &Integration{
		log:     cfg.Logger,
		hub:     cfg.Hub,
		sdk:     cfg.SDK,
		stored:  cfg.Stored,
		tables:  tables,
		entries: map[string]*Data{},
	}
}

func (i *Integration) Domain() string { return Domain }

// Flow returns a config flow that rejects credentials of loaded and stored entries.
func (i *Integration) Flow() *Flow {
	return NewFlow(i.log.Named("flow"), i.hub, i.sdk, i.existingData)
}

// existingData also covers stored entries that failed to set up and are not loaded.
func (i *Integration) existingData(ctx context.Context) []map[string]string {
	out := i.ConfigData()
	if i.stored == nil {
		return out
	}
	stored, err := i.stored.ConfigEntries(ctx, Domain)
	if err != nil {
		i.log.Warnf("could not list stored entries, checking loaded ones only: %s", err)
		return out
	}
	for _, e := range stored {
		data := maps.Clone(e.Data)
		delete(data, ConfClientSecret)
		out = append(out, data)
	}
	return out
}

// ConfigData returns secret-free config data of every loaded entry.
func (i *Integration) ConfigData() []map[string]string {
	i.RLock()
	defer i.RUnlock()
	out := make([]map[string]string, 0, len(i.entries))
	for _, id := range slices.Sorted(maps.Keys(i.entries)) {
		out = append(out, maps.Clone(i.entries[id].ConfigData))
	}
	return out
}

func (i *Integration) Entry(entryID string) (*Data, bool) {
	i.RLock()
	defer i.RUnlock()
	d, ok := i.entries[entryID]
	return d, ok
}

// SetupEntry initializes the SDK for entry, adds entities for known devices
// and keeps adding them as the SDK reports new devices.
func (i *Integration) SetupEntry(ctx context.Context, entry hass.ConfigEntry) error {
	log := i.log.Named(entry.ID)
	data, err := Init(ctx, i.hub, log, i.sdk, entry)
	if err != nil {
		return fmt.Errorf("vconnex entry %s: %w", entry.ID, err)
	}
	i.Lock()
	i.entries[entry.ID] = data
	i.Unlock()

	// A device added signal triggers a full re-sync against the manager, so
	// signals dropped by a full bus buffer do not lose devices.
	data.OnUnload(i.hub.Bus.Connect(TopicDeviceAdded, func(hass.Signal) {
		ids := slices.Sorted(maps.Keys(data.Manager.DeviceMap()))
		if entities := i.entities(log, data.Manager, ids); len(entities) > 0 {
			i.hub.AddEntities(i.hub.Context(), entry.ID, entities, false)
		}
	}))
	ids := slices.Sorted(maps.Keys(data.Manager.DeviceMap()))
	entities := i.entities(log, data.Manager, ids)
	log.Infof("loaded %s with %d devices, %d entities", entry.Title, len(ids), len(entities))
	i.hub.AddEntities(ctx, entry.ID, entities, false)
	return nil
}

// entities builds the entities the tables resolve for ids that are not
// registered yet. Devices unknown to this entry's manager are skipped.
func (i *Integration) entities(log *zap.SugaredLogger, manager DeviceManager, ids []string) []hass.Entity {
	var out []hass.Entity
	for _, table := range i.tables {
		for _, id := range ids {
			d, ok := manager.Device(id)
			if !ok {
				continue
			}
			for _, desc := range table.Resolve(d) {
				if _, exists := i.hub.Entity(Domain + "." + desc.Key); exists {
					continue
				}
				e, err := NewEntity(log.Named(desc.Key), manager, d, desc)
				if err != nil {
					log.Errorf("skipping %s: %s", desc.Key, err)
					continue
				}
				out = append(out, e)
			}
		}
	}
	return out
}

func (i *Integration) UnloadEntry(ctx context.Context, entryID string) error {
	i.Lock()
	data, ok := i.entries[entryID]
	delete(i.entries, entryID)
	i.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", entryID, ErrEntryNotLoaded)
	}
	i.hub.RemoveEntities(entryID)
	data.Release()
	return nil
}
