package hass

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var ErrUnknownDomain = errors.New("no integration for domain")
var ErrEntryNotFound = errors.New("config entry not found")

// Integration sets up and tears down config entries of one domain.
type Integration interface {
	Domain() string
	SetupEntry(ctx context.Context, entry ConfigEntry) error
	UnloadEntry(ctx context.Context, entryID string) error
}

// ConfigEntries ties persisted entries to the integrations that load them.
type ConfigEntries struct {
	store        ConfigEntryStore
	log          *zap.SugaredLogger
	integrations map[string]Integration
	loaded       map[string]ConfigEntry
	sync.RWMutex
}

func NewConfigEntries(log *zap.SugaredLogger, store ConfigEntryStore, integrations ...Integration) *ConfigEntries {
	c := &ConfigEntries{
		store:        store,
		log:          log,
		integrations: map[string]Integration{},
		loaded:       map[string]ConfigEntry{},
	}
	for _, i := range integrations {
		c.integrations[i.Domain()] = i
	}
	return c
}

func (c *ConfigEntries) integration(domain string) (Integration, error) {
	i, ok := c.integrations[domain]
	if !ok {
		return nil, fmt.Errorf("%s: %w", domain, ErrUnknownDomain)
	}
	return i, nil
}

// Add sets the entry up and persists it only if setup succeeded.
func (c *ConfigEntries) Add(ctx context.Context, entry ConfigEntry) error {
	i, err := c.integration(entry.Domain)
	if err != nil {
		return err
	}
	if err := c.setup(ctx, i, entry); err != nil {
		return err
	}
	if err := c.store.SaveConfigEntry(ctx, entry); err != nil {
		c.unload(ctx, i, entry.ID)
		return fmt.Errorf("saving config entry %s: %w", entry.ID, err)
	}
	return nil
}

// Load sets up every stored entry. A failing entry is logged and skipped.
func (c *ConfigEntries) Load(ctx context.Context) (loaded int, err error) {
	for domain, i := range c.integrations {
		entries, err := c.store.ConfigEntries(ctx, domain)
		if err != nil {
			return loaded, fmt.Errorf("loading %s entries: %w", domain, err)
		}
		for _, e := range entries {
			if err := c.setup(ctx, i, e); err != nil {
				c.log.Errorf("could not set up %s entry %s [%s]: %s", domain, e.ID, e.Title, err)
				continue
			}
			loaded++
		}
	}
	return loaded, nil
}

func (c *ConfigEntries) setup(ctx context.Context, i Integration, entry ConfigEntry) error {
	if err := i.SetupEntry(ctx, entry); err != nil {
		return err
	}
	c.Lock()
	c.loaded[entry.ID] = entry
	c.Unlock()
	c.log.Infof("set up %s entry %s [%s]", entry.Domain, entry.ID, entry.Title)
	return nil
}

// Unload tears a loaded entry down without forgetting it.
func (c *ConfigEntries) Unload(ctx context.Context, entryID string) error {
	c.RLock()
	entry, ok := c.loaded[entryID]
	c.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", entryID, ErrEntryNotFound)
	}
	i, err := c.integration(entry.Domain)
	if err != nil {
		return err
	}
	return c.unload(ctx, i, entryID)
}

func (c *ConfigEntries) unload(ctx context.Context, i Integration, entryID string) error {
	c.Lock()
	delete(c.loaded, entryID)
	c.Unlock()
	return i.UnloadEntry(ctx, entryID)
}

// Remove unloads the entry if loaded and deletes it from the store.
func (c *ConfigEntries) Remove(ctx context.Context, entryID string) error {
	err := c.Unload(ctx, entryID)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		c.log.Warnf("unloading %s before removal: %s", entryID, err)
	}
	if err := c.store.DeleteConfigEntry(ctx, entryID); err != nil {
		return fmt.Errorf("deleting config entry %s: %w", entryID, err)
	}
	return nil
}

// Loaded returns loaded entries ordered by domain and title.
func (c *ConfigEntries) Loaded() []ConfigEntry {
	c.RLock()
	out := make([]ConfigEntry, 0, len(c.loaded))
	for _, e := range c.loaded {
		out = append(out, e)
	}
	c.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// UnloadAll tears every loaded entry down, used on shutdown.
func (c *ConfigEntries) UnloadAll(ctx context.Context) {
	for _, e := range c.Loaded() {
		if err := c.Unload(ctx, e.ID); err != nil {
			c.log.Warnf("unloading %s: %s", e.ID, err)
		}
	}
}
