package hass

import (
	"context"

	"github.com/google/uuid"
)

// ConfigEntry is the persisted record of a configured integration instance.
type ConfigEntry struct {
	ID     string
	Domain string
	Title  string
	Data   map[string]string
}

func NewConfigEntry(domain, title string, data map[string]string) ConfigEntry {
	return ConfigEntry{
		ID:     uuid.NewString(),
		Domain: domain,
		Title:  title,
		Data:   data,
	}
}

type ConfigEntryStore interface {
	SaveConfigEntry(ctx context.Context, e ConfigEntry) error
	ConfigEntries(ctx context.Context, domain string) ([]ConfigEntry, error)
	DeleteConfigEntry(ctx context.Context, id string) error
}
