package store

import (
	"context"
	"strings"
	"testing"

	"github.com/XANi/hassbridge/hass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	s, err := New(Config{
		DSN:    "file:" + name + "?mode=memory&cache=shared",
		Logger: zap.NewNop().Sugar(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDialector(t *testing.T) {
	assert.Equal(t, "postgres", dialector("postgres://u:p@db/hass").Name())
	assert.Equal(t, "postgres", dialector("host=db user=u dbname=hass").Name())
	assert.Equal(t, "sqlite", dialector("sqlite://hassbridge.db").Name())
	assert.Equal(t, "sqlite", dialector("hassbridge.db").Name())
}

func TestStore_ConfigEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := hass.NewConfigEntry("vconnex", "[Vconnex] home", map[string]string{"client_id": "1234"})
	require.NoError(t, s.SaveConfigEntry(ctx, e))
	require.NoError(t, s.SaveConfigEntry(ctx, hass.NewConfigEntry("bond", "hub", nil)))

	entries, err := s.ConfigEntries(ctx, "vconnex")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e, entries[0])

	e.Title = "renamed"
	require.NoError(t, s.SaveConfigEntry(ctx, e))
	entries, err = s.ConfigEntries(ctx, "vconnex")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "renamed", entries[0].Title)

	require.NoError(t, s.UpsertDevice(ctx, e.ID, hass.DeviceInfo{Identifier: hass.DeviceIdentifier{Domain: "vconnex", ID: "d1"}}))
	require.NoError(t, s.DeleteConfigEntry(ctx, e.ID))
	entries, err = s.ConfigEntries(ctx, "vconnex")
	require.NoError(t, err)
	assert.Empty(t, entries)
	devices, err := s.Devices(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, devices, "devices go with their entry")

	assert.ErrorIs(t, s.DeleteConfigEntry(ctx, e.ID), hass.ErrEntryNotFound)
}

func TestStore_Devices(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := hass.DeviceIdentifier{Domain: "vconnex", ID: "d1"}

	require.NoError(t, s.UpsertDevice(ctx, "e1", hass.DeviceInfo{Identifier: id, Name: "Hall", Model: "3012"}))
	require.NoError(t, s.UpsertDevice(ctx, "e1", hass.DeviceInfo{Identifier: id, Name: "Hall switch", Model: "3012", SWVersion: "1.2"}))
	require.NoError(t, s.UpsertDevice(ctx, "e2", hass.DeviceInfo{Identifier: hass.DeviceIdentifier{Domain: "bond", ID: "f1"}}))

	devices, err := s.Devices(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Hall switch", devices[0].Name)
	assert.Equal(t, "1.2", devices[0].SWVersion)

	all, err := s.Devices(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.RemoveDevice(ctx, id))
	require.NoError(t, s.RemoveDevice(ctx, id), "removing twice is fine")
	devices, err = s.Devices(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, devices)
}
