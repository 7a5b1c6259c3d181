package vconnex

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/XANi/hassbridge/hass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stateSink struct {
	sync.Mutex
	states map[string]string
}

func (s *stateSink) EntityAdded(e hass.Entity)   {}
func (s *stateSink) EntityRemoved(e hass.Entity) {}
func (s *stateSink) StateChanged(e hass.Entity, st hass.State) {
	s.Lock()
	defer s.Unlock()
	s.states[e.UniqueID()] = st.State
}

func (s *stateSink) state(id string) string {
	s.Lock()
	defer s.Unlock()
	return s.states[id]
}

func entityIDs(hub *hass.Hub) []string {
	var out []string
	for _, e := range hub.Entities() {
		out = append(out, e.UniqueID())
	}
	return out
}

func TestIntegration_Lifecycle(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub(t, nil)
	sink := &stateSink{states: map[string]string{}}
	hub.AddStateSink(sink)
	m := newFakeManager(switchDevice("s1"), climateDevice("t1"), Device{DeviceID: "x", DeviceTypeCode: 1})
	sdk := validSDK()
	sdk.manager = m
	i := NewIntegration(IntegrationConfig{Logger: zap.NewNop().Sugar(), Hub: hub, SDK: sdk})

	entry := hass.NewConfigEntry(Domain, "[Vconnex] test", map[string]string{
		ConfClientID:     "1234",
		ConfClientSecret: "secret",
		ConfUserID:       "1",
	})
	require.NoError(t, i.SetupEntry(ctx, entry))

	assert.Equal(t, []string{
		"vconnex.s1.sw1",
		"vconnex.s1.sw2",
		"vconnex.t1.humi",
		"vconnex.t1.temp",
	}, entityIDs(hub))
	assert.Equal(t, hass.StateOn, sink.state("vconnex.s1.sw1"))
	assert.Equal(t, "21.5", sink.state("vconnex.t1.temp"))
	assert.Eventually(t, func() bool {
		return len(m.commands()) == 3
	}, time.Second, 10*time.Millisecond, "initial data request for every device")
	assert.Equal(t, 1, m.listenerCount())

	t.Run("config data has no secret", func(t *testing.T) {
		data := i.ConfigData()
		require.Len(t, data, 1)
		assert.Equal(t, "1234", data[0][ConfClientID])
		assert.NotContains(t, data[0], ConfClientSecret)
	})
	t.Run("second entry with same client is rejected by flow", func(t *testing.T) {
		in := UserInput{ClientID: "1234", ClientSecret: "x"}
		res := i.Flow().StepUser(ctx, &in)
		assert.Equal(t, FormErrorCredentialsUsed, res.Errors["base"])
	})
	t.Run("data update refreshes state", func(t *testing.T) {
		d := switchDevice("s1")
		d.Data = getData(ParamValue{Param: "sw1", Value: 0})
		m.put(d)
		m.listener().OnDeviceDataUpdate("s1", nil)
		assert.Eventually(t, func() bool {
			return sink.state("vconnex.s1.sw1") == hass.StateOff
		}, time.Second, 10*time.Millisecond)
	})
	t.Run("added device gets entities", func(t *testing.T) {
		m.put(climateDevice("t2"))
		m.listener().OnDeviceAdded(climateDevice("t2"))
		assert.Eventually(t, func() bool {
			_, ok := hub.Entity("vconnex.t2.temp")
			return ok
		}, time.Second, 10*time.Millisecond)
	})

	require.NoError(t, i.UnloadEntry(ctx, entry.ID))
	assert.Empty(t, hub.Entities())
	assert.True(t, m.released)
	assert.Equal(t, 0, m.listenerCount())
	assert.Equal(t, 0, hub.Bus.Subscribers(TopicDeviceAdded))
	assert.Equal(t, 0, hub.Bus.Subscribers(DeviceTopic(TopicDeviceUpdated, "s1")))
	assert.ErrorIs(t, i.UnloadEntry(ctx, entry.ID), ErrEntryNotLoaded)
}

func TestIntegration_SetupFailures(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub(t, nil)
	entry := hass.NewConfigEntry(Domain, "t", map[string]string{ConfClientID: "a", ConfClientSecret: "b"})

	i := NewIntegration(IntegrationConfig{Logger: zap.NewNop().Sugar(), Hub: hub, SDK: &fakeSDK{valid: false}})
	assert.ErrorIs(t, i.SetupEntry(ctx, entry), ErrInvalidCredentials)

	m := newFakeManager()
	i = NewIntegration(IntegrationConfig{Logger: zap.NewNop().Sugar(), Hub: hub, SDK: &fakeSDK{valid: true, manager: m}})
	m.initErr = assert.AnError
	assert.ErrorIs(t, i.SetupEntry(ctx, entry), assert.AnError)
	assert.Empty(t, i.ConfigData())
}

func TestIntegration_AddedDevicesBurst(t *testing.T) {
	ctx := context.Background()
	hub, err := hass.NewHub(hass.Config{
		Logger:    zap.NewNop().Sugar(),
		Devices:   &memRegistry{delay: 5 * time.Millisecond},
		BusBuffer: 1,
	})
	require.NoError(t, err)
	t.Cleanup(hub.Close)
	m := newFakeManager()
	sdk := validSDK()
	sdk.manager = m
	i := NewIntegration(IntegrationConfig{Logger: zap.NewNop().Sugar(), Hub: hub, SDK: sdk})
	entry := hass.NewConfigEntry(Domain, "t", map[string]string{ConfClientID: "a", ConfClientSecret: "b"})
	require.NoError(t, i.SetupEntry(ctx, entry))
	t.Cleanup(func() { i.UnloadEntry(ctx, entry.ID) })

	const devices = 20
	for n := range devices {
		d := switchDevice(fmt.Sprintf("s%02d", n))
		m.put(d)
		m.listener().OnDeviceAdded(d)
	}
	assert.Eventually(t, func() bool {
		return len(hub.Entities()) == 2*devices
	}, 5*time.Second, 20*time.Millisecond, "every burst device gets its entities")
}

func TestIntegration_DeviceRemoved(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub(t, &memRegistry{})
	sink := &stateSink{states: map[string]string{}}
	hub.AddStateSink(sink)
	m := newFakeManager(switchDevice("s1"), climateDevice("t1"))
	sdk := validSDK()
	sdk.manager = m
	i := NewIntegration(IntegrationConfig{Logger: zap.NewNop().Sugar(), Hub: hub, SDK: sdk})
	entry := hass.NewConfigEntry(Domain, "t", map[string]string{ConfClientID: "a", ConfClientSecret: "b"})
	require.NoError(t, i.SetupEntry(ctx, entry))
	t.Cleanup(func() { i.UnloadEntry(ctx, entry.ID) })

	m.drop("s1")
	m.listener().OnDeviceRemoved(switchDevice("s1"))
	assert.Eventually(t, func() bool {
		_, ok := hub.Entity("vconnex.s1.sw1")
		return !ok
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"vconnex.t1.humi", "vconnex.t1.temp"}, entityIDs(hub))

	m.listener().OnDeviceAdded(climateDevice("t1"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"vconnex.t1.humi", "vconnex.t1.temp"}, entityIDs(hub), "re-sync does not duplicate or resurrect")
}

type storedEntries struct {
	entries []hass.ConfigEntry
	err     error
}

func (s *storedEntries) ConfigEntries(ctx context.Context, domain string) ([]hass.ConfigEntry, error) {
	return s.entries, s.err
}

func TestIntegration_FlowStoredEntries(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub(t, nil)
	stored := &storedEntries{entries: []hass.ConfigEntry{
		hass.NewConfigEntry(Domain, "not loaded", map[string]string{ConfClientID: "1234", ConfClientSecret: "secret"}),
	}}
	i := NewIntegration(IntegrationConfig{Logger: zap.NewNop().Sugar(), Hub: hub, SDK: validSDK(), Stored: stored})

	t.Run("stored entry blocks its client id", func(t *testing.T) {
		res := i.Flow().StepUser(ctx, &UserInput{ClientID: "1234", ClientSecret: "x"})
		assert.Equal(t, FormErrorCredentialsUsed, res.Errors["base"])
		assert.Nil(t, res.Entry)
	})
	t.Run("stored secrets are not passed on", func(t *testing.T) {
		data := i.existingData(ctx)
		require.Len(t, data, 1)
		assert.NotContains(t, data[0], ConfClientSecret)
		assert.Contains(t, stored.entries[0].Data, ConfClientSecret, "stored entry is left intact")
	})
	t.Run("store failure falls back to loaded entries", func(t *testing.T) {
		stored.err = assert.AnError
		defer func() { stored.err = nil }()
		assert.Empty(t, i.existingData(ctx))
	})
}
