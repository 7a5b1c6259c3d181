package vconnex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/XANi/hassbridge/hass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRegistry struct {
	sync.Mutex
	removed []hass.DeviceIdentifier
	// delay slows every upsert down
	delay time.Duration
}

func (r *memRegistry) UpsertDevice(ctx context.Context, entryID string, info hass.DeviceInfo) error {
	time.Sleep(r.delay)
	return nil
}

func (r *memRegistry) RemoveDevice(ctx context.Context, id hass.DeviceIdentifier) error {
	r.Lock()
	defer r.Unlock()
	r.removed = append(r.removed, id)
	return nil
}

func (r *memRegistry) removedIDs() []hass.DeviceIdentifier {
	r.Lock()
	defer r.Unlock()
	return append([]hass.DeviceIdentifier(nil), r.removed...)
}

func newTestHub(t *testing.T, reg hass.DeviceRegistry) *hass.Hub {
	t.Helper()
	hub, err := hass.NewHub(hass.Config{Logger: zap.NewNop().Sugar(), Devices: reg})
	require.NoError(t, err)
	t.Cleanup(hub.Close)
	return hub
}

func receive(t *testing.T, s *hass.Subscription) hass.Signal {
	t.Helper()
	select {
	case sig := <-s.C:
		return sig
	case <-time.After(time.Second):
		t.Fatalf("no signal on %s", s.Topic())
	}
	return hass.Signal{}
}

func TestDeviceListener_Forwarding(t *testing.T) {
	reg := &memRegistry{}
	hub := newTestHub(t, reg)
	m := newFakeManager(switchDevice("s1"))
	l := NewDeviceListener(zap.NewNop().Sugar(), hub, m)

	added := hub.Bus.Subscribe(TopicDeviceAdded)
	defer added.Close()
	updated := hub.Bus.Subscribe(DeviceTopic(TopicDeviceUpdated, "s1"))
	defer updated.Close()
	data := hub.Bus.Subscribe(DeviceTopic(TopicDeviceDataUpdated, "s1"))
	defer data.Close()
	removed := hub.Bus.Subscribe(DeviceTopic(TopicDeviceRemoved, "s1"))
	defer removed.Close()

	l.OnDeviceAdded(switchDevice("s1"))
	assert.Equal(t, []any{[]string{"s1"}}, receive(t, added).Args)
	assert.Eventually(t, func() bool {
		return len(m.commands()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, sentCommand{DeviceID: "s1", Command: CommandGetData, Values: map[string]any{"all": 1}}, m.commands()[0])

	l.OnDeviceUpdate(switchDevice("s1"), switchDevice("s1"))
	receive(t, updated)

	msg := map[string]any{"devV": []any{}}
	l.OnDeviceDataUpdate("s1", msg)
	assert.Equal(t, []any{msg}, receive(t, data).Args)

	l.OnDeviceRemoved(switchDevice("s1"))
	receive(t, removed)
	assert.Eventually(t, func() bool {
		return len(reg.removedIDs()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, hass.DeviceIdentifier{Domain: Domain, ID: "s1"}, reg.removedIDs()[0])
}

func TestDeviceListener_Isolation(t *testing.T) {
	hub := newTestHub(t, nil)
	l := NewDeviceListener(zap.NewNop().Sugar(), hub, newFakeManager())

	disconnect := hub.Bus.Connect(DeviceTopic(TopicDeviceUpdated, "bad"), func(hass.Signal) {
		panic("broken entity")
	})
	defer disconnect()
	good := hub.Bus.Subscribe(DeviceTopic(TopicDeviceUpdated, "good"))
	defer good.Close()

	l.OnDeviceUpdate(Device{DeviceID: "bad"}, Device{})
	l.OnDeviceUpdate(Device{DeviceID: "good"}, Device{})
	receive(t, good)
}

func TestRetrieveDeviceData_Isolation(t *testing.T) {
	m := newFakeManager()
	m.panicOn = "d1"
	m.failOn = "d2"
	RetrieveDeviceData(context.Background(), zap.NewNop().Sugar(), m, []Device{
		{DeviceID: "d1"}, {DeviceID: "d2"}, {DeviceID: "d3"},
	})
	cmds := m.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "d3", cmds[0].DeviceID)
}
