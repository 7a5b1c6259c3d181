package bond

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/XANi/hassbridge/hass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClient struct {
	devices  []Device
	state    DeviceState
	stateErr error
	sync.Mutex
	actions []Action
}

func (c *fakeClient) Devices(ctx context.Context) ([]Device, error) {
	return c.devices, nil
}

func (c *fakeClient) DeviceState(ctx context.Context, deviceID string) (DeviceState, error) {
	return c.state, c.stateErr
}

func (c *fakeClient) Action(ctx context.Context, deviceID string, action Action) error {
	c.Lock()
	defer c.Unlock()
	c.actions = append(c.actions, action)
	return nil
}

func (c *fakeClient) lastAction() Action {
	c.Lock()
	defer c.Unlock()
	return c.actions[len(c.actions)-1]
}

func intp(i int) *int { return &i }

func fanDevice(props map[string]any) Device {
	return Device{
		ID:      "f1",
		Name:    "Bedroom fan",
		Type:    DeviceTypeCeilingFan,
		Actions: []string{ActionTurnOn, ActionTurnOff, ActionSetSpeed, ActionSetDirection},
		Props:   props,
	}
}

func TestFan_Speed(t *testing.T) {
	ctx := context.Background()
	t.Run("power off means speed off", func(t *testing.T) {
		c := &fakeClient{state: DeviceState{Power: intp(0), Speed: intp(3)}}
		f := NewFan(zap.NewNop().Sugar(), c, fanDevice(nil))
		require.NoError(t, f.Update(ctx))
		s, ok := f.Speed()
		assert.True(t, ok)
		assert.Equal(t, SpeedOff, s)
		assert.Equal(t, hass.StateOff, f.State().State)
	})
	t.Run("unknown power means undefined speed", func(t *testing.T) {
		c := &fakeClient{state: DeviceState{Speed: intp(3)}}
		f := NewFan(zap.NewNop().Sugar(), c, fanDevice(nil))
		require.NoError(t, f.Update(ctx))
		_, ok := f.Speed()
		assert.False(t, ok)
		assert.Equal(t, hass.StateUnknown, f.State().State)
	})
	t.Run("maps with max_speed property", func(t *testing.T) {
		c := &fakeClient{state: DeviceState{Power: intp(1), Speed: intp(3), Direction: intp(-1)}}
		f := NewFan(zap.NewNop().Sugar(), c, fanDevice(map[string]any{"max_speed": 6}))
		require.NoError(t, f.Update(ctx))
		s, ok := f.Speed()
		assert.True(t, ok)
		assert.Equal(t, SpeedMedium, s)
		st := f.State()
		assert.Equal(t, hass.StateOn, st.State)
		assert.Equal(t, SpeedMedium, st.Attributes["speed"])
		assert.Equal(t, DirectionNameReverse, st.Attributes["direction"])
	})
	t.Run("zero max_speed gives undefined speed", func(t *testing.T) {
		c := &fakeClient{state: DeviceState{Power: intp(1), Speed: intp(2)}}
		f := NewFan(zap.NewNop().Sugar(), c, fanDevice(map[string]any{"max_speed": 0}))
		require.NoError(t, f.Update(ctx))
		_, ok := f.Speed()
		assert.False(t, ok)
	})
	t.Run("failed update marks unavailable", func(t *testing.T) {
		c := &fakeClient{stateErr: errors.New("timeout")}
		f := NewFan(zap.NewNop().Sugar(), c, fanDevice(nil))
		assert.Error(t, f.Update(ctx))
		assert.False(t, f.Available())
	})
}

func TestFan_Commands(t *testing.T) {
	ctx := context.Background()
	c := &fakeClient{}
	f := NewFan(zap.NewNop().Sugar(), c, fanDevice(map[string]any{"max_speed": float64(6)}))

	t.Run("set speed maps to vendor scale", func(t *testing.T) {
		require.NoError(t, f.SetSpeed(ctx, "low"))
		assert.Equal(t, SetSpeed(1), c.lastAction())
		require.NoError(t, f.SetSpeed(ctx, "medium"))
		assert.Equal(t, SetSpeed(3), c.lastAction())
		require.NoError(t, f.SetSpeed(ctx, "high"))
		assert.Equal(t, SetSpeed(6), c.lastAction())
		require.NoError(t, f.SetSpeed(ctx, "off"))
		assert.Equal(t, TurnOff(), c.lastAction())
	})
	t.Run("turn on with and without speed", func(t *testing.T) {
		require.NoError(t, f.TurnOn(ctx, hass.ServiceCall{}))
		assert.Equal(t, TurnOn(), c.lastAction())
		require.NoError(t, f.TurnOn(ctx, hass.ServiceCall{Speed: "high"}))
		assert.Equal(t, SetSpeed(6), c.lastAction())
	})
	t.Run("direction", func(t *testing.T) {
		require.NoError(t, f.SetDirection(ctx, DirectionNameReverse))
		assert.Equal(t, SetDirection(DirectionReverse), c.lastAction())
		require.NoError(t, f.SetDirection(ctx, DirectionNameForward))
		assert.Equal(t, SetDirection(DirectionForward), c.lastAction())
	})
	t.Run("bad speed", func(t *testing.T) {
		assert.ErrorIs(t, f.SetSpeed(ctx, "turbo"), ErrInvalidSpeed)
	})
}

func TestFan_SupportedFeatures(t *testing.T) {
	f := NewFan(zap.NewNop().Sugar(), &fakeClient{}, fanDevice(nil))
	assert.True(t, f.SupportedFeatures().Has(hass.FanFeatureSetSpeed|hass.FanFeatureDirection))

	plain := NewFan(zap.NewNop().Sugar(), &fakeClient{}, Device{ID: "x", Actions: []string{ActionTurnOn}})
	assert.Equal(t, hass.Feature(0), plain.SupportedFeatures())
}

func TestIntegration_SetupEntry(t *testing.T) {
	hub, err := hass.NewHub(hass.Config{Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	defer hub.Close()
	c := &fakeClient{
		devices: []Device{
			fanDevice(nil),
			{ID: "s1", Name: "Shade", Type: DeviceTypeMotorizedShade},
		},
		state: DeviceState{Power: intp(1), Speed: intp(1)},
	}
	i := NewIntegration(IntegrationConfig{
		Logger: zap.NewNop().Sugar(),
		Hub:    hub,
		NewClient: func(host, token string) (Client, error) {
			assert.Equal(t, "10.0.0.5", host)
			return c, nil
		},
	})
	entry := hass.NewConfigEntry(Domain, "bond hub", map[string]string{ConfHost: "10.0.0.5", ConfAccessToken: "t"})
	require.NoError(t, i.SetupEntry(context.Background(), entry))

	entities := hub.Entities()
	require.Len(t, entities, 1)
	assert.Equal(t, "f1", entities[0].UniqueID())
	assert.True(t, entities[0].Available())

	require.NoError(t, i.UnloadEntry(context.Background(), entry.ID))
	assert.Empty(t, hub.Entities())
	assert.ErrorIs(t, i.UnloadEntry(context.Background(), entry.ID), ErrEntryNotLoaded)
}
