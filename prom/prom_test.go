package prom

import (
	"context"
	"sync"
	"testing"

	"github.com/XANi/hassbridge/hass"
	"github.com/XANi/promwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memWriter struct {
	sync.Mutex
	metrics []promwriter.Metric
}

func (m *memWriter) WriteMetric(metric promwriter.Metric) error {
	m.Lock()
	defer m.Unlock()
	m.metrics = append(m.metrics, metric)
	return nil
}

func (m *memWriter) written() []promwriter.Metric {
	m.Lock()
	defer m.Unlock()
	return append([]promwriter.Metric(nil), m.metrics...)
}

type sensor struct {
	id       string
	platform hass.Platform
	class    hass.DeviceClass
	unit     string
	state    string
}

func (s *sensor) UniqueID() string              { return s.id }
func (s *sensor) Name() string                  { return "Temperature" }
func (s *sensor) Platform() hass.Platform       { return s.platform }
func (s *sensor) DeviceClass() hass.DeviceClass { return s.class }
func (s *sensor) DeviceInfo() hass.DeviceInfo {
	return hass.DeviceInfo{Identifier: hass.DeviceIdentifier{Domain: "test", ID: "dev"}, Name: "Bedroom"}
}
func (s *sensor) Available() bool              { return true }
func (s *sensor) State() hass.State            { return hass.State{State: s.state} }
func (s *sensor) AddedToHub(h *hass.Hub) error { return nil }
func (s *sensor) WillRemoveFromHub()           {}
func (s *sensor) Unit() string                 { return s.unit }

func TestExporter_Hub(t *testing.T) {
	log := zap.NewNop().Sugar()
	hub, err := hass.NewHub(hass.Config{Logger: log})
	require.NoError(t, err)
	defer hub.Close()
	w := &memWriter{}
	e, err := NewWithWriter(&Config{
		Logger:      log,
		Hub:         hub,
		ExtraLabels: map[string]string{"host": "testhost"},
	}, w)
	require.NoError(t, err)

	hub.AddEntities(context.Background(), "entry", []hass.Entity{
		&sensor{id: "temp", platform: hass.PlatformSensor, class: hass.DeviceClassTemperature, unit: hass.UnitCelsius, state: "21.5"},
		&sensor{id: "sw", platform: hass.PlatformSwitch, class: hass.DeviceClassSwitch, state: hass.StateOn},
		&sensor{id: "text", platform: hass.PlatformSensor, state: "fault"},
		&sensor{id: "cover", platform: hass.PlatformCover, class: hass.DeviceClassCurtain, state: "open"},
	}, false)
	e.Close()

	metrics := w.written()
	require.Len(t, metrics, 2)
	assert.Equal(t, "hassbridge_temperature", metrics[0].Name)
	assert.Equal(t, 21.5, metrics[0].Value)
	assert.Equal(t, map[string]string{
		"entity": "temp",
		"name":   "Temperature",
		"device": "Bedroom",
		"unit":   hass.UnitCelsius,
		"host":   "testhost",
	}, metrics[0].Labels)
	assert.Equal(t, "hassbridge_switch", metrics[1].Name)
	assert.Equal(t, 1.0, metrics[1].Value)
	assert.NotContains(t, metrics[1].Labels, "unit")
}

func TestExporter_Metric(t *testing.T) {
	e := &Exporter{cfg: Config{Prefix: "x_"}}
	t.Run("off maps to zero", func(t *testing.T) {
		m, ok := e.metric(&sensor{id: "b", platform: hass.PlatformBinarySensor, class: hass.DeviceClassMotion}, hass.State{State: hass.StateOff})
		require.True(t, ok)
		assert.Equal(t, "x_motion", m.Name)
		assert.Equal(t, 0.0, m.Value)
	})
	t.Run("unknown state is skipped", func(t *testing.T) {
		_, ok := e.metric(&sensor{id: "s", platform: hass.PlatformSensor}, hass.State{State: hass.StateUnknown})
		assert.False(t, ok)
		_, ok = e.metric(&sensor{id: "b", platform: hass.PlatformSwitch}, hass.State{State: hass.StateUnknown})
		assert.False(t, ok)
	})
	t.Run("platform names metrics without device class", func(t *testing.T) {
		m, ok := e.metric(&sensor{id: "s", platform: hass.PlatformSensor}, hass.State{State: "3"})
		require.True(t, ok)
		assert.Equal(t, "x_sensor", m.Name)
	})
}

func TestExporter_Close(t *testing.T) {
	w := &memWriter{}
	e, err := NewWithWriter(&Config{Logger: zap.NewNop().Sugar()}, w)
	require.NoError(t, err)
	e.Close()
	e.Close()
	e.StateChanged(&sensor{id: "s", platform: hass.PlatformSensor}, hass.State{State: "1"})
	assert.Empty(t, w.written())

	_, err = New(&Config{Logger: zap.NewNop().Sugar()})
	assert.Error(t, err, "write URL is required")
}
