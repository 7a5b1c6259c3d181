package prom

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/XANi/hassbridge/hass"
	"github.com/XANi/promwriter"
	"go.uber.org/zap"
)

// Writer is the part of promwriter the exporter uses.
type Writer interface {
	WriteMetric(m promwriter.Metric) error
}

type Config struct {
	WriteURL string
	// Prefix is prepended to every metric name, defaults to "hassbridge_"
	Prefix      string
	ExtraLabels map[string]string
	Logger      *zap.SugaredLogger
	Hub         *hass.Hub
	QueueLength int
}

// Exporter writes numeric entity states to a prometheus remote write endpoint.
type Exporter struct {
	cfg    Config
	log    *zap.SugaredLogger
	w      Writer
	queue  chan promwriter.Metric
	done   chan struct{}
	closed bool
	sync.RWMutex
}

func New(cfg *Config) (*Exporter, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("missing logger")
	}
	if cfg.WriteURL == "" {
		return nil, fmt.Errorf("missing prometheus write URL")
	}
	pw, err := promwriter.New(promwriter.Config{
		URL:              cfg.WriteURL,
		MaxBatchDuration: time.Second * 1,
		MaxBatchLength:   10,
		Logger:           cfg.Logger.Named("promwriter"),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating promwriter: %w", err)
	}
	return NewWithWriter(cfg, pw)
}

// NewWithWriter builds an exporter on top of an existing writer and
// registers it on the hub if one is configured.
func NewWithWriter(cfg *Config, w Writer) (*Exporter, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("missing logger")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "hassbridge_"
	}
	if cfg.QueueLength <= 0 {
		cfg.QueueLength = 128
	}
	e := &Exporter{
		cfg:   *cfg,
		log:   cfg.Logger,
		w:     w,
		queue: make(chan promwriter.Metric, cfg.QueueLength),
		done:  make(chan struct{}),
	}
	go e.run()
	if cfg.Hub != nil {
		cfg.Hub.AddStateSink(e)
	}
	return e, nil
}

func (e *Exporter) run() {
	defer close(e.done)
	for m := range e.queue {
		if err := e.w.WriteMetric(m); err != nil {
			e.log.Warnf("error writing metric %+v: %s", m, err)
		}
	}
}

// Close stops accepting states and waits for queued metrics to be written.
func (e *Exporter) Close() {
	e.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.Unlock()
	<-e.done
}

func (e *Exporter) EntityAdded(hass.Entity)   {}
func (e *Exporter) EntityRemoved(hass.Entity) {}

func (e *Exporter) StateChanged(ent hass.Entity, s hass.State) {
	m, ok := e.metric(ent, s)
	if !ok {
		return
	}
	e.RLock()
	defer e.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.queue <- m:
	default:
		e.log.Warnf("metric queue full, dropping %s of %s", m.Name, ent.UniqueID())
	}
}

// metric converts a state into a sample. Sensors need a numeric state,
// switches and binary sensors map on/off to 1/0; anything else is skipped.
func (e *Exporter) metric(ent hass.Entity, s hass.State) (promwriter.Metric, bool) {
	var value float64
	switch ent.Platform() {
	case hass.PlatformSensor:
		v, err := strconv.ParseFloat(s.State, 64)
		if err != nil {
			return promwriter.Metric{}, false
		}
		value = v
	case hass.PlatformSwitch, hass.PlatformBinarySensor, hass.PlatformFan:
		switch s.State {
		case hass.StateOn:
			value = 1
		case hass.StateOff:
			value = 0
		default:
			return promwriter.Metric{}, false
		}
	default:
		return promwriter.Metric{}, false
	}
	name := string(ent.DeviceClass())
	if name == "" {
		name = string(ent.Platform())
	}
	labels := map[string]string{
		"entity": ent.UniqueID(),
		"name":   ent.Name(),
		"device": ent.DeviceInfo().Name,
	}
	if u, ok := ent.(hass.Unit); ok && u.Unit() != "" {
		labels["unit"] = u.Unit()
	}
	for k, v := range e.cfg.ExtraLabels {
		labels[k] = v
	}
	return promwriter.Metric{
		Name:   e.cfg.Prefix + name,
		Labels: labels,
		TS:     time.Now().UTC(),
		Value:  value,
	}, true
}
