package hass

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DeviceRegistry persists device identity records.
type DeviceRegistry interface {
	UpsertDevice(ctx context.Context, entryID string, info DeviceInfo) error
	RemoveDevice(ctx context.Context, id DeviceIdentifier) error
}

// StateSink receives entity lifecycle and state changes (MQTT export, web cache...).
type StateSink interface {
	EntityAdded(e Entity)
	EntityRemoved(e Entity)
	StateChanged(e Entity, s State)
}

type Config struct {
	Logger          *zap.SugaredLogger
	Devices         DeviceRegistry
	ExecutorWorkers int64
	BusBuffer       int
}

type registeredEntity struct {
	entity  Entity
	entryID string
	device  DeviceIdentifier
}

// Hub owns the entity set, the bus and the executor used for blocking SDK calls.
type Hub struct {
	Bus      *Dispatcher
	log      *zap.SugaredLogger
	devices  DeviceRegistry
	executor *semaphore.Weighted
	jobs     sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	entities map[string]registeredEntity
	sinks    []StateSink
	sync.RWMutex
}

func NewHub(cfg Config) (*Hub, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("hub needs a logger")
	}
	if cfg.ExecutorWorkers <= 0 {
		cfg.ExecutorWorkers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		Bus:      NewDispatcher(cfg.Logger.Named("bus"), cfg.BusBuffer),
		log:      cfg.Logger,
		devices:  cfg.Devices,
		executor: semaphore.NewWeighted(cfg.ExecutorWorkers),
		ctx:      ctx,
		cancel:   cancel,
		entities: map[string]registeredEntity{},
	}, nil
}

func (h *Hub) AddStateSink(s StateSink) {
	h.Lock()
	defer h.Unlock()
	h.sinks = append(h.sinks, s)
}

func (h *Hub) stateSinks() []StateSink {
	h.RLock()
	defer h.RUnlock()
	return append([]StateSink(nil), h.sinks...)
}

// AddEntities registers entities under a config entry. With updateBeforeAdd
// polling entities are refreshed first so they do not show up as unknown.
func (h *Hub) AddEntities(ctx context.Context, entryID string, entities []Entity, updateBeforeAdd bool) {
	for _, e := range entities {
		if p, ok := e.(Poller); ok && updateBeforeAdd {
			err := h.RunInExecutor(ctx, p.Update)
			if err != nil {
				h.log.Warnf("initial update of %s failed: %s", e.UniqueID(), err)
			}
		}
		h.Lock()
		if _, exists := h.entities[e.UniqueID()]; exists {
			h.Unlock()
			h.log.Warnf("entity %s already registered, skipping", e.UniqueID())
			continue
		}
		info := e.DeviceInfo()
		h.entities[e.UniqueID()] = registeredEntity{entity: e, entryID: entryID, device: info.Identifier}
		h.Unlock()
		if h.devices != nil {
			if err := h.devices.UpsertDevice(ctx, entryID, info); err != nil {
				h.log.Warnf("could not register device for %s: %s", e.UniqueID(), err)
			}
		}
		if err := e.AddedToHub(h); err != nil {
			h.log.Errorf("entity %s failed to attach: %s", e.UniqueID(), err)
			h.Lock()
			delete(h.entities, e.UniqueID())
			h.Unlock()
			e.WillRemoveFromHub()
			continue
		}
		h.log.Debugf("added %s entity %s", e.Platform(), e.UniqueID())
		for _, s := range h.stateSinks() {
			s.EntityAdded(e)
		}
		h.WriteState(e)
	}
}

// RemoveEntities drops every entity that belongs to entryID.
func (h *Hub) RemoveEntities(entryID string) int {
	return h.removeWhere(func(r registeredEntity) bool { return r.entryID == entryID })
}

func (h *Hub) removeWhere(match func(registeredEntity) bool) int {
	h.Lock()
	var removed []Entity
	for id, r := range h.entities {
		if match(r) {
			removed = append(removed, r.entity)
			delete(h.entities, id)
		}
	}
	h.Unlock()
	for _, e := range removed {
		e.WillRemoveFromHub()
		for _, s := range h.stateSinks() {
			s.EntityRemoved(e)
		}
	}
	return len(removed)
}

func (h *Hub) Entity(uniqueID string) (Entity, bool) {
	h.RLock()
	defer h.RUnlock()
	r, ok := h.entities[uniqueID]
	return r.entity, ok
}

// Entities returns registered entities ordered by unique id.
func (h *Hub) Entities() []Entity {
	h.RLock()
	out := make([]Entity, 0, len(h.entities))
	for _, r := range h.entities {
		out = append(out, r.entity)
	}
	h.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID() < out[j].UniqueID() })
	return out
}

// WriteState pushes current entity state to sinks. A failing state read is
// logged and does not affect other entities.
func (h *Hub) WriteState(e Entity) {
	if _, ok := h.Entity(e.UniqueID()); !ok {
		return
	}
	st, err := h.readState(e)
	if err != nil {
		h.log.Errorf("could not read state of %s: %s", e.UniqueID(), err)
		return
	}
	for _, s := range h.stateSinks() {
		s.StateChanged(e, st)
	}
}

func (h *Hub) readState(e Entity) (st State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("state read panic: %v", r)
		}
	}()
	if !e.Available() {
		return State{State: StateUnknown}, nil
	}
	return e.State(), nil
}

// Context is cancelled when the hub is closed.
func (h *Hub) Context() context.Context {
	return h.ctx
}

// AddJob runs fn in the background; fn gets a context cancelled on Close.
func (h *Hub) AddJob(fn func(ctx context.Context)) {
	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		defer func() {
			if r := recover(); r != nil {
				h.log.Errorf("background job failed: %v", r)
			}
		}()
		fn(h.ctx)
	}()
}

// AddExecutorJob queues a blocking call on the executor without waiting for it.
func (h *Hub) AddExecutorJob(fn func(ctx context.Context) error) <-chan error {
	out := make(chan error, 1)
	h.AddJob(func(ctx context.Context) {
		out <- h.RunInExecutor(ctx, fn)
	})
	return out
}

// RunInExecutor runs a blocking call on the bounded executor and waits for it.
func (h *Hub) RunInExecutor(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := h.executor.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.executor.Release(1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor job panic: %v", r)
		}
	}()
	return fn(ctx)
}

// RemoveDevice drops the entities of a device and its identity record.
func (h *Hub) RemoveDevice(ctx context.Context, id DeviceIdentifier) error {
	if n := h.removeWhere(func(r registeredEntity) bool { return r.device == id }); n > 0 {
		h.log.Debugf("removed %d entities of %s device %s", n, id.Domain, id.ID)
	}
	if h.devices == nil {
		return nil
	}
	return h.devices.RemoveDevice(ctx, id)
}

// CallService routes a service call to the entity implementing it.
func (h *Hub) CallService(ctx context.Context, entityID string, call ServiceCall) error {
	e, ok := h.Entity(entityID)
	if !ok {
		return fmt.Errorf("%s: %w", entityID, ErrEntityNotFound)
	}
	err := h.callService(ctx, e, call)
	if err != nil {
		return fmt.Errorf("%s on %s: %w", call.Service, entityID, err)
	}
	return nil
}

func (h *Hub) callService(ctx context.Context, e Entity, call ServiceCall) error {
	switch call.Service {
	case ServiceTurnOn:
		if t, ok := e.(Toggle); ok {
			return t.TurnOn(ctx, call)
		}
	case ServiceTurnOff:
		if t, ok := e.(Toggle); ok {
			return t.TurnOff(ctx)
		}
	case ServiceSetSpeed:
		if f, ok := e.(FanControl); ok {
			return f.SetSpeed(ctx, call.Speed)
		}
	case ServiceSetDirection:
		if f, ok := e.(FanControl); ok {
			return f.SetDirection(ctx, call.Direction)
		}
	case ServiceOpenCover:
		if c, ok := e.(CoverControl); ok {
			return c.OpenCover(ctx)
		}
	case ServiceCloseCover:
		if c, ok := e.(CoverControl); ok {
			return c.CloseCover(ctx)
		}
	case ServiceStopCover:
		if c, ok := e.(CoverControl); ok {
			return c.StopCover(ctx)
		}
	case ServiceSetCoverPosition:
		if c, ok := e.(CoverControl); ok {
			if call.Position == nil {
				return fmt.Errorf("position required")
			}
			return c.SetCoverPosition(ctx, *call.Position)
		}
	}
	return ErrServiceNotSupported
}

// Poll refreshes polling entities every interval until ctx is done.
func (h *Hub) Poll(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.PollOnce(ctx)
		}
	}
}

func (h *Hub) PollOnce(ctx context.Context) {
	for _, e := range h.Entities() {
		p, ok := e.(Poller)
		if !ok {
			continue
		}
		if err := h.RunInExecutor(ctx, p.Update); err != nil {
			h.log.Warnf("update of %s failed: %s", e.UniqueID(), err)
			continue
		}
		h.WriteState(e)
	}
}

// Close cancels background jobs and waits for them.
func (h *Hub) Close() {
	h.cancel()
	h.jobs.Wait()
}
