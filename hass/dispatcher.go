package hass

import (
	"sync"

	"go.uber.org/zap"
)

// Signal is a single bus message. Payload is passed through untouched.
type Signal struct {
	Topic string
	Args  []any
}

// Subscription is a per-topic message channel. C is closed on Close.
type Subscription struct {
	C     <-chan Signal
	c     chan Signal
	topic string
	id    uint64
	d     *Dispatcher
	once  sync.Once
}

// Close unsubscribes. Safe to call more than once and on a nil subscription.
func (s *Subscription) Close() {
	if s == nil || s.d == nil {
		return
	}
	s.once.Do(func() {
		s.d.remove(s)
	})
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Dispatcher is an in-process topic bus. Send never blocks; a subscriber that
// does not keep up loses messages instead of stalling other topics.
type Dispatcher struct {
	log     *zap.SugaredLogger
	bufSize int
	subs    map[string]map[uint64]*Subscription
	next    uint64
	sync.RWMutex
}

func NewDispatcher(log *zap.SugaredLogger, bufSize int) *Dispatcher {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Dispatcher{
		log:     log,
		bufSize: bufSize,
		subs:    map[string]map[uint64]*Subscription{},
	}
}

func (d *Dispatcher) Subscribe(topic string) *Subscription {
	c := make(chan Signal, d.bufSize)
	d.Lock()
	defer d.Unlock()
	d.next++
	s := &Subscription{
		C:     c,
		c:     c,
		topic: topic,
		id:    d.next,
		d:     d,
	}
	if _, ok := d.subs[topic]; !ok {
		d.subs[topic] = map[uint64]*Subscription{}
	}
	d.subs[topic][s.id] = s
	return s
}

func (d *Dispatcher) remove(s *Subscription) {
	d.Lock()
	defer d.Unlock()
	if m, ok := d.subs[s.topic]; ok {
		delete(m, s.id)
		if len(m) == 0 {
			delete(d.subs, s.topic)
		}
	}
	close(s.c)
}

// Connect runs handler for every signal on topic in its own goroutine until the
// returned disconnect func is called. A panicking handler is logged and the
// goroutine keeps serving the topic.
func (d *Dispatcher) Connect(topic string, handler func(Signal)) (disconnect func()) {
	s := d.Subscribe(topic)
	go func() {
		for sig := range s.C {
			d.call(handler, sig)
		}
	}()
	return s.Close
}

func (d *Dispatcher) call(handler func(Signal), sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("handler for [%s] failed: %v", sig.Topic, r)
		}
	}()
	handler(sig)
}

// Send publishes to every subscriber of topic and returns how many got the message.
func (d *Dispatcher) Send(topic string, args ...any) int {
	sig := Signal{Topic: topic, Args: args}
	d.RLock()
	defer d.RUnlock()
	delivered := 0
	for _, s := range d.subs[topic] {
		select {
		case s.c <- sig:
			delivered++
		default:
			d.log.Warnf("subscriber queue full on [%s], dropping signal", topic)
		}
	}
	return delivered
}

// Subscribers returns number of live subscriptions on topic.
func (d *Dispatcher) Subscribers(topic string) int {
	d.RLock()
	defer d.RUnlock()
	return len(d.subs[topic])
}
