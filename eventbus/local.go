package eventbus

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Local is an in-process Bus: Publish fans a payload out, synchronously,
// to every handler subscribed to the topic when Publish is called; the
// handlers run after the bus's own lock is released. Handler
// panics are recovered and logged so a faulty event-bus handler can
// never propagate out of Publish (spec.md §7).
//
// Grounded on the channel-based fan-out in
// other_examples/amirimatin-go-cluster__events.go, adapted from a
// channel-of-events subscription model to a direct-callback model because
// the Distributor and Session Map register long-lived handlers rather
// than draining a channel on their own goroutine.
type Local struct {
	logger log.Logger

	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	closed bool
}

// NewLocal creates an in-process event bus.
func NewLocal(logger log.Logger) *Local {
	return &Local{
		logger: log.With(logger, "component", "eventbus"),
		subs:   make(map[string]map[int]Handler),
	}
}

func (b *Local) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m := b.subs[topic]; m != nil {
			delete(m, id)
		}
	}
}

func (b *Local) Publish(topic string, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	for _, h := range handlers {
		b.dispatch(topic, h, payload)
	}
}

// dispatch calls h(payload), recovering and logging any panic so bus
// handler faults never propagate out of Publish.
func (b *Local) dispatch(topic string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(b.logger).Log("msg", "event handler panicked", "topic", topic, "panic", r)
		}
	}()
	h(payload)
}

func (b *Local) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[string]map[int]Handler{}
	return nil
}
