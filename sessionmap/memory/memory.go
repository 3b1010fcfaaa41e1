// Package memory implements sessionmap.Map as a concurrent map guarded
// by a fair reader/writer lock, with a SESSION_CLOSED bus listener
// installed at construction — spec.md §4.5's in-memory reference
// backend. Grounded on the connectionPool struct in
// MyGateway/service/connection_pool.go (mutex-guarded map with small,
// single-purpose exported methods) and on the bus-subscription lifecycle
// in other_examples/amirimatin-go-cluster__events.go.
package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/eventbus"
	"github.com/moneytech/selenium/fairlock"
	"github.com/moneytech/selenium/graverr"
)

// Map is the in-memory sessionmap.Map backend.
type Map struct {
	bus         eventbus.Bus
	unsubscribe func()

	mu       fairlock.RWMutex
	sessions map[uuid.UUID]domain.SessionRecord
	closed   bool
}

// New creates an in-memory Session Map and subscribes it to
// eventbus.TopicSessionClosed on bus. The listener must be deregistered
// by calling Close on shutdown (spec.md §9, "Listener lifecycle").
func New(bus eventbus.Bus) *Map {
	m := &Map{
		bus:      bus,
		sessions: make(map[uuid.UUID]domain.SessionRecord),
	}
	m.unsubscribe = bus.Subscribe(eventbus.TopicSessionClosed, m.onSessionClosed)
	return m
}

func (m *Map) onSessionClosed(payload any) {
	id, ok := payload.(uuid.UUID)
	if !ok {
		return
	}
	_ = m.Remove(context.Background(), id)
}

func (m *Map) Add(_ context.Context, session domain.SessionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, graverr.NewStorage("session map is closed", nil)
	}
	m.sessions[session.SessionID] = session
	return true, nil
}

func (m *Map) Get(_ context.Context, id uuid.UUID) (domain.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return domain.SessionRecord{}, graverr.NewNoSuchSession("no session with id "+id.String(), nil)
	}
	return rec, nil
}

func (m *Map) Remove(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of sessions currently held; used by status/debug
// endpoints.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Map) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// Close deregisters the SESSION_CLOSED listener and marks the map
// closed. Idempotent.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return nil
}
