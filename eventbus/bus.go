// Package eventbus defines the pub/sub contract the Distributor and the
// in-memory Session Map consume, plus two implementations: an
// in-process, synchronous callback fan-out bus and a Redis Pub/Sub bus. The concrete
// wire transport is an external collaborator per the core's scope; this
// package only fixes the Go-side interface and topic names.
package eventbus

// Topic names, consumed and produced per spec.md §6.
const (
	TopicNodeStatus        = "NODE_STATUS"
	TopicNodeDrainComplete = "NODE_DRAIN_COMPLETE"
	TopicSessionClosed     = "SESSION_CLOSED"
	TopicNodeAdded         = "NODE_ADDED"
	TopicNodeRemoved       = "NODE_REMOVED"
	TopicNodeRejected      = "NODE_REJECTED"
)

// Handler is called for every event published on a subscribed topic.
// Handlers must not block for long and must not panic; implementations
// recover and log panics so one bad handler cannot take down the bus.
type Handler func(payload any)

// Bus is the event bus contract the Distributor and Session Map consume.
// Implementations: Local (in-process) and RedisBus (cross-process).
type Bus interface {
	// Publish delivers payload to every handler currently subscribed to
	// topic. Delivery is best-effort. Local calls every handler on the
	// caller's goroutine before Publish returns; RedisBus returns once the
	// message is handed to Redis, and handlers run on its listener
	// goroutine.
	Publish(topic string, payload any)

	// Subscribe registers handler for topic and returns an Unsubscribe
	// function that removes it. Safe to call concurrently with Publish.
	Subscribe(topic string, handler Handler) (unsubscribe func())

	// IsReady reports whether the bus is connected and able to deliver
	// events (used by Distributor.isReady).
	IsReady() bool

	// Close releases bus resources. Safe to call more than once.
	Close() error
}
