// Package sessionmap defines the Session Map contract and hosts its two
// reference backends (in-memory and relational, under memory/ and
// relational/). Grounded on the pack's generic interfaces.Cache[T]
// contract in MyDiscoverer/interfaces/cache.go: a small, backend-agnostic
// interface with WriteValue/ListAllValues/DeleteValue-shaped methods,
// here specialized to sessions and SESSION_CLOSED-driven eviction.
package sessionmap

import (
	"context"

	"github.com/google/uuid"

	"github.com/moneytech/selenium/domain"
)

// Map is the key-value store keyed by session id that spec.md §4.5
// describes. add/get/remove map directly onto Add/Get/Remove; IsReady
// backs Distributor.isReady.
type Map interface {
	// Add inserts or replaces the session record, keyed by its
	// SessionID. Returns whether an insert occurred, by convention true
	// for both insert and replace on the two reference backends, and an
	// error wrapped as graverr.Storage on backend I/O failure.
	Add(ctx context.Context, session domain.SessionRecord) (bool, error)

	// Get returns the session for id, or a graverr.NoSuchSession error if
	// absent or (relational backend only) if the stored URI cannot be
	// parsed.
	Get(ctx context.Context, id uuid.UUID) (domain.SessionRecord, error)

	// Remove deletes the session for id. Idempotent: removing an absent
	// id is not an error, to stay safe against redelivery of
	// SESSION_CLOSED events.
	Remove(ctx context.Context, id uuid.UUID) error

	// IsReady reports whether the backend can currently serve requests.
	IsReady() bool

	// Close releases backend resources (e.g. a database connection pool,
	// or an event-bus listener registered at construction). Safe to call
	// more than once.
	Close() error
}
