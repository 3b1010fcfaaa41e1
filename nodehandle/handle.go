// Package nodehandle implements the Distributor's per-node mirror: the
// in-memory record of one registered worker node, its capacity
// accounting and health state, reservation and release of slots, and the
// health-check probe that transitions it between UP and DOWN. Grounded
// on the connectionPool pattern in
// _examples/.../MyGateway/service/connection_pool.go: a struct with its
// own sync.RWMutex guarding a handful of fields and exposing small,
// single-purpose methods.
package nodehandle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/graverr"
)

// unhealthyThreshold is the number of consecutive failed probes after
// which a node transitions UP -> DOWN.
const unhealthyThreshold = 3

// NodeCreator performs the actual remote "create session" call on a node
// for a reserved stereotype. Implementations live outside this package
// (adapters.HTTPNodeClient and adapters.GRPCNodeClient), per spec.md §1's
// "remote-node client implementation" out-of-scope collaborator.
type NodeCreator interface {
	CreateSession(ctx context.Context, nodeURI string, caps domain.Capabilities) (domain.SessionRecord, error)
}

// Reservation is the deferred thunk spec.md §4.1 step 4 calls
// "Supplier<SessionCreation>": it performs the actual node-side session
// creation when Finalize is invoked, after the Distributor's write lock
// has been released, and releases the reserved slot on failure.
type Reservation struct {
	handle     *Handle
	stereotype int
	caps       domain.Capabilities
	creator    NodeCreator
	finalized  bool
}

// Finalize performs the remote session-creation call. On success the
// slot remains reserved (now backing a live session) and the resulting
// SessionRecord is returned. On failure the slot is released and the
// error is surfaced as SESSION_NOT_CREATED.
func (r *Reservation) Finalize(ctx context.Context) (domain.SessionRecord, error) {
	rec, err := r.creator.CreateSession(ctx, r.handle.uri, r.caps)
	if err != nil {
		r.Release()
		if !graverr.Is(err, graverr.SessionNotCreated) {
			err = graverr.New(graverr.SessionNotCreated, "node rejected session creation", err)
		}
		return domain.SessionRecord{}, err
	}
	r.finalized = true
	r.handle.markSessionCreated()
	return rec, nil
}

// Release gives back the reserved slot without creating a session. Safe
// to call at most once; calling it after Finalize is a no-op.
func (r *Reservation) Release() {
	if r.finalized {
		return
	}
	r.handle.release(r.stereotype)
}

// Handle is the Distributor's per-node mirror of one registered node.
type Handle struct {
	id     uuid.UUID
	uri    string
	secret string

	mu                   sync.RWMutex
	stereotypes          []domain.Stereotype
	used                 []int // parallel to stereotypes: slots currently in use
	status               domain.Availability
	lastSessionCreatedAt time.Time
	consecutiveFailures  int
}

// New creates a Handle for a freshly-registered node from its first
// NodeStatus snapshot. The node starts UP unless the snapshot itself
// already reports otherwise.
func New(status domain.NodeStatus) *Handle {
	h := &Handle{
		id:     status.NodeID,
		uri:    status.URI,
		secret: status.RegistrationSecret,
		status: domain.Up,
	}
	h.applyStereotypes(status.Stereotypes)
	if status.Availability == domain.Draining || status.Availability == domain.Down {
		h.status = status.Availability
	}
	return h
}

func (h *Handle) applyStereotypes(stereotypes []domain.Stereotype) {
	h.stereotypes = make([]domain.Stereotype, len(stereotypes))
	copy(h.stereotypes, stereotypes)
	h.used = make([]int, len(stereotypes))
}

func (h *Handle) ID() uuid.UUID  { return h.id }
func (h *Handle) URI() string    { return h.uri }
func (h *Handle) Secret() string { return h.secret }

func (h *Handle) Status() domain.Availability {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Stereotypes returns a copy of the advertised stereotypes; satisfies
// policy.Candidate.
func (h *Handle) Stereotypes() []domain.Stereotype {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Stereotype, len(h.stereotypes))
	copy(out, h.stereotypes)
	return out
}

// Load returns used slots / max slots across all stereotypes, in [0,1].
// A node with zero advertised slots has load 0.
func (h *Handle) Load() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loadLocked()
}

func (h *Handle) loadLocked() float64 {
	var used, max int
	for i, st := range h.stereotypes {
		used += h.used[i]
		max += st.Slots
	}
	if max == 0 {
		return 0
	}
	return float64(used) / float64(max)
}

func (h *Handle) LastSessionCreated() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSessionCreatedAt
}

// HasCapacity reports whether any advertised stereotype matching caps has
// a free slot, while the node is UP.
func (h *Handle) HasCapacity(caps domain.Capabilities) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.status != domain.Up {
		return false
	}
	return h.freeStereotypeLocked(caps) >= 0
}

func (h *Handle) freeStereotypeLocked(caps domain.Capabilities) int {
	for i, st := range h.stereotypes {
		if st.Matches(caps) && h.used[i] < st.Slots {
			return i
		}
	}
	return -1
}

// Reserve atomically decrements the free slot count for the first
// matching stereotype and returns a Reservation thunk that performs the
// actual remote creation when invoked. Returns an error if the node is
// not UP or has no free matching stereotype.
func (h *Handle) Reserve(caps domain.Capabilities, creator NodeCreator) (*Reservation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != domain.Up {
		return nil, graverr.NewSessionNotCreated("node is not accepting new sessions", nil)
	}
	idx := h.freeStereotypeLocked(caps)
	if idx < 0 {
		return nil, graverr.NewSessionNotCreated("no free matching stereotype", nil)
	}
	h.used[idx]++
	return &Reservation{handle: h, stereotype: idx, caps: caps.Clone(), creator: creator}, nil
}

func (h *Handle) release(stereotype int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if stereotype < 0 || stereotype >= len(h.used) {
		return
	}
	if h.used[stereotype] > 0 {
		h.used[stereotype]--
	}
}

func (h *Handle) markSessionCreated() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSessionCreatedAt = time.Now()
}

// Update recomputes state from a newer snapshot for the same node id:
// replaces the advertised stereotypes (preserving in-flight reservation
// counts up to the new slot limits), and transitions to DRAINING if the
// snapshot reports it. A DRAINING or DOWN node never transitions back to
// UP via Update; only RunHealthCheck can clear DOWN, and only a
// NODE_DRAIN_COMPLETE event (handled by the Distributor) clears DRAINING.
func (h *Handle) Update(status domain.NodeStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	newUsed := make([]int, len(status.Stereotypes))
	for i, st := range status.Stereotypes {
		for j, old := range h.stereotypes {
			if old.BrowserName() == st.BrowserName() && j < len(h.used) {
				if h.used[j] < st.Slots {
					newUsed[i] = h.used[j]
				} else {
					newUsed[i] = st.Slots
				}
				break
			}
		}
	}
	h.stereotypes = append([]domain.Stereotype(nil), status.Stereotypes...)
	h.used = newUsed

	if status.Availability == domain.Draining {
		h.status = domain.Draining
		return
	}
	if h.status == domain.Up {
		h.consecutiveFailures = 0
	}
}

// RunHealthCheck records the outcome of one probe: healthy resets the
// failure counter and, if the node was DOWN, brings it back to UP (a
// DRAINING node stays DRAINING regardless of probe outcome, per spec.md
// §4.2's state machine). An unhealthy probe increments the failure
// counter and transitions to DOWN once unhealthyThreshold is reached.
func (h *Handle) RunHealthCheck(healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == domain.Draining {
		return
	}
	if healthy {
		h.consecutiveFailures = 0
		if h.status == domain.Down {
			h.status = domain.Up
		}
		return
	}
	h.consecutiveFailures++
	if h.consecutiveFailures >= unhealthyThreshold {
		h.status = domain.Down
	}
}

// AsSummary returns the immutable projection used by status dumps.
func (h *Handle) AsSummary() domain.NodeSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var used, max int
	for i, st := range h.stereotypes {
		used += h.used[i]
		max += st.Slots
	}
	stereotypes := make([]domain.Stereotype, len(h.stereotypes))
	copy(stereotypes, h.stereotypes)
	return domain.NodeSummary{
		ID:                   h.id,
		URI:                  h.uri,
		Status:               h.status,
		Load:                 h.loadLocked(),
		Stereotypes:          stereotypes,
		LastSessionCreatedAt: h.lastSessionCreatedAt,
		UsedSlots:            used,
		MaxSlots:             max,
	}
}
