// Package distributor implements the Distributor: the stateful directory
// of worker nodes that coordinates registration, heartbeat refresh,
// draining and concurrent new-session scheduling (spec.md §4.1).
//
// Grounded on service.connectionPool in
// MyGateway/service/connection_pool.go for its overall shape — a struct
// holding a lock-guarded map plus references to its collaborators
// (discoverer there, event bus and session map here), exposing small
// single-purpose exported methods — generalized from "one dynamic cluster's
// instance list" to "the whole grid's node directory".
package distributor

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/eventbus"
	"github.com/moneytech/selenium/fairlock"
	"github.com/moneytech/selenium/graverr"
	"github.com/moneytech/selenium/healthcheck"
	"github.com/moneytech/selenium/nodehandle"
	"github.com/moneytech/selenium/policy"
	"github.com/moneytech/selenium/sessionmap"
)

// Distributor owns the node directory and coordinates selection,
// reservation and session-record persistence.
type Distributor struct {
	bus      eventbus.Bus
	sessions sessionmap.Map
	checker  *healthcheck.Checker
	creator  nodehandle.NodeCreator
	logger   log.Logger
	secret   string

	lock  fairlock.RWMutex
	hosts map[uuid.UUID]*nodehandle.Handle
	byURI map[string]uuid.UUID

	unsubStatus func()
	unsubDrain  func()
}

// New creates a Distributor wired to bus (for NODE_STATUS/
// NODE_DRAIN_COMPLETE subscriptions and NODE_ADDED/NODE_REMOVED/
// NODE_REJECTED publication), sessions (the Session Map new sessions are
// written into) and creator (the remote node client used to finalize
// reservations). checker schedules the recurring per-node health probes.
func New(bus eventbus.Bus, sessions sessionmap.Map, checker *healthcheck.Checker, creator nodehandle.NodeCreator, logger log.Logger) *Distributor {
	d := &Distributor{
		bus:      bus,
		sessions: sessions,
		checker:  checker,
		creator:  creator,
		logger:   log.With(logger, "component", "distributor"),
		hosts:    make(map[uuid.UUID]*nodehandle.Handle),
		byURI:    make(map[string]uuid.UUID),
	}
	d.unsubStatus = bus.Subscribe(eventbus.TopicNodeStatus, d.onNodeStatus)
	d.unsubDrain = bus.Subscribe(eventbus.TopicNodeDrainComplete, d.onDrainComplete)
	return d
}

// RegistrationSecret, when non-empty, is compared exactly against every
// incoming NodeStatus.RegistrationSecret; statuses that don't match are
// rejected. Set once before serving traffic; not safe to mutate
// concurrently with bus handlers.
func (d *Distributor) SetRegistrationSecret(secret string) {
	d.secret = secret
}

// NewSession parses req into its served capability set (the first of the
// ordered alternatives; see SPEC_FULL.md §3), selects a UP node with
// capacity, reserves a slot and performs the remote creation. On success
// the resulting SessionRecord is written to the Session Map and
// returned. The write lock is released before the remote creation call
// and before the Session Map write, per spec.md §5.
func (d *Distributor) NewSession(ctx context.Context, req domain.NewSessionRequest) (domain.SessionRecord, error) {
	caps, ok := req.First()
	if !ok {
		return domain.SessionRecord{}, graverr.NewSessionNotCreated("new session request carried no capability sets", nil)
	}

	reservation, err := d.reserve(caps, req.CapabilitySets)
	if err != nil {
		return domain.SessionRecord{}, err
	}

	rec, err := reservation.Finalize(ctx)
	if err != nil {
		return domain.SessionRecord{}, err
	}

	if _, err := d.sessions.Add(ctx, rec); err != nil {
		level.Error(d.logger).Log("msg", "session orphaned on node: session map write failed", "session_id", rec.SessionID, "err", err)
		return domain.SessionRecord{}, graverr.NewStorage("session created on node but could not be recorded", err)
	}
	return rec, nil
}

// reserve runs the write-locked selection + reservation phase (spec.md
// §4.1 steps 1-4) and returns the winning Reservation. No I/O happens
// while the lock is held.
func (d *Distributor) reserve(caps domain.Capabilities, allSets []domain.Capabilities) (*nodehandle.Reservation, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	candidates := make([]*nodehandle.Handle, 0, len(d.hosts))
	for _, h := range d.hosts {
		if h.Status() == domain.Up && h.HasCapacity(caps) {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return nil, graverr.NewSessionNotCreated(noCapacityMessage(allSets), nil)
	}

	filtered := policy.Prefilter(candidates, caps.BrowserName())
	winner := pickMinimum(filtered)

	return winner.Reserve(caps, d.creator)
}

// noCapacityMessage builds the SESSION_NOT_CREATED message citing every
// alternative capability set the request carried, per spec.md §9:
// alternatives are reported in the failure but never tried.
func noCapacityMessage(allSets []domain.Capabilities) string {
	msg := fmt.Sprintf("no node has capacity to create a session for %v", allSets[0])
	if len(allSets) <= 1 {
		return msg
	}
	return msg + fmt.Sprintf(" (alternatives provided but not tried: %v)", allSets[1:])
}

// pickMinimum selects the candidate minimizing (load asc,
// lastSessionCreatedAt asc, id asc), spec.md §4.1 step 3.
func pickMinimum(candidates []*nodehandle.Handle) *nodehandle.Handle {
	sorted := make([]*nodehandle.Handle, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Load() != b.Load() {
			return a.Load() < b.Load()
		}
		at, bt := a.LastSessionCreated(), b.LastSessionCreated()
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.ID().String() < b.ID().String()
	})
	return sorted[0]
}

// Add registers node programmatically, equivalent to receiving a valid
// status for it (spec.md §4.1).
func (d *Distributor) Add(status domain.NodeStatus) {
	d.addOrUpdate(status)
}

func (d *Distributor) addOrUpdate(status domain.NodeStatus) {
	d.lock.Lock()
	var added, replaced *nodehandle.Handle
	var replacedID uuid.UUID

	if existing, ok := d.hosts[status.NodeID]; ok {
		existing.Update(status)
	} else if existingID, ok := d.byURI[status.URI]; ok {
		replaced = d.hosts[existingID]
		replacedID = existingID
		delete(d.hosts, existingID)
		delete(d.byURI, status.URI)
		added = d.registerLocked(status)
	} else {
		added = d.registerLocked(status)
	}
	d.lock.Unlock()

	if replaced != nil {
		d.checker.Deregister(replacedID)
		d.bus.Publish(eventbus.TopicNodeRemoved, replacedID)
	}
	if added != nil {
		d.checker.Register(added.ID(), added)
		d.bus.Publish(eventbus.TopicNodeAdded, added.ID())
	}
}

// registerLocked creates and indexes a new Handle for status. Caller
// must hold the write lock.
func (d *Distributor) registerLocked(status domain.NodeStatus) *nodehandle.Handle {
	h := nodehandle.New(status)
	d.hosts[h.ID()] = h
	d.byURI[h.URI()] = h.ID()
	return h
}

// Remove deletes the Handle for nodeID, cancels its scheduled health
// check and fires NODE_REMOVED. No-op if nodeID is unknown.
func (d *Distributor) Remove(nodeID uuid.UUID) {
	d.lock.Lock()
	h, ok := d.hosts[nodeID]
	if ok {
		delete(d.hosts, nodeID)
		delete(d.byURI, h.URI())
	}
	d.lock.Unlock()

	if !ok {
		return
	}
	d.checker.Deregister(nodeID)
	d.bus.Publish(eventbus.TopicNodeRemoved, nodeID)
}

// Status returns a snapshot of every registered node's summary.
func (d *Distributor) Status() []domain.NodeSummary {
	d.lock.RLock()
	defer d.lock.RUnlock()
	out := make([]domain.NodeSummary, 0, len(d.hosts))
	for _, h := range d.hosts {
		out = append(out, h.AsSummary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Refresh triggers an immediate health check on every registered node.
func (d *Distributor) Refresh() {
	d.lock.RLock()
	handles := make([]*nodehandle.Handle, 0, len(d.hosts))
	for _, h := range d.hosts {
		handles = append(handles, h)
	}
	d.lock.RUnlock()
	for _, h := range handles {
		d.checker.TriggerOnce(h)
	}
}

// IsReady reports whether the Distributor's collaborators (event bus,
// Session Map) are both ready.
func (d *Distributor) IsReady() bool {
	return d.bus.IsReady() && d.sessions.IsReady()
}

// onNodeStatus is the NODE_STATUS bus handler (spec.md §4.1). Bus
// handler panics never escape: eventbus.Local/RedisBus recover around
// every dispatched call.
func (d *Distributor) onNodeStatus(payload any) {
	status, ok := payload.(domain.NodeStatus)
	if !ok {
		return
	}
	if d.secret != "" && status.RegistrationSecret != d.secret {
		d.bus.Publish(eventbus.TopicNodeRejected, status.URI)
		return
	}
	d.addOrUpdate(status)
}

// onDrainComplete is the NODE_DRAIN_COMPLETE bus handler.
func (d *Distributor) onDrainComplete(payload any) {
	nodeID, ok := payload.(uuid.UUID)
	if !ok {
		return
	}
	d.Remove(nodeID)
}

// Close unsubscribes from the bus and stops the health checker. Safe to
// call once at shutdown.
func (d *Distributor) Close() error {
	if d.unsubStatus != nil {
		d.unsubStatus()
	}
	if d.unsubDrain != nil {
		d.unsubDrain()
	}
	d.checker.Close()
	return nil
}
