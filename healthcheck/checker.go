// Package healthcheck implements the Distributor's single recurring
// scheduler: one task per registered node, probing every 30 seconds with
// a 5-minute hard deadline, registered on node add and deregistered on
// node remove. Tasks never touch the Distributor's directory lock; they
// only call the target NodeHandle's own RunHealthCheck.
//
// Grounded on the teacher's connectionPool.refreshLoop ticker-goroutine
// pattern (MyGateway/service/connection_pool.go), generalized from "one
// loop per pool" to "one loop per registered node" because each node
// needs independent start/stop lifecycle tied to registration.
package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

const (
	// Interval is the period between probes for a single node.
	Interval = 30 * time.Second
	// Deadline is the hard upper bound a single probe call may run for.
	Deadline = 5 * time.Minute
)

// Prober performs the actual health probe against one node (e.g. an HTTP
// GET to its /status endpoint). Implementations are an external
// collaborator per spec.md §1; Target carries only what deciding
// healthy/unhealthy requires.
type Prober interface {
	Probe(ctx context.Context, nodeURI string) (healthy bool)
}

// Target is the narrow view of a NodeHandle the checker needs: somewhere
// to record the probe outcome and the URI to probe. nodehandle.Handle
// satisfies this directly.
type Target interface {
	URI() string
	RunHealthCheck(healthy bool)
}

// Checker owns one recurring task per registered node.
type Checker struct {
	prober Prober
	logger log.Logger

	mu    sync.Mutex
	tasks map[uuid.UUID]context.CancelFunc
}

// New creates a Checker that probes with prober.
func New(prober Prober, logger log.Logger) *Checker {
	return &Checker{
		prober: prober,
		logger: log.With(logger, "component", "healthcheck"),
		tasks:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// Register starts a recurring probe task for nodeID against target. If a
// task already exists for nodeID it is stopped first (re-registration is
// idempotent).
func (c *Checker) Register(nodeID uuid.UUID, target Target) {
	c.mu.Lock()
	if cancel, ok := c.tasks[nodeID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.tasks[nodeID] = cancel
	c.mu.Unlock()

	go c.run(ctx, nodeID, target)
}

// Deregister stops the probe task for nodeID, if any.
func (c *Checker) Deregister(nodeID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.tasks[nodeID]; ok {
		cancel()
		delete(c.tasks, nodeID)
	}
}

// TriggerOnce runs a single probe against target immediately, out of
// band from the recurring schedule. Used by Distributor.Refresh.
func (c *Checker) TriggerOnce(target Target) {
	c.probeOnce(target)
}

// RegisteredCount reports how many node tasks are currently scheduled;
// used by tests asserting the add/remove lifecycle invariant.
func (c *Checker) RegisteredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func (c *Checker) run(ctx context.Context, nodeID uuid.UUID, target Target) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probeOnce(target)
		}
	}
}

// probeOnce runs a single bounded probe and feeds its outcome to target.
// Idempotent and safe to call concurrently with the recurring loop: the
// only shared state it touches is target's own internal lock.
func (c *Checker) probeOnce(target Target) {
	ctx, cancel := context.WithTimeout(context.Background(), Deadline)
	defer cancel()
	healthy := c.prober.Probe(ctx, target.URI())
	target.RunHealthCheck(healthy)
	if !healthy {
		level.Warn(c.logger).Log("msg", "node probe unhealthy", "uri", target.URI())
	}
}

// Close stops every scheduled task.
func (c *Checker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.tasks {
		cancel()
		delete(c.tasks, id)
	}
}
