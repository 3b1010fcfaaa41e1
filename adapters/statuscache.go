package adapters

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/graverr"
)

// RedisStatusCache mirrors the latest domain.NodeStatus per node into
// Redis so a warm-standby distributor replica can rehydrate directory
// state on failover (SPEC_FULL.md §4.3). It is a write-through mirror,
// never consulted on the hot path: the in-memory directory stays
// authoritative.
//
// Grounded directly on the generic redisCache[T] in
// MyDiscoverer/adapters/myredis/cache.go: same constructor shape
// (client, prefix, marshal, unmarshal), same Keys-then-Get-per-key
// listing strategy.
type RedisStatusCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStatusCache creates a status mirror under the given key prefix.
func NewRedisStatusCache(client redis.UniversalClient, prefix string) *RedisStatusCache {
	return &RedisStatusCache{client: client, prefix: prefix}
}

type wireNodeStatus struct {
	NodeID              string              `json:"nodeId"`
	URI                 string              `json:"uri"`
	Stereotypes         []domain.Stereotype `json:"stereotypes"`
	CurrentSessionCount int                 `json:"currentSessionCount"`
	Availability        string              `json:"availability"`
}

// Write mirrors status into Redis with the given TTL. The registration
// secret is deliberately never written: a replica rehydrating directory
// state must still receive a fresh NODE_STATUS to validate the secret
// itself, per spec.md §4.1's secret-comparison invariant.
func (c *RedisStatusCache) Write(ctx context.Context, status domain.NodeStatus, ttl time.Duration) error {
	wire := wireNodeStatus{
		NodeID:              status.NodeID.String(),
		URI:                 status.URI,
		Stereotypes:         status.Stereotypes,
		CurrentSessionCount: status.CurrentSessionCount,
		Availability:        string(status.Availability),
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return graverr.NewInternal("failed to marshal node status", err)
	}
	if err := c.client.Set(ctx, c.key(status.NodeID.String()), data, ttl).Err(); err != nil {
		return graverr.NewStorage("failed to write node status to redis", err)
	}
	return nil
}

// Delete removes the mirrored status for nodeID.
func (c *RedisStatusCache) Delete(ctx context.Context, nodeID string) error {
	if err := c.client.Del(ctx, c.key(nodeID)).Err(); err != nil {
		return graverr.NewStorage("failed to delete node status from redis", err)
	}
	return nil
}

// List returns every currently-mirrored NodeStatus's wire form (minus
// RegistrationSecret, which is never mirrored).
func (c *RedisStatusCache) List(ctx context.Context) ([]domain.NodeStatus, error) {
	fullKeys, err := c.client.Keys(ctx, c.prefix+":*").Result()
	if err != nil {
		return nil, graverr.NewStorage("failed to list node status keys", err)
	}
	out := make([]domain.NodeStatus, 0, len(fullKeys))
	for _, fk := range fullKeys {
		data, err := c.client.Get(ctx, fk).Bytes()
		if err != nil {
			continue
		}
		var wire wireNodeStatus
		if err := json.Unmarshal(data, &wire); err != nil {
			continue
		}
		status, err := fromWire(wire)
		if err != nil {
			continue
		}
		out = append(out, status)
	}
	return out, nil
}

func fromWire(wire wireNodeStatus) (domain.NodeStatus, error) {
	id, err := uuid.Parse(wire.NodeID)
	if err != nil {
		return domain.NodeStatus{}, err
	}
	return domain.NodeStatus{
		NodeID:              id,
		URI:                 wire.URI,
		Stereotypes:         wire.Stereotypes,
		CurrentSessionCount: wire.CurrentSessionCount,
		Availability:        domain.Availability(wire.Availability),
	}, nil
}

func (c *RedisStatusCache) key(nodeID string) string {
	return c.prefix + ":" + nodeID
}
