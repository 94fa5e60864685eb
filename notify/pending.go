// ABOUTME: Pending candidate selections awaiting a customer's choice
// ABOUTME: Redis-backed store with TTL plus an in-memory fallback
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultPendingTTL bounds how long a candidate list stays answerable.
const DefaultPendingTTL = 30 * time.Minute

// PendingStore keeps, per LINE user, the ordered candidate deal ids that were
// offered. Get returns nil, nil when nothing is pending or it has expired.
type PendingStore interface {
	Put(ctx context.Context, userID string, dealIDs []int64, ttl time.Duration) error
	Get(ctx context.Context, userID string) ([]int64, error)
	Clear(ctx context.Context, userID string) error
}

const pendingKeyPrefix = "dealboard:line:pending:"

type RedisPending struct {
	c *redis.Client
}

func NewRedisPending(c *redis.Client) *RedisPending { return &RedisPending{c: c} }

func (r *RedisPending) Put(ctx context.Context, userID string, dealIDs []int64, ttl time.Duration) error {
	data, err := json.Marshal(dealIDs)
	if err != nil {
		return err
	}
	return r.c.Set(ctx, pendingKeyPrefix+userID, data, ttl).Err()
}

func (r *RedisPending) Get(ctx context.Context, userID string) ([]int64, error) {
	val, err := r.c.Get(ctx, pendingKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal(val, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *RedisPending) Clear(ctx context.Context, userID string) error {
	return r.c.Del(ctx, pendingKeyPrefix+userID).Err()
}

type pendingEntry struct {
	ids     []int64
	expires time.Time
}

// MemoryPending is a process-local PendingStore for single-instance deployments.
type MemoryPending struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
	now     func() time.Time
}

func NewMemoryPending() *MemoryPending {
	return &MemoryPending{entries: make(map[string]pendingEntry), now: time.Now}
}

// Put also drops every expired entry, so users who never reply do not pile up.
func (m *MemoryPending) Put(_ context.Context, userID string, dealIDs []int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, id)
		}
	}
	ids := make([]int64, len(dealIDs))
	copy(ids, dealIDs)
	m.entries[userID] = pendingEntry{ids: ids, expires: now.Add(ttl)}
	return nil
}

func (m *MemoryPending) Get(_ context.Context, userID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, userID)
		return nil, nil
	}
	ids := make([]int64, len(e.ids))
	copy(ids, e.ids)
	return ids, nil
}

func (m *MemoryPending) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}
