package auth

import (
	"context"
	"time"

	"agencyledger/internal/cache"
)

// RevocationStore remembers revoked tokens until they would have expired
// anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, token string, until time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// MemoryRevocations keeps revoked tokens in an unbounded TTL cache. Entries
// must never be evicted early, so the cache has no size limit.
type MemoryRevocations struct {
	entries *cache.LRUCache[struct{}]
	now     func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		entries: cache.NewLRUCache[struct{}](0, time.Hour),
		now:     time.Now,
	}
}

// WithClock replaces the time source for both TTLs and lookups.
func (m *MemoryRevocations) WithClock(now func() time.Time) *MemoryRevocations {
	m.now = now
	m.entries.WithClock(now)
	return m
}

// Cleaner exposes the backing cache for registration with a cache.Manager.
func (m *MemoryRevocations) Cleaner() cache.Cleaner {
	return m.entries
}

func (m *MemoryRevocations) Revoke(_ context.Context, token string, until time.Time) error {
	ttl := until.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	m.entries.SetWithTTL(token, struct{}{}, ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	_, ok := m.entries.Get(token)
	return ok, nil
}
