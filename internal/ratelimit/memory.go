package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitor holds a single limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore is a process-local Store. Buckets are created on demand and
// evicted opportunistically once idle for longer than the TTL.
//
// This type is safe for concurrent use.
type MemoryStore struct {
	rps   rate.Limit
	burst int

	// Clock returns the current time; nil means time.Now.
	Clock func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	cleanupN uint64
}

// NewMemoryStore returns a MemoryStore refilling rps tokens per second up to
// burst. Values of burst <= 0 are coerced to 1.
func NewMemoryStore(rps float64, burst int) *MemoryStore {
	if burst <= 0 {
		burst = 1
	}
	return &MemoryStore{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      idleTTL,
	}
}

func (m *MemoryStore) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

// getVisitor returns (and touches) the limiter for key, creating it if absent.
// Every 5000 lookups idle entries are dropped first, so an expired bucket is
// evicted even when it is the one being fetched.
func (m *MemoryStore) getVisitor(key string, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupN++
	if m.cleanupN >= 5000 {
		for k, v := range m.visitors {
			if now.Sub(v.lastSeen) >= m.ttl {
				delete(m.visitors, k)
			}
		}
		m.cleanupN = 0
	}

	if v, ok := m.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(m.rps, m.burst)
	m.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Allow implements Store.
func (m *MemoryStore) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()
	lim := m.getVisitor(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{RetryAfter: noRefillWait}, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		// Give the token back; a denied request must not delay the next one.
		r.CancelAt(now)
		return Decision{RetryAfter: d}, nil
	}
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Len reports how many buckets are currently tracked.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visitors)
}
