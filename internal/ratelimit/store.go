// Package ratelimit implements per-key token buckets behind a small Store
// interface. MemoryStore keeps buckets in process; RedisStore shares them
// between replicas through an atomic Lua script.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Decision is the outcome of taking one token from a bucket.
type Decision struct {
	Allowed    bool
	Remaining  int           // whole tokens left after this request
	RetryAfter time.Duration // when denied, time until one token is available
}

// Store takes one token from the bucket identified by key.
type Store interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// idleTTL bounds how long an untouched bucket is kept.
const idleTTL = 10 * time.Minute

// noRefillWait is reported as RetryAfter when the refill rate is zero and a
// bucket can never recover.
const noRefillWait = idleTTL

// RetryAfterSeconds rounds d up to whole seconds, never below one, for use
// in a Retry-After header.
func RetryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
