package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucket refills and takes from a bucket stored as a hash
// {tokens, ts}. The caller's clock is passed in so every replica agrees on
// the refill arithmetic regardless of the Redis server's clock.
//
// Returns {allowed, remaining, wait_ms}; wait_ms is -1 when the bucket can
// never refill.
var tokenBucket = redis.NewScript(`
local rate  = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now   = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

local st = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(st[1])
local ts = tonumber(st[2])
if tokens == nil or ts == nil then
  tokens = burst
  ts = now
end
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) / 1000 * rate)
  ts = now
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
elseif rate > 0 then
  wait = math.ceil((1 - tokens) / rate * 1000)
else
  wait = -1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, math.floor(tokens), wait}
`)

// RedisStore is a Store shared by every replica talking to the same Redis.
type RedisStore struct {
	client redis.Scripter
	rps    float64
	burst  int
	prefix string

	// Clock returns the current time; nil means time.Now.
	Clock func() time.Time
}

// NewRedisStore returns a RedisStore using client. Keys are stored as
// "ratelimit:<key>".
func NewRedisStore(client redis.Scripter, rps float64, burst int) *RedisStore {
	if burst <= 0 {
		burst = 1
	}
	return &RedisStore{client: client, rps: rps, burst: burst, prefix: "ratelimit:"}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

// ttl is long enough for an idle bucket to refill completely.
func (s *RedisStore) ttl() time.Duration {
	if s.rps <= 0 {
		return idleTTL
	}
	full := time.Duration(float64(s.burst) / s.rps * float64(time.Second))
	if full < time.Second {
		full = time.Second
	}
	return 2 * full
}

// Allow implements Store.
func (s *RedisStore) Allow(ctx context.Context, key string) (Decision, error) {
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock()
	}
	res, err := tokenBucket.Run(ctx, s.client,
		[]string{s.prefix + key},
		s.rps, s.burst, now.UnixMilli(), s.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit script: unexpected reply %v", res)
	}

	d := Decision{Allowed: res[0] == 1, Remaining: int(res[1])}
	if !d.Allowed {
		switch wait := res[2]; {
		case wait < 0:
			d.RetryAfter = noRefillWait
		default:
			d.RetryAfter = time.Duration(wait) * time.Millisecond
		}
	}
	return d, nil
}
