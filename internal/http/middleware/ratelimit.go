// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts a ratelimit.Store to Gin: it derives the bucket key from
// the request, skips operational endpoints, and answers 429 with Retry-After
// when the bucket is empty.
//
// Notes:
//   - With the memory store the limit is per process. Use the Redis store to
//     enforce one limit across replicas.
//   - The limiter is edge-level abuse control, not an authorization mechanism.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/ratelimit"
)

// KeyFunc selects the identity used to key a rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByIP keys on the client address ("ip:<addr>"). The global limiter runs
// before authentication and uses it.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// KeyByUserOrIP prefers the authenticated user ("user:<id>", set by
// RequireAuth under "userID") and falls back to the client IP ("ip:<addr>").
// Mount it after RequireAuth; before it the user is never known.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// exemptPaths are never limited; /swagger/* is matched by prefix.
var exemptPaths = map[string]struct{}{
	"/health":       {},
	"/health/live":  {},
	"/health/ready": {},
	"/metrics":      {},
	"/docs":         {},
}

// IsRateLimitExempt reports whether path bypasses the limiter.
func IsRateLimitExempt(path string) bool {
	if _, ok := exemptPaths[path]; ok {
		return true
	}
	return strings.HasPrefix(path, "/swagger/")
}

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Store ratelimit.Store
	Key   KeyFunc // defaults to KeyByUserOrIP
	Limit int     // advertised in X-RateLimit-Limit (the burst)
}

// RateLimit returns a Gin middleware enforcing per-key token buckets.
//
// A denied request gets:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds, at least 1>
//	X-RateLimit-Limit: <burst>
//	{"request_id": "...", "code": "rate_limited", "message": "rate limit exceeded", "retry_after_seconds": N}
//
// When the store fails (e.g. Redis is unreachable) the request is admitted
// and a warning is logged.
func RateLimit(opts RateLimitOptions) gin.HandlerFunc {
	keyFn := opts.Key
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	limit := strconv.Itoa(opts.Limit)

	return func(c *gin.Context) {
		if IsRateLimitExempt(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := keyFn(c)
		d, err := opts.Store.Allow(c.Request.Context(), key)
		if err != nil {
			rateDecisions.WithLabelValues("error").Inc()
			LoggerFrom(c).Warn().Err(err).Str("key", key).Msg("rate limiter unavailable; failing open")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		if d.Allowed {
			rateDecisions.WithLabelValues("allowed").Inc()
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			c.Next()
			return
		}

		rateDecisions.WithLabelValues("limited").Inc()
		secs := ratelimit.RetryAfterSeconds(d.RetryAfter)
		c.Header("Retry-After", strconv.Itoa(secs))
		c.Header("X-RateLimit-Remaining", "0")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id":          RequestIDFrom(c),
			"code":                "rate_limited",
			"message":             "rate limit exceeded",
			"retry_after_seconds": secs,
		})
	}
}
