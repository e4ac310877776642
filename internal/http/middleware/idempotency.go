// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the idempotency guard for POST requests. A request
// carrying an Idempotency-Key header is bound to a fingerprint of
// method, path, principal and body:
//
//   - the first request claims the key, runs the handler and stores the
//     response once it succeeds (2xx);
//   - a retry with the same fingerprint replays the stored response without
//     running the handler again;
//   - a request reusing the key with a different fingerprint gets 409;
//   - a request racing an in-flight claim waits for it (exponential backoff)
//     and then replays, or gets 409 when the wait runs out.
//
// Failed (non-2xx) or panicking requests release their claim so the client
// may retry with the same key.
package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplayed marks a response served from the stored record.
const HeaderIdempotentReplayed = "Idempotent-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"

	maxIdempotencyKeyLen = 200
	anonymousPrincipal   = "anonymous"
)

var idempotencyKeyRE = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

var (
	errKeyReused  = errors.New("idempotency key reused with a different request")
	errInProgress = errors.New("idempotent request still in progress")
	errRetryClaim = errors.New("claim released; retry")
)

// IdempotencyStore persists idempotency records.
type IdempotencyStore interface {
	// Claim inserts a pending record. claimed is false when the key exists.
	Claim(ctx context.Context, key, requestHash, method, path string) (rec *domain.IdempotencyKey, claimed bool, err error)
	// Get returns the record for key, or nil when there is none.
	Get(ctx context.Context, key string) (*domain.IdempotencyKey, error)
	// Complete stores the response of a pending claim.
	Complete(ctx context.Context, id string, status int, contentType string, body []byte) error
	// Release drops a pending claim.
	Release(ctx context.Context, id string) error
	// ReapStale drops a pending claim on key locked before cutoff.
	ReapStale(ctx context.Context, key string, cutoff time.Time) (bool, error)
}

// IdempotencyOptions configures the guard.
type IdempotencyOptions struct {
	Store IdempotencyStore
	// Wait bounds how long a request waits for a concurrent one holding the key.
	Wait time.Duration
	// LockTTL is the age after which a pending claim counts as abandoned.
	LockTTL time.Duration

	// NewBackOff overrides the wait policy (tests). It must honour Wait itself.
	NewBackOff func() backoff.BackOff
	// Now overrides the clock used for staleness checks.
	Now func() time.Time
}

// GetIdempotencyKey returns the validated key stored by the guard.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the response was served from a stored record.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// RequestHash fingerprints a request:
// hex(sha256(method ":" path ":" principal ":" hex(sha256(body)))).
func RequestHash(method, path, principal string, body []byte) string {
	bodySum := sha256.Sum256(body)
	sum := sha256.Sum256([]byte(method + ":" + path + ":" + principal + ":" + hex.EncodeToString(bodySum[:])))
	return hex.EncodeToString(sum[:])
}

// Idempotency returns the guard middleware. Mount it after RequireAuth so the
// principal is known; without a user the principal is "anonymous".
func Idempotency(opts IdempotencyOptions) gin.HandlerFunc {
	g := &idempotencyGuard{opts: opts}
	if g.opts.Now == nil {
		g.opts.Now = time.Now
	}
	if g.opts.NewBackOff == nil {
		wait := opts.Wait
		g.opts.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 25 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			b.MaxElapsedTime = wait
			return b
		}
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen || !idempotencyKeyRE.MatchString(key) {
			abortError(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				abortError(c, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
				return
			}
			abortError(c, http.StatusBadRequest, "bad_request", "could not read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(ctxKeyIdemKey, key)

		method, path := c.Request.Method, c.Request.URL.Path
		hash := RequestHash(method, path, principal(c), body)

		rec, owned, err := g.acquire(c, key, hash, method, path)
		switch {
		case errors.Is(err, errKeyReused):
			idemOutcomes.WithLabelValues(idemReused).Inc()
			abortError(c, http.StatusConflict, "idempotency_key_reused",
				"Idempotency-Key was already used with a different request")
			return
		case errors.Is(err, errInProgress):
			idemOutcomes.WithLabelValues(idemInProgress).Inc()
			abortError(c, http.StatusConflict, "idempotency_in_progress",
				"a request with this Idempotency-Key is still in progress")
			return
		case err != nil:
			idemOutcomes.WithLabelValues(idemError).Inc()
			LoggerFrom(c).Error().Err(err).Str("idempotency_key", key).Msg("idempotency store failed")
			abortError(c, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		if !owned {
			idemOutcomes.WithLabelValues(idemReplayed).Inc()
			replay(c, rec)
			return
		}
		g.run(c, rec)
	}
}

type idempotencyGuard struct {
	opts IdempotencyOptions
}

// acquire either claims key (owned=true) or returns the completed record of
// an identical earlier request. It waits out concurrent claims, re-claims
// released ones and takes over abandoned ones.
func (g *idempotencyGuard) acquire(c *gin.Context, key, hash, method, path string) (*domain.IdempotencyKey, bool, error) {
	ctx := c.Request.Context()
	var (
		out   *domain.IdempotencyKey
		owned bool
	)

	op := func() error {
		rec, claimed, err := g.opts.Store.Claim(ctx, key, hash, method, path)
		if err != nil {
			return backoff.Permanent(err)
		}
		if claimed {
			out, owned = rec, true
			return nil
		}

		existing, err := g.opts.Store.Get(ctx, key)
		if err != nil {
			return backoff.Permanent(err)
		}
		if existing == nil {
			return errRetryClaim
		}
		if existing.RequestHash != hash {
			return backoff.Permanent(errKeyReused)
		}
		if existing.Completed() {
			out = existing
			return nil
		}

		cutoff := g.opts.Now().UTC().Add(-g.opts.LockTTL)
		if existing.LockedAt.Before(cutoff) {
			reaped, err := g.opts.Store.ReapStale(ctx, key, cutoff)
			if err != nil {
				return backoff.Permanent(err)
			}
			if reaped {
				idemOutcomes.WithLabelValues(idemTakeover).Inc()
				LoggerFrom(c).Warn().
					Str("idempotency_key", key).
					Time("locked_at", existing.LockedAt).
					Msg("took over abandoned idempotency claim")
			}
			return errRetryClaim
		}
		return errInProgress
	}

	err := backoff.Retry(op, backoff.WithContext(g.opts.NewBackOff(), ctx))
	if errors.Is(err, errRetryClaim) {
		err = errInProgress
	}
	return out, owned, err
}

// run executes the handler chain while capturing the response, then stores
// it on success or releases the claim otherwise (including on panic).
func (g *idempotencyGuard) run(c *gin.Context, rec *domain.IdempotencyKey) {
	// Store calls outlive a client that disconnects mid-request.
	ctx := context.WithoutCancel(c.Request.Context())

	cw := &captureWriter{ResponseWriter: c.Writer}
	c.Writer = cw

	completed := false
	defer func() {
		c.Writer = cw.ResponseWriter
		if completed {
			idemOutcomes.WithLabelValues(idemExecuted).Inc()
			return
		}
		idemOutcomes.WithLabelValues(idemReleased).Inc()
		if err := g.opts.Store.Release(ctx, rec.ID); err != nil {
			LoggerFrom(c).Error().Err(err).Str("idempotency_key", rec.Key).Msg("release idempotency claim")
		}
	}()

	c.Next()

	status := cw.Status()
	if status < 200 || status > 299 {
		return
	}
	if err := g.opts.Store.Complete(ctx, rec.ID, status, cw.Header().Get("Content-Type"), cw.buf.Bytes()); err != nil {
		LoggerFrom(c).Error().Err(err).Str("idempotency_key", rec.Key).Msg("complete idempotency claim")
		return
	}
	completed = true
}

// replay writes a stored response byte-for-byte.
func replay(c *gin.Context, rec *domain.IdempotencyKey) {
	ct := rec.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.Set(ctxKeyIdemReplay, true)
	c.Header(HeaderIdempotentReplayed, "true")
	c.Data(rec.ResponseStatus, ct, rec.ResponseBody)
	c.Abort()
}

func principal(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return anonymousPrincipal
}

// captureWriter tees the response body into buf.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// abortError writes the standard error envelope and stops the chain.
func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}
