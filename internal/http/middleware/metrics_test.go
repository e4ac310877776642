package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-tutor-backend/internal/ratelimit"
)

func TestMetrics_Counters_Histograms_InflightAndPathFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())

	// Route with body → positive size (observed)
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "hello") // writes body (size >= 0)
	})

	// Route with status only → size stays -1 (skipped in size histogram)
	r.GET("/statusonly", func(c *gin.Context) {
		c.Status(http.StatusNoContent) // 204, no body => size -1
	})

	// Baselines before we hit the routes (to avoid interference from other tests)
	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ok", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/does-not-exist", "404"))

	// 1) Hit /ok (matches route → path label is "/ok")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /ok -> %d", w.Code)
	}

	// 2) Hit a missing route (no match → fallback to raw URL path label)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /does-not-exist -> %d", w.Code)
	}

	// 3) Hit /statusonly (size -1 path executed)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/statusonly", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("GET /statusonly -> %d", w.Code)
	}

	// --- Assertions ---

	// Counters for specific label sets should have incremented by 1
	gotOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ok", "200"))
	if gotOK != baseOK+1 {
		t.Fatalf("counter /ok 200 = %v; want %v", gotOK, baseOK+1)
	}

	// 404 path uses raw URL (fallback)
	got404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/does-not-exist", "404"))
	if got404 != base404+1 {
		t.Fatalf("counter 404 fallback = %v; want %v", got404, base404+1)
	}

	// In-flight gauge should be 0 after requests complete
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}

	// We don't assert exact histogram bucket counts (they’re timing-dependent),
	// but by executing the code paths above we hit both:
	// - httpLat.WithLabelValues(method, path).Observe(...)
	// - httpRespSize.WithLabelValues(method, path).Observe(...) when size>=0
	// and skip when size<0.
}

func TestMetrics_ErrorKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = captureLogger(t)

	r := gin.New()
	r.Use(Recovery())
	r.Use(Metrics())
	r.GET("/m-panic", func(c *gin.Context) { panic("boom") })
	r.GET("/m-503", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	basePanic := testutil.ToFloat64(httpErrors.WithLabelValues("GET", "/m-panic", "panic"))
	basePanicReqs := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/m-panic", "500"))
	base5xx := testutil.ToFloat64(httpErrors.WithLabelValues("GET", "/m-503", "server_error"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/m-panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("panic route -> %d; want 500 from Recovery", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/m-503", nil))

	if got := testutil.ToFloat64(httpErrors.WithLabelValues("GET", "/m-panic", "panic")); got != basePanic+1 {
		t.Fatalf("panic counter = %v; want %v", got, basePanic+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/m-panic", "500")); got != basePanicReqs+1 {
		t.Fatalf("panic request counter = %v; want %v", got, basePanicReqs+1)
	}
	if got := testutil.ToFloat64(httpErrors.WithLabelValues("GET", "/m-503", "server_error")); got != base5xx+1 {
		t.Fatalf("server_error counter = %v; want %v", got, base5xx+1)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v after panic; want 0", inFlight)
	}
}

func TestMetrics_IdempotencyOutcomes(t *testing.T) {
	var calls int32
	r := newIdemRouter(newMemIdemStore(), &calls)

	count := func(outcome string) float64 {
		return testutil.ToFloat64(idemOutcomes.WithLabelValues(outcome))
	}
	baseExec, baseReplay, baseReused, baseReleased :=
		count(idemExecuted), count(idemReplayed), count(idemReused), count(idemReleased)

	postItem(r, "m-1", `{"a":1}`)
	postItem(r, "m-1", `{"a":1}`)
	postItem(r, "m-1", `{"a":2}`)
	postItem(r, "m-2", `{}`, "X-Test-User", "u1")
	req := httptest.NewRequest(http.MethodPost, "/items?status=500", nil)
	req.Header.Set(HeaderIdempotencyKey, "m-3")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got := count(idemExecuted); got != baseExec+2 {
		t.Fatalf("executed = %v; want %v", got, baseExec+2)
	}
	if got := count(idemReplayed); got != baseReplay+1 {
		t.Fatalf("replayed = %v; want %v", got, baseReplay+1)
	}
	if got := count(idemReused); got != baseReused+1 {
		t.Fatalf("reused = %v; want %v", got, baseReused+1)
	}
	if got := count(idemReleased); got != baseReleased+1 {
		t.Fatalf("released = %v; want %v", got, baseReleased+1)
	}
}

func TestMetrics_RateLimitDecisions(t *testing.T) {
	_ = captureLogger(t)
	verdicts := []error{nil, errLimited, errors.New("store down")}
	i := 0
	store := &fakeStore{allowFn: func(context.Context, string) (ratelimit.Decision, error) {
		v := verdicts[i]
		i++
		switch v {
		case nil:
			return ratelimit.Decision{Allowed: true, Remaining: 1}, nil
		case errLimited:
			return ratelimit.Decision{Allowed: false, RetryAfter: time.Second}, nil
		}
		return ratelimit.Decision{}, v
	}}
	r := newLimitedRouter(store, 1)

	count := func(d string) float64 { return testutil.ToFloat64(rateDecisions.WithLabelValues(d)) }
	baseAllowed, baseLimited, baseErr := count("allowed"), count("limited"), count("error")

	for range verdicts {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	}

	if count("allowed") != baseAllowed+1 || count("limited") != baseLimited+1 || count("error") != baseErr+1 {
		t.Fatalf("decisions allowed=%v limited=%v error=%v",
			count("allowed")-baseAllowed, count("limited")-baseLimited, count("error")-baseErr)
	}
}

var errLimited = errors.New("limited")
