// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the Prometheus collectors. Metrics() covers generic HTTP
// traffic; the idempotency guard and the rate limiter report their own
// decisions through tutor_idempotency_total and tutor_rate_limit_total.
//
// Labels stay bounded: path is the registered Gin route (for example
// /students/:id/assignments) and only falls back to the raw URL path when no
// route matched.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration in seconds by method and route path.
	// We intentionally omit status to keep latency histogram cardinality lower.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets, // suitable for general HTTP latency
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of in-flight (currently processing) requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// httpRespSize captures response sizes in bytes by method and route path.
	// Buckets are tuned for typical JSON API payload sizes.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10, // 200B..5KiB
				10 << 10, 25 << 10, 50 << 10, // 10..50KiB
				100 << 10, 250 << 10, 500 << 10, // 100..500KiB
				1 << 20, 2 << 20, 5 << 20, // 1..5MiB
			},
		},
		[]string{"method", "path"},
	)

	// httpErrors counts panics and handled 5xx responses.
	httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total number of HTTP requests that panicked or ended in a 5xx.",
		},
		[]string{"method", "path", "kind"},
	)

	// idemOutcomes counts how keyed POSTs were resolved.
	idemOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_idempotency_total",
			Help: "Keyed POST requests by outcome (executed, replayed, reused, in_progress, released, takeover, error).",
		},
		[]string{"outcome"},
	)

	// rateDecisions counts limiter verdicts; store failures are "error".
	rateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_rate_limit_total",
			Help: "Rate limiter decisions (allowed, limited, error).",
		},
		[]string{"decision"},
	)
)

// Idempotency outcomes.
const (
	idemExecuted   = "executed"
	idemReplayed   = "replayed"
	idemReused     = "reused"
	idemInProgress = "in_progress"
	idemReleased   = "released"
	idemTakeover   = "takeover"
	idemError      = "error"
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, httpErrors, idemOutcomes, rateDecisions)
}

// routePath is the registered route, or the raw path when nothing matched.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
// A panic is counted (kind=panic, status 500) and re-raised so Recovery,
// installed outside, still answers.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		defer func() {
			if rec := recover(); rec != nil {
				path := routePath(c)
				method := c.Request.Method
				httpReqs.WithLabelValues(method, path, "500").Inc()
				httpErrors.WithLabelValues(method, path, "panic").Inc()
				httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
				panic(rec)
			}
		}()

		c.Next()

		dur := time.Since(start).Seconds()
		path := routePath(c)
		method := c.Request.Method
		code := c.Writer.Status()
		size := c.Writer.Size() // -1 when nothing was written

		httpReqs.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
		httpLat.WithLabelValues(method, path).Observe(dur)
		if size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
		if code >= 500 {
			httpErrors.WithLabelValues(method, path, "server_error").Inc()
		}
	}
}
