// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// rate limiting, CORS, security headers, authentication and idempotency.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/auth"
	"github.com/tbourn/go-tutor-backend/internal/config"
	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/http/handlers"
	"github.com/tbourn/go-tutor-backend/internal/http/middleware"
	"github.com/tbourn/go-tutor-backend/internal/notify"
	"github.com/tbourn/go-tutor-backend/internal/ratelimit"
	"github.com/tbourn/go-tutor-backend/internal/repo"
	"github.com/tbourn/go-tutor-backend/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// studentRepoShim adapts the repository free functions to the
// services.StudentRepo interface expected by the StudentService.
type studentRepoShim struct{}

func (studentRepoShim) CreateStudent(ctx context.Context, db *gorm.DB, tutorID, name string, level int) (*domain.Student, error) {
	return repo.CreateStudent(ctx, db, tutorID, name, level)
}

func (studentRepoShim) GetStudent(ctx context.Context, db *gorm.DB, id, tutorID string) (*domain.Student, error) {
	return repo.GetStudent(ctx, db, id, tutorID)
}

func (studentRepoShim) CountStudents(ctx context.Context, db *gorm.DB, tutorID string) (int64, error) {
	return repo.CountStudents(ctx, db, tutorID)
}

func (studentRepoShim) ListStudentsPage(ctx context.Context, db *gorm.DB, tutorID string, offset, limit int) ([]domain.Student, error) {
	return repo.ListStudentsPage(ctx, db, tutorID, offset, limit)
}

func (studentRepoShim) UpdateStudent(ctx context.Context, db *gorm.DB, id, tutorID string, updates map[string]any) error {
	return repo.UpdateStudent(ctx, db, id, tutorID, updates)
}

func (studentRepoShim) DeleteStudentCascade(ctx context.Context, tx *gorm.DB, id, tutorID string) error {
	return repo.DeleteStudentCascade(ctx, tx, id, tutorID)
}

func (studentRepoShim) StudentsStats(ctx context.Context, db *gorm.DB, tutorID string) (int64, *time.Time, error) {
	return repo.StudentsStats(ctx, db, tutorID)
}

// idempotencyStore adapts the idempotency repo functions to
// middleware.IdempotencyStore.
type idempotencyStore struct {
	db *gorm.DB
}

func (s idempotencyStore) Claim(ctx context.Context, key, hash, method, path string) (*domain.IdempotencyKey, bool, error) {
	rec, err := repo.ClaimIdempotencyKey(ctx, s.db, key, hash, method, path)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s idempotencyStore) Get(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	rec, err := repo.GetIdempotencyKey(ctx, s.db, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s idempotencyStore) Complete(ctx context.Context, id string, status int, contentType string, body []byte) error {
	return repo.CompleteIdempotencyKey(ctx, s.db, id, status, contentType, body)
}

func (s idempotencyStore) Release(ctx context.Context, id string) error {
	return repo.ReleaseIdempotencyKey(ctx, s.db, id)
}

func (s idempotencyStore) ReapStale(ctx context.Context, key string, cutoff time.Time) (bool, error) {
	return repo.ReapStaleIdempotencyKey(ctx, s.db, key, cutoff)
}

// Deps are the runtime collaborators built by the entrypoint.
type Deps struct {
	DB *gorm.DB
	// RateStore backs the rate limiter; nil means an in-process store.
	RateStore ratelimit.Store
	Scheduler services.Scheduler
	Notifier  notify.Notifier
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access log with PII scrubbing
//  4. Recovery: panics become JSON 500 (and go to Sentry)
//  5. Metrics: sees the 500 of a recovered panic
//  6. Body size limit and gzip
//  7. Rate limiter (per client IP)
//  8. CORS and security headers
//
// Inside the API group, RequireAuth runs first. A second limiter keyed by
// user follows it, then Idempotency, so the principal is part of the request
// fingerprint and throttled requests never claim a key.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	db := deps.DB

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", middleware.HeaderIdempotencyKey},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) Global body size limit and response compression
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Token-bucket rate limiter per client IP
	store := deps.RateStore
	if store == nil {
		store = ratelimit.NewMemoryStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	r.Use(middleware.RateLimit(middleware.RateLimitOptions{
		Store: store,
		Key:   middleware.KeyByIP(),
		Limit: cfg.RateLimit.Burst,
	}))

	// 8) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Dependency injection: services ← repo/db
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.AppName, cfg.Auth.AccessTokenExpire)
	authSvc := &services.AuthService{DB: db, Tokens: issuer}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{Logger: log.Logger}
	}
	h := handlers.New(handlers.Services{
		Auth:        authSvc,
		Students:    services.NewStudentService(db, studentRepoShim{}),
		Assignments: &services.AssignmentService{DB: db},
		Lessons:     &services.LessonService{DB: db},
		Topics:      &services.TopicService{DB: db},
		Mems:        &services.MemService{DB: db},
		Tournaments: &services.TournamentService{DB: db},
		Billing:     &services.BillingService{DB: db, Scheduler: deps.Scheduler, Notifier: notifier},
		Dashboard:   &services.DashboardService{DB: db},
		Profiles:    &services.ProfileService{DB: db},
		Analytics:   &services.AnalyticsService{DB: db},
		Ready:       pingDB(db),
	})

	// Health, outside the API base path
	r.GET("/health", h.Health)
	r.GET("/health/live", h.Health)
	r.GET("/health/ready", h.Ready)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		r.GET("/docs", func(c *gin.Context) { c.Redirect(http.StatusFound, "/swagger/index.html") })
	}

	idem := middleware.Idempotency(middleware.IdempotencyOptions{
		Store:   idempotencyStore{db: db},
		Wait:    cfg.Idempotency.Wait,
		LockTTL: cfg.Idempotency.LockTTL,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Auth (no principal; the fingerprint uses "anonymous")
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", idem, h.Register)
		authGroup.POST("/token", h.Token)
		authGroup.POST("/login", h.Login)
		authGroup.GET("/me", middleware.RequireAuth(authSvc), h.Me)
	}

	// Everything else acts on behalf of the authenticated tutor.
	p := api.Group("")
	perUser := middleware.RateLimit(middleware.RateLimitOptions{
		Store: store,
		Key:   middleware.KeyByUserOrIP(),
		Limit: cfg.RateLimit.Burst,
	})
	p.Use(middleware.RequireAuth(authSvc), perUser, idem)
	{
		// Students
		p.GET("/students", h.ListStudents)
		p.POST("/students", h.CreateStudent)
		p.GET("/students/:id", h.GetStudent)
		p.PATCH("/students/:id", h.UpdateStudent)
		p.DELETE("/students/:id", h.DeleteStudent)
		p.GET("/students/:id/assignments", h.ListStudentAssignments)
		p.GET("/students/:id/bio", h.GetBio)
		p.PUT("/students/:id/bio", h.UpdateBio)
		p.POST("/students/:id/avatar", h.SetAvatar)

		// Assignments
		p.GET("/assignments", h.ListAssignments)
		p.POST("/assignments", h.CreateAssignment)
		p.GET("/assignments/:id", h.GetAssignment)
		p.PATCH("/assignments/:id", h.UpdateAssignment)
		p.DELETE("/assignments/:id", h.DeleteAssignment)
		p.POST("/assignments/:id/start", h.StartAssignment)
		p.POST("/assignments/:id/submit", h.SubmitAssignment)
		p.GET("/assignments/:id/submissions", h.ListSubmissions)

		// Lessons
		p.GET("/lessons", h.ListLessons)
		p.POST("/lessons", h.CreateLesson)
		p.GET("/lessons/:id", h.GetLesson)
		p.PATCH("/lessons/:id", h.UpdateLesson)
		p.DELETE("/lessons/:id", h.DeleteLesson)

		// Topics and heatmap
		p.GET("/topics", h.ListTopics)
		p.POST("/topics", h.CreateTopic)
		p.POST("/topics/heatmap", h.BumpHeat)
		p.GET("/topics/heatmap/:student_id", h.Heatmap)

		// Mems
		p.GET("/mems", h.ListMems)
		p.POST("/mems", h.CreateMem)
		p.DELETE("/mems/:id", h.DeleteMem)

		// Tournaments
		p.GET("/tournaments", h.ListTournaments)
		p.POST("/tournaments", h.CreateTournament)
		p.POST("/tournaments/:id/join", h.JoinTournament)
		p.POST("/tournaments/:id/score", h.ScoreTournament)
		p.GET("/tournaments/:id/leaderboard", h.Leaderboard)

		// Billing
		p.GET("/invoices", h.ListInvoices)
		p.POST("/invoices", h.CreateInvoice)
		p.GET("/invoices/export", h.ExportInvoices)
		p.GET("/invoices/:id", h.GetInvoice)
		p.POST("/invoices/:id/cancel", h.CancelInvoice)
		p.GET("/payments", h.ListPayments)
		p.POST("/payments", h.CreatePayment)

		// Dashboard
		p.GET("/dashboard/overview", h.Overview)

		// Analytics
		p.GET("/analytics/tempo", h.Tempo)
		p.GET("/analytics/exam-forecast", h.ExamForecast)
		p.GET("/analytics/priority-radar", h.PriorityRadar)
	}
}

// corsMiddleware returns the CORS handlers. With no allowlist every origin
// is accepted without credentials; otherwise only listed origins are echoed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{
			"X-Request-ID", "Content-Length", "ETag", "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", middleware.HeaderIdempotentReplayed,
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// pingDB reports whether the database answers.
func pingDB(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
