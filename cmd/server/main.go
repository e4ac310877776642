// Command server runs the tutoring backend HTTP API.
//
// @title                      Tutor API
// @version                    1.0
// @description                Backend for private tutors: students, assignments, lessons, topics, mems, tournaments, billing and progress analytics.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-tutor-backend/docs"
	"github.com/tbourn/go-tutor-backend/internal/config"
	httpapi "github.com/tbourn/go-tutor-backend/internal/http"
	"github.com/tbourn/go-tutor-backend/internal/jobs"
	"github.com/tbourn/go-tutor-backend/internal/notify"
	"github.com/tbourn/go-tutor-backend/internal/observability"
	"github.com/tbourn/go-tutor-backend/internal/ratelimit"
	"github.com/tbourn/go-tutor-backend/internal/repo"
	"github.com/tbourn/go-tutor-backend/internal/services"
	"github.com/tbourn/go-tutor-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	cfg := config.MustLoad()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = log.With().Str("service", cfg.OTEL.ServiceName).Str("env", cfg.Env).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flushSentry, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		log.Warn().Err(err).Msg("sentry disabled")
	}
	defer flushSentry()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, version, cfg.Env)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	db, err := repo.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	var rateStore ratelimit.Store
	if cfg.RateLimit.Backend == "redis" {
		rdb, err := ratelimit.NewRedisClient(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer rdb.Close()
		rateStore = ratelimit.NewRedisStore(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	} else {
		rateStore = ratelimit.NewMemoryStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	var notifier notify.Notifier = notify.LogNotifier{Logger: log.Logger}
	if cfg.Mail.SendGridAPIKey != "" {
		notifier = notify.NewSendGridNotifier(cfg.Mail.SendGridAPIKey, cfg.AppName, cfg.Mail.From)
	}

	scheduler := jobs.NewScheduler(ctx)
	runner := jobs.New(ctx)
	billing := &services.BillingService{DB: db}
	assignments := &services.AssignmentService{DB: db}
	runner.Every(cfg.JobsInterval, "invoices_overdue", func(ctx context.Context) error {
		_, err := billing.MarkOverdue(ctx, time.Now())
		return err
	})
	runner.Every(cfg.JobsInterval, "assignments_late", func(ctx context.Context) error {
		_, err := assignments.MarkLate(ctx, time.Now())
		return err
	})

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:        db,
		RateStore: rateStore,
		Scheduler: scheduler,
		Notifier:  notifier,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("pending", scheduler.Pending()).Msg("scheduled jobs still running")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}
