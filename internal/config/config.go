// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database location, authentication, rate
// limiting, idempotency, background jobs, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-tutor-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-tutor-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig holds JWT issuing parameters.
type AuthConfig struct {
	JWTSecret         string        // JWT_SECRET
	JWTAlgorithm      string        // JWT_ALGORITHM (HS256 only)
	AccessTokenExpire time.Duration // ACCESS_TOKEN_EXPIRE
}

// RateLimitConfig selects the token-bucket backend and its parameters.
type RateLimitConfig struct {
	RPS      float64 // tokens per second (>= 0)
	Burst    int     // bucket size (>= 1)
	Backend  string  // memory|redis
	RedisURL string  // redis://host:6379/0
}

// IdempotencyConfig tunes how concurrent requests sharing a key are resolved.
type IdempotencyConfig struct {
	Wait    time.Duration // how long a loser waits for the winner's response
	LockTTL time.Duration // age after which a pending claim is considered abandoned
}

// MailConfig configures outbound notifications.
type MailConfig struct {
	SendGridAPIKey string
	From           string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int    // bytes
	GinMode           string // debug|release|test

	// App
	AppName string
	Env     string // dev|test|staging|prod

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DatabaseURL string // postgres://... or a SQLite file path

	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Idempotency IdempotencyConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Jobs / notifications
	JobsInterval time.Duration
	Mail         MailConfig

	// Observability
	SentryDSN string
	OTEL      OTELConfig
}

// devSecret is only accepted when Env is dev or test.
const devSecret = "dev-insecure-secret-change-me"

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		AppName: getenv("APP_NAME", "Tutor API"),
		Env:     strings.ToLower(getenv("ENV", "dev")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		DatabaseURL: sysutil.FirstEnv("app.db", "DATABASE_URL", "DB_PATH"),

		Auth: AuthConfig{
			JWTSecret:         getenv("JWT_SECRET", ""),
			JWTAlgorithm:      strings.ToUpper(getenv("JWT_ALGORITHM", "HS256")),
			AccessTokenExpire: getdur("ACCESS_TOKEN_EXPIRE", 60*time.Minute),
		},

		RateLimit: RateLimitConfig{
			RPS:      getfloat("RATE_RPS", 5.0),
			Burst:    getint("RATE_BURST", 10),
			Backend:  strings.ToLower(getenv("RATE_LIMIT_BACKEND", "memory")),
			RedisURL: getenv("REDIS_URL", ""),
		},

		Idempotency: IdempotencyConfig{
			Wait:    getdur("IDEMPOTENCY_WAIT", 5*time.Second),
			LockTTL: getdur("IDEMPOTENCY_LOCK_TTL", 30*time.Second),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		JobsInterval: getdur("JOBS_INTERVAL", time.Minute),
		Mail: MailConfig{
			SendGridAPIKey: getenv("SENDGRID_API_KEY", ""),
			From:           getenv("MAIL_FROM", "no-reply@tutor.local"),
		},

		SentryDSN: getenv("SENTRY_DSN", ""),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-tutor-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Auth.JWTSecret == "" && cfg.IsDev() {
		cfg.Auth.JWTSecret = devSecret
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.Auth.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required outside dev/test")
	}
	if cfg.Auth.JWTAlgorithm != "HS256" {
		return cfg, errors.New("JWT_ALGORITHM must be HS256")
	}
	if cfg.Auth.AccessTokenExpire <= 0 {
		return cfg, errors.New("ACCESS_TOKEN_EXPIRE must be > 0")
	}
	if cfg.RateLimit.RPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateLimit.Burst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	switch cfg.RateLimit.Backend {
	case "memory":
	case "redis":
		if cfg.RateLimit.RedisURL == "" {
			return cfg, errors.New("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return cfg, errors.New("RATE_LIMIT_BACKEND must be memory or redis")
	}
	if cfg.Idempotency.Wait <= 0 || cfg.Idempotency.LockTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_WAIT and IDEMPOTENCY_LOCK_TTL must be > 0")
	}
	// A claim younger than the slowest possible handler must never look abandoned.
	if cfg.Idempotency.LockTTL <= cfg.WriteTimeout {
		return cfg, errors.New("IDEMPOTENCY_LOCK_TTL must exceed WRITE_TIMEOUT")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.JobsInterval <= 0 {
		return cfg, errors.New("JOBS_INTERVAL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a local or test environment.
func (c Config) IsDev() bool {
	switch c.Env {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getbool keeps def for values that are neither a known true nor a known false.
func getbool(k string, def bool) bool {
	return sysutil.EnvBool(k, def)
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
