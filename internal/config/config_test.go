package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"
	t.Setenv("ENV", "prod")

	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/") // -> "/api/v1"

	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_PATH", "db.sqlite") // fallback when DATABASE_URL is unset

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_ALGORITHM", "hs256")
	t.Setenv("ACCESS_TOKEN_EXPIRE", "15m")

	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10
	t.Setenv("RATE_LIMIT_BACKEND", "REDIS")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	t.Setenv("IDEMPOTENCY_WAIT", "2s")
	t.Setenv("IDEMPOTENCY_LOCK_TTL", "1m")

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	t.Setenv("JOBS_INTERVAL", "30s")
	t.Setenv("SENDGRID_API_KEY", "SG.x")
	t.Setenv("SENTRY_DSN", "https://k@sentry.example/1")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.ShutdownTimeout != 5*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DatabaseURL != "db.sqlite" {
		t.Fatalf("database url unexpected: %q", cfg.DatabaseURL)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Auth.JWTAlgorithm != "HS256" || cfg.Auth.AccessTokenExpire != 15*time.Minute {
		t.Fatalf("auth unexpected: %+v", cfg.Auth)
	}
	if cfg.RateLimit.RPS != 5.0 || cfg.RateLimit.Burst != 10 || cfg.RateLimit.Backend != "redis" {
		t.Fatalf("rate limiting unexpected: %+v", cfg.RateLimit)
	}
	if cfg.Idempotency.Wait != 2*time.Second || cfg.Idempotency.LockTTL != time.Minute {
		t.Fatalf("idempotency unexpected: %+v", cfg.Idempotency)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.JobsInterval != 30*time.Second || cfg.Mail.SendGridAPIKey != "SG.x" || cfg.SentryDSN == "" {
		t.Fatalf("jobs/mail/sentry unexpected: %+v", cfg)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_DatabaseURLWinsOverDBPath(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("DB_PATH", "ignored.db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://u:p@localhost/db" {
		t.Fatalf("expected DATABASE_URL, got %q", cfg.DatabaseURL)
	}
}

func TestLoad_DevSecretFallback(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("JWT_SECRET", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.JWTSecret != devSecret {
		t.Fatalf("expected dev secret fallback, got %q", cfg.Auth.JWTSecret)
	}
	if !cfg.IsDev() {
		t.Fatalf("expected IsDev for ENV=test")
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"missing secret in prod", map[string]string{"ENV": "prod", "JWT_SECRET": ""}, "JWT_SECRET"},
		{"unsupported algorithm", map[string]string{"JWT_ALGORITHM": "RS256"}, "JWT_ALGORITHM"},
		{"negative RATE_RPS", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"unknown backend", map[string]string{"RATE_LIMIT_BACKEND": "memcached"}, "RATE_LIMIT_BACKEND"},
		{"redis without url", map[string]string{"RATE_LIMIT_BACKEND": "redis", "REDIS_URL": ""}, "REDIS_URL"},
		{"idempotency wait", map[string]string{"IDEMPOTENCY_WAIT": "0s"}, "IDEMPOTENCY_WAIT"},
		{"lock ttl below write timeout", map[string]string{"IDEMPOTENCY_LOCK_TTL": "10s", "WRITE_TIMEOUT": "20s"}, "must exceed WRITE_TIMEOUT"},
		{"lock ttl equal to write timeout", map[string]string{"IDEMPOTENCY_LOCK_TTL": "20s", "WRITE_TIMEOUT": "20s"}, "must exceed WRITE_TIMEOUT"},
		{"negative HSTS", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"jobs interval", map[string]string{"JOBS_INTERVAL": "0s"}, "JOBS_INTERVAL"},
		{"sampler out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", "dev")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoad_BlankDatabaseURLFallsBack(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("DATABASE_URL", "  ")
	t.Setenv("DB_PATH", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DatabaseURL != "app.db" {
		t.Fatalf("DatabaseURL = %q, want app.db", cfg.DatabaseURL)
	}
}

// --- helpers ---

func TestHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "off")
	if getbool("X_BOOL", true) {
		t.Fatalf("getbool off")
	}
	t.Setenv("X_BOOL", "maybe")
	if !getbool("X_BOOL", true) {
		t.Fatalf("getbool should fall back to default on junk")
	}
	t.Setenv("X_DUR", "nope")
	if getdur("X_DUR", time.Second) != time.Second {
		t.Fatalf("getdur fallback")
	}
	if splitCSV("") != nil {
		t.Fatalf("splitCSV empty")
	}
	for in, want := range map[string]string{"": "/", "/": "/", "v1": "/v1", "/api/": "/api", " /x ": "/x"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func containsErr(err error, sub string) bool {
	return err != nil && strings.Contains(err.Error(), sub)
}
