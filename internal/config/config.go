// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database access, request throttling,
// geocoding provider access, background enrichment, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-location-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ThrottlePolicy is a fixed-window request budget.
type ThrottlePolicy struct {
	Max    int           // requests allowed per window (>= 1)
	Window time.Duration // window length, anchored at the first request
}

// GeocodeConfig configures the external address-resolution provider and its
// cache layers.
type GeocodeConfig struct {
	ProviderURL  string        // GEOCODE_PROVIDER_URL (Nominatim-compatible base URL)
	APIKey       string        // GEOCODE_API_KEY (optional)
	UserAgent    string        // GEOCODE_USER_AGENT
	Timeout      time.Duration // GEOCODE_TIMEOUT, hard bound per provider call
	ProviderRPS  float64       // GEOCODE_PROVIDER_RPS, outbound politeness limit (0 disables)
	CacheTTL     time.Duration // GEOCODE_CACHE_TTL, 0 = entries never expire
	CacheBackend string        // GEOCODE_CACHE_BACKEND: sql|redis
	RedisAddr    string        // REDIS_ADDR (required when backend=redis)
	LocalItems   int64         // LOCAL_CACHE_ITEMS, L1 capacity in entries (0 disables L1)
	MinQueryLen  int           // GEOCODE_MIN_QUERY_LEN
}

// EnrichConfig sizes the background address enrichment pool.
type EnrichConfig struct {
	Workers    int           // ENRICH_WORKERS
	QueueSize  int           // ENRICH_QUEUE_SIZE
	JobTimeout time.Duration // ENRICH_JOB_TIMEOUT
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver string // sqlite|postgres
	DBPath   string // SQLite path (sqlite driver)
	DBDSN    string // Postgres DSN (postgres driver)

	// Throttling
	RateLimit         ThrottlePolicy // all API routes
	GeocodeRateLimit  ThrottlePolicy // geocoding routes (quota-limited provider)
	RateSweepInterval time.Duration  // expired counter sweep period

	// Geocoding + enrichment
	Geocode GeocodeConfig
	Enrich  EnrichConfig

	// Web protection
	CORS         CORSConfig
	HSTSMaxAge   time.Duration // HSTS_MAX_AGE, 0 disables Strict-Transport-Security
	MaxBodyBytes int64         // MAX_BODY_BYTES

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

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
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:   getenv("DB_PATH", "app.db"),
		DBDSN:    getenv("DB_DSN", ""),

		// Throttling
		RateLimit: ThrottlePolicy{
			Max:    getint("RATE_MAX", 120),
			Window: getdur("RATE_WINDOW", time.Minute),
		},
		GeocodeRateLimit: ThrottlePolicy{
			Max:    getint("GEOCODE_RATE_MAX", 10),
			Window: getdur("GEOCODE_RATE_WINDOW", time.Minute),
		},
		RateSweepInterval: getdur("RATE_SWEEP_INTERVAL", time.Minute),

		Geocode: GeocodeConfig{
			ProviderURL:  strings.TrimRight(getenv("GEOCODE_PROVIDER_URL", "https://nominatim.openstreetmap.org"), "/"),
			APIKey:       getenv("GEOCODE_API_KEY", ""),
			UserAgent:    getenv("GEOCODE_USER_AGENT", "go-location-backend/1.0"),
			Timeout:      getdur("GEOCODE_TIMEOUT", 10*time.Second),
			ProviderRPS:  getfloat("GEOCODE_PROVIDER_RPS", 1.0),
			CacheTTL:     getdur("GEOCODE_CACHE_TTL", 0),
			CacheBackend: strings.ToLower(getenv("GEOCODE_CACHE_BACKEND", "sql")),
			RedisAddr:    getenv("REDIS_ADDR", ""),
			LocalItems:   int64(getint("LOCAL_CACHE_ITEMS", 10000)),
			MinQueryLen:  getint("GEOCODE_MIN_QUERY_LEN", 3),
		},
		Enrich: EnrichConfig{
			Workers:    getint("ENRICH_WORKERS", 4),
			QueueSize:  getint("ENRICH_QUEUE_SIZE", 256),
			JobTimeout: getdur("ENRICH_JOB_TIMEOUT", 15*time.Second),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		HSTSMaxAge:   getdur("HSTS_MAX_AGE", 0),
		MaxBodyBytes: int64(getint("MAX_BODY_BYTES", 64<<10)),

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-location-backend"),
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
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = "postgres"
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
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return cfg, errors.New("DB_DSN must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.RateLimit.Max < 1 || cfg.GeocodeRateLimit.Max < 1 {
		return cfg, errors.New("RATE_MAX and GEOCODE_RATE_MAX must be >= 1")
	}
	if cfg.RateLimit.Window <= 0 || cfg.GeocodeRateLimit.Window <= 0 {
		return cfg, errors.New("RATE_WINDOW and GEOCODE_RATE_WINDOW must be > 0")
	}
	if cfg.RateSweepInterval <= 0 {
		return cfg, errors.New("RATE_SWEEP_INTERVAL must be > 0")
	}
	if cfg.Geocode.ProviderURL == "" {
		return cfg, errors.New("GEOCODE_PROVIDER_URL must not be empty")
	}
	if cfg.Geocode.Timeout <= 0 {
		return cfg, errors.New("GEOCODE_TIMEOUT must be > 0")
	}
	if cfg.Geocode.ProviderRPS < 0 {
		return cfg, errors.New("GEOCODE_PROVIDER_RPS must be >= 0")
	}
	if cfg.Geocode.CacheTTL < 0 {
		return cfg, errors.New("GEOCODE_CACHE_TTL must be >= 0")
	}
	switch cfg.Geocode.CacheBackend {
	case "sql":
	case "redis":
		if strings.TrimSpace(cfg.Geocode.RedisAddr) == "" {
			return cfg, errors.New("REDIS_ADDR must be set when GEOCODE_CACHE_BACKEND=redis")
		}
	default:
		return cfg, errors.New("GEOCODE_CACHE_BACKEND must be one of: sql, redis")
	}
	if cfg.Geocode.LocalItems < 0 {
		return cfg, errors.New("LOCAL_CACHE_ITEMS must be >= 0")
	}
	if cfg.Geocode.MinQueryLen < 1 {
		return cfg, errors.New("GEOCODE_MIN_QUERY_LEN must be >= 1")
	}
	if cfg.Enrich.Workers < 1 {
		return cfg, errors.New("ENRICH_WORKERS must be >= 1")
	}
	if cfg.Enrich.QueueSize < 1 {
		return cfg, errors.New("ENRICH_QUEUE_SIZE must be >= 1")
	}
	if cfg.Enrich.JobTimeout <= 0 {
		return cfg, errors.New("ENRICH_JOB_TIMEOUT must be > 0")
	}
	if cfg.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

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

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
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
