// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and request throttling.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-location-backend/docs"
	"github.com/tbourn/go-location-backend/internal/config"
	"github.com/tbourn/go-location-backend/internal/domain"
	"github.com/tbourn/go-location-backend/internal/http/handlers"
	"github.com/tbourn/go-location-backend/internal/http/middleware"
	"github.com/tbourn/go-location-backend/internal/pagination"
	"github.com/tbourn/go-location-backend/internal/ratelimit"
	"github.com/tbourn/go-location-backend/internal/repo"
	"github.com/tbourn/go-location-backend/internal/services"
)

// locationRepoShim adapts the repository free functions to the
// services.LocationRepo interface expected by the LocationService.
type locationRepoShim struct{}

// CreateLocation proxies repo.CreateLocation.
func (locationRepoShim) CreateLocation(ctx context.Context, db *gorm.DB, loc *domain.Location) error {
	return repo.CreateLocation(ctx, db, loc)
}

// GetLocation proxies repo.GetLocation.
func (locationRepoShim) GetLocation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Location, error) {
	return repo.GetLocation(ctx, db, id, userID)
}

// UpdateLocation proxies repo.UpdateLocation.
func (locationRepoShim) UpdateLocation(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any) error {
	return repo.UpdateLocation(ctx, db, id, userID, fields)
}

// DeleteLocation proxies repo.DeleteLocation.
func (locationRepoShim) DeleteLocation(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteLocation(ctx, db, id, userID)
}

// ListLocationsPage proxies repo.ListLocationsPage (keyset pagination).
func (locationRepoShim) ListLocationsPage(ctx context.Context, db *gorm.DB, userID string, n int, cursor *pagination.Cursor, f repo.LocationFilter) ([]domain.Location, error) {
	return repo.ListLocationsPage(ctx, db, userID, n, cursor, f)
}

// Deps are the long-lived components the routes run on. Their lifecycles
// (Start/Stop, Shutdown) belong to the caller.
type Deps struct {
	DB *gorm.DB
	// Limiter holds the fixed-window counters for every throttle policy.
	// A nil Limiter gets a fresh one without a background sweeper.
	Limiter *ratelimit.Limiter
	// Enricher back-fills addresses; nil disables enrichment.
	Enricher services.Enricher
	// Resolver is the cache-first geocoding layer.
	Resolver services.AddressResolver
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health and metrics endpoints, and then mounts the versioned public
// API under cfg.APIBasePath with idempotency and throttling.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID + Identity: correlation id and caller
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Compression and metrics
//  7. CORS and security headers
//  8. API only: idempotency validator (replays bypass throttling), then throttles
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID(), middleware.Identity())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	r.Use(limitBody(maxBody))

	// 6) Compression (promhttp negotiates its own) and Prometheus metrics
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After",
		middleware.HeaderRateLimit, middleware.HeaderRateRemaining, middleware.HeaderRateReset, middleware.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		HSTSMaxAge: cfg.HSTSMaxAge,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/resolver
	db := deps.DB
	locSvc := services.NewLocationService(db, locationRepoShim{}, deps.Enricher)
	geoSvc := services.NewGeocodeService(deps.Resolver, cfg.Geocode.MinQueryLen)
	h := handlers.New(locSvc, geoSvc)
	if cfg.IdempotencyTTL > 0 {
		h.IdempotencyTTL = cfg.IdempotencyTTL
	}

	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.New()
	}
	keyFn := middleware.KeyByUserOrIP()

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	api.Use(
		// 8) Idempotency lookup first so replays skip the throttle
		middleware.IdempotencyValidator(handlers.IdempotencyScope, middleware.IdempotencyOptions{MaxLen: 200},
			func(ctx context.Context, userID, scope, key string, now time.Time) (string, bool, error) {
				rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
				if errors.Is(err, repo.ErrNotFound) {
					return "", false, nil
				}
				if err != nil {
					return "", false, err
				}
				return rec.ResourceID, true, nil
			}),
		middleware.Throttle(limiter, "api", policy(cfg.RateLimit), keyFn),
	)
	{
		// Locations
		api.POST("/locations", h.CreateLocation)
		api.GET("/locations", h.ListLocations)
		api.GET("/locations/:id", h.GetLocation)
		api.PATCH("/locations/:id", h.UpdateLocation)
		api.DELETE("/locations/:id", h.DeleteLocation)

		// Geocoding (second, stricter budget in front of the provider quota)
		geo := api.Group("/geocode", middleware.Throttle(limiter, "geocode", policy(cfg.GeocodeRateLimit), keyFn))
		geo.GET("", h.Geocode)
		geo.GET("/reverse", h.ReverseGeocode)
	}
}

func policy(p config.ThrottlePolicy) ratelimit.Policy {
	return ratelimit.Policy{Max: p.Max, Window: p.Window}
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
