// Command api serves the location history API.
//
// @title          Location Backend API
// @version        1.0
// @description    Saved-location history with keyset pagination, cache-first geocoding and background address enrichment.
// @BasePath       /api/v1
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
	"gorm.io/gorm"

	"github.com/tbourn/go-location-backend/internal/config"
	"github.com/tbourn/go-location-backend/internal/enrich"
	"github.com/tbourn/go-location-backend/internal/geocode"
	httpapi "github.com/tbourn/go-location-backend/internal/http"
	"github.com/tbourn/go-location-backend/internal/observability"
	"github.com/tbourn/go-location-backend/internal/ratelimit"
	"github.com/tbourn/go-location-backend/internal/repo"
	"github.com/tbourn/go-location-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	logger := sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, ver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, ver, logger); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config, ver string, logger zerolog.Logger) error {
	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	resolver, closeCache, err := buildResolver(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer func() {
		resolver.Wait()
		closeCache()
	}()

	limiter := ratelimit.New(ratelimit.WithSweepInterval(cfg.RateSweepInterval))
	limiter.Start(ctx)
	defer limiter.Stop()

	pipeline := enrich.New(resolver, repo.AddressUpdater{DB: db},
		enrich.WithWorkers(cfg.Enrich.Workers),
		enrich.WithQueueSize(cfg.Enrich.QueueSize),
		enrich.WithJobTimeout(cfg.Enrich.JobTimeout),
		enrich.WithLogger(logger.With().Str("component", "enrich").Logger()),
	)
	// Workers ignore ctx's cancellation; Shutdown below drains them.
	pipeline.Start(ctx)

	if cfg.Geocode.CacheBackend == "sql" && cfg.Geocode.CacheTTL > 0 {
		go purgeGeocodes(ctx, db, cfg.Geocode.CacheTTL)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Limiter:  limiter,
		Enricher: pipeline,
		Resolver: resolver,
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

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DBDriver).Str("geocode_cache", cfg.Geocode.CacheBackend).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Stop taking requests before draining enrichment so no new jobs arrive.
	return observability.Shutdown(shutdownCtx,
		srv.Shutdown,
		pipeline.Shutdown,
		shutdownTracing,
	)
}

// buildResolver assembles provider, durable cache (SQL or Redis) and the
// optional in-process cache.
func buildResolver(ctx context.Context, cfg config.Config, db *gorm.DB, logger zerolog.Logger) (*geocode.Resolver, func(), error) {
	gc := cfg.Geocode
	provider := geocode.NewHTTPProvider(gc.ProviderURL,
		geocode.WithUserAgent(gc.UserAgent),
		geocode.WithAPIKey(gc.APIKey),
		geocode.WithRPS(gc.ProviderRPS),
	)

	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var store geocode.Store
	switch gc.CacheBackend {
	case "redis":
		client, err := geocode.NewRedisClient(ctx, gc.RedisAddr)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, func() { _ = client.Close() })
		store = geocode.NewRedisStore(client, gc.CacheTTL)
	default:
		store = repo.NewGeocodeStore(db, gc.CacheTTL)
	}

	opts := []geocode.Option{
		geocode.WithTimeout(gc.Timeout),
		geocode.WithMinQueryLen(gc.MinQueryLen),
		geocode.WithLogger(logger.With().Str("component", "geocode").Logger()),
	}
	if gc.LocalItems > 0 {
		local, err := geocode.NewLocalCache(gc.LocalItems, gc.CacheTTL)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, local.Close)
		opts = append(opts, geocode.WithLocalCache(local))
	}

	return geocode.NewResolver(provider, store, opts...), closeAll, nil
}

// purgeGeocodes drops expired SQL cache rows once per TTL.
func purgeGeocodes(ctx context.Context, db *gorm.DB, ttl time.Duration) {
	t := time.NewTicker(ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredGeocodes(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("geocode cache purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("geocode cache purged")
			}
		}
	}
}
