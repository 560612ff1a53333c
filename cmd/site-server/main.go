// Command site-server serves the personal site's listening and photo API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/gokaybiz/site-api/internal/cache"
	"github.com/gokaybiz/site-api/internal/config"
	"github.com/gokaybiz/site-api/internal/lastfm"
	"github.com/gokaybiz/site-api/internal/logging"
	"github.com/gokaybiz/site-api/internal/metrics"
	"github.com/gokaybiz/site-api/internal/upstream"
	"github.com/gokaybiz/site-api/internal/vsco"
	"github.com/gokaybiz/site-api/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	store, closeStore, err := openStore(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	base := upstream.FetcherConfig{
		Timeout: cfg.Upstream.Timeout,
		Logger:  logger,
		Metrics: m,
	}

	if cfg.LastFM.APIKey == "" {
		logger.Warn().Msg("LASTFM_API_KEY is not set; /api/songs will serve empty data")
	}
	lastfmClient := lastfm.NewClient(&cfg.LastFM, lastfm.NewFetcher(&cfg.LastFM, base))

	if cfg.VSCO.Token == "" {
		logger.Warn().Msg("VSCO_TOKEN is not set; /api/photos will serve an empty list")
	}
	vscoClient := vsco.NewClient(&cfg.VSCO, vsco.NewFetcher(&cfg.VSCO, base),
		vsco.WithLogger(logger),
		vsco.WithSiteIDCache(cache.NewGate[int64](cache.GateConfig{
			Name:         "vsco_site",
			Store:        store,
			FetchTimeout: cfg.Cache.FetchTimeout,
			Logger:       logger,
			Metrics:      m,
		})),
	)

	songs := web.CacheListening(lastfmClient, cache.NewGate[*lastfm.ListeningData](cache.GateConfig{
		Name:         "songs",
		Store:        store,
		TTL:          cfg.Cache.TTL,
		FetchTimeout: cfg.Cache.FetchTimeout,
		Logger:       logger,
		Metrics:      m,
	}))
	photos := web.CachePhotos(vscoClient, cache.NewGate[[]vsco.Image](cache.GateConfig{
		Name:         "photos",
		Store:        store,
		TTL:          cfg.Cache.TTL,
		FetchTimeout: cfg.Cache.FetchTimeout,
		Logger:       logger,
		Metrics:      m,
	}))

	handlers := web.NewHandlers(web.HandlersConfig{
		Songs:       songs,
		Photos:      photos,
		DefaultUser: cfg.LastFM.User,
		AllowOrigin: web.AllowOrigin(cfg.Server.CORSOrigins),
		Logger:      logger,
	})

	server := web.NewServer(web.ServerConfig{
		Addr:              cfg.Server.Addr,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		Gatherer:          reg,
		Logger:            logger,
	}, handlers)

	return server.Run(ctx)
}

// openStore returns the redis store when configured, otherwise an in-memory
// one.
func openStore(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (cache.Store, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("using in-memory cache")
		return cache.NewMemoryStore(), func() {}, nil
	}

	store, err := cache.OpenRedisStore(ctx, cfg.RedisURL, "site-api:")
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logger.Info().Msg("using redis cache")

	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing redis")
		}
	}, nil
}
