package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gokaybiz/site-api/internal/metrics"
)

const (
	// DefaultTTL is how long a successful result is reused.
	DefaultTTL = 5 * time.Minute

	// DefaultFetchTimeout bounds a shared computation.
	DefaultFetchTimeout = 30 * time.Second
)

// GateConfig configures a Gate.
type GateConfig struct {
	// Name prefixes keys and labels metrics, e.g. "songs".
	Name string

	// Store defaults to a new MemoryStore.
	Store Store

	// TTL of cached results. Zero keeps results for the life of the store.
	TTL time.Duration

	// FetchTimeout bounds fn once it is detached from the caller.
	FetchTimeout time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Gate memoizes the results of fn per key. Successful results are stored for
// the TTL; failures are never stored. Concurrent calls for the same key share
// one in-flight computation.
type Gate[T any] struct {
	name         string
	store        Store
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// NewGate creates a Gate from the provided configuration.
func NewGate[T any](cfg GateConfig) *Gate[T] {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	return &Gate[T]{
		name:         cfg.Name,
		store:        store,
		ttl:          cfg.TTL,
		fetchTimeout: fetchTimeout,
		logger:       cfg.Logger.With().Str("cache", cfg.Name).Logger(),
		metrics:      cfg.Metrics,
	}
}

// Do returns the cached value for key, or runs fn to compute it.
//
// fn runs detached from ctx's cancellation so that one caller giving up does
// not fail the others waiting on the same key; it is bounded by the gate's
// fetch timeout instead. Do itself returns as soon as ctx is done.
func (g *Gate[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	fullKey := g.name + ":" + key

	if v, ok := g.lookup(ctx, fullKey); ok {
		g.metrics.IncCache(g.name, metrics.CacheHit)
		return v, nil
	}
	g.metrics.IncCache(g.name, metrics.CacheMiss)

	ch := g.group.DoChan(fullKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.fetchTimeout)
		defer cancel()

		v, err := fn(fctx)
		if err != nil {
			return nil, err
		}

		g.save(fctx, fullKey, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			g.metrics.IncCache(g.name, metrics.CacheShared)
		}
		return res.Val.(T), nil
	}
}

// lookup reads and decodes key. Store and decode errors count as misses.
func (g *Gate[T]) lookup(ctx context.Context, key string) (T, bool) {
	var v T

	data, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.metrics.IncCache(g.name, metrics.CacheError)
		g.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return v, false
	}
	if !ok {
		return v, false
	}

	if err := json.Unmarshal(data, &v); err != nil {
		g.metrics.IncCache(g.name, metrics.CacheError)
		g.logger.Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		return v, false
	}
	return v, true
}

func (g *Gate[T]) save(ctx context.Context, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("cache entry unencodable")
		return
	}

	if err := g.store.Set(ctx, key, data, g.ttl); err != nil {
		g.metrics.IncCache(g.name, metrics.CacheError)
		g.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
