// Package cache is a stale-tolerant memoization layer. Backend failures are
// logged and reported to callers as misses, so an unavailable store only
// costs recomputation.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/geodata-aggregation/internal/observability"
)

// Options tunes write-back behaviour.
type Options struct {
	// DegradedTTL replaces the caller's ttl for values reporting Degraded().
	DegradedTTL time.Duration
	// MaxPendingWrites caps detached write-backs in flight. Writes beyond
	// the cap are skipped.
	MaxPendingWrites int64
	// WriteTimeout bounds one detached write-back.
	WriteTimeout time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		DegradedTTL:      30 * time.Second,
		MaxPendingWrites: 32,
		WriteTimeout:     5 * time.Second,
	}
}

// degradable is implemented by values that know they were produced from
// failing sources.
type degradable interface {
	Degraded() bool
}

// Cache is the facade every dataset goes through.
type Cache struct {
	backend Backend
	enabled bool
	opts    Options
	flight  singleflight.Group
	writes  *semaphore.Weighted
	pending sync.WaitGroup
	logger  *slog.Logger
	metrics *observability.Metrics
}

func New(backend Backend, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	def := DefaultOptions()
	if opts.DegradedTTL <= 0 {
		opts.DegradedTTL = def.DegradedTTL
	}
	if opts.MaxPendingWrites <= 0 {
		opts.MaxPendingWrites = def.MaxPendingWrites
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if backend == nil {
		backend = Disabled()
	}

	return &Cache{
		backend: backend,
		enabled: backend.Name() != KindDisabled,
		opts:    opts,
		writes:  semaphore.NewWeighted(opts.MaxPendingWrites),
		logger:  logger.With("cache", backend.Name()),
		metrics: metrics,
	}
}

// Backend returns the name of the backend in use.
func (c *Cache) Backend() string {
	return c.backend.Name()
}

// Get returns the cached bytes for key. Absence, expiry and backend errors
// all report false.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.enabled {
		c.metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	b, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		c.metrics.CacheRequests.WithLabelValues("hit").Inc()
		return b, true
	case errors.Is(err, ErrMiss):
		c.metrics.CacheRequests.WithLabelValues("miss").Inc()
	default:
		c.metrics.CacheRequests.WithLabelValues("error").Inc()
		c.logger.Warn("cache get failed; treating as miss", "key", key, "error", err)
	}
	return nil, false
}

// Set stores value under key. Failures are logged, never returned.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !c.enabled {
		return false
	}
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		c.metrics.CacheWrites.WithLabelValues("error").Inc()
		c.logger.Warn("cache set failed", "key", key, "ttl", ttl, "error", err)
		return false
	}
	c.metrics.CacheWrites.WithLabelValues("ok").Inc()
	return true
}

// GetOrCompute returns the cached value for key or runs producer. Concurrent
// misses on one key share a single producer run. The produced value is
// returned at once and written back on a detached goroutine.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, producer func(context.Context) T) T {
	if v, ok := lookup[T](ctx, c, key); ok {
		return v
	}

	res, _, _ := c.flight.Do(key, func() (any, error) {
		// The run is shared, so one caller's cancellation must not cut it short.
		v := producer(context.WithoutCancel(ctx))
		c.writeDetached(key, v, ttl)
		return v, nil
	})
	return res.(T)
}

// Refresh always runs producer and writes the result synchronously. Used by
// the warmer, never on request paths.
func Refresh[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, producer func(context.Context) T) T {
	v := producer(ctx)
	if b, ttl, ok := c.encode(key, v, ttl); ok {
		c.Set(ctx, key, b, ttl)
	}
	return v
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	b, ok := c.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		c.logger.Warn("cached value undecodable; recomputing", "key", key, "error", err)
		var zero T
		return zero, false
	}
	return v, true
}

// encode serializes v and picks the effective ttl.
func (c *Cache) encode(key string, v any, ttl time.Duration) ([]byte, time.Duration, bool) {
	if !c.enabled {
		return nil, 0, false
	}
	if d, ok := v.(degradable); ok && d.Degraded() && c.opts.DegradedTTL < ttl {
		ttl = c.opts.DegradedTTL
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache value not serializable", "key", key, "error", err)
		c.metrics.CacheWrites.WithLabelValues("error").Inc()
		return nil, 0, false
	}
	return b, ttl, true
}

func (c *Cache) writeDetached(key string, v any, ttl time.Duration) {
	b, ttl, ok := c.encode(key, v, ttl)
	if !ok {
		return
	}
	if !c.writes.TryAcquire(1) {
		c.metrics.CacheWrites.WithLabelValues("skipped").Inc()
		c.logger.Warn("too many pending cache writes; skipping write-back", "key", key)
		return
	}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer c.writes.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
		defer cancel()
		c.Set(ctx, key, b, ttl)
	}()
}

// Wait blocks until every detached write-back has finished.
func (c *Cache) Wait() {
	c.pending.Wait()
}

// Close drains pending writes and closes the backend.
func (c *Cache) Close() error {
	c.Wait()
	return c.backend.Close()
}
