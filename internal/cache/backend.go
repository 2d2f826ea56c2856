package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrMiss is returned by a Backend when a key is absent or expired. The two
// cases are indistinguishable.
var ErrMiss = errors.New("cache miss")

var errInvalidTTL = errors.New("ttl must be positive")

// Backend is a key/value store with per-entry expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
	Name() string
}

// Backend kinds accepted by NewBackend.
const (
	KindAuto     = ""
	KindRedis    = "redis"
	KindBadger   = "badger"
	KindMemory   = "memory"
	KindDisabled = "disabled"
)

// BackendConfig selects and configures the cache backend.
type BackendConfig struct {
	Kind       string
	RedisURL   string
	BadgerPath string
}

// NewBackend builds the configured backend. Missing credentials or an
// unreachable store never fail start-up: the disabled backend is returned
// and every caller recomputes.
func NewBackend(ctx context.Context, cfg BackendConfig, logger *slog.Logger) Backend {
	kind := cfg.Kind
	if kind == KindAuto {
		switch {
		case cfg.RedisURL != "":
			kind = KindRedis
		case cfg.BadgerPath != "":
			kind = KindBadger
		default:
			kind = KindDisabled
		}
	}

	switch kind {
	case KindRedis:
		if cfg.RedisURL == "" {
			logger.Warn("redis cache selected without REDIS_URL; caching disabled")
			return Disabled()
		}
		b, err := NewRedisBackend(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis cache unavailable; caching disabled", "error", err)
			return Disabled()
		}
		logger.Info("redis cache initialized")
		return b
	case KindBadger:
		if cfg.BadgerPath == "" {
			logger.Warn("badger cache selected without BADGER_PATH; caching disabled")
			return Disabled()
		}
		b, err := NewBadgerBackend(BadgerConfig{Path: cfg.BadgerPath, Logger: logger})
		if err != nil {
			logger.Warn("badger cache unavailable; caching disabled", "error", err)
			return Disabled()
		}
		logger.Info("badger cache initialized", "path", cfg.BadgerPath)
		return b
	case KindMemory:
		logger.Info("in-memory cache initialized")
		return NewMemoryBackend(nil)
	default:
		logger.Info("cache backend not configured; every request recomputes")
		return Disabled()
	}
}

type disabledBackend struct{}

// Disabled returns a backend that stores nothing and always misses.
func Disabled() Backend { return disabledBackend{} }

func (disabledBackend) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

func (disabledBackend) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (disabledBackend) Close() error { return nil }

func (disabledBackend) Name() string { return KindDisabled }
