package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/noni/smptweaks/internal/config"
	"github.com/noni/smptweaks/internal/data/store"
	"github.com/noni/smptweaks/internal/observability"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

var newRedisClient = store.NewRedisClient

type StoreBootstrapErrorCode string

const (
	StoreBootstrapErrorInvalidConfig StoreBootstrapErrorCode = "invalid_config"
	StoreBootstrapErrorOpenFailed    StoreBootstrapErrorCode = "open_failed"
)

type StoreBootstrapError struct {
	Code  StoreBootstrapErrorCode
	Kind  string
	Cause error
}

func (e *StoreBootstrapError) Error() string {
	if e == nil {
		return "progression store bootstrap failed"
	}
	return fmt.Sprintf("progression store bootstrap failed (code=%s kind=%q): %v", e.Code, e.Kind, e.Cause)
}

func (e *StoreBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolvedStore is the backend handed to the manager plus the pieces the app
// keeps for collectors and shutdown.
type resolvedStore struct {
	backend store.Backend
	raw     store.Backend
	redis   *goredis.Client
}

// pooled is implemented by backends that expose their connection pool.
type pooled interface {
	Pool() *store.Pool
}

// resolveStore opens the configured backend and layers the optional cache
// and instrumentation on top. A returned error leaves persistence degraded;
// an unreachable cache only logs.
func resolveStore(ctx context.Context, log *logger.Logger, cfg config.Config, metrics *observability.Metrics) (resolvedStore, error) {
	storeCfg, err := storeConfig(cfg)
	if err != nil {
		bootErr := &StoreBootstrapError{Code: StoreBootstrapErrorInvalidConfig, Kind: cfg.Store.Kind, Cause: err}
		log.Error("Progression store selection failed", "kind", cfg.Store.Kind, "error_code", bootErr.Code, "error", err)
		return resolvedStore{}, bootErr
	}

	log.Info("Selecting progression store", "kind", storeCfg.Kind, "location", describeStore(storeCfg), "pool_size", storeCfg.PoolSize)
	raw, err := store.Open(storeCfg, log)
	if err != nil {
		bootErr := &StoreBootstrapError{Code: StoreBootstrapErrorOpenFailed, Kind: string(storeCfg.Kind), Cause: err}
		log.Error("Progression store bootstrap failed", "kind", storeCfg.Kind, "error_code", bootErr.Code, "error", err)
		return resolvedStore{}, bootErr
	}

	out := resolvedStore{backend: raw, raw: raw}
	if cfg.Cache.RedisAddr != "" {
		rdb, err := newRedisClient(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			log.Warn("Progression cache unavailable, reading through to the store", "redis_addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			out.redis = rdb
			out.backend = store.NewCachedBackend(out.backend, rdb, cfg.Cache.TTL, metrics, log)
		}
	}
	out.backend = store.Instrument(out.backend, metrics)
	return out, nil
}

func (r resolvedStore) poolSampler() func() observability.PoolSnapshot {
	p, isPooled := r.raw.(pooled)
	if !isPooled || p.Pool() == nil {
		return nil
	}
	pool := p.Pool()
	return func() observability.PoolSnapshot {
		s := pool.Stats()
		return observability.PoolSnapshot{
			Capacity: s.Capacity,
			InUse:    s.InUse,
			Open:     s.Open,
			WaitTime: s.WaitTime,
		}
	}
}
