package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	"github.com/noni/smptweaks/internal/observability"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

const cacheKeyPrefix = "smptweaks:progression:"

// NewRedisClient dials addr and verifies it answers PING.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

type cachedRecord struct {
	PlayerID          string     `json:"player_id"`
	DisplayName       string     `json:"display_name"`
	Level             int        `json:"level"`
	TotalXP           int        `json:"total_xp"`
	XPDisplayMode     int        `json:"xp_display_mode"`
	LastRewardClaimed *time.Time `json:"last_reward_claimed,omitempty"`
	LastSpecialDrop   *time.Time `json:"last_special_drop,omitempty"`
}

// cachedBackend serves Fetch from Redis when possible. Every write through
// this decorator drops the cached entry; cooldown reads always go to the
// store. Redis failures are logged and fall through to the inner backend.
type cachedBackend struct {
	Backend
	rdb     *goredis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	log     *logger.Logger
}

func NewCachedBackend(inner Backend, rdb *goredis.Client, ttl time.Duration, metrics *observability.Metrics, baseLog *logger.Logger) Backend {
	if inner == nil || rdb == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &cachedBackend{
		Backend: inner,
		rdb:     rdb,
		ttl:     ttl,
		metrics: metrics,
		log:     baseLog.With("component", "ProgressionCache"),
	}
}

func cacheKey(playerID uuid.UUID) string { return cacheKeyPrefix + playerID.String() }

func (c *cachedBackend) Fetch(ctx context.Context, playerID uuid.UUID) (*domain.Record, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(playerID)).Bytes()
	switch {
	case err == nil:
		var cr cachedRecord
		jsonErr := json.Unmarshal(raw, &cr)
		if jsonErr == nil {
			c.metrics.IncCacheLookup("hit")
			return cr.record(playerID), nil
		}
		c.log.Warn("Dropping undecodable cache entry", "player_id", playerID, "error", jsonErr)
		c.invalidate(ctx, playerID)
	case errors.Is(err, goredis.Nil):
	default:
		c.log.Warn("Cache lookup failed", "player_id", playerID, "error", err)
	}
	c.metrics.IncCacheLookup("miss")

	rec, err := c.Backend.Fetch(ctx, playerID)
	if err != nil || rec == nil {
		return rec, err
	}
	if payload, jsonErr := json.Marshal(fromRecord(rec)); jsonErr == nil {
		if setErr := c.rdb.Set(ctx, cacheKey(playerID), payload, c.ttl).Err(); setErr != nil {
			c.log.Warn("Cache fill failed", "player_id", playerID, "error", setErr)
		}
	}
	return rec, nil
}

func (c *cachedBackend) Upsert(ctx context.Context, rec *domain.Record) error {
	if err := c.Backend.Upsert(ctx, rec); err != nil {
		return err
	}
	c.invalidate(ctx, rec.PlayerID)
	return nil
}

func (c *cachedBackend) WriteTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField, at time.Time) error {
	if err := c.Backend.WriteTimestamp(ctx, playerID, field, at); err != nil {
		return err
	}
	c.invalidate(ctx, playerID)
	return nil
}

func (c *cachedBackend) invalidate(ctx context.Context, playerID uuid.UUID) {
	if err := c.rdb.Del(ctx, cacheKey(playerID)).Err(); err != nil {
		c.log.Warn("Cache invalidation failed", "player_id", playerID, "error", err)
	}
}

func fromRecord(rec *domain.Record) cachedRecord {
	return cachedRecord{
		PlayerID:          rec.PlayerID.String(),
		DisplayName:       rec.DisplayName,
		Level:             rec.Level,
		TotalXP:           rec.TotalXP,
		XPDisplayMode:     int(rec.XPDisplayMode),
		LastRewardClaimed: rec.LastRewardClaimedAt,
		LastSpecialDrop:   rec.LastSpecialDropAt,
	}
}

func (cr cachedRecord) record(playerID uuid.UUID) *domain.Record {
	return &domain.Record{
		PlayerID:            playerID,
		DisplayName:         cr.DisplayName,
		Level:               cr.Level,
		TotalXP:             cr.TotalXP,
		XPDisplayMode:       domain.DisplayMode(cr.XPDisplayMode),
		LastRewardClaimedAt: cr.LastRewardClaimed,
		LastSpecialDropAt:   cr.LastSpecialDrop,
	}
}
