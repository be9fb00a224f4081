package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/redis/go-redis/v9"

	"github.com/kart-io/compliance-x/internal/compliance/store"
)

// CacheConfig controls result caching. Instances are immutable; reconfigure
// by swapping in a new value via ResultCache.Reload.
type CacheConfig struct {
	Enabled   bool
	TTL       time.Duration
	KeyPrefix string
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   true,
		TTL:       24 * time.Hour,
		KeyPrefix: "compliance:result:",
	}
}

// ResultCache maps a document fingerprint to the session id of a finished
// analysis. Redis is the fast tier; the database table is the durable tier
// that survives Redis restarts. Either tier may be absent.
type ResultCache struct {
	rdb    *redis.Client
	stores store.CacheStore
	config atomic.Pointer[CacheConfig]
}

// NewResultCache builds a result cache. rdb may be nil to run database-only.
func NewResultCache(rdb *redis.Client, stores store.CacheStore, cfg CacheConfig) *ResultCache {
	rc := &ResultCache{
		rdb:    rdb,
		stores: stores,
	}
	rc.config.Store(&cfg)
	return rc
}

// Reload swaps in a new configuration. In-flight lookups finish under the
// config they started with.
func (rc *ResultCache) Reload(cfg CacheConfig) {
	rc.config.Store(&cfg)
	logger.Infow("result cache reconfigured",
		"enabled", cfg.Enabled,
		"ttl", cfg.TTL,
	)
}

// Config returns the current configuration.
func (rc *ResultCache) Config() CacheConfig {
	return *rc.config.Load()
}

// CacheKey derives the dedup fingerprint for a submission. The effective
// date collapses to "current" when absent so dateless submissions share
// entries.
func CacheKey(documentText string, ruleSetID uint64, effectiveDate *time.Time) string {
	date := "current"
	if effectiveDate != nil {
		date = effectiveDate.Format("2006-01-02")
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", documentText, ruleSetID, date))
	return hex.EncodeToString(sum[:])
}

// Get looks up a cached session id for the fingerprint.
func (rc *ResultCache) Get(ctx context.Context, key string) (string, bool) {
	cfg := rc.config.Load()
	if !cfg.Enabled {
		return "", false
	}

	if rc.rdb != nil {
		val, err := rc.rdb.Get(ctx, cfg.KeyPrefix+key).Result()
		if err == nil && val != "" {
			return val, true
		}
		if err != nil && err != redis.Nil {
			logger.Warnw("redis cache read failed, falling back to database",
				"error", err.Error())
		}
	}

	if rc.stores == nil {
		return "", false
	}

	payload, ok, err := rc.stores.Get(ctx, key)
	if err != nil {
		logger.Warnw("database cache read failed", "error", err.Error())
		return "", false
	}
	if !ok {
		return "", false
	}

	// Backfill the fast tier so the next hit skips the database.
	if rc.rdb != nil {
		if err := rc.rdb.Set(ctx, cfg.KeyPrefix+key, payload, cfg.TTL).Err(); err != nil {
			logger.Warnw("redis cache backfill failed", "error", err.Error())
		}
	}

	return payload, true
}

// Put records a completed session under the fingerprint in both tiers.
func (rc *ResultCache) Put(ctx context.Context, key, sessionID string) {
	cfg := rc.config.Load()
	if !cfg.Enabled {
		return
	}

	if rc.rdb != nil {
		if err := rc.rdb.Set(ctx, cfg.KeyPrefix+key, sessionID, cfg.TTL).Err(); err != nil {
			logger.Warnw("redis cache write failed", "error", err.Error())
		}
	}

	if rc.stores != nil {
		if err := rc.stores.Put(ctx, key, sessionID, time.Now().Add(cfg.TTL)); err != nil {
			logger.Warnw("database cache write failed", "error", err.Error())
		}
	}
}

// Invalidate drops the fingerprint from both tiers, e.g. when the cached
// session gets deleted.
func (rc *ResultCache) Invalidate(ctx context.Context, key string) {
	cfg := rc.config.Load()

	if rc.rdb != nil {
		if err := rc.rdb.Del(ctx, cfg.KeyPrefix+key).Err(); err != nil {
			logger.Warnw("redis cache delete failed", "error", err.Error())
		}
	}
	if rc.stores != nil {
		if err := rc.stores.Put(ctx, key, "", time.Now()); err != nil {
			logger.Warnw("database cache invalidation failed", "error", err.Error())
		}
	}
}

// PurgeExpired removes expired durable entries. Redis expires its own keys.
func (rc *ResultCache) PurgeExpired(ctx context.Context) (int64, error) {
	if rc.stores == nil {
		return 0, nil
	}
	return rc.stores.PurgeExpired(ctx)
}
