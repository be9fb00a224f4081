package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/compliance-x/internal/compliance/store"
	"github.com/kart-io/compliance-x/pkg/infra/pool"
)

// JanitorConfig tunes the housekeeping sweep.
type JanitorConfig struct {
	// Interval is how often the sweep runs.
	Interval time.Duration
	// StaleAfter is how long a processing session may go untouched before
	// it is reconciled to failed. Must comfortably exceed the batch
	// timeout, since a live session touches its row every batch.
	StaleAfter time.Duration
}

// DefaultJanitorConfig returns the default housekeeping configuration.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Interval:   5 * time.Minute,
		StaleAfter: 30 * time.Minute,
	}
}

// Janitor periodically reconciles sessions orphaned in processing (after a
// crash or restart) and purges expired cache entries.
type Janitor struct {
	store  store.Factory
	cache  *ResultCache
	pool   *pool.Pool
	config JanitorConfig
	cancel context.CancelFunc
}

// NewJanitor builds a janitor.
func NewJanitor(factory store.Factory, cache *ResultCache, workers *pool.Pool, config JanitorConfig) *Janitor {
	return &Janitor{
		store:  factory,
		cache:  cache,
		pool:   workers,
		config: config,
	}
}

// Start schedules the periodic sweep on the background pool.
func (j *Janitor) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	return j.pool.Submit(func() {
		ticker := time.NewTicker(j.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	})
}

// Stop ends the periodic sweep.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
}

// Sweep runs one housekeeping pass.
func (j *Janitor) Sweep(ctx context.Context) {
	olderThan := time.Now().Add(-j.config.StaleAfter)
	reconciled, err := j.store.Analyses().MarkStaleProcessing(ctx, olderThan)
	if err != nil {
		logger.Warnw("stale session reconciliation failed", "error", err.Error())
	} else if reconciled > 0 {
		logger.Infow("reconciled stale sessions", "count", reconciled)
	}

	purged, err := j.cache.PurgeExpired(ctx)
	if err != nil {
		logger.Warnw("cache purge failed", "error", err.Error())
	} else if purged > 0 {
		logger.Infow("purged expired cache entries", "count", purged)
	}
}
