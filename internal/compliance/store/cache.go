package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/compliance-x/internal/model"
)

type cacheEntries struct {
	db *gorm.DB
}

func newCacheEntries(db *gorm.DB) *cacheEntries {
	return &cacheEntries{db}
}

// Get looks up a cache entry. Expired entries are treated as absent even if no
// purge has run yet.
func (s *cacheEntries) Get(ctx context.Context, key string) (string, bool, error) {
	var entry model.CacheEntry
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !entry.ExpiresAt.After(time.Now()) {
		return "", false, nil
	}
	return entry.Payload, true, nil
}

// Put upserts a cache entry, replacing payload and expiry on key conflict.
func (s *cacheEntries) Put(ctx context.Context, key, payload string, expiresAt time.Time) error {
	entry := model.CacheEntry{
		CacheKey:  key,
		Payload:   payload,
		ExpiresAt: expiresAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at"}),
		}).
		Create(&entry).Error
}

// PurgeExpired deletes entries past their expiry and returns how many went.
func (s *cacheEntries) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&model.CacheEntry{})
	return result.RowsAffected, result.Error
}
