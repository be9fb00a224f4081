package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/compliance-x/internal/model"
)

type analyses struct {
	db *gorm.DB
}

func newAnalyses(db *gorm.DB) *analyses {
	return &analyses{db}
}

// Create persists a new analysis session together with its paragraph total.
func (s *analyses) Create(ctx context.Context, a *model.DocumentAnalysis) error {
	return s.db.WithContext(ctx).Create(a).Error
}

// GetBySessionID retrieves a session by its opaque session id.
func (s *analyses) GetBySessionID(ctx context.Context, sessionID string) (*model.DocumentAnalysis, error) {
	var a model.DocumentAnalysis
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetStatus reads just the current status of a session. This is the
// cooperative cancellation check performed at batch boundaries.
func (s *analyses) GetStatus(ctx context.Context, id uint64) (string, error) {
	var status string
	err := s.db.WithContext(ctx).
		Model(&model.DocumentAnalysis{}).
		Where("id = ?", id).
		Pluck("status", &status).Error
	return status, err
}

// SetStatus updates the session status, optionally with a completion time.
func (s *analyses) SetStatus(ctx context.Context, id uint64, status string, completedAt *time.Time) error {
	updates := map[string]any{"status": status}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}
	return s.db.WithContext(ctx).
		Model(&model.DocumentAnalysis{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AdvanceProgress increments paragraphs_processed by delta. Runs as its own
// small transaction so concurrent sessions never contend.
func (s *analyses) AdvanceProgress(ctx context.Context, id uint64, delta int) error {
	return s.db.WithContext(ctx).
		Model(&model.DocumentAnalysis{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"paragraphs_processed": gorm.Expr("paragraphs_processed + ?", delta),
			"last_accessed_at":     time.Now(),
		}).Error
}

// Touch refreshes the last-accessed timestamp.
func (s *analyses) Touch(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).
		Model(&model.DocumentAnalysis{}).
		Where("id = ?", id).
		Update("last_accessed_at", time.Now()).Error
}

// StopIfProcessing transitions an owned, processing session to stopped. The
// guard lives in the WHERE clause so already-terminal or foreign sessions are
// a no-op returning false.
func (s *analyses) StopIfProcessing(ctx context.Context, sessionID, userID string) (bool, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&model.DocumentAnalysis{}).
		Where("session_id = ? AND analyzed_by = ? AND status = ?", sessionID, userID, model.StatusProcessing).
		Updates(map[string]any{
			"status":       model.StatusStopped,
			"completed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateTitle renames an owned session.
func (s *analyses) UpdateTitle(ctx context.Context, sessionID, userID, title string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.DocumentAnalysis{}).
		Where("session_id = ? AND analyzed_by = ?", sessionID, userID).
		Updates(map[string]any{
			"title":            title,
			"last_accessed_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Delete removes an owned session with its paragraphs and issues.
func (s *analyses) Delete(ctx context.Context, sessionID, userID string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a model.DocumentAnalysis
		if err := tx.Where("session_id = ? AND analyzed_by = ?", sessionID, userID).First(&a).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if err := tx.Where("analysis_id = ?", a.ID).Delete(&model.ComplianceIssue{}).Error; err != nil {
			return err
		}
		if err := tx.Where("analysis_id = ?", a.ID).Delete(&model.DocumentParagraph{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&a).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// ListByUser lists a user's sessions, most recently accessed first.
func (s *analyses) ListByUser(ctx context.Context, userID string, offset, limit int) (int64, []*model.DocumentAnalysis, error) {
	var count int64
	var sessions []*model.DocumentAnalysis

	query := s.db.WithContext(ctx).
		Model(&model.DocumentAnalysis{}).
		Where("analyzed_by = ?", userID)

	if err := query.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if err := query.Order("last_accessed_at DESC").Offset(offset).Limit(limit).Find(&sessions).Error; err != nil {
		return 0, nil, err
	}

	return count, sessions, nil
}

// MarkStaleProcessing fails sessions orphaned in processing, e.g. after a
// process restart lost their background task.
func (s *analyses) MarkStaleProcessing(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&model.DocumentAnalysis{}).
		Where("status = ? AND last_accessed_at < ?", model.StatusProcessing, olderThan).
		Updates(map[string]any{
			"status":       model.StatusFailed,
			"completed_at": now,
		})
	return result.RowsAffected, result.Error
}
