package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/kart-io/compliance-x/internal/model"
)

type issues struct {
	db *gorm.DB
}

func newIssues(db *gorm.DB) *issues {
	return &issues{db}
}

// CreateBatch appends findings for a paragraph.
func (s *issues) CreateBatch(ctx context.Context, batch []*model.ComplianceIssue) error {
	if len(batch) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(batch, 100).Error
}

// ListByAnalysis returns every finding recorded so far for a session.
func (s *issues) ListByAnalysis(ctx context.Context, analysisID uint64) ([]*model.ComplianceIssue, error) {
	var result []*model.ComplianceIssue
	err := s.db.WithContext(ctx).
		Where("analysis_id = ?", analysisID).
		Order("id").
		Find(&result).Error
	return result, err
}

// CountByAnalysis counts findings for a session.
func (s *issues) CountByAnalysis(ctx context.Context, analysisID uint64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.ComplianceIssue{}).
		Where("analysis_id = ?", analysisID).
		Count(&count).Error
	return count, err
}
