package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/kart-io/compliance-x/internal/model"
)

type ruleSets struct {
	db *gorm.DB
}

func newRuleSets(db *gorm.DB) *ruleSets {
	return &ruleSets{db}
}

// Create creates a new rule set.
func (s *ruleSets) Create(ctx context.Context, rs *model.RuleSet) error {
	return s.db.WithContext(ctx).Create(rs).Error
}

// Get retrieves a rule set by id.
func (s *ruleSets) Get(ctx context.Context, id uint64) (*model.RuleSet, error) {
	var rs model.RuleSet
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rs).Error; err != nil {
		return nil, err
	}
	return &rs, nil
}

// List lists active rule sets with pagination, optionally filtered by creator.
func (s *ruleSets) List(ctx context.Context, createdBy string, offset, limit int) (int64, []*model.RuleSet, error) {
	var count int64
	var sets []*model.RuleSet

	query := s.db.WithContext(ctx).Model(&model.RuleSet{}).Where("is_active = ?", true)
	if createdBy != "" {
		query = query.Where("created_by = ?", createdBy)
	}

	if err := query.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&sets).Error; err != nil {
		return 0, nil, err
	}

	return count, sets, nil
}

// Deactivate soft-disables a rule set without touching its rules.
func (s *ruleSets) Deactivate(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).
		Model(&model.RuleSet{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// Delete removes a rule set and cascades to its rules and analyses.
func (s *ruleSets) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rule_set_id = ?", id).Delete(&model.Rule{}).Error; err != nil {
			return err
		}
		var analysisIDs []uint64
		if err := tx.Model(&model.DocumentAnalysis{}).
			Where("rule_set_id = ?", id).
			Pluck("id", &analysisIDs).Error; err != nil {
			return err
		}
		if len(analysisIDs) > 0 {
			if err := tx.Where("analysis_id IN ?", analysisIDs).Delete(&model.ComplianceIssue{}).Error; err != nil {
				return err
			}
			if err := tx.Where("analysis_id IN ?", analysisIDs).Delete(&model.DocumentParagraph{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", analysisIDs).Delete(&model.DocumentAnalysis{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&model.RuleSet{}).Error
	})
}
