package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/compliance-x/internal/model"
)

type rules struct {
	db *gorm.DB
}

func newRules(db *gorm.DB) *rules {
	return &rules{db}
}

// CreateBatch inserts a batch of rules.
func (s *rules) CreateBatch(ctx context.Context, batch []*model.Rule) error {
	if len(batch) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(batch, 100).Error
}

// Exists reports whether a rule number is already present in the rule set.
func (s *rules) Exists(ctx context.Context, ruleSetID uint64, ruleNumber string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Rule{}).
		Where("rule_set_id = ? AND rule_number = ?", ruleSetID, ruleNumber).
		Count(&count).Error
	return count > 0, err
}

// temporalFilter applies the point-in-time predicate. With a date, a rule is
// included iff (start is null or start <= asOf) and (end is null or end > asOf).
// Without one, superseded rules (non-null end date) are excluded; this is
// deliberately the end-date filter, not the is_current flag, since the two
// are allowed to diverge.
func temporalFilter(query *gorm.DB, asOf *time.Time) *gorm.DB {
	if asOf != nil {
		return query.
			Where("effective_start IS NULL OR effective_start <= ?", *asOf).
			Where("effective_end IS NULL OR effective_end > ?", *asOf)
	}
	return query.Where("effective_end IS NULL")
}

// Catalog returns the lightweight catalog of rules effective at asOf.
func (s *rules) Catalog(ctx context.Context, ruleSetID uint64, asOf *time.Time) ([]model.RuleDigest, error) {
	query := s.db.WithContext(ctx).
		Model(&model.Rule{}).
		Where("rule_set_id = ?", ruleSetID)
	query = temporalFilter(query, asOf)

	var rows []model.Rule
	if err := query.
		Select("rule_number", "rule_title", "summary", "category", "hierarchy",
			"effective_start", "effective_end", "is_current").
		Order("rule_number").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	digests := make([]model.RuleDigest, 0, len(rows))
	for _, r := range rows {
		digests = append(digests, model.RuleDigest{
			Number:         r.RuleNumber,
			Title:          r.RuleTitle,
			Summary:        r.Summary,
			Category:       r.Category,
			Hierarchy:      r.Hierarchy,
			EffectiveStart: r.EffectiveStart,
			EffectiveEnd:   r.EffectiveEnd,
			IsCurrent:      r.IsCurrent,
		})
	}
	return digests, nil
}

// ResolveByNumbers returns the full rule records for the requested numbers,
// under the same temporal filter as Catalog.
func (s *rules) ResolveByNumbers(ctx context.Context, ruleSetID uint64, numbers []string, asOf *time.Time) ([]*model.Rule, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	query := s.db.WithContext(ctx).
		Where("rule_set_id = ?", ruleSetID).
		Where("rule_number IN ?", numbers)
	query = temporalFilter(query, asOf)

	var result []*model.Rule
	if err := query.Order("rule_number").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
