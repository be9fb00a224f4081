package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/kart-io/compliance-x/internal/model"
)

type paragraphs struct {
	db *gorm.DB
}

func newParagraphs(db *gorm.DB) *paragraphs {
	return &paragraphs{db}
}

// CreateBatch inserts the full paragraph run for a session, non-analyzable
// spans included so paragraph indexes stay contiguous.
func (s *paragraphs) CreateBatch(ctx context.Context, batch []*model.DocumentParagraph) error {
	if len(batch) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(batch, 100).Error
}

// Get retrieves a paragraph by id.
func (s *paragraphs) Get(ctx context.Context, id uint64) (*model.DocumentParagraph, error) {
	var p model.DocumentParagraph
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByAnalysis returns every paragraph of a session in document order.
func (s *paragraphs) ListByAnalysis(ctx context.Context, analysisID uint64) ([]*model.DocumentParagraph, error) {
	var result []*model.DocumentParagraph
	err := s.db.WithContext(ctx).
		Where("analysis_id = ?", analysisID).
		Order("paragraph_index").
		Find(&result).Error
	return result, err
}

// ListAnalyzableIDs returns the ids of paragraphs eligible for analysis, in
// document order. This is the work list the batch scheduler iterates.
func (s *paragraphs) ListAnalyzableIDs(ctx context.Context, analysisID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).
		Model(&model.DocumentParagraph{}).
		Where("analysis_id = ? AND analyzable = ?", analysisID, true).
		Order("paragraph_index").
		Pluck("id", &ids).Error
	return ids, err
}

// SetClassification records the classification result. A nil rules slice is
// normalized to an empty list so the paragraph reads as classified.
func (s *paragraphs) SetClassification(ctx context.Context, id uint64, rules []string, confidence float64) error {
	if rules == nil {
		rules = []string{}
	}
	applicable := model.StringList(rules)
	return s.db.WithContext(ctx).
		Model(&model.DocumentParagraph{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"applicable_rules":          &applicable,
			"classification_confidence": confidence,
		}).Error
}
