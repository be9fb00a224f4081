package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/compliance-x/internal/compliance/store"
	"github.com/kart-io/compliance-x/internal/model"
)

// ErrRuleSetEmpty is returned when a rule set is created without rules.
var ErrRuleSetEmpty = errors.New("rule set must contain at least one rule")

// RuleInput is one rule in a bulk import.
type RuleInput struct {
	RuleNumber     string     `json:"rule_number"`
	Title          string     `json:"title"`
	Text           string     `json:"text"`
	Summary        string     `json:"summary,omitempty"`
	Category       string     `json:"category,omitempty"`
	Keywords       []string   `json:"keywords,omitempty"`
	Hierarchy      string     `json:"hierarchy,omitempty"`
	EffectiveStart *time.Time `json:"effective_start,omitempty"`
	EffectiveEnd   *time.Time `json:"effective_end,omitempty"`
}

// RuleSetService manages rule sets and their rules.
type RuleSetService struct {
	store   store.Factory
	catalog *CatalogService
}

// NewRuleSetService builds a rule set service.
func NewRuleSetService(factory store.Factory, catalog *CatalogService) *RuleSetService {
	return &RuleSetService{store: factory, catalog: catalog}
}

// Create creates a rule set together with its initial rules. Rules missing a
// summary or category get derived values so the classification catalog is
// never blank.
func (s *RuleSetService) Create(ctx context.Context, name, description, createdBy string, inputs []RuleInput) (*model.RuleSet, error) {
	if len(inputs) == 0 {
		return nil, ErrRuleSetEmpty
	}

	ruleSet := &model.RuleSet{
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		IsActive:    true,
	}
	if err := s.store.RuleSets().Create(ctx, ruleSet); err != nil {
		return nil, fmt.Errorf("failed to create rule set: %w", err)
	}

	rules := buildRules(ruleSet.ID, inputs)
	if err := s.store.Rules().CreateBatch(ctx, rules); err != nil {
		return nil, fmt.Errorf("failed to create rules: %w", err)
	}

	return ruleSet, nil
}

// AddRules appends rules to an existing rule set, skipping rule numbers that
// are already present.
func (s *RuleSetService) AddRules(ctx context.Context, ruleSetID uint64, inputs []RuleInput) (int, error) {
	if _, err := s.store.RuleSets().Get(ctx, ruleSetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrRuleSetNotFound
		}
		return 0, fmt.Errorf("failed to load rule set: %w", err)
	}

	fresh := make([]RuleInput, 0, len(inputs))
	for _, in := range inputs {
		exists, err := s.store.Rules().Exists(ctx, ruleSetID, in.RuleNumber)
		if err != nil {
			return 0, fmt.Errorf("failed to check rule: %w", err)
		}
		if !exists {
			fresh = append(fresh, in)
		}
	}

	if len(fresh) == 0 {
		return 0, nil
	}

	if err := s.store.Rules().CreateBatch(ctx, buildRules(ruleSetID, fresh)); err != nil {
		return 0, fmt.Errorf("failed to add rules: %w", err)
	}

	s.catalog.Invalidate(ruleSetID)
	return len(fresh), nil
}

// Get returns a rule set by id.
func (s *RuleSetService) Get(ctx context.Context, id uint64) (*model.RuleSet, error) {
	ruleSet, err := s.store.RuleSets().Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleSetNotFound
		}
		return nil, fmt.Errorf("failed to load rule set: %w", err)
	}
	return ruleSet, nil
}

// List returns a page of active rule sets, optionally filtered by creator.
func (s *RuleSetService) List(ctx context.Context, createdBy string, offset, limit int) (int64, []*model.RuleSet, error) {
	return s.store.RuleSets().List(ctx, createdBy, offset, limit)
}

// Catalog exposes the point-in-time rule catalog.
func (s *RuleSetService) Catalog(ctx context.Context, ruleSetID uint64, asOf *time.Time) ([]model.RuleDigest, error) {
	return s.catalog.Catalog(ctx, ruleSetID, asOf)
}

// Deactivate soft-disables a rule set. New submissions are rejected; existing
// sessions keep their results.
func (s *RuleSetService) Deactivate(ctx context.Context, id uint64) error {
	if err := s.store.RuleSets().Deactivate(ctx, id); err != nil {
		return fmt.Errorf("failed to deactivate rule set: %w", err)
	}
	s.catalog.Invalidate(id)
	return nil
}

// Delete removes a rule set with its rules and dependent sessions.
func (s *RuleSetService) Delete(ctx context.Context, id uint64) error {
	if err := s.store.RuleSets().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete rule set: %w", err)
	}
	s.catalog.Invalidate(id)
	return nil
}

func buildRules(ruleSetID uint64, inputs []RuleInput) []*model.Rule {
	rules := make([]*model.Rule, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))

	for _, in := range inputs {
		number := strings.TrimSpace(in.RuleNumber)
		if number == "" {
			continue
		}
		if _, dup := seen[number]; dup {
			continue
		}
		seen[number] = struct{}{}

		rules = append(rules, &model.Rule{
			RuleSetID:      ruleSetID,
			RuleNumber:     number,
			RuleTitle:      strings.TrimSpace(in.Title),
			RuleText:       in.Text,
			Summary:        deriveSummary(in.Summary, in.Title, in.Text),
			Category:       deriveCategory(in.Category, in.Title, in.Text),
			Keywords:       model.StringList(in.Keywords),
			Hierarchy:      in.Hierarchy,
			EffectiveStart: in.EffectiveStart,
			EffectiveEnd:   in.EffectiveEnd,
			IsCurrent:      in.EffectiveEnd == nil,
		})
	}

	return rules
}

// maxSummaryLen caps derived summaries so catalog prompts stay compact.
const maxSummaryLen = 300

// deriveSummary falls back to the title plus the first two sentences of the
// rule text.
func deriveSummary(summary, title, text string) string {
	summary = strings.TrimSpace(summary)
	if summary != "" {
		return summary
	}

	sentences := sentenceRe.FindAllString(strings.TrimSpace(text), -1)
	var b strings.Builder
	b.WriteString(strings.TrimSpace(title))
	for i, sentence := range sentences {
		if i >= 2 {
			break
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(sentence))
	}

	return truncateRunes(b.String(), maxSummaryLen)
}

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"reporting", []string{"report", "disclose", "disclosure", "filing", "notify", "notification"}},
	{"data-protection", []string{"data", "privacy", "personal information", "confidential"}},
	{"financial", []string{"financial", "payment", "transaction", "capital", "audit"}},
	{"safety", []string{"safety", "hazard", "risk assessment", "protective"}},
	{"governance", []string{"board", "governance", "oversight", "committee", "responsibilit"}},
	{"recordkeeping", []string{"record", "retain", "retention", "document", "archive"}},
}

// deriveCategory guesses a category from rule content when none is supplied.
func deriveCategory(category, title, text string) string {
	category = strings.TrimSpace(category)
	if category != "" {
		return category
	}

	haystack := strings.ToLower(title + " " + text)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(haystack, kw) {
				return c.category
			}
		}
	}
	return "general"
}
