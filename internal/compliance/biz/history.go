package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/compliance-x/internal/compliance/store"
	"github.com/kart-io/compliance-x/internal/model"
)

// ErrSessionNotFound is returned when a session id resolves to nothing the
// caller may see.
var ErrSessionNotFound = errors.New("analysis session not found")

// SessionResults is the full view of a session. While the session is still
// processing it exposes whatever classifications and issues have landed so
// far.
type SessionResults struct {
	SessionID           string                    `json:"session_id"`
	Title               string                    `json:"title"`
	RuleSetID           uint64                    `json:"rule_set_id"`
	Status              string                    `json:"status"`
	Progress            float64                   `json:"progress"`
	TotalParagraphs     int                       `json:"total_paragraphs"`
	ParagraphsProcessed int                       `json:"paragraphs_processed"`
	EffectiveDate       *time.Time                `json:"effective_date,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	CompletedAt         *time.Time                `json:"completed_at,omitempty"`
	Paragraphs          []*model.DocumentParagraph `json:"paragraphs"`
	Issues              []*model.ComplianceIssue  `json:"issues"`
}

// SessionSummary is one row of a user's history listing.
type SessionSummary struct {
	SessionID       string     `json:"session_id"`
	Title           string     `json:"title"`
	RuleSetID       uint64     `json:"rule_set_id"`
	Status          string     `json:"status"`
	Progress        float64    `json:"progress"`
	IssueCount      int64      `json:"issue_count"`
	TotalParagraphs int        `json:"total_paragraphs"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// HistoryService serves session results, the per-user history listing and
// session lifecycle operations that do not touch the pipeline.
type HistoryService struct {
	store store.Factory
	cache *ResultCache
}

// NewHistoryService builds a history service.
func NewHistoryService(factory store.Factory, cache *ResultCache) *HistoryService {
	return &HistoryService{store: factory, cache: cache}
}

// GetResults returns the current view of a session and refreshes its
// last-accessed time.
func (h *HistoryService) GetResults(ctx context.Context, sessionID string) (*SessionResults, error) {
	session, err := h.store.Analyses().GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	_ = h.store.Analyses().Touch(ctx, session.ID)

	all, err := h.store.Paragraphs().ListByAnalysis(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load paragraphs: %w", err)
	}

	// Unclassified paragraphs stay invisible so mid-run polls only surface
	// spans whose classification write has landed.
	paragraphs := make([]*model.DocumentParagraph, 0, len(all))
	for _, p := range all {
		if p.Classified() {
			paragraphs = append(paragraphs, p)
		}
	}

	issues, err := h.store.Issues().ListByAnalysis(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}

	return &SessionResults{
		SessionID:           session.SessionID,
		Title:               session.Title,
		RuleSetID:           session.RuleSetID,
		Status:              session.Status,
		Progress:            session.ProgressPercentage(),
		TotalParagraphs:     session.TotalParagraphs,
		ParagraphsProcessed: session.ParagraphsProcessed,
		EffectiveDate:       session.EffectiveDate,
		CreatedAt:           session.CreatedAt,
		CompletedAt:         session.CompletedAt,
		Paragraphs:          paragraphs,
		Issues:              issues,
	}, nil
}

// List returns a page of the user's sessions, most recently accessed first.
func (h *HistoryService) List(ctx context.Context, userID string, offset, limit int) (int64, []*SessionSummary, error) {
	count, sessions, err := h.store.Analyses().ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	summaries := make([]*SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		issueCount, err := h.store.Issues().CountByAnalysis(ctx, s.ID)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to count issues: %w", err)
		}
		summaries = append(summaries, &SessionSummary{
			SessionID:       s.SessionID,
			Title:           deriveTitle(s.Title, s.DocumentText),
			RuleSetID:       s.RuleSetID,
			Status:          s.Status,
			Progress:        s.ProgressPercentage(),
			IssueCount:      issueCount,
			TotalParagraphs: s.TotalParagraphs,
			CreatedAt:       s.CreatedAt,
			CompletedAt:     s.CompletedAt,
		})
	}

	return count, summaries, nil
}

// Delete removes an owned session and invalidates its cache fingerprint so a
// resubmission does not resolve to the deleted session.
func (h *HistoryService) Delete(ctx context.Context, sessionID, userID string) error {
	session, err := h.store.Analyses().GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to load session: %w", err)
	}

	deleted, err := h.store.Analyses().Delete(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if !deleted {
		return ErrSessionNotFound
	}

	if session.DocumentHash != "" {
		h.cache.Invalidate(ctx, session.DocumentHash)
	}
	return nil
}

// Rename updates the title of an owned session.
func (h *HistoryService) Rename(ctx context.Context, sessionID, userID, title string) error {
	renamed, err := h.store.Analyses().UpdateTitle(ctx, sessionID, userID, title)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	if !renamed {
		return ErrSessionNotFound
	}
	return nil
}
