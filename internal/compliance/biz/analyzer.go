package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/kart-io/compliance-x/internal/compliance/store"
	"github.com/kart-io/compliance-x/internal/model"
	"github.com/kart-io/compliance-x/pkg/infra/pool"
	"github.com/kart-io/compliance-x/pkg/llm/resilience"
)

// Submission errors surfaced to callers.
var (
	ErrDocumentTooShort = errors.New("document text is too short for analysis")
	ErrDocumentTooLarge = errors.New("document text exceeds the size limit")
	ErrRuleSetNotFound  = errors.New("rule set not found or inactive")
)

// AnalyzerConfig tunes the analysis pipeline.
type AnalyzerConfig struct {
	// BatchSize is how many paragraph units run per scheduling round.
	BatchSize int
	// BatchTimeout bounds one whole round. Units still running at the
	// deadline are abandoned and counted as failed.
	BatchTimeout time.Duration
	// ClassifyTimeout bounds a single classification call.
	ClassifyTimeout time.Duration
	// AnalyzeTimeout bounds a single deep-analysis call.
	AnalyzeTimeout time.Duration
	// MaxAttempts is the total attempt count per model call.
	MaxAttempts int
	// RetryBackoff is the linear backoff step between attempts.
	RetryBackoff time.Duration
	// MinDocumentLen rejects trivially short submissions, measured on the
	// trimmed text.
	MinDocumentLen int
	// MaxDocumentLen rejects oversized submissions, measured on the raw
	// text.
	MaxDocumentLen int
	// ClassificationConfidence is recorded with each classification until
	// providers report a real score.
	ClassificationConfidence float64
}

// DefaultAnalyzerConfig returns the default pipeline configuration.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		BatchSize:                20,
		BatchTimeout:             90 * time.Second,
		ClassifyTimeout:          45 * time.Second,
		AnalyzeTimeout:           60 * time.Second,
		MaxAttempts:              2,
		RetryBackoff:             2 * time.Second,
		MinDocumentLen:           100,
		MaxDocumentLen:           500000,
		ClassificationConfidence: 0.85,
	}
}

// SubmitRequest is one document submission.
type SubmitRequest struct {
	DocumentText  string
	RuleSetID     uint64
	Title         string
	UserID        string
	EffectiveDate *time.Time
	// ForceNew bypasses the result cache and always starts a fresh session.
	ForceNew bool
}

// SubmitResult reports the session handling a submission.
type SubmitResult struct {
	SessionID string
	// Cached is true when an existing completed session was reused.
	Cached bool
	// TotalParagraphs is the number of units scheduled for a new session.
	TotalParagraphs int
}

// Analyzer runs the two-phase compliance pipeline: classify each paragraph
// against the rule catalog, then analyze it against the full texts of the
// rules that apply. Sessions run in the background on a worker pool; Submit
// returns as soon as the session is persisted.
//
// Session tasks and paragraph units run on separate pools. A session task
// blocks while submitting its units, so a shared pool saturated with session
// tasks would never free a worker for the units those tasks wait on.
type Analyzer struct {
	store      store.Factory
	catalog    *CatalogService
	classifier ClassificationOracle
	compliance ComplianceOracle
	cache      *ResultCache
	sessions   *pool.Pool
	units      *pool.Pool
	config     AnalyzerConfig
}

// NewAnalyzer wires the pipeline together.
func NewAnalyzer(
	factory store.Factory,
	catalog *CatalogService,
	classifier ClassificationOracle,
	compliance ComplianceOracle,
	cache *ResultCache,
	sessions *pool.Pool,
	units *pool.Pool,
	config AnalyzerConfig,
) *Analyzer {
	return &Analyzer{
		store:      factory,
		catalog:    catalog,
		classifier: classifier,
		compliance: compliance,
		cache:      cache,
		sessions:   sessions,
		units:      units,
		config:     config,
	}
}

// Submit validates a submission, reuses a cached session when one matches,
// otherwise creates a session and schedules its background run.
func (a *Analyzer) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	// Limits count characters, not bytes, so multi-byte documents are not
	// rejected early.
	trimmed := strings.TrimSpace(req.DocumentText)
	if utf8.RuneCountInString(trimmed) < a.config.MinDocumentLen {
		return nil, ErrDocumentTooShort
	}
	if utf8.RuneCountInString(req.DocumentText) > a.config.MaxDocumentLen {
		return nil, ErrDocumentTooLarge
	}

	ruleSet, err := a.store.RuleSets().Get(ctx, req.RuleSetID)
	if err != nil || !ruleSet.IsActive {
		return nil, ErrRuleSetNotFound
	}

	key := CacheKey(trimmed, req.RuleSetID, req.EffectiveDate)

	if !req.ForceNew {
		if sessionID, ok := a.cache.Get(ctx, key); ok {
			existing, err := a.store.Analyses().GetBySessionID(ctx, sessionID)
			if err == nil && existing != nil {
				_ = a.store.Analyses().Touch(ctx, existing.ID)
				logger.Infow("analysis cache hit",
					"session_id", sessionID,
					"rule_set_id", req.RuleSetID,
				)
				return &SubmitResult{SessionID: sessionID, Cached: true}, nil
			}
			// The cached session is gone; fall through to a fresh run.
			a.cache.Invalidate(ctx, key)
		}
	}

	segments := SegmentDocument(trimmed)
	total := CountAnalyzable(segments)

	session := &model.DocumentAnalysis{
		SessionID:       uuid.NewString(),
		Title:           deriveTitle(req.Title, trimmed),
		RuleSetID:       req.RuleSetID,
		DocumentText:    trimmed,
		DocumentHash:    key,
		AnalyzedBy:      req.UserID,
		Status:          model.StatusProcessing,
		EffectiveDate:   req.EffectiveDate,
		TotalParagraphs: total,
	}
	if err := a.store.Analyses().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create analysis session: %w", err)
	}

	paragraphs := make([]*model.DocumentParagraph, 0, len(segments))
	for i, seg := range segments {
		paragraphs = append(paragraphs, &model.DocumentParagraph{
			AnalysisID:     session.ID,
			ParagraphIndex: i,
			Content:        seg.Content,
			Analyzable:     seg.Analyzable,
		})
	}
	if err := a.store.Paragraphs().CreateBatch(ctx, paragraphs); err != nil {
		now := time.Now()
		_ = a.store.Analyses().SetStatus(ctx, session.ID, model.StatusFailed, &now)
		return nil, fmt.Errorf("failed to persist paragraphs: %w", err)
	}

	if err := a.sessions.Submit(func() {
		a.run(session.ID, session.SessionID, req.RuleSetID, req.EffectiveDate, key)
	}); err != nil {
		now := time.Now()
		_ = a.store.Analyses().SetStatus(ctx, session.ID, model.StatusFailed, &now)
		return nil, fmt.Errorf("failed to schedule analysis: %w", err)
	}

	logger.Infow("analysis session started",
		"session_id", session.SessionID,
		"rule_set_id", req.RuleSetID,
		"total_paragraphs", total,
	)

	return &SubmitResult{SessionID: session.SessionID, TotalParagraphs: total}, nil
}

// Stop requests cancellation of an owned, processing session. The running
// batch finishes; the next scheduling round observes the status and exits.
func (a *Analyzer) Stop(ctx context.Context, sessionID, userID string) (bool, error) {
	stopped, err := a.store.Analyses().StopIfProcessing(ctx, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to stop session: %w", err)
	}
	if stopped {
		logger.Infow("analysis session stopped", "session_id", sessionID)
	}
	return stopped, nil
}

// run drives a session to completion. It owns the session lifecycle: any
// setup failure marks the session failed, unit failures are contained to
// their paragraph, and only a full pass over all batches completes it.
func (a *Analyzer) run(analysisID uint64, sessionID string, ruleSetID uint64, asOf *time.Time, cacheKey string) {
	ctx := context.Background()

	ids, err := a.store.Paragraphs().ListAnalyzableIDs(ctx, analysisID)
	if err != nil {
		logger.Errorw("failed to list paragraphs, failing session",
			"session_id", sessionID,
			"error", err.Error(),
		)
		now := time.Now()
		_ = a.store.Analyses().SetStatus(ctx, analysisID, model.StatusFailed, &now)
		return
	}

	for start := 0; start < len(ids); start += a.config.BatchSize {
		// Re-read status at every batch boundary so stops take effect
		// without tearing down in-flight units.
		status, err := a.store.Analyses().GetStatus(ctx, analysisID)
		if err != nil || status != model.StatusProcessing {
			logger.Infow("analysis session no longer processing, exiting",
				"session_id", sessionID,
				"status", status,
			)
			return
		}

		end := start + a.config.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		a.runBatch(ctx, sessionID, ruleSetID, asOf, batch)

		// Progress counts attempts, not successes, so it stays monotonic
		// even when units fail.
		if err := a.store.Analyses().AdvanceProgress(ctx, analysisID, len(batch)); err != nil {
			logger.Warnw("failed to advance progress",
				"session_id", sessionID,
				"error", err.Error(),
			)
		}
	}

	now := time.Now()
	if err := a.store.Analyses().SetStatus(ctx, analysisID, model.StatusCompleted, &now); err != nil {
		logger.Errorw("failed to complete session",
			"session_id", sessionID,
			"error", err.Error(),
		)
		return
	}

	a.cache.Put(ctx, cacheKey, sessionID)
	logger.Infow("analysis session completed", "session_id", sessionID)
}

// runBatch runs one round of paragraph units concurrently under the batch
// deadline. Stragglers past the deadline are abandoned; their goroutines
// observe the cancelled context and bail out.
func (a *Analyzer) runBatch(ctx context.Context, sessionID string, ruleSetID uint64, asOf *time.Time, batch []uint64) {
	batchCtx, cancel := context.WithTimeout(ctx, a.config.BatchTimeout)
	defer cancel()

	done := make(chan uint64, len(batch))
	for _, id := range batch {
		paragraphID := id
		// Each unit gets an isolated storage handle so concurrent writes
		// never share statement state.
		isolated := a.store.Isolated()
		task := func() {
			defer func() { done <- paragraphID }()
			if err := a.analyzeParagraph(batchCtx, isolated, ruleSetID, asOf, paragraphID); err != nil {
				logger.Warnw("paragraph unit failed",
					"session_id", sessionID,
					"paragraph_id", paragraphID,
					"error", err.Error(),
				)
			}
		}
		if err := a.units.Submit(task); err != nil {
			logger.Warnw("failed to schedule paragraph unit",
				"session_id", sessionID,
				"paragraph_id", paragraphID,
				"error", err.Error(),
			)
			done <- paragraphID
		}
	}

	pending := len(batch)
	for pending > 0 {
		select {
		case <-done:
			pending--
		case <-batchCtx.Done():
			logger.Warnw("batch deadline reached, abandoning stragglers",
				"session_id", sessionID,
				"pending", pending,
			)
			return
		}
	}
}

// analyzeParagraph runs one unit: classify against the catalog, persist the
// classification, then deep-analyze when any rule applies. A failure after
// the classification write leaves that partial progress in place.
func (a *Analyzer) analyzeParagraph(ctx context.Context, isolated store.Factory, ruleSetID uint64, asOf *time.Time, paragraphID uint64) error {
	paragraph, err := isolated.Paragraphs().Get(ctx, paragraphID)
	if err != nil {
		return fmt.Errorf("failed to load paragraph: %w", err)
	}

	catalog, err := a.catalog.Catalog(ctx, ruleSetID, asOf)
	if err != nil {
		return err
	}

	var ruleNumbers []string
	err = resilience.RetryWithBackoff(ctx, a.retryConfig(), func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.config.ClassifyTimeout)
		defer cancel()
		var classifyErr error
		ruleNumbers, classifyErr = a.classifier.Classify(callCtx, paragraph.Content, catalog)
		return classifyErr
	})
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	if err := isolated.Paragraphs().SetClassification(ctx, paragraphID, ruleNumbers, a.config.ClassificationConfidence); err != nil {
		return fmt.Errorf("failed to persist classification: %w", err)
	}

	if len(ruleNumbers) == 0 {
		return nil
	}

	rules, err := a.catalog.Resolve(ctx, ruleSetID, ruleNumbers, asOf)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	var findings []Finding
	err = resilience.RetryWithBackoff(ctx, a.retryConfig(), func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.config.AnalyzeTimeout)
		defer cancel()
		var analyzeErr error
		findings, analyzeErr = a.compliance.Analyze(callCtx, paragraph.Content, rules)
		return analyzeErr
	})
	if err != nil {
		return fmt.Errorf("compliance analysis failed: %w", err)
	}

	if len(findings) == 0 {
		return nil
	}

	byNumber := make(map[string]*model.Rule, len(rules))
	for _, r := range rules {
		byNumber[r.RuleNumber] = r
	}

	issues := make([]*model.ComplianceIssue, 0, len(findings))
	for _, f := range findings {
		issue := &model.ComplianceIssue{
			AnalysisID:     paragraph.AnalysisID,
			ParagraphID:    &paragraph.ID,
			RuleNumber:     f.RuleNumber,
			Severity:       f.Severity,
			IssueType:      f.IssueType,
			Description:    f.Description,
			CurrentText:    f.CurrentText,
			RequiredText:   f.RequiredText,
			SuggestedFix:   f.SuggestedFix,
			HighlightStart: f.HighlightStart,
			HighlightEnd:   f.HighlightEnd,
		}
		if r, ok := byNumber[f.RuleNumber]; ok {
			issue.RuleTitle = r.RuleTitle
			if r.EffectiveStart != nil {
				issue.RuleDate = r.EffectiveStart.Format("2006-01-02")
			}
		}
		issues = append(issues, issue)
	}

	if err := isolated.Issues().CreateBatch(ctx, issues); err != nil {
		return fmt.Errorf("failed to persist issues: %w", err)
	}

	return nil
}

func (a *Analyzer) retryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:     a.config.MaxAttempts,
		Backoff:         resilience.LinearBackoff(a.config.RetryBackoff),
		RetryableErrors: resilience.IsRetryableError,
	}
}

// deriveTitle falls back to the first line of the document, truncated, when
// the caller supplies no title.
func deriveTitle(title, document string) string {
	title = strings.TrimSpace(title)
	if title != "" {
		return title
	}

	head := document
	if idx := strings.IndexByte(head, '\n'); idx >= 0 {
		head = head[:idx]
	}
	head = strings.TrimSpace(head)
	return truncateRunes(head, 50)
}

// truncateRunes caps s at max characters without splitting a multi-byte
// sequence.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
