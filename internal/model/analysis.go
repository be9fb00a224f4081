package model

import (
	"time"
)

// Analysis status values. Terminal states are completed, failed and stopped;
// once a terminal state is observed by an in-flight batch no further paragraph
// writes occur for the session.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusStopped    = "stopped"
)

// Issue severity values.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeveritySuccess  = "success"
)

// Issue type values.
const (
	IssueCompliant  = "compliant"
	IssueMissing    = "missing"
	IssueInadequate = "inadequate"
	IssueOutdated   = "outdated"
	IssueViolation  = "violation"
)

// DocumentAnalysis is one analysis session over one document.
//
// SessionID is the opaque identifier handed to callers; the numeric primary
// key stays internal. DocumentHash is derived from document text, rule set id
// and effective date and is the cache/dedup key.
type DocumentAnalysis struct {
	ID                  uint64     `json:"-" gorm:"primaryKey;autoIncrement"`
	SessionID           string     `json:"session_id" gorm:"size:36;not null;uniqueIndex:uk_analysis_session"`
	Title               string     `json:"title,omitempty" gorm:"size:255"`
	RuleSetID           uint64     `json:"rule_set_id" gorm:"not null;index:idx_analysis_rule_set"`
	DocumentText        string     `json:"-" gorm:"type:text"`
	DocumentHash        string     `json:"-" gorm:"size:64;index:idx_analysis_hash"`
	AnalyzedBy          string     `json:"analyzed_by" gorm:"size:64;index:idx_analysis_owner"`
	Status              string     `json:"status" gorm:"size:16;default:'pending';index:idx_analysis_status"`
	EffectiveDate       *time.Time `json:"effective_date,omitempty"`
	TotalParagraphs     int        `json:"total_paragraphs" gorm:"default:0"`
	ParagraphsProcessed int        `json:"paragraphs_processed" gorm:"default:0"`
	CreatedAt           time.Time  `json:"created_at" gorm:"autoCreateTime"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	LastAccessedAt      time.Time  `json:"last_accessed_at" gorm:"autoCreateTime"`

	Paragraphs []DocumentParagraph `json:"-" gorm:"foreignKey:AnalysisID;constraint:OnDelete:CASCADE"`
	Issues     []ComplianceIssue   `json:"-" gorm:"foreignKey:AnalysisID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for DocumentAnalysis.
func (DocumentAnalysis) TableName() string {
	return "document_analyses"
}

// Terminal reports whether the session has reached a terminal status.
func (a *DocumentAnalysis) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusFailed || a.Status == StatusStopped
}

// ProgressPercentage returns paragraphs_processed / total_paragraphs as a
// percentage rounded to one decimal. Zero totals yield zero.
func (a *DocumentAnalysis) ProgressPercentage() float64 {
	if a.TotalParagraphs <= 0 {
		return 0
	}
	pct := float64(a.ParagraphsProcessed) / float64(a.TotalParagraphs) * 100
	return float64(int(pct*10+0.5)) / 10
}

// DocumentParagraph is one segmented unit of an analyzed document.
//
// ApplicableRules is nil until the classification write lands; an empty
// non-nil list means the paragraph was classified and no rules apply.
// Non-analyzable paragraphs are stored for index continuity but never
// scheduled for classification.
type DocumentParagraph struct {
	ID                       uint64      `json:"id" gorm:"primaryKey;autoIncrement"`
	AnalysisID               uint64      `json:"-" gorm:"not null;index:idx_paragraph_analysis"`
	ParagraphIndex           int         `json:"index" gorm:"not null"`
	Content                  string      `json:"content" gorm:"type:text"`
	Analyzable               bool        `json:"-" gorm:"default:true"`
	ApplicableRules          *StringList `json:"applicable_rules" gorm:"type:text"`
	ClassificationConfidence *float64    `json:"classification_confidence,omitempty"`
}

// TableName specifies the table name for DocumentParagraph.
func (DocumentParagraph) TableName() string {
	return "document_paragraphs"
}

// Classified reports whether the classification write has landed.
func (p *DocumentParagraph) Classified() bool {
	return p.ApplicableRules != nil
}

// ComplianceIssue is one finding produced by the compliance oracle for a
// paragraph. Issues are append-only; a severity of "success" records a
// deliberately compliant finding.
type ComplianceIssue struct {
	ID             uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	AnalysisID     uint64    `json:"-" gorm:"not null;index:idx_issue_analysis"`
	ParagraphID    *uint64   `json:"paragraph_id,omitempty" gorm:"index:idx_issue_paragraph"`
	RuleNumber     string    `json:"rule_number" gorm:"size:64;index:idx_issue_rule"`
	RuleTitle      string    `json:"rule_title" gorm:"size:255"`
	RuleDate       string    `json:"rule_date" gorm:"size:32"`
	Severity       string    `json:"severity" gorm:"size:16;index:idx_issue_severity"`
	IssueType      string    `json:"issue_type" gorm:"size:16"`
	Description    string    `json:"description" gorm:"type:text"`
	CurrentText    *string   `json:"current_text,omitempty" gorm:"type:text"`
	RequiredText   *string   `json:"required_text,omitempty" gorm:"type:text"`
	SuggestedFix   *string   `json:"suggested_fix,omitempty" gorm:"type:text"`
	HighlightStart *int      `json:"highlight_start,omitempty"`
	HighlightEnd   *int      `json:"highlight_end,omitempty"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for ComplianceIssue.
func (ComplianceIssue) TableName() string {
	return "compliance_issues"
}

// CacheEntry maps a derived cache key to a JSON payload with an expiry.
// Entries past ExpiresAt are logically absent; readers must apply the expiry
// check themselves rather than rely on a purge having run.
type CacheEntry struct {
	ID        uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	CacheKey  string    `json:"cache_key" gorm:"size:128;not null;uniqueIndex:uk_cache_key"`
	Payload   string    `json:"payload" gorm:"type:text"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index:idx_cache_expires"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "analysis_cache"
}
