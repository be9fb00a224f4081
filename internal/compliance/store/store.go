// Package store provides persistence for the compliance analysis service.
package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/compliance-x/internal/model"
)

// Factory defines the factory interface for creating stores.
//
// Isolated returns a factory bound to a fresh session of the underlying
// connection. Every concurrently-running paragraph unit must obtain its own
// isolated factory; units never share a handle.
type Factory interface {
	RuleSets() RuleSetStore
	Rules() RuleStore
	Analyses() AnalysisStore
	Paragraphs() ParagraphStore
	Issues() IssueStore
	CacheEntries() CacheStore
	Isolated() Factory
	AutoMigrate() error
	Close() error
}

// RuleSetStore defines rule set storage.
type RuleSetStore interface {
	Create(ctx context.Context, rs *model.RuleSet) error
	Get(ctx context.Context, id uint64) (*model.RuleSet, error)
	List(ctx context.Context, createdBy string, offset, limit int) (int64, []*model.RuleSet, error)
	Deactivate(ctx context.Context, id uint64) error
	Delete(ctx context.Context, id uint64) error
}

// RuleStore defines rule storage and the point-in-time catalog queries.
type RuleStore interface {
	CreateBatch(ctx context.Context, rules []*model.Rule) error
	Exists(ctx context.Context, ruleSetID uint64, ruleNumber string) (bool, error)
	// Catalog returns the lightweight rule index for a rule set. With a nil
	// asOf it returns currently-effective rules (nil end date); with a date
	// it applies the temporal filter (start <= asOf < end, nil bounds open).
	Catalog(ctx context.Context, ruleSetID uint64, asOf *time.Time) ([]model.RuleDigest, error)
	// ResolveByNumbers returns full rule records for the requested numbers,
	// under the same temporal filter as Catalog.
	ResolveByNumbers(ctx context.Context, ruleSetID uint64, numbers []string, asOf *time.Time) ([]*model.Rule, error)
}

// AnalysisStore defines analysis session storage.
type AnalysisStore interface {
	Create(ctx context.Context, a *model.DocumentAnalysis) error
	GetBySessionID(ctx context.Context, sessionID string) (*model.DocumentAnalysis, error)
	GetStatus(ctx context.Context, id uint64) (string, error)
	SetStatus(ctx context.Context, id uint64, status string, completedAt *time.Time) error
	// AdvanceProgress increments paragraphs_processed by delta as an
	// independent small transaction.
	AdvanceProgress(ctx context.Context, id uint64, delta int) error
	Touch(ctx context.Context, id uint64) error
	// StopIfProcessing transitions the session to stopped iff it is owned by
	// userID and currently processing. Returns false otherwise.
	StopIfProcessing(ctx context.Context, sessionID, userID string) (bool, error)
	UpdateTitle(ctx context.Context, sessionID, userID, title string) (bool, error)
	Delete(ctx context.Context, sessionID, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) (int64, []*model.DocumentAnalysis, error)
	// MarkStaleProcessing fails sessions stuck in processing whose last
	// access is older than the threshold. Returns the number reconciled.
	MarkStaleProcessing(ctx context.Context, olderThan time.Time) (int64, error)
}

// ParagraphStore defines paragraph storage.
type ParagraphStore interface {
	CreateBatch(ctx context.Context, paragraphs []*model.DocumentParagraph) error
	Get(ctx context.Context, id uint64) (*model.DocumentParagraph, error)
	ListByAnalysis(ctx context.Context, analysisID uint64) ([]*model.DocumentParagraph, error)
	ListAnalyzableIDs(ctx context.Context, analysisID uint64) ([]uint64, error)
	SetClassification(ctx context.Context, id uint64, rules []string, confidence float64) error
}

// IssueStore defines compliance issue storage.
type IssueStore interface {
	CreateBatch(ctx context.Context, issues []*model.ComplianceIssue) error
	ListByAnalysis(ctx context.Context, analysisID uint64) ([]*model.ComplianceIssue, error)
	CountByAnalysis(ctx context.Context, analysisID uint64) (int64, error)
}

// CacheStore defines durable cache entry storage. Expired entries are treated
// as absent on read regardless of whether a purge has run.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, payload string, expiresAt time.Time) error
	PurgeExpired(ctx context.Context) (int64, error)
}

// datastore implements the Factory interface on top of gorm.
type datastore struct {
	db *gorm.DB
}

// NewFactory creates a storage factory bound to the given database handle.
func NewFactory(db *gorm.DB) Factory {
	return &datastore{db: db}
}

// RuleSets returns the rule set store.
func (ds *datastore) RuleSets() RuleSetStore {
	return newRuleSets(ds.db)
}

// Rules returns the rule store.
func (ds *datastore) Rules() RuleStore {
	return newRules(ds.db)
}

// Analyses returns the analysis session store.
func (ds *datastore) Analyses() AnalysisStore {
	return newAnalyses(ds.db)
}

// Paragraphs returns the paragraph store.
func (ds *datastore) Paragraphs() ParagraphStore {
	return newParagraphs(ds.db)
}

// Issues returns the compliance issue store.
func (ds *datastore) Issues() IssueStore {
	return newIssues(ds.db)
}

// CacheEntries returns the cache entry store.
func (ds *datastore) CacheEntries() CacheStore {
	return newCacheEntries(ds.db)
}

// Isolated returns a factory bound to a fresh gorm session so concurrent
// units never share statement state.
func (ds *datastore) Isolated() Factory {
	return &datastore{db: ds.db.Session(&gorm.Session{NewDB: true})}
}

// AutoMigrate migrates the database schema.
func (ds *datastore) AutoMigrate() error {
	return ds.db.AutoMigrate(
		&model.RuleSet{},
		&model.Rule{},
		&model.DocumentAnalysis{},
		&model.DocumentParagraph{},
		&model.ComplianceIssue{},
		&model.CacheEntry{},
	)
}

// Close closes the factory and underlying connections.
func (ds *datastore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
