package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kart-io/compliance-x/internal/model"
)

func newTestFactory(t *testing.T) Factory {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps every session on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	factory := NewFactory(db)
	require.NoError(t, factory.AutoMigrate())
	t.Cleanup(func() { _ = factory.Close() })
	return factory
}

func datePtr(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return &parsed
}

func seedRuleSet(t *testing.T, f Factory, rules ...*model.Rule) *model.RuleSet {
	t.Helper()
	ctx := context.Background()

	rs := &model.RuleSet{Name: "test-" + time.Now().Format("150405.000000000"), IsActive: true}
	require.NoError(t, f.RuleSets().Create(ctx, rs))

	for _, r := range rules {
		r.RuleSetID = rs.ID
	}
	if len(rules) > 0 {
		require.NoError(t, f.Rules().CreateBatch(ctx, rules))
	}
	return rs
}

func TestCatalogTemporalFilter(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	rs := seedRuleSet(t, f,
		&model.Rule{RuleNumber: "1.1", RuleTitle: "Open ended", EffectiveStart: datePtr(t, "2020-01-01")},
		&model.Rule{RuleNumber: "1.2", RuleTitle: "Superseded", EffectiveStart: datePtr(t, "2020-01-01"), EffectiveEnd: datePtr(t, "2023-06-01")},
		&model.Rule{RuleNumber: "1.3", RuleTitle: "Future", EffectiveStart: datePtr(t, "2030-01-01")},
		&model.Rule{RuleNumber: "1.4", RuleTitle: "No bounds"},
	)

	t.Run("nil as-of returns open-ended rules only", func(t *testing.T) {
		digests, err := f.Rules().Catalog(ctx, rs.ID, nil)
		require.NoError(t, err)

		numbers := digestNumbers(digests)
		assert.ElementsMatch(t, []string{"1.1", "1.3", "1.4"}, numbers)
	})

	t.Run("as-of inside superseded window", func(t *testing.T) {
		digests, err := f.Rules().Catalog(ctx, rs.ID, datePtr(t, "2022-01-01"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"1.1", "1.2", "1.4"}, digestNumbers(digests))
	})

	t.Run("end date is exclusive", func(t *testing.T) {
		digests, err := f.Rules().Catalog(ctx, rs.ID, datePtr(t, "2023-06-01"))
		require.NoError(t, err)
		assert.NotContains(t, digestNumbers(digests), "1.2")
	})

	t.Run("start date is inclusive", func(t *testing.T) {
		digests, err := f.Rules().Catalog(ctx, rs.ID, datePtr(t, "2030-01-01"))
		require.NoError(t, err)
		assert.Contains(t, digestNumbers(digests), "1.3")
	})
}

func TestResolveByNumbers(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	rs := seedRuleSet(t, f,
		&model.Rule{RuleNumber: "2.1", RuleText: "full text"},
		&model.Rule{RuleNumber: "2.2", RuleText: "other text", EffectiveEnd: datePtr(t, "2021-01-01")},
	)

	rules, err := f.Rules().ResolveByNumbers(ctx, rs.ID, []string{"2.1", "2.2", "9.9"}, nil)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "2.1", rules[0].RuleNumber)
	assert.Equal(t, "full text", rules[0].RuleText)
}

func TestStopIfProcessing(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	session := &model.DocumentAnalysis{
		SessionID:  "sess-stop",
		AnalyzedBy: "alice",
		Status:     model.StatusProcessing,
	}
	require.NoError(t, f.Analyses().Create(ctx, session))

	t.Run("wrong user is a no-op", func(t *testing.T) {
		stopped, err := f.Analyses().StopIfProcessing(ctx, "sess-stop", "mallory")
		require.NoError(t, err)
		assert.False(t, stopped)
	})

	t.Run("owner stops a processing session", func(t *testing.T) {
		stopped, err := f.Analyses().StopIfProcessing(ctx, "sess-stop", "alice")
		require.NoError(t, err)
		assert.True(t, stopped)

		got, err := f.Analyses().GetBySessionID(ctx, "sess-stop")
		require.NoError(t, err)
		assert.Equal(t, model.StatusStopped, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("second stop is a no-op", func(t *testing.T) {
		stopped, err := f.Analyses().StopIfProcessing(ctx, "sess-stop", "alice")
		require.NoError(t, err)
		assert.False(t, stopped)
	})
}

func TestAdvanceProgress(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	session := &model.DocumentAnalysis{
		SessionID:       "sess-progress",
		AnalyzedBy:      "alice",
		Status:          model.StatusProcessing,
		TotalParagraphs: 40,
	}
	require.NoError(t, f.Analyses().Create(ctx, session))

	require.NoError(t, f.Analyses().AdvanceProgress(ctx, session.ID, 20))
	require.NoError(t, f.Analyses().AdvanceProgress(ctx, session.ID, 20))

	got, err := f.Analyses().GetBySessionID(ctx, "sess-progress")
	require.NoError(t, err)
	assert.Equal(t, 40, got.ParagraphsProcessed)
	assert.InDelta(t, 100.0, got.ProgressPercentage(), 0.01)
}

func TestMarkStaleProcessing(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	stale := &model.DocumentAnalysis{SessionID: "sess-stale", Status: model.StatusProcessing}
	fresh := &model.DocumentAnalysis{SessionID: "sess-fresh", Status: model.StatusProcessing}
	done := &model.DocumentAnalysis{SessionID: "sess-done", Status: model.StatusCompleted}
	require.NoError(t, f.Analyses().Create(ctx, stale))
	require.NoError(t, f.Analyses().Create(ctx, fresh))
	require.NoError(t, f.Analyses().Create(ctx, done))

	// Age the stale session's last access.
	require.NoError(t, f.Analyses().Touch(ctx, fresh.ID))
	old := time.Now().Add(-time.Hour)
	db := f.(*datastore).db
	require.NoError(t, db.Model(&model.DocumentAnalysis{}).
		Where("id = ?", stale.ID).
		Update("last_accessed_at", old).Error)

	reconciled, err := f.Analyses().MarkStaleProcessing(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reconciled)

	got, err := f.Analyses().GetBySessionID(ctx, "sess-stale")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)

	got, err = f.Analyses().GetBySessionID(ctx, "sess-fresh")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
}

func TestSessionDeleteCascades(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	session := &model.DocumentAnalysis{SessionID: "sess-del", AnalyzedBy: "alice", Status: model.StatusCompleted}
	require.NoError(t, f.Analyses().Create(ctx, session))

	require.NoError(t, f.Paragraphs().CreateBatch(ctx, []*model.DocumentParagraph{
		{AnalysisID: session.ID, ParagraphIndex: 0, Content: "a", Analyzable: true},
		{AnalysisID: session.ID, ParagraphIndex: 1, Content: "b", Analyzable: false},
	}))
	require.NoError(t, f.Issues().CreateBatch(ctx, []*model.ComplianceIssue{
		{AnalysisID: session.ID, RuleNumber: "1.1", Severity: model.SeverityHigh, IssueType: model.IssueViolation},
	}))

	t.Run("foreign owner cannot delete", func(t *testing.T) {
		deleted, err := f.Analyses().Delete(ctx, "sess-del", "mallory")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("owner delete removes dependents", func(t *testing.T) {
		deleted, err := f.Analyses().Delete(ctx, "sess-del", "alice")
		require.NoError(t, err)
		assert.True(t, deleted)

		paragraphs, err := f.Paragraphs().ListByAnalysis(ctx, session.ID)
		require.NoError(t, err)
		assert.Empty(t, paragraphs)

		count, err := f.Issues().CountByAnalysis(ctx, session.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("missing session deletes false without error", func(t *testing.T) {
		deleted, err := f.Analyses().Delete(ctx, "sess-del", "alice")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestSetClassification(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	session := &model.DocumentAnalysis{SessionID: "sess-class", Status: model.StatusProcessing}
	require.NoError(t, f.Analyses().Create(ctx, session))

	paragraphs := []*model.DocumentParagraph{
		{AnalysisID: session.ID, ParagraphIndex: 0, Content: "text", Analyzable: true},
		{AnalysisID: session.ID, ParagraphIndex: 1, Content: "more", Analyzable: true},
	}
	require.NoError(t, f.Paragraphs().CreateBatch(ctx, paragraphs))

	t.Run("rules recorded", func(t *testing.T) {
		require.NoError(t, f.Paragraphs().SetClassification(ctx, paragraphs[0].ID, []string{"1.1", "1.2"}, 0.85))

		got, err := f.Paragraphs().Get(ctx, paragraphs[0].ID)
		require.NoError(t, err)
		require.True(t, got.Classified())
		assert.Equal(t, model.StringList{"1.1", "1.2"}, *got.ApplicableRules)
		require.NotNil(t, got.ClassificationConfidence)
		assert.InDelta(t, 0.85, *got.ClassificationConfidence, 0.0001)
	})

	t.Run("no applicable rules still marks classified", func(t *testing.T) {
		require.NoError(t, f.Paragraphs().SetClassification(ctx, paragraphs[1].ID, nil, 0.85))

		got, err := f.Paragraphs().Get(ctx, paragraphs[1].ID)
		require.NoError(t, err)
		require.True(t, got.Classified())
		assert.Empty(t, *got.ApplicableRules)
	})
}

func TestCacheStoreExpiry(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	require.NoError(t, f.CacheEntries().Put(ctx, "live", "session-1", time.Now().Add(time.Hour)))
	require.NoError(t, f.CacheEntries().Put(ctx, "dead", "session-2", time.Now().Add(-time.Minute)))

	t.Run("live entry readable", func(t *testing.T) {
		payload, ok, err := f.CacheEntries().Get(ctx, "live")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "session-1", payload)
	})

	t.Run("expired entry reads as absent", func(t *testing.T) {
		_, ok, err := f.CacheEntries().Get(ctx, "dead")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("upsert replaces payload", func(t *testing.T) {
		require.NoError(t, f.CacheEntries().Put(ctx, "live", "session-3", time.Now().Add(time.Hour)))
		payload, ok, err := f.CacheEntries().Get(ctx, "live")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "session-3", payload)
	})

	t.Run("purge drops expired rows", func(t *testing.T) {
		purged, err := f.CacheEntries().PurgeExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged)
	})
}

func TestRuleSetDeleteCascades(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	rs := seedRuleSet(t, f, &model.Rule{RuleNumber: "3.1"})

	session := &model.DocumentAnalysis{SessionID: "sess-rs", RuleSetID: rs.ID, Status: model.StatusCompleted}
	require.NoError(t, f.Analyses().Create(ctx, session))
	require.NoError(t, f.Paragraphs().CreateBatch(ctx, []*model.DocumentParagraph{
		{AnalysisID: session.ID, ParagraphIndex: 0, Content: "x"},
	}))

	require.NoError(t, f.RuleSets().Delete(ctx, rs.ID))

	_, err := f.RuleSets().Get(ctx, rs.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = f.Analyses().GetBySessionID(ctx, "sess-rs")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func digestNumbers(digests []model.RuleDigest) []string {
	numbers := make([]string, 0, len(digests))
	for _, d := range digests {
		numbers = append(numbers, d.Number)
	}
	return numbers
}
