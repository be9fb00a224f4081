package biz

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/compliance-x/internal/model"
)

func TestCatalogMemoization(t *testing.T) {
	fx := newAnalyzerFixture(t)
	ctx := context.Background()
	catalog := NewCatalogService(fx.store)

	first, err := catalog.Catalog(ctx, fx.ruleSetID, nil)
	require.NoError(t, err)
	require.Len(t, first, 2)

	require.NoError(t, fx.store.Rules().CreateBatch(ctx, []*model.Rule{
		{RuleSetID: fx.ruleSetID, RuleNumber: "R-3", RuleTitle: "Training"},
	}))

	t.Run("memo serves the snapshot", func(t *testing.T) {
		memoized, err := catalog.Catalog(ctx, fx.ruleSetID, nil)
		require.NoError(t, err)
		assert.Len(t, memoized, 2)
	})

	t.Run("invalidate refreshes", func(t *testing.T) {
		catalog.Invalidate(fx.ruleSetID)
		fresh, err := catalog.Catalog(ctx, fx.ruleSetID, nil)
		require.NoError(t, err)
		assert.Len(t, fresh, 3)
	})

	t.Run("dated snapshots memoize independently", func(t *testing.T) {
		asOf := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		dated, err := catalog.Catalog(ctx, fx.ruleSetID, &asOf)
		require.NoError(t, err)
		assert.Len(t, dated, 3)
	})
}

func TestCacheKey(t *testing.T) {
	asOf := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	base := CacheKey("document", 1, nil)
	assert.Len(t, base, 64)
	assert.Equal(t, base, CacheKey("document", 1, nil))

	assert.NotEqual(t, base, CacheKey("document", 2, nil))
	assert.NotEqual(t, base, CacheKey("other document", 1, nil))
	assert.NotEqual(t, base, CacheKey("document", 1, &asOf))
}

func TestResultCacheDatabaseTier(t *testing.T) {
	fx := newAnalyzerFixture(t)
	ctx := context.Background()
	rc := NewResultCache(nil, fx.store.CacheEntries(), DefaultCacheConfig())

	t.Run("miss on empty cache", func(t *testing.T) {
		_, ok := rc.Get(ctx, "missing")
		assert.False(t, ok)
	})

	t.Run("put then get", func(t *testing.T) {
		rc.Put(ctx, "key-1", "session-1")
		got, ok := rc.Get(ctx, "key-1")
		require.True(t, ok)
		assert.Equal(t, "session-1", got)
	})

	t.Run("invalidate removes the entry", func(t *testing.T) {
		rc.Invalidate(ctx, "key-1")
		_, ok := rc.Get(ctx, "key-1")
		assert.False(t, ok)
	})

	t.Run("disabled cache reads and writes nothing", func(t *testing.T) {
		rc.Reload(CacheConfig{Enabled: false, TTL: time.Hour, KeyPrefix: "x:"})
		rc.Put(ctx, "key-2", "session-2")
		_, ok := rc.Get(ctx, "key-2")
		assert.False(t, ok)
	})

	t.Run("reload restores caching", func(t *testing.T) {
		rc.Reload(DefaultCacheConfig())
		rc.Put(ctx, "key-3", "session-3")
		got, ok := rc.Get(ctx, "key-3")
		require.True(t, ok)
		assert.Equal(t, "session-3", got)
	})
}

func TestRuleSetService(t *testing.T) {
	fx := newAnalyzerFixture(t)
	ctx := context.Background()
	svc := NewRuleSetService(fx.store, NewCatalogService(fx.store))

	t.Run("create requires rules", func(t *testing.T) {
		_, err := svc.Create(ctx, "empty", "", "alice", nil)
		assert.ErrorIs(t, err, ErrRuleSetEmpty)
	})

	t.Run("create derives summary and category", func(t *testing.T) {
		rs, err := svc.Create(ctx, "derived", "", "alice", []RuleInput{
			{
				RuleNumber: "4.1",
				Title:      "Record retention",
				Text:       "Every record shall be retained for six years. Disposal requires approval. Further detail follows.",
			},
			{RuleNumber: "4.1", Title: "Duplicate", Text: "Dropped."},
			{RuleNumber: "  ", Title: "Blank number", Text: "Dropped."},
		})
		require.NoError(t, err)

		digests, err := svc.Catalog(ctx, rs.ID, nil)
		require.NoError(t, err)
		require.Len(t, digests, 1)
		assert.Equal(t, "4.1", digests[0].Number)
		assert.Equal(t, "recordkeeping", digests[0].Category)
		assert.Contains(t, digests[0].Summary, "Record retention")
		assert.Contains(t, digests[0].Summary, "six years")
		assert.NotContains(t, digests[0].Summary, "Further detail")
	})

	t.Run("add rules skips existing numbers", func(t *testing.T) {
		added, err := svc.AddRules(ctx, fx.ruleSetID, []RuleInput{
			{RuleNumber: "R-1", Title: "Exists", Text: "skipped"},
			{RuleNumber: "R-9", Title: "New", Text: "added"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, added)
	})

	t.Run("add rules to unknown set", func(t *testing.T) {
		_, err := svc.AddRules(ctx, 9999, []RuleInput{{RuleNumber: "1", Text: "x"}})
		assert.ErrorIs(t, err, ErrRuleSetNotFound)
	})

	t.Run("superseded rule is not current", func(t *testing.T) {
		end := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		rs, err := svc.Create(ctx, "versioned", "", "alice", []RuleInput{
			{RuleNumber: "5.1", Title: "Old", Text: "superseded text", EffectiveEnd: &end},
			{RuleNumber: "5.2", Title: "Current", Text: "current text"},
		})
		require.NoError(t, err)

		digests, err := svc.Catalog(ctx, rs.ID, nil)
		require.NoError(t, err)
		require.Len(t, digests, 1)
		assert.Equal(t, "5.2", digests[0].Number)
	})
}

func TestDeriveCategory(t *testing.T) {
	tests := []struct {
		name     string
		category string
		title    string
		text     string
		want     string
	}{
		{"explicit category wins", "custom", "Report things", "", "custom"},
		{"reporting keywords", "", "Notification duties", "The operator shall notify the authority.", "reporting"},
		{"financial keywords", "", "", "An annual audit of capital reserves is required.", "financial"},
		{"fallback", "", "Miscellaneous", "Nothing matches here.", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveCategory(tt.category, tt.title, tt.text))
		})
	}
}

func TestDeriveSummary(t *testing.T) {
	t.Run("explicit summary wins", func(t *testing.T) {
		assert.Equal(t, "supplied", deriveSummary("  supplied  ", "Title", "text"))
	})

	t.Run("falls back to title plus leading sentences", func(t *testing.T) {
		got := deriveSummary("", "Retention", "Records are kept. They stay six years. Then they go.")
		assert.Equal(t, "Retention Records are kept. They stay six years.", got)
	})

	t.Run("caps the derived summary on a character boundary", func(t *testing.T) {
		got := deriveSummary("", "标题", strings.Repeat("条", 400)+".")
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, maxSummaryLen, utf8.RuneCountInString(got))
	})
}

func TestHistoryService(t *testing.T) {
	fx := newAnalyzerFixture(t)
	ctx := context.Background()
	history := NewHistoryService(fx.store, fx.cache)

	result, err := fx.analyzer.Submit(ctx, SubmitRequest{
		DocumentText: testDocument,
		RuleSetID:    fx.ruleSetID,
		Title:        "Quarterly policy",
		UserID:       "alice",
	})
	require.NoError(t, err)
	waitTerminal(t, fx.store, result.SessionID)

	t.Run("results expose classified paragraphs only", func(t *testing.T) {
		results, err := history.GetResults(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "Quarterly policy", results.Title)
		assert.Equal(t, model.StatusCompleted, results.Status)
		// The short heading is stored for index continuity but never
		// classified, so it stays out of the result view.
		assert.Len(t, results.Paragraphs, 3)
		assert.InDelta(t, 100.0, results.Progress, 0.01)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := history.GetResults(ctx, "no-such-session")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("list shows the owner's sessions", func(t *testing.T) {
		count, sessions, err := history.List(ctx, "alice", 0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		require.Len(t, sessions, 1)
		assert.Equal(t, result.SessionID, sessions[0].SessionID)
	})

	t.Run("rename", func(t *testing.T) {
		require.NoError(t, history.Rename(ctx, result.SessionID, "alice", "Renamed"))
		results, err := history.GetResults(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", results.Title)

		assert.ErrorIs(t, history.Rename(ctx, result.SessionID, "mallory", "Hijack"), ErrSessionNotFound)
	})

	t.Run("delete invalidates the cached fingerprint", func(t *testing.T) {
		require.NoError(t, history.Delete(ctx, result.SessionID, "alice"))

		_, err := history.GetResults(ctx, result.SessionID)
		assert.ErrorIs(t, err, ErrSessionNotFound)

		// A resubmission must not resolve to the deleted session.
		fresh, err := fx.analyzer.Submit(ctx, SubmitRequest{
			DocumentText: testDocument,
			RuleSetID:    fx.ruleSetID,
			Title:        "Quarterly policy",
			UserID:       "alice",
		})
		require.NoError(t, err)
		assert.False(t, fresh.Cached)
		waitTerminal(t, fx.store, fresh.SessionID)
	})
}
