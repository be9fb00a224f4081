package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/compliance-x/internal/compliance/store"
	"github.com/kart-io/compliance-x/internal/model"
	"github.com/kart-io/compliance-x/pkg/cache"
)

// catalogMemoTTL bounds how long a catalog snapshot is reused. Rule edits
// become visible to new sessions within this window.
const catalogMemoTTL = 5 * time.Minute

// CatalogService serves point-in-time rule catalogs with an in-process memo,
// since every paragraph unit of a session asks for the same snapshot.
type CatalogService struct {
	store store.Factory
	memo  *cache.MemoryCache[string, []model.RuleDigest]
}

// NewCatalogService builds a catalog service over the given store.
func NewCatalogService(factory store.Factory) *CatalogService {
	return &CatalogService{
		store: factory,
		memo:  cache.NewMemoryCache[string, []model.RuleDigest](catalogMemoTTL),
	}
}

// Catalog returns the rules of a rule set effective at asOf. A nil asOf
// selects currently-effective rules.
func (c *CatalogService) Catalog(ctx context.Context, ruleSetID uint64, asOf *time.Time) ([]model.RuleDigest, error) {
	key := memoKey(ruleSetID, asOf)
	if digests, ok := c.memo.Get(key); ok {
		return digests, nil
	}

	digests, err := c.store.Rules().Catalog(ctx, ruleSetID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog: %w", err)
	}

	c.memo.Set(key, digests)
	return digests, nil
}

// Resolve returns the full rule records for the given numbers under the same
// temporal filter as Catalog.
func (c *CatalogService) Resolve(ctx context.Context, ruleSetID uint64, numbers []string, asOf *time.Time) ([]*model.Rule, error) {
	rules, err := c.store.Rules().ResolveByNumbers(ctx, ruleSetID, numbers, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rules: %w", err)
	}
	return rules, nil
}

// Invalidate drops memoized snapshots for a rule set after its rules change.
func (c *CatalogService) Invalidate(ruleSetID uint64) {
	prefix := fmt.Sprintf("%d|", ruleSetID)
	for _, key := range c.memo.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.memo.Del(key)
		}
	}
}

func memoKey(ruleSetID uint64, asOf *time.Time) string {
	if asOf == nil {
		return fmt.Sprintf("%d|current", ruleSetID)
	}
	return fmt.Sprintf("%d|%s", ruleSetID, asOf.Format("2006-01-02"))
}
