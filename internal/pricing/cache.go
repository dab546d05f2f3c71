// internal/pricing/cache.go
package pricing

import (
	"sync"

	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * Compiled-rule cache.
 *
 * Rules are compiled once per (ruleID, version). A save bumps the version,
 * so a stale entry is never returned for an updated rule: the lookup misses
 * and the new snapshot replaces the old one. Evaluations holding the old
 * *CompiledRule keep a consistent view because compiled rules are immutable.
 */

// DefaultCacheSize bounds the number of compiled rules kept in memory.
const DefaultCacheSize = 4096

// CompiledCache maps rule ids to their latest compiled snapshot.
// Safe for concurrent use.
type CompiledCache struct {
	mu      sync.RWMutex
	entries map[types.RuleID]*rules.CompiledRule
	limit   int
}

// NewCompiledCache returns a cache holding at most limit rules.
// A non-positive limit uses DefaultCacheSize.
func NewCompiledCache(limit int) *CompiledCache {
	if limit <= 0 {
		limit = DefaultCacheSize
	}
	return &CompiledCache{entries: make(map[types.RuleID]*rules.CompiledRule), limit: limit}
}

// Get returns the compiled form of r, compiling on a miss or version change.
func (c *CompiledCache) Get(r *types.PricingRule) (*rules.CompiledRule, error) {
	c.mu.RLock()
	cached, ok := c.entries[r.ID]
	c.mu.RUnlock()
	if ok && cached.Version() == r.Version {
		return cached, nil
	}

	compiled, err := rules.Compile(r)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[r.ID]; ok && existing.Version() > compiled.Version() {
		// a newer snapshot raced in; keep it for future callers
		return compiled, nil
	}
	if _, ok := c.entries[r.ID]; !ok && len(c.entries) >= c.limit {
		for id := range c.entries {
			delete(c.entries, id)
			break
		}
	}
	c.entries[r.ID] = compiled
	return compiled, nil
}

// Invalidate drops a rule, e.g. after a status change.
func (c *CompiledCache) Invalidate(id types.RuleID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Len reports the number of cached rules.
func (c *CompiledCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
