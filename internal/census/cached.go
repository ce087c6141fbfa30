package census

import (
	"context"

	"braindrain/internal/acs"
	"braindrain/internal/cache"
)

// Cached memoises a Fetcher per table and variable-code set.
type Cached struct {
	next  Fetcher
	cache cache.Cache[[]acs.StateRecord]
}

// NewCached wraps next with c. A nil cache means an in-memory one.
func NewCached(next Fetcher, c cache.Cache[[]acs.StateRecord]) *Cached {
	if c == nil {
		c = cache.NewMemory[[]acs.StateRecord]()
	}
	return &Cached{next: next, cache: c}
}

// Fetch implements Fetcher.
func (c *Cached) Fetch(ctx context.Context, table acs.Table) ([]acs.StateRecord, error) {
	return c.cache.GetOrCompute(ctx, table.CacheKey(), func(ctx context.Context) ([]acs.StateRecord, error) {
		return c.next.Fetch(ctx, table)
	})
}
