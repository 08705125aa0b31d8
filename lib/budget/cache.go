// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"context"
	"time"

	"github.com/bluele/gcache"

	"github.com/bureau-foundation/handoff/lib/clock"
)

// DefaultRefresh is how long a cached estimate is served.
const DefaultRefresh = 5 * time.Minute

// FallbackRefresh is how long an estimate that used any fallback
// figure is served, when shorter than the refresh interval.
const FallbackRefresh = 15 * time.Second

const cacheKey = "budgets"

// Cache serves a recent estimate for a fixed sample, re-estimating
// after the refresh interval. Safe for concurrent use.
type Cache struct {
	estimator *Estimator
	sample    Sample
	entries   gcache.Cache
	retry     time.Duration
}

// NewCache returns a Cache over estimator. A zero refresh uses
// DefaultRefresh.
func NewCache(estimator *Estimator, sample Sample, refresh time.Duration, clk clock.Clock) *Cache {
	if refresh == 0 {
		refresh = DefaultRefresh
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Cache{
		estimator: estimator,
		sample:    sample,
		entries:   gcache.New(1).Simple().Clock(clk).Expiration(refresh).Build(),
		retry:     min(refresh, FallbackRefresh),
	}
}

// Budgets returns the cached estimate, estimating first if it is
// missing or stale. An estimate that fell back is kept only for
// FallbackRefresh so a recovered node is measured again soon.
func (c *Cache) Budgets(ctx context.Context) Budgets {
	if cached, err := c.entries.Get(cacheKey); err == nil {
		return cached.(Budgets)
	}
	estimate, measured := c.estimator.estimate(ctx, c.sample)
	if measured {
		c.entries.Set(cacheKey, estimate)
	} else {
		c.entries.SetWithExpire(cacheKey, estimate, c.retry)
	}
	return estimate
}

// Invalidate drops the cached estimate.
func (c *Cache) Invalidate() {
	c.entries.Remove(cacheKey)
}
