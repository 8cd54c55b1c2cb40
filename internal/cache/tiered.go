package cache

import (
	"context"

	"github.com/stwalsh4118/siteplan/internal/metrics"
)

// Tier names used in metrics.
const (
	TierLocal = "local"
	TierRedis = "redis"
)

type tier struct {
	name  string
	cache Cache
}

// Tiered reads through its tiers in order and back-fills faster tiers on a
// hit in a slower one. Writes go to every tier.
type Tiered struct {
	tiers []tier
}

// NewTiered stacks a local tier over an optional Redis tier.
func NewTiered(local *Local, remote *Redis) *Tiered {
	t := &Tiered{}
	if local != nil {
		t.tiers = append(t.tiers, tier{name: TierLocal, cache: local})
	}
	if remote != nil {
		t.tiers = append(t.tiers, tier{name: TierRedis, cache: remote})
	}
	return t
}

// Get returns the first hit.
func (t *Tiered) Get(ctx context.Context, key Key) (*Entry, bool) {
	for i, tr := range t.tiers {
		e, ok := tr.cache.Get(ctx, key)
		if !ok {
			continue
		}
		metrics.CacheHitsTotal.WithLabelValues(tr.name).Inc()
		for _, faster := range t.tiers[:i] {
			faster.cache.Set(ctx, key, e)
		}
		return e, true
	}
	metrics.CacheMissesTotal.Inc()
	return nil, false
}

// Set writes to every tier.
func (t *Tiered) Set(ctx context.Context, key Key, e *Entry) {
	for _, tr := range t.tiers {
		tr.cache.Set(ctx, key, e)
	}
}

// InvalidateRegion forwards to every tier.
func (t *Tiered) InvalidateRegion(ctx context.Context, region string) {
	for _, tr := range t.tiers {
		tr.cache.InvalidateRegion(ctx, region)
	}
}
