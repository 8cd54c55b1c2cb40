// Package cache is the read-through cache for derived parcel results. Entries
// carry the region geometry version they were computed against, and that
// version is part of every key, so a promotion makes older entries
// unreachable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kinds of cached result.
const (
	KindContext  = "context"
	KindEnvelope = "envelope"
)

// Key identifies a cached result. Region is not part of the rendered key; it
// lets the local tier evict a region eagerly. Rule identifies the planning
// rule revision an envelope was computed from, since rule rows change
// independently of geometry.
type Key struct {
	Kind     string
	Region   string
	Parcel   string
	Version  int64
	Frontage string
	Rule     string
}

// String renders {kind}:{parcel}:{version}[:{frontage}][:{rule}].
func (k Key) String() string {
	s := fmt.Sprintf("%s:%s:%d", k.Kind, k.Parcel, k.Version)
	if k.Frontage != "" {
		s += ":" + k.Frontage
	}
	if k.Rule != "" {
		s += ":" + k.Rule
	}
	return s
}

// Entry is a cached value with its provenance.
type Entry struct {
	Value      json.RawMessage `json:"value"`
	Version    int64           `json:"version"`
	ComputedAt time.Time       `json:"computed_at"`
}

// Cache is one cache tier or a stack of them.
type Cache interface {
	Get(ctx context.Context, key Key) (*Entry, bool)
	Set(ctx context.Context, key Key, e *Entry)
	InvalidateRegion(ctx context.Context, region string)
}

// Meta describes where a fetched value came from.
type Meta struct {
	Version    int64     `json:"version"`
	ComputedAt time.Time `json:"computed_at"`
	Cached     bool      `json:"cached"`
}

// Fetch returns the cached value for key, or computes and stores it. With
// fresh set the read is skipped but the recomputed value is still written.
// A nil cache always computes.
func Fetch[T any](ctx context.Context, c Cache, key Key, fresh bool, compute func() (T, error)) (T, Meta, error) {
	var zero T
	if c != nil && !fresh {
		if e, ok := c.Get(ctx, key); ok {
			var v T
			if err := json.Unmarshal(e.Value, &v); err == nil {
				return v, Meta{Version: e.Version, ComputedAt: e.ComputedAt, Cached: true}, nil
			}
		}
	}

	v, err := compute()
	if err != nil {
		return zero, Meta{}, err
	}
	meta := Meta{Version: key.Version, ComputedAt: time.Now().UTC()}
	if c != nil {
		if raw, err := json.Marshal(v); err == nil {
			c.Set(ctx, key, &Entry{Value: raw, Version: key.Version, ComputedAt: meta.ComputedAt})
		}
	}
	return v, meta, nil
}
