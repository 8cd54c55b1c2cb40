package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/stwalsh4118/siteplan/internal/cache"
	"github.com/stwalsh4118/siteplan/internal/envelope"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/resolver"
	"github.com/stwalsh4118/siteplan/internal/rules"
	"github.com/stwalsh4118/siteplan/internal/store"
)

// Service-level errors
var (
	ErrInvalidLotPlan  = errors.New("lot_plan must look like LOT/PLAN, e.g. 3/RP12345")
	ErrInvalidZone     = errors.New("zone and region are required")
	ErrInvalidFrontage = errors.New("invalid frontage bearing")
)

// Options controls cache use for a read.
type Options struct {
	// Fresh skips the cache read; the recomputed value is still cached.
	Fresh bool
}

// EnvelopeOptions adds the frontage input to Options.
type EnvelopeOptions struct {
	Options
	// FrontageBearing overrides the frontage derived from the address point.
	FrontageBearing *float64
}

// ContextResult is a resolved context and the cache provenance.
type ContextResult struct {
	Context *models.ResolvedContext `json:"context"`
	Meta    cache.Meta              `json:"meta"`
}

// EnvelopeResult is everything behind an envelope. Envelope is nil when the
// rule is unavailable; Rules says why.
type EnvelopeResult struct {
	Context  *models.ResolvedContext   `json:"context"`
	Rules    *rules.Result             `json:"rules"`
	Envelope *models.BuildableEnvelope `json:"envelope"`
	Frontage *envelope.Frontage        `json:"frontage,omitempty"`
	Meta     cache.Meta                `json:"meta"`
}

// BuildabilityService defines the core read operations.
type BuildabilityService interface {
	// ResolveContext returns the parcel's authoritative zone and overlays.
	// Returns resolver.ErrParcelNotFound, resolver.ErrUnzonedParcel or a
	// *resolver.AmbiguousZoneError when resolution fails.
	ResolveContext(ctx context.Context, lotPlan string, opts Options) (*ContextResult, error)

	// AggregateRules returns the planning rule for a zone, or an unavailable
	// result. Only repository failures are errors.
	AggregateRules(ctx context.Context, zoneCode, region string) (*rules.Result, error)

	// Envelope resolves the parcel, aggregates its rule and computes the
	// buildable envelope. Resolution failures are returned as errors; a
	// missing rule is not.
	Envelope(ctx context.Context, lotPlan string, opts EnvelopeOptions) (*EnvelopeResult, error)
}

// SnapshotSource returns the promoted geometry snapshot.
type SnapshotSource interface {
	Current() *store.Snapshot
}

// ContextResolver resolves a parcel against a snapshot.
type ContextResolver interface {
	Resolve(snap *store.Snapshot, lotPlan string) (*models.ResolvedContext, error)
}

// RuleAggregator looks up planning rules.
type RuleAggregator interface {
	Aggregate(ctx context.Context, zoneCode, region string) (*rules.Result, error)
	ForContext(ctx context.Context, rc *models.ResolvedContext) (*rules.Result, error)
}

// EnvelopeCalculator computes envelopes.
type EnvelopeCalculator interface {
	Compute(in envelope.Input) (*models.BuildableEnvelope, error)
}

type buildabilityService struct {
	snapshots  SnapshotSource
	resolver   ContextResolver
	aggregator RuleAggregator
	calculator EnvelopeCalculator
	cache      cache.Cache
	log        *logger.Logger
}

// NewBuildabilityService creates a BuildabilityService. c may be nil to
// disable caching.
func NewBuildabilityService(snapshots SnapshotSource, r ContextResolver, a RuleAggregator, calc EnvelopeCalculator, c cache.Cache, log *logger.Logger) BuildabilityService {
	return &buildabilityService{
		snapshots:  snapshots,
		resolver:   r,
		aggregator: a,
		calculator: calc,
		cache:      c,
		log:        log,
	}
}

// NormalizeLotPlan canonicalises a lot/plan key: "3/rp12345 " → "3/RP12345".
func NormalizeLotPlan(s string) (string, error) {
	lot, plan, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || strings.Contains(plan, "/") {
		return "", ErrInvalidLotPlan
	}
	key := models.LotPlanKey(lot, plan)
	if key == "" {
		return "", ErrInvalidLotPlan
	}
	return key, nil
}

// ResolveContext resolves against the current snapshot through the cache.
func (s *buildabilityService) ResolveContext(ctx context.Context, lotPlan string, opts Options) (*ContextResult, error) {
	key, err := NormalizeLotPlan(lotPlan)
	if err != nil {
		return nil, err
	}
	snap := s.snapshots.Current()
	rc, meta, err := s.resolveContext(ctx, snap, key, opts.Fresh)
	if err != nil {
		return nil, err
	}
	return &ContextResult{Context: rc, Meta: meta}, nil
}

func (s *buildabilityService) resolveContext(ctx context.Context, snap *store.Snapshot, lotPlan string, fresh bool) (*models.ResolvedContext, cache.Meta, error) {
	parcel, ok := snap.Parcel(lotPlan)
	if !ok {
		return nil, cache.Meta{}, fmt.Errorf("%w: %s", resolver.ErrParcelNotFound, lotPlan)
	}
	k := cache.Key{
		Kind:    cache.KindContext,
		Region:  parcel.Region,
		Parcel:  lotPlan,
		Version: snap.RegionVersion(parcel.Region),
	}
	rc, meta, err := cache.Fetch(ctx, s.cache, k, fresh, func() (*models.ResolvedContext, error) {
		return s.resolver.Resolve(snap, lotPlan)
	})
	if err != nil {
		s.log.Debug("Parcel resolution failed", map[string]interface{}{
			"lot_plan": lotPlan,
			"error":    err.Error(),
		})
		return nil, cache.Meta{}, err
	}
	// the geometry is not serialised, so a cached context gets it back from
	// the snapshot it was keyed against
	if rc.Parcel != nil && rc.Parcel.Geometry == nil {
		rc.Parcel.Geometry = parcel.Geometry
	}
	return rc, meta, nil
}

// AggregateRules validates its input and forwards to the aggregator.
func (s *buildabilityService) AggregateRules(ctx context.Context, zoneCode, region string) (*rules.Result, error) {
	zoneCode, region = strings.TrimSpace(zoneCode), strings.TrimSpace(region)
	if zoneCode == "" || region == "" {
		return nil, ErrInvalidZone
	}
	return s.aggregator.Aggregate(ctx, zoneCode, region)
}

// Envelope binds one snapshot for the whole computation.
func (s *buildabilityService) Envelope(ctx context.Context, lotPlan string, opts EnvelopeOptions) (*EnvelopeResult, error) {
	key, err := NormalizeLotPlan(lotPlan)
	if err != nil {
		return nil, err
	}
	snap := s.snapshots.Current()

	rc, meta, err := s.resolveContext(ctx, snap, key, opts.Fresh)
	if err != nil {
		return nil, err
	}
	res, err := s.aggregator.ForContext(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate rules for %s: %w", key, err)
	}

	frontage, err := s.frontage(snap, rc, opts.FrontageBearing)
	if err != nil {
		return nil, err
	}
	out := &EnvelopeResult{Context: rc, Rules: res, Frontage: frontage, Meta: meta}
	if !res.Available() {
		s.log.Info("Envelope not computed, rules unavailable", map[string]interface{}{
			"lot_plan": key,
			"zone":     rc.Zone.Code,
			"reason":   res.Reason,
		})
		return out, nil
	}

	k := cache.Key{
		Kind:     cache.KindEnvelope,
		Region:   rc.Parcel.Region,
		Parcel:   key,
		Version:  rc.RegionVersion,
		Frontage: frontage.Key(),
		Rule:     fmt.Sprintf("r%d.%d", res.Rule.ID, res.Rule.UpdatedAt.Unix()),
	}
	env, envMeta, err := cache.Fetch(ctx, s.cache, k, opts.Fresh, func() (*models.BuildableEnvelope, error) {
		return s.calculator.Compute(envelope.Input{
			Parcel:       rc.Parcel,
			Rule:         res.Rule,
			Density:      res.Density,
			ZoneCode:     rc.Zone.Code,
			HeightSource: res.HeightSource,
			Overlays:     rc.Overlays,
			Frontage:     frontage,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute envelope for %s: %w", key, err)
	}
	out.Envelope = env
	out.Meta.Cached = meta.Cached && envMeta.Cached
	return out, nil
}

// frontage prefers the caller's bearing, then the address point.
func (s *buildabilityService) frontage(snap *store.Snapshot, rc *models.ResolvedContext, bearing *float64) (*envelope.Frontage, error) {
	if bearing != nil {
		f, err := envelope.NewFrontage(*bearing, envelope.FrontageFromRequest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontage, err)
		}
		return f, nil
	}
	addr := rc.Address
	if addr == nil {
		if a, ok := snap.Address(rc.Parcel.LotPlan); ok {
			addr = a
		}
	}
	if addr == nil || rc.Parcel.Geometry == nil {
		return nil, nil
	}
	return envelope.FrontageTowards(rc.Parcel.Geometry, orb.Point{addr.Lon, addr.Lat}), nil
}
