package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stwalsh4118/siteplan/internal/geom"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/metrics"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/store"
)

var (
	// ErrParcelNotFound is returned when no live parcel has the key.
	ErrParcelNotFound = errors.New("parcel not found")
	// ErrUnzonedParcel is returned when no zone intersects the parcel.
	ErrUnzonedParcel = errors.New("parcel is not covered by any zone")
	// ErrAmbiguousZone is wrapped by AmbiguousZoneError.
	ErrAmbiguousZone = errors.New("no zone covers a clear majority of the parcel")
)

// AmbiguousZoneError carries the competing zones of a parcel that straddles
// boundaries without a clear majority.
type AmbiguousZoneError struct {
	LotPlan    string
	Threshold  float64
	Candidates []models.ZoneCandidate
}

func (e *AmbiguousZoneError) Error() string {
	parts := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		parts[i] = fmt.Sprintf("%s %.1f%%", c.Code, c.Fraction*100)
	}
	return fmt.Sprintf("%s: parcel %s split across %s (threshold %.0f%%)",
		ErrAmbiguousZone, e.LotPlan, strings.Join(parts, ", "), e.Threshold*100)
}

func (e *AmbiguousZoneError) Unwrap() error {
	return ErrAmbiguousZone
}

// Config holds resolution settings.
type Config struct {
	// MajorityThreshold is the fraction of the parcel the top zone must
	// cover when several zones intersect it.
	MajorityThreshold float64
	Tolerance         geom.Tolerance
}

// Resolver computes a parcel's planning context from a store snapshot. It
// holds no mutable state and is safe for concurrent use.
type Resolver struct {
	cfg Config
	log *logger.Logger
}

// New creates a Resolver.
func New(cfg Config, log *logger.Logger) *Resolver {
	if cfg.MajorityThreshold <= 0 {
		cfg.MajorityThreshold = 0.5
	}
	if cfg.Tolerance.Epsilon <= 0 {
		cfg.Tolerance = geom.NewTolerance(0)
	}
	return &Resolver{cfg: cfg, log: log.WithComponent("resolver")}
}

// Resolve looks up a parcel by lot/plan and resolves it against snap.
func (r *Resolver) Resolve(snap *store.Snapshot, lotPlan string) (*models.ResolvedContext, error) {
	p, ok := snap.Parcel(lotPlan)
	if !ok {
		metrics.ResolveTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: %s", ErrParcelNotFound, lotPlan)
	}
	return r.ResolveParcel(snap, p)
}

// ResolveParcel resolves p's authoritative zone and overlays. Areas are
// measured in a plane centred on the parcel, so the result depends only on
// the geometry in snap.
func (r *Resolver) ResolveParcel(snap *store.Snapshot, p *models.Parcel) (*models.ResolvedContext, error) {
	tol := r.cfg.Tolerance
	proj := geom.NewProjector(p.Geometry.Bound())
	parcel := proj.MultiPolygon(p.Geometry)
	area := geom.Area(parcel)

	rc := &models.ResolvedContext{
		Parcel:        p,
		Candidates:    []models.ZoneCandidate{},
		Overlays:      []models.OverlayHit{},
		RegionVersion: snap.RegionVersion(p.Region),
	}
	if a, ok := snap.Address(p.LotPlan); ok {
		rc.Address = a
	}

	idx := snap.Region(p.Region)
	if idx != nil {
		bound := p.Geometry.Bound()
		for _, z := range idx.Zones.Search(bound) {
			inter := geom.IntersectionArea(parcel, proj.MultiPolygon(z.Geometry))
			frac := tol.Fraction(inter, area)
			if tol.Zero(frac) {
				continue
			}
			rc.Candidates = append(rc.Candidates, models.ZoneCandidate{
				Key:       z.Key,
				Code:      z.Code,
				ShortCode: z.ShortCode,
				Scheme:    z.Scheme,
				AreaSqm:   inter,
				Fraction:  frac,
			})
		}
		for _, o := range idx.Overlays.Search(bound) {
			inter := geom.IntersectionArea(parcel, proj.MultiPolygon(o.Geometry))
			frac := tol.Fraction(inter, area)
			if tol.Zero(frac) {
				continue
			}
			rc.Overlays = append(rc.Overlays, models.OverlayHit{
				Attributes: o.Attributes,
				Key:        o.Key,
				Type:       o.Type,
				Code:       o.Code,
				Name:       o.Name,
				AreaSqm:    inter,
				Fraction:   frac,
			})
		}
	}

	sortCandidates(rc.Candidates)
	sortOverlays(rc.Overlays)

	zone, err := r.pickZone(p.LotPlan, rc.Candidates)
	if err != nil {
		return nil, err
	}
	rc.Zone = zone
	metrics.ResolveTotal.WithLabelValues("resolved").Inc()
	return rc, nil
}

// sortCandidates orders zones by raw fraction, largest first, then key.
// Raw fractions keep this a strict weak order; the tolerance only applies
// when pickZone compares the leaders.
func sortCandidates(cands []models.ZoneCandidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Fraction != b.Fraction {
			return a.Fraction > b.Fraction
		}
		return a.Key < b.Key
	})
}

// sortOverlays orders overlays by raw fraction, then type, code and key.
func sortOverlays(hits []models.OverlayHit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Fraction != b.Fraction {
			return a.Fraction > b.Fraction
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Key < b.Key
	})
}

// pickZone applies the majority rule to sorted candidates.
func (r *Resolver) pickZone(lotPlan string, cands []models.ZoneCandidate) (*models.ZoneCandidate, error) {
	tol := r.cfg.Tolerance
	switch len(cands) {
	case 0:
		metrics.ResolveTotal.WithLabelValues("unzoned").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnzonedParcel, lotPlan)
	case 1:
		z := cands[0]
		return &z, nil
	}

	top := cands[0]
	if tol.GreaterOrEqual(top.Fraction, r.cfg.MajorityThreshold) && tol.Compare(top.Fraction, cands[1].Fraction) > 0 {
		return &top, nil
	}

	metrics.ResolveTotal.WithLabelValues("ambiguous").Inc()
	r.log.Debug("Ambiguous zone", map[string]interface{}{
		"lot_plan":   lotPlan,
		"candidates": len(cands),
		"top":        top.Fraction,
	})
	return nil, &AmbiguousZoneError{
		LotPlan:    lotPlan,
		Threshold:  r.cfg.MajorityThreshold,
		Candidates: append([]models.ZoneCandidate(nil), cands...),
	}
}
