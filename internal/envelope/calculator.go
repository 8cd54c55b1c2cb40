// Package envelope computes the buildable envelope of a parcel from its
// geometry and the planning rule that governs it. Everything here is a pure
// function of its inputs: no I/O, no shared state.
package envelope

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/stwalsh4118/siteplan/internal/geom"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/rules"
)

var (
	ErrNoRule = errors.New("envelope requires a planning rule")
	ErrNoArea = errors.New("envelope requires a parcel area")
)

// Config tunes confidence propagation.
type Config struct {
	// PrecisionPenalty is subtracted from 1.0 when setbacks fall back to
	// uniform erosion.
	PrecisionPenalty float64
	// UnknownConfidence stands in for a rule without an extraction
	// confidence.
	UnknownConfidence float64
	Tolerance         geom.Tolerance
}

// Input is everything the calculator reads.
type Input struct {
	Parcel       *models.Parcel
	Rule         *models.PlanningRule
	Density      *rules.Density
	ZoneCode     string
	HeightSource string
	Overlays     []models.OverlayHit
	// Frontage is nil when the road frontage is unknown.
	Frontage *Frontage
}

// Calculator computes buildable envelopes.
type Calculator struct {
	cfg Config
}

// New creates a Calculator.
func New(cfg Config) *Calculator {
	if cfg.Tolerance.Epsilon <= 0 {
		cfg.Tolerance = geom.NewTolerance(0)
	}
	return &Calculator{cfg: cfg}
}

// Compute returns the envelope for in. Numeric outputs whose governing rule
// field is absent stay nil rather than defaulting.
func (c *Calculator) Compute(in Input) (*models.BuildableEnvelope, error) {
	if in.Rule == nil {
		return nil, ErrNoRule
	}
	if in.Parcel == nil || in.Parcel.AreaSqm <= 0 {
		return nil, ErrNoArea
	}
	area := in.Parcel.AreaSqm
	rule := in.Rule
	tol := c.cfg.Tolerance

	env := &models.BuildableEnvelope{
		LotPlan:          in.Parcel.LotPlan,
		ZoneCode:         in.ZoneCode,
		ParcelAreaSqm:    round2(area),
		MaxHeightM:       copyFloat(rule.MaxHeightM),
		MaxStoreys:       copyInt(rule.MaxStoreys),
		HeightSource:     in.HeightSource,
		Flags:            []models.EnvelopeFlag{},
		Constraints:      Constraints(in.Overlays),
		ComplianceIssues: []string{},
		LotCompliant:     true,
	}
	if env.ZoneCode == "" {
		env.ZoneCode = rule.ZoneCode
	}

	var footprint *float64
	if rule.MaxSiteCoverPct != nil {
		footprint = models.Float(area * *rule.MaxSiteCoverPct / 100)
	}

	buildable, method := c.buildableArea(in)
	env.SetbackMethod = method
	if method == models.SetbackUniform {
		env.Flags = append(env.Flags, models.FlagReducedPrecision)
	}

	if footprint != nil {
		effective := *footprint
		if buildable != nil {
			effective = math.Min(effective, *buildable)
		}
		env.MaxFootprintSqm = models.Float(round2(*footprint))
		env.EffectiveFootprintSqm = models.Float(round2(effective))

		gfa := *footprint
		if rule.MaxStoreys != nil {
			gfa = math.Min(*footprint*float64(*rule.MaxStoreys), area)
		}
		env.MaxGFASqm = models.Float(round2(gfa))
	}
	if buildable != nil {
		env.BuildableAreaSqm = models.Float(round2(*buildable))
	}

	subMinimum := false
	if rule.MinLotSizeSqm != nil && *rule.MinLotSizeSqm > 0 {
		minLot := *rule.MinLotSizeSqm
		subMinimum = area < minLot && !tol.ZeroArea(minLot-area, minLot)
		env.Subdivision = &models.Subdivision{
			MinLotSizeSqm: minLot,
			MaxNewLots:    int(math.Floor(area / minLot)),
			CanSubdivide:  tol.GreaterOrEqual(area/(2*minLot), 1),
		}
		if subMinimum {
			env.LotCompliant = false
			env.Flags = append(env.Flags, models.FlagSubMinimumLot)
			env.ComplianceIssues = append(env.ComplianceIssues,
				fmt.Sprintf("Lot is %.0f m² but the zone requires a minimum of %.0f m²", area, minLot))
		}
	}
	if f := rule.MinFrontageM; f != nil && *f > 0 {
		env.ComplianceIssues = append(env.ComplianceIssues,
			fmt.Sprintf("Frontage of at least %g m cannot be verified without survey", *f))
	}

	switch {
	case subMinimum:
		env.MaxDwellings = models.Int(0)
	case in.Density != nil:
		env.MaxDwellings = models.Int(in.Density.Dwellings(area))
	}

	env.Confidence = c.confidence(rule, env.HasFlag(models.FlagReducedPrecision))
	return env, nil
}

// buildableArea erodes the parcel by its setbacks. It needs the parcel
// geometry and all three setback distances; otherwise the area is undefined.
func (c *Calculator) buildableArea(in Input) (*float64, models.SetbackMethod) {
	rule := in.Rule
	if len(in.Parcel.Geometry) == 0 || rule.FrontSetbackM == nil || rule.SideSetbackM == nil || rule.RearSetbackM == nil {
		return nil, ""
	}
	front, side, rear := *rule.FrontSetbackM, *rule.SideSetbackM, *rule.RearSetbackM

	proj := geom.NewProjector(in.Parcel.Geometry.Bound())
	planar := proj.MultiPolygon(in.Parcel.Geometry)

	if in.Frontage == nil {
		d := (front + rear + 2*side) / 4
		a := geom.ErodedArea(planar, geom.Uniform(d))
		return &a, models.SetbackUniform
	}

	bearing := in.Frontage.BearingDeg
	a := geom.ErodedArea(planar, func(outward orb.Point) float64 {
		switch geom.ClassifyEdge(outward, bearing) {
		case geom.EdgeFront:
			return front
		case geom.EdgeRear:
			return rear
		default:
			return side
		}
	})
	return &a, models.SetbackOriented
}

func (c *Calculator) confidence(rule *models.PlanningRule, reduced bool) float64 {
	conf := c.cfg.UnknownConfidence
	if rule.Confidence != nil {
		conf = *rule.Confidence
	}
	ceiling := 1.0
	if reduced {
		ceiling -= c.cfg.PrecisionPenalty
	}
	return math.Round(math.Min(conf, ceiling)*1e4) / 1e4
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return models.Float(*p)
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	return models.Int(*p)
}
