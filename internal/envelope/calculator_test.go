package envelope

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/siteplan/internal/geom"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/rules"
)

var proj = geom.NewProjectorAt(orb.Point{153.0, -26.6})

// lot returns a lon/lat rectangle given in metres.
func lot(x0, y0, x1, y1 float64) orb.MultiPolygon {
	return orb.MultiPolygon{{proj.InverseRing(orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}})}}
}

func parcel(mp orb.MultiPolygon) *models.Parcel {
	return &models.Parcel{LotPlan: "1/RP1", Geometry: mp, AreaSqm: geom.AreaSqm(mp)}
}

func ldrRule() *models.PlanningRule {
	return &models.PlanningRule{
		ZoneCode:        "Low Density Residential Zone",
		LGA:             "SUNSHINE COAST",
		MaxHeightM:      models.Float(8.5),
		MaxStoreys:      models.Int(2),
		MaxSiteCoverPct: models.Float(50),
		MinLotSizeSqm:   models.Float(400),
		FrontSetbackM:   models.Float(6),
		SideSetbackM:    models.Float(1.5),
		RearSetbackM:    models.Float(6),
		DwellingDensity: "1 per lot",
		Confidence:      models.Float(0.9),
	}
}

func density(t *testing.T, s string) *rules.Density {
	t.Helper()
	d, err := rules.ParseDensity(s)
	require.NoError(t, err)
	return d
}

func newCalculator() *Calculator {
	return New(Config{PrecisionPenalty: 0.2, UnknownConfidence: 0.5, Tolerance: geom.NewTolerance(1e-9)})
}

func TestCompute_SingleZoneScenario(t *testing.T) {
	env, err := newCalculator().Compute(Input{
		Parcel:  &models.Parcel{LotPlan: "3/RP12345", AreaSqm: 607},
		Rule:    ldrRule(),
		Density: density(t, "1 per lot"),
	})
	require.NoError(t, err)

	assert.Equal(t, 303.5, *env.MaxFootprintSqm)
	assert.Equal(t, 607.0, *env.MaxGFASqm)
	require.NotNil(t, env.MaxDwellings)
	assert.GreaterOrEqual(t, *env.MaxDwellings, 1)
	assert.False(t, env.HasFlag(models.FlagSubMinimumLot))
	assert.True(t, env.LotCompliant)
	assert.Equal(t, "Low Density Residential Zone", env.ZoneCode)
	assert.Nil(t, env.BuildableAreaSqm, "no geometry, no erosion")
	assert.Equal(t, 0.9, env.Confidence)
}

func TestCompute_SubMinimumLot(t *testing.T) {
	env, err := newCalculator().Compute(Input{
		Parcel:  &models.Parcel{LotPlan: "4/RP12345", AreaSqm: 350},
		Rule:    ldrRule(),
		Density: density(t, "1 per 300 sqm"),
	})
	require.NoError(t, err)

	require.NotNil(t, env.MaxDwellings)
	assert.Equal(t, 0, *env.MaxDwellings)
	assert.True(t, env.HasFlag(models.FlagSubMinimumLot))
	assert.False(t, env.LotCompliant)
	require.Len(t, env.ComplianceIssues, 1)
	assert.Contains(t, env.ComplianceIssues[0], "350 m²")
	assert.False(t, env.Subdivision.CanSubdivide)
	assert.Equal(t, 0, env.Subdivision.MaxNewLots)
}

func TestCompute_OrientedSetbacks(t *testing.T) {
	// 20 m wide along x, 30 m deep along y
	p := parcel(lot(0, 0, 20, 30))

	tests := []struct {
		name    string
		bearing float64
		want    float64
	}{
		{"road to the south", 180, 17 * 18},
		{"road to the north", 0, 17 * 18},
		{"road to the east", 90, 8 * 27},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFrontage(tt.bearing, FrontageFromRequest)
			require.NoError(t, err)

			env, err := newCalculator().Compute(Input{Parcel: p, Rule: ldrRule(), Frontage: f})
			require.NoError(t, err)

			require.NotNil(t, env.BuildableAreaSqm)
			assert.InDelta(t, tt.want, *env.BuildableAreaSqm, 0.1)
			assert.Equal(t, models.SetbackOriented, env.SetbackMethod)
			assert.False(t, env.HasFlag(models.FlagReducedPrecision))
			assert.Equal(t, 0.9, env.Confidence)
		})
	}
}

func TestCompute_UniformFallback(t *testing.T) {
	env, err := newCalculator().Compute(Input{Parcel: parcel(lot(0, 0, 20, 30)), Rule: ldrRule()})
	require.NoError(t, err)

	// (6 + 6 + 2×1.5) / 4 = 3.75 from every edge
	require.NotNil(t, env.BuildableAreaSqm)
	assert.InDelta(t, 12.5*22.5, *env.BuildableAreaSqm, 0.1)
	assert.Equal(t, models.SetbackUniform, env.SetbackMethod)
	assert.True(t, env.HasFlag(models.FlagReducedPrecision))
	assert.InDelta(t, 0.8, env.Confidence, 1e-9)

	// site cover 300 m² exceeds the 281.25 m² left after setbacks
	assert.InDelta(t, 281.25, *env.EffectiveFootprintSqm, 0.1)
	assert.InDelta(t, 300, *env.MaxFootprintSqm, 0.1)
}

func TestCompute_MissingFieldsStayUndefined(t *testing.T) {
	rule := &models.PlanningRule{ZoneCode: "Community Facilities Zone", LGA: "SUNSHINE COAST"}
	env, err := newCalculator().Compute(Input{Parcel: parcel(lot(0, 0, 20, 30)), Rule: rule})
	require.NoError(t, err)

	assert.Nil(t, env.MaxFootprintSqm)
	assert.Nil(t, env.EffectiveFootprintSqm)
	assert.Nil(t, env.MaxGFASqm)
	assert.Nil(t, env.BuildableAreaSqm)
	assert.Nil(t, env.MaxDwellings)
	assert.Nil(t, env.MaxHeightM)
	assert.Nil(t, env.Subdivision)
	assert.Empty(t, env.SetbackMethod)
	assert.Equal(t, 0.5, env.Confidence, "unknown extraction confidence")
}

func TestCompute_GFAWithoutStoreys(t *testing.T) {
	rule := ldrRule()
	rule.MaxStoreys = nil
	env, err := newCalculator().Compute(Input{Parcel: &models.Parcel{AreaSqm: 1000}, Rule: rule})
	require.NoError(t, err)
	assert.Equal(t, *env.MaxFootprintSqm, *env.MaxGFASqm)
}

func TestCompute_DensityYield(t *testing.T) {
	rule := ldrRule()
	rule.MinLotSizeSqm = models.Float(300)

	tests := []struct {
		density string
		area    float64
		want    int
	}{
		{"1 per 300sqm", 950, 3},
		{"1 per 300sqm", 300, 1},
		{"2 per 400 sqm", 1200, 6},
		{"1 per lot", 5000, 1},
		{"Caretaker only", 5000, 0},
		{"None", 5000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.density, func(t *testing.T) {
			env, err := newCalculator().Compute(Input{
				Parcel:  &models.Parcel{AreaSqm: tt.area},
				Rule:    rule,
				Density: density(t, tt.density),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, *env.MaxDwellings)
		})
	}
}

func TestCompute_Subdivision(t *testing.T) {
	env, err := newCalculator().Compute(Input{Parcel: &models.Parcel{AreaSqm: 1250}, Rule: ldrRule()})
	require.NoError(t, err)

	require.NotNil(t, env.Subdivision)
	assert.True(t, env.Subdivision.CanSubdivide)
	assert.Equal(t, 3, env.Subdivision.MaxNewLots)
	assert.Equal(t, 400.0, env.Subdivision.MinLotSizeSqm)
}

func TestCompute_FrontageIssue(t *testing.T) {
	rule := ldrRule()
	rule.MinFrontageM = models.Float(12)
	env, err := newCalculator().Compute(Input{Parcel: &models.Parcel{AreaSqm: 607}, Rule: rule})
	require.NoError(t, err)

	require.Len(t, env.ComplianceIssues, 1)
	assert.Contains(t, env.ComplianceIssues[0], "12 m")
	assert.True(t, env.LotCompliant)
}

func TestCompute_Bounds(t *testing.T) {
	c := newCalculator()
	for _, area := range []float64{120, 399.99, 400, 607, 1000, 25000} {
		for _, storeys := range []int{1, 2, 3} {
			rule := ldrRule()
			rule.MaxStoreys = models.Int(storeys)
			env, err := c.Compute(Input{
				Parcel:  &models.Parcel{AreaSqm: area},
				Rule:    rule,
				Density: density(t, "1 per 300 sqm"),
			})
			require.NoError(t, err)

			assert.LessOrEqual(t, *env.MaxFootprintSqm, area)
			assert.GreaterOrEqual(t, *env.MaxDwellings, 0)
			if storeys == 1 {
				assert.Equal(t, *env.MaxFootprintSqm, *env.MaxGFASqm)
			} else {
				assert.GreaterOrEqual(t, *env.MaxGFASqm, *env.MaxFootprintSqm)
			}
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	f, _ := NewFrontage(180, FrontageFromRequest)
	in := Input{Parcel: parcel(lot(0, 0, 20, 30)), Rule: ldrRule(), Density: density(t, "1 per lot"), Frontage: f}
	first, err := newCalculator().Compute(in)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := newCalculator().Compute(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompute_DoesNotAliasRule(t *testing.T) {
	rule := ldrRule()
	env, err := newCalculator().Compute(Input{Parcel: &models.Parcel{AreaSqm: 607}, Rule: rule})
	require.NoError(t, err)
	*env.MaxHeightM = 99
	assert.Equal(t, 8.5, *rule.MaxHeightM)
}

func TestCompute_Errors(t *testing.T) {
	_, err := newCalculator().Compute(Input{Parcel: &models.Parcel{AreaSqm: 607}})
	assert.ErrorIs(t, err, ErrNoRule)

	_, err = newCalculator().Compute(Input{Parcel: &models.Parcel{}, Rule: ldrRule()})
	assert.ErrorIs(t, err, ErrNoArea)
}

func TestConstraints(t *testing.T) {
	got := Constraints([]models.OverlayHit{
		{Key: "B@1", Type: "bushfire hazard", Name: "Medium"},
		{Key: "H@2", Type: "height of buildings and structures", Name: "8.5m"},
		{Key: "F@3", Type: "flood hazard", Code: "FH1"},
		{Key: "C@4", Type: "heritage and character areas"},
		{Key: "X@5", Type: "scenic amenity", Name: "Regional inter-urban break"},
	})

	require.Len(t, got, 4)
	assert.Equal(t, ConstraintBushfire, got[0].Type)
	assert.Equal(t, "B@1", got[0].OverlayKey)
	assert.Contains(t, got[0].Text, "BAL assessment")
	assert.Equal(t, ConstraintFlood, got[1].Type)
	assert.Contains(t, got[1].Text, "FH1")
	assert.Equal(t, ConstraintHeritage, got[2].Type)
	assert.Equal(t, ConstraintOther, got[3].Type)
	assert.Equal(t, "scenic amenity: Regional inter-urban break", got[3].Text)
}

func TestCategorize(t *testing.T) {
	tests := map[string]string{
		"Bushfire Hazard":        ConstraintBushfire,
		"Landslide hazard":       ConstraintLandslide,
		"steep land (slope)":     ConstraintSteepLand,
		"wetlands and waterways": ConstraintBiodiversity,
		"coastal protection":     ConstraintCoastal,
		"acid sulfate soils":     ConstraintAcidSulfate,
		"airport environs":       ConstraintOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, Categorize(in), in)
	}
}

func TestFrontageTowards(t *testing.T) {
	mp := lot(0, 0, 20, 30)

	f := FrontageTowards(mp, proj.Inverse(orb.Point{10, -10}))
	require.NotNil(t, f)
	assert.InDelta(t, 180, f.BearingDeg, 0.01)
	assert.Equal(t, FrontageFromAddress, f.Source)

	f = FrontageTowards(mp, proj.Inverse(orb.Point{40, 15}))
	require.NotNil(t, f)
	assert.InDelta(t, 90, f.BearingDeg, 0.01)

	assert.Nil(t, FrontageTowards(mp, geom.Centroid(mp)))
	assert.Nil(t, FrontageTowards(nil, orb.Point{153, -26.6}))
}

func TestNewFrontage(t *testing.T) {
	f, err := NewFrontage(-90, FrontageFromRequest)
	require.NoError(t, err)
	assert.Equal(t, 270.0, f.BearingDeg)
	assert.Equal(t, "270.0", f.Key())

	var none *Frontage
	assert.Equal(t, "none", none.Key())
}
