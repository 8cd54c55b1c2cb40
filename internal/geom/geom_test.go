package geom

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = orb.Point{153.0, -26.6}

// rect builds a counter-clockwise lon/lat rectangle from metre offsets
// around origin.
func rect(x0, y0, x1, y1 float64) orb.Polygon {
	p := NewProjectorAt(origin)
	return orb.Polygon{p.InverseRing(orb.Ring{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	})}
}

func planarRect(x0, y0, x1, y1 float64) orb.MultiPolygon {
	return orb.MultiPolygon{{orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}}
}

func TestTolerance(t *testing.T) {
	tol := NewTolerance(0)
	assert.Equal(t, DefaultEpsilon, tol.Epsilon)

	tol = NewTolerance(1e-6)
	assert.True(t, tol.Equal(0.5, 0.5+5e-7))
	assert.Equal(t, 0, tol.Compare(0.5, 0.5000001))
	assert.Equal(t, 1, tol.Compare(0.6, 0.4))
	assert.Equal(t, -1, tol.Compare(0.4, 0.6))
	assert.True(t, tol.GreaterOrEqual(0.4999999, 0.5))
	assert.False(t, tol.Less(0.4999999, 0.5))
	assert.True(t, tol.Zero(1e-7))
	assert.True(t, tol.ZeroArea(5e-5, 100))
	assert.False(t, tol.ZeroArea(2e-4, 100))
	assert.False(t, tol.ZeroArea(1, 100))
}

func TestFraction(t *testing.T) {
	tol := NewTolerance(1e-9)
	assert.Equal(t, 0.0, tol.Fraction(5, 0))
	assert.Equal(t, 0.25, tol.Fraction(25, 100))
	assert.Equal(t, 1.0, tol.Fraction(100.0000001, 100))
	assert.Equal(t, 0.0, tol.Fraction(1e-12, 100))
}

func TestAreaSqm(t *testing.T) {
	mp := orb.MultiPolygon{rect(0, 0, 20, 30)}
	assert.InDelta(t, 600, AreaSqm(mp), 0.01)

	withHole := orb.Polygon{rect(0, 0, 20, 30)[0], rect(5, 5, 10, 10)[0].Clone()}
	withHole[1].Reverse()
	assert.InDelta(t, 575, AreaSqm(orb.MultiPolygon{withHole}), 0.01)
}

func TestCentroid(t *testing.T) {
	mp := orb.MultiPolygon{rect(-10, -10, 10, 10)}
	c := Centroid(mp)
	assert.InDelta(t, origin[0], c[0], 1e-9)
	assert.InDelta(t, origin[1], c[1], 1e-9)
}

func TestAsMultiPolygon(t *testing.T) {
	_, ok := AsMultiPolygon(orb.Point{1, 2})
	assert.False(t, ok)

	mp, ok := AsMultiPolygon(rect(0, 0, 1, 1))
	require.True(t, ok)
	assert.Len(t, mp, 1)
}

func TestIntersectionArea(t *testing.T) {
	tests := []struct {
		name string
		a, b orb.MultiPolygon
		want float64
	}{
		{name: "partial overlap", a: planarRect(0, 0, 10, 10), b: planarRect(6, -5, 20, 15), want: 40},
		{name: "contained", a: planarRect(0, 0, 10, 10), b: planarRect(-5, -5, 15, 15), want: 100},
		{name: "disjoint", a: planarRect(0, 0, 10, 10), b: planarRect(20, 20, 30, 30), want: 0},
		{name: "narrow gap", a: planarRect(0, 0, 10, 10), b: orb.MultiPolygon{
			{orb.Ring{{11, -5}, {20, -5}, {20, 20}, {11, 20}, {11, -5}}},
		}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IntersectionArea(tt.a, tt.b), 1e-6)
		})
	}
}

func TestValidate(t *testing.T) {
	p := NewProjectorAt(origin)
	bowtie := orb.Polygon{p.InverseRing(orb.Ring{{0, 0}, {10, 10}, {10, 0}, {0, 10}, {0, 0}})}
	open := orb.Polygon{p.InverseRing(orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}})}
	flat := orb.Polygon{p.InverseRing(orb.Ring{{0, 0}, {10, 0}, {20, 0}, {0, 0}})}
	outOfRange := orb.Polygon{orb.Ring{{190, 0}, {191, 0}, {191, 1}, {190, 0}}}

	hole := func(x0, y0, x1, y1 float64) orb.Ring {
		r := rect(x0, y0, x1, y1)[0].Clone()
		r.Reverse()
		return r
	}
	shell := rect(0, 0, 20, 30)[0]

	tests := []struct {
		name    string
		g       orb.Geometry
		wantErr bool
	}{
		{name: "valid rectangle", g: rect(0, 0, 20, 30)},
		{name: "valid multipolygon", g: orb.MultiPolygon{rect(0, 0, 10, 10), rect(20, 0, 30, 10)}},
		{name: "valid point", g: origin},
		{name: "valid hole", g: orb.Polygon{shell, hole(5, 5, 10, 10)}},
		{name: "valid island inside another part's hole", g: orb.MultiPolygon{
			{shell, hole(5, 5, 15, 15)},
			rect(8, 8, 12, 12),
		}},
		{name: "overlapping parts", g: orb.MultiPolygon{rect(0, 0, 20, 22), rect(10, 0, 30, 22)}, wantErr: true},
		{name: "part inside another part", g: orb.MultiPolygon{rect(0, 0, 20, 30), rect(5, 5, 10, 10)}, wantErr: true},
		{name: "hole outside shell", g: orb.Polygon{shell, hole(40, 40, 50, 50)}, wantErr: true},
		{name: "hole crossing shell", g: orb.Polygon{shell, hole(15, 5, 25, 10)}, wantErr: true},
		{name: "overlapping holes", g: orb.Polygon{shell, hole(2, 2, 8, 8), hole(5, 5, 12, 12)}, wantErr: true},
		{name: "nested holes", g: orb.Polygon{shell, hole(2, 2, 18, 18), hole(5, 5, 10, 10)}, wantErr: true},
		{name: "nil", g: nil, wantErr: true},
		{name: "self-intersecting", g: bowtie, wantErr: true},
		{name: "unclosed ring", g: open, wantErr: true},
		{name: "zero area", g: flat, wantErr: true},
		{name: "coordinate out of range", g: outOfRange, wantErr: true},
		{name: "point out of range", g: orb.Point{0, 95}, wantErr: true},
		{name: "line string", g: orb.LineString{{0, 0}, {1, 1}}, wantErr: true},
		{name: "nan coordinate", g: orb.Point{math.NaN(), 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.g, NewTolerance(1e-9))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidGeometry))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestErodedArea(t *testing.T) {
	lot := planarRect(0, 0, 20, 30)

	t.Run("uniform", func(t *testing.T) {
		assert.InDelta(t, (20-7.5)*(30-7.5), ErodedArea(lot, Uniform(3.75)), 1e-6)
	})

	t.Run("oriented with southern frontage", func(t *testing.T) {
		dist := func(outward orb.Point) float64 {
			switch ClassifyEdge(outward, 180) {
			case EdgeFront, EdgeRear:
				return 6
			default:
				return 1.5
			}
		}
		assert.InDelta(t, (20-3)*(30-12), ErodedArea(lot, dist), 1e-6)
	})

	t.Run("clockwise ring erodes the same", func(t *testing.T) {
		cw := lot.Clone()
		cw[0][0].Reverse()
		assert.InDelta(t, (20-7.5)*(30-7.5), ErodedArea(cw, Uniform(3.75)), 1e-6)
	})

	t.Run("fully consumed", func(t *testing.T) {
		assert.Equal(t, 0.0, ErodedArea(lot, Uniform(12)))
	})

	t.Run("zero distance keeps area", func(t *testing.T) {
		assert.InDelta(t, 600, ErodedArea(lot, Uniform(0)), 1e-6)
	})

	t.Run("shallow ridge with unequal setbacks", func(t *testing.T) {
		// roof edges meet at (20,14) turning about 22.6°; the east roof is set
		// back 3 m and the west roof 0.5 m
		house := orb.MultiPolygon{{{{0, 0}, {40, 0}, {40, 10}, {20, 14}, {0, 10}, {0, 0}}}}
		dist := func(outward orb.Point) float64 {
			switch {
			case outward[1] > 0.5 && outward[0] > 0.1:
				return 3
			case outward[1] > 0.5 && outward[0] < -0.1:
				return 0.5
			default:
				return 0
			}
		}

		// offset roof lines: 0.2x + y = east, -0.2x + y = west
		k := math.Hypot(0.2, 1)
		east, west := 18-3*k, 10-0.5*k
		ridge := orb.Point{(east - west) / 0.4, (east + west) / 2}
		exact := orb.Ring{{0, 0}, {40, 0}, {40, east - 8}, ridge, {0, west}, {0, 0}}

		assert.InDelta(t, ringSignedArea(exact), ErodedArea(house, dist), 1e-6)
	})
}

func TestClassifyEdge(t *testing.T) {
	tests := []struct {
		name    string
		outward orb.Point
		bearing float64
		want    EdgeClass
	}{
		{name: "facing frontage", outward: orb.Point{0, -1}, bearing: 180, want: EdgeFront},
		{name: "opposite frontage", outward: orb.Point{0, 1}, bearing: 180, want: EdgeRear},
		{name: "perpendicular", outward: orb.Point{1, 0}, bearing: 180, want: EdgeSide},
		{name: "at 45 degrees", outward: orb.Point{math.Sqrt2 / 2, math.Sqrt2 / 2}, bearing: 0, want: EdgeFront},
		{name: "north east frontage", outward: orb.Point{1, 0}, bearing: 60, want: EdgeFront},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyEdge(tt.outward, tt.bearing))
		})
	}
	assert.Equal(t, "front", EdgeFront.String())
	assert.Equal(t, "side", EdgeSide.String())
	assert.Equal(t, "rear", EdgeRear.String())
}

func TestProjectorRoundTrip(t *testing.T) {
	p := NewProjectorAt(origin)
	pt := orb.Point{153.001, -26.599}
	back := p.Inverse(p.Forward(pt))
	assert.InDelta(t, pt[0], back[0], 1e-12)
	assert.InDelta(t, pt[1], back[1], 1e-12)

	north := p.Inverse(orb.Point{0, 100})
	east := p.Inverse(orb.Point{100, 0})
	assert.InDelta(t, 0, p.Bearing(origin, north), 1e-9)
	assert.InDelta(t, 90, p.Bearing(origin, east), 1e-9)
	assert.InDelta(t, 180, p.Bearing(north, origin), 1e-9)
}

func TestIndex(t *testing.T) {
	ix := NewIndex[string]()
	ix.Insert(rect(0, 0, 10, 10).Bound(), "a")
	ix.Insert(rect(100, 100, 110, 110).Bound(), "b")

	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, []string{"a"}, ix.Search(rect(5, 5, 20, 20).Bound()))
	assert.Empty(t, ix.Search(rect(50, 50, 60, 60).Bound()))
}
