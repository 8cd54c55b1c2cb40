package geom

import (
	"math"

	polyclip "github.com/akavel/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// AsMultiPolygon normalises polygonal geometry to a MultiPolygon.
// It reports false for any non-polygonal geometry.
func AsMultiPolygon(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch v := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}, true
	case orb.MultiPolygon:
		return v, true
	default:
		return nil, false
	}
}

// Area returns the planar area of a projected multipolygon.
func Area(mp orb.MultiPolygon) float64 {
	return math.Abs(planar.Area(mp))
}

// AreaSqm returns the area in m² of a lon/lat multipolygon, projected about
// its own bound centre.
func AreaSqm(mp orb.MultiPolygon) float64 {
	if len(mp) == 0 {
		return 0
	}
	p := NewProjector(mp.Bound())
	return Area(p.MultiPolygon(mp))
}

// Centroid returns the area-weighted centroid of a lon/lat multipolygon.
func Centroid(mp orb.MultiPolygon) orb.Point {
	if len(mp) == 0 {
		return orb.Point{}
	}
	p := NewProjector(mp.Bound())
	c, _ := planar.CentroidArea(p.MultiPolygon(mp))
	return p.Inverse(c)
}

// IntersectionArea returns the area of a ∩ b. Both inputs must already be in
// the same planar projection.
func IntersectionArea(a, b orb.MultiPolygon) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if !a.Bound().Intersects(b.Bound()) {
		return 0
	}
	res := toClip(a).Construct(polyclip.INTERSECTION, toClip(b))
	return clipArea(res)
}

// toClip flattens a multipolygon into polyclip contours. Parts of a valid
// multipolygon never overlap, so even-odd contour semantics preserve holes.
func toClip(mp orb.MultiPolygon) polyclip.Polygon {
	out := make(polyclip.Polygon, 0, len(mp))
	for _, poly := range mp {
		for _, r := range poly {
			if c := toContour(r); len(c) >= 3 {
				out = append(out, c)
			}
		}
	}
	return out
}

func toContour(r orb.Ring) polyclip.Contour {
	n := len(r)
	if n > 1 && r[0] == r[n-1] {
		n--
	}
	c := make(polyclip.Contour, 0, n)
	for _, pt := range r[:n] {
		c = append(c, polyclip.Point{X: pt[0], Y: pt[1]})
	}
	return c
}

// clipArea sums contour areas signed by nesting depth: contours nested inside
// an odd number of others are holes.
func clipArea(p polyclip.Polygon) float64 {
	total := 0.0
	for i, c := range p {
		if len(c) < 3 {
			continue
		}
		a := math.Abs(contourArea(c))
		depth := 0
		probe := contourProbe(c)
		for j, other := range p {
			if i == j || len(other) < 3 {
				continue
			}
			if pointInContour(probe, other) {
				depth++
			}
		}
		if depth%2 == 0 {
			total += a
		} else {
			total -= a
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

func contourArea(c polyclip.Contour) float64 {
	s := 0.0
	for i := range c {
		j := (i + 1) % len(c)
		s += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return s / 2
}

// contourProbe picks a point just inside the contour near its first edge so
// the nesting test does not land on a shared vertex.
func contourProbe(c polyclip.Contour) polyclip.Point {
	a, b := c[0], c[1]
	mid := polyclip.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return mid
	}
	// step towards the interior side, which depends on the contour winding
	step := l * 1e-6
	nx, ny := -dy/l, dx/l
	if contourArea(c) < 0 {
		nx, ny = -nx, -ny
	}
	return polyclip.Point{X: mid.X + nx*step, Y: mid.Y + ny*step}
}

// pointInContour is an even-odd ray cast.
func pointInContour(pt polyclip.Point, c polyclip.Contour) bool {
	inside := false
	n := len(c)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := c[i].X, c[i].Y
		xj, yj := c[j].X, c[j].Y
		if (yi > pt.Y) != (yj > pt.Y) && pt.X < (xj-xi)*(pt.Y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// ringSignedArea is positive for counter-clockwise rings.
func ringSignedArea(r orb.Ring) float64 {
	s := 0.0
	n := len(r)
	for i := 0; i < n-1; i++ {
		s += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	if n > 0 && r[0] != r[n-1] {
		s += r[n-1][0]*r[0][1] - r[0][0]*r[n-1][1]
	}
	return s / 2
}
