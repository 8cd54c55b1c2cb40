package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidGeometry is returned for geometry rejected at ingestion.
var ErrInvalidGeometry = errors.New("invalid geometry")

// minAreaSqm is the smallest polygon area accepted as non-degenerate.
const minAreaSqm = 1e-4

// Validate checks that g is usable by the resolver: coordinates inside the
// WGS84 range, polygon rings closed with at least four positions, no ring
// self-intersections and a non-zero area. Holes must lie inside their shell
// without touching it or each other, and the parts of a multipolygon must
// not overlap by more than tol allows. Points only get the range check.
func Validate(g orb.Geometry, tol Tolerance) error {
	tol = NewTolerance(tol.Epsilon)
	switch v := g.(type) {
	case nil:
		return fmt.Errorf("%w: missing geometry", ErrInvalidGeometry)
	case orb.Point:
		return checkCoord(v)
	case orb.Polygon:
		return validateMulti(orb.MultiPolygon{v}, tol)
	case orb.MultiPolygon:
		return validateMulti(v, tol)
	default:
		return fmt.Errorf("%w: unsupported geometry type %s", ErrInvalidGeometry, g.GeoJSONType())
	}
}

func validateMulti(mp orb.MultiPolygon, tol Tolerance) error {
	if len(mp) == 0 {
		return fmt.Errorf("%w: empty multipolygon", ErrInvalidGeometry)
	}
	for pi, poly := range mp {
		if len(poly) == 0 {
			return fmt.Errorf("%w: part %d has no rings", ErrInvalidGeometry, pi)
		}
		for ri, r := range poly {
			if len(r) < 4 {
				return fmt.Errorf("%w: part %d ring %d has %d positions, need at least 4", ErrInvalidGeometry, pi, ri, len(r))
			}
			if r[0] != r[len(r)-1] {
				return fmt.Errorf("%w: part %d ring %d is not closed", ErrInvalidGeometry, pi, ri)
			}
			for _, pt := range r {
				if err := checkCoord(pt); err != nil {
					return err
				}
			}
			if i, j, ok := selfIntersection(r); ok {
				return fmt.Errorf("%w: part %d ring %d self-intersects at segments %d and %d", ErrInvalidGeometry, pi, ri, i, j)
			}
		}
	}
	if AreaSqm(mp) < minAreaSqm {
		return fmt.Errorf("%w: zero area", ErrInvalidGeometry)
	}

	// topology is checked in metres so the overlap tolerance means the same
	// thing at any latitude
	projected := NewProjector(mp.Bound()).MultiPolygon(mp)
	for pi, poly := range projected {
		if err := validateHoles(pi, poly); err != nil {
			return err
		}
	}
	return validateParts(projected, tol)
}

// validateHoles requires every hole to sit strictly inside the shell and
// apart from the other holes.
func validateHoles(pi int, poly orb.Polygon) error {
	shell := poly[0]
	for hi := 1; hi < len(poly); hi++ {
		hole := poly[hi]
		if i, j, ok := ringsTouch(shell, hole); ok {
			return fmt.Errorf("%w: part %d hole %d crosses its shell at segments %d and %d", ErrInvalidGeometry, pi, hi, i, j)
		}
		// with no crossing, one vertex decides containment
		if !planar.RingContains(shell, hole[0]) {
			return fmt.Errorf("%w: part %d hole %d lies outside its shell", ErrInvalidGeometry, pi, hi)
		}
		for hj := 1; hj < hi; hj++ {
			other := poly[hj]
			if _, _, ok := ringsTouch(other, hole); ok ||
				planar.RingContains(other, hole[0]) || planar.RingContains(hole, other[0]) {
				return fmt.Errorf("%w: part %d holes %d and %d overlap", ErrInvalidGeometry, pi, hj, hi)
			}
		}
	}
	return nil
}

// validateParts rejects multipolygon parts whose interiors overlap. Parts
// that only share an edge or a vertex intersect in zero area and pass.
func validateParts(mp orb.MultiPolygon, tol Tolerance) error {
	areas := make([]float64, len(mp))
	for i, poly := range mp {
		areas[i] = Area(orb.MultiPolygon{poly})
	}
	for i := 0; i < len(mp); i++ {
		for j := i + 1; j < len(mp); j++ {
			overlap := IntersectionArea(orb.MultiPolygon{mp[i]}, orb.MultiPolygon{mp[j]})
			if !tol.ZeroArea(overlap, math.Min(areas[i], areas[j])) {
				return fmt.Errorf("%w: parts %d and %d overlap by %.2f m²", ErrInvalidGeometry, i, j, overlap)
			}
		}
	}
	return nil
}

// ringsTouch returns the first pair of segments of a and b that touch or
// cross.
func ringsTouch(a, b orb.Ring) (int, int, bool) {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func checkCoord(pt orb.Point) error {
	lon, lat := pt[0], pt[1]
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("%w: non-finite coordinate", ErrInvalidGeometry)
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: coordinate (%f, %f) out of range", ErrInvalidGeometry, lon, lat)
	}
	return nil
}

// selfIntersection returns the first pair of non-adjacent ring segments that
// touch or cross. O(n²); rings from cadastral feeds are small enough.
func selfIntersection(r orb.Ring) (int, int, bool) {
	n := len(r) - 1 // closed ring: segment i runs r[i] -> r[i+1]
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(r[i], r[i+1], r[j], r[j+1]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	if !boxesOverlap(p1, p2, q1, q2) {
		return false
	}
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

func boxesOverlap(p1, p2, q1, q2 orb.Point) bool {
	return math.Max(p1[0], p2[0]) >= math.Min(q1[0], q2[0]) &&
		math.Max(q1[0], q2[0]) >= math.Min(p1[0], p2[0]) &&
		math.Max(p1[1], p2[1]) >= math.Min(q1[1], q2[1]) &&
		math.Max(q1[1], q2[1]) >= math.Min(p1[1], p2[1])
}
