package geom

import "math"

// DefaultEpsilon is the tolerance applied to area fractions when none is configured.
const DefaultEpsilon = 1e-9

// Tolerance is the single numeric comparison utility shared by the resolver,
// the envelope calculator and ingestion validation. Fractions (values in [0,1])
// are compared against Epsilon directly; areas are compared against Epsilon
// scaled by a reference area so the same setting works for a 300 m² lot and a
// 3 km² zone.
type Tolerance struct {
	Epsilon float64
}

// NewTolerance returns a Tolerance, falling back to DefaultEpsilon for
// non-positive values.
func NewTolerance(epsilon float64) Tolerance {
	if epsilon <= 0 || math.IsNaN(epsilon) {
		epsilon = DefaultEpsilon
	}
	return Tolerance{Epsilon: epsilon}
}

// Zero reports whether x is indistinguishable from zero.
func (t Tolerance) Zero(x float64) bool {
	return math.Abs(x) <= t.Epsilon
}

// Equal reports whether a and b are within Epsilon of each other.
func (t Tolerance) Equal(a, b float64) bool {
	return math.Abs(a-b) <= t.Epsilon
}

// Compare returns -1, 0 or 1. Values within Epsilon compare equal.
func (t Tolerance) Compare(a, b float64) int {
	switch {
	case t.Equal(a, b):
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}

// GreaterOrEqual reports a >= b with values within Epsilon treated as equal.
func (t Tolerance) GreaterOrEqual(a, b float64) bool {
	return t.Compare(a, b) >= 0
}

// Less reports a < b beyond Epsilon.
func (t Tolerance) Less(a, b float64) bool {
	return t.Compare(a, b) < 0
}

// ZeroArea reports whether area is negligible relative to reference.
func (t Tolerance) ZeroArea(area, reference float64) bool {
	return math.Abs(area) <= t.Epsilon*math.Max(math.Abs(reference), 1)
}

// Fraction returns part/whole clamped to [0,1]. A zero whole yields 0.
func (t Tolerance) Fraction(part, whole float64) float64 {
	if whole <= 0 || t.ZeroArea(part, whole) {
		return 0
	}
	f := part / whole
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}
