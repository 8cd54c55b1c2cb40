package envelope

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/stwalsh4118/siteplan/internal/geom"
)

// Frontage is the direction of the road frontage: the compass bearing, in
// degrees clockwise from north, pointing from the lot towards the road.
type Frontage struct {
	BearingDeg float64 `json:"bearing_deg"`
	Source     string  `json:"source"`
}

// Frontage sources.
const (
	FrontageFromRequest = "request"
	FrontageFromAddress = "address"
)

// NewFrontage normalises a bearing into [0, 360).
func NewFrontage(bearing float64, source string) (*Frontage, error) {
	if math.IsNaN(bearing) || math.IsInf(bearing, 0) {
		return nil, fmt.Errorf("invalid frontage bearing %v", bearing)
	}
	b := math.Mod(bearing, 360)
	if b < 0 {
		b += 360
	}
	return &Frontage{BearingDeg: b, Source: source}, nil
}

// FrontageTowards derives the frontage from the parcel's address point,
// taking the bearing from the parcel centroid to the point. It returns nil
// when the address sits on the centroid and no direction can be taken.
func FrontageTowards(parcel orb.MultiPolygon, address orb.Point) *Frontage {
	if len(parcel) == 0 {
		return nil
	}
	c := geom.Centroid(parcel)
	proj := geom.NewProjector(parcel.Bound())
	a, b := proj.Forward(c), proj.Forward(address)
	if math.Hypot(b[0]-a[0], b[1]-a[1]) < 0.01 {
		return nil
	}
	f, _ := NewFrontage(proj.Bearing(c, address), FrontageFromAddress)
	return f
}

// Key is the cache key component for a frontage, "none" when absent.
func (f *Frontage) Key() string {
	if f == nil {
		return "none"
	}
	return fmt.Sprintf("%.1f", f.BearingDeg)
}
