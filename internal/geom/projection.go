package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the mean earth radius in metres (IUGG).
const EarthRadius = 6371008.8

// Projector maps WGS84 lon/lat (SRID 4326) into a local equirectangular plane
// measured in metres, centred on an origin. Distortion stays well under a
// millimetre per metre at parcel scale, which is what area and setback
// computations need.
type Projector struct {
	origin orb.Point
	kx     float64
	ky     float64
}

// NewProjector returns a projector centred on the bound's centre.
func NewProjector(b orb.Bound) Projector {
	return NewProjectorAt(b.Center())
}

// NewProjectorAt returns a projector centred on origin (lon, lat).
func NewProjectorAt(origin orb.Point) Projector {
	ky := EarthRadius * math.Pi / 180
	kx := ky * math.Cos(origin.Lat()*math.Pi/180)
	return Projector{origin: origin, kx: kx, ky: ky}
}

// Origin returns the lon/lat origin of the plane.
func (p Projector) Origin() orb.Point {
	return p.origin
}

// Forward projects a lon/lat point to metres.
func (p Projector) Forward(pt orb.Point) orb.Point {
	return orb.Point{(pt[0] - p.origin[0]) * p.kx, (pt[1] - p.origin[1]) * p.ky}
}

// Inverse maps a planar point in metres back to lon/lat.
func (p Projector) Inverse(pt orb.Point) orb.Point {
	return orb.Point{pt[0]/p.kx + p.origin[0], pt[1]/p.ky + p.origin[1]}
}

// Ring projects every position of r.
func (p Projector) Ring(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, pt := range r {
		out[i] = p.Forward(pt)
	}
	return out
}

// Polygon projects every ring of poly.
func (p Projector) Polygon(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, r := range poly {
		out[i] = p.Ring(r)
	}
	return out
}

// MultiPolygon projects every part of mp.
func (p Projector) MultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = p.Polygon(poly)
	}
	return out
}

// InverseRing maps a planar ring back to lon/lat.
func (p Projector) InverseRing(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, pt := range r {
		out[i] = p.Inverse(pt)
	}
	return out
}

// Bearing returns the compass bearing in degrees (clockwise from north) of the
// direction from a to b, both in lon/lat.
func (p Projector) Bearing(a, b orb.Point) float64 {
	pa, pb := p.Forward(a), p.Forward(b)
	deg := math.Atan2(pb[0]-pa[0], pb[1]-pa[1]) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
