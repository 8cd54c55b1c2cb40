package geom

import (
	"math"

	polyclip "github.com/akavel/polyclip-go"
	"github.com/paulmach/orb"
)

// EdgeDistance returns the inward erosion distance in metres for an edge,
// given the edge's outward unit normal in the projected plane.
type EdgeDistance func(outward orb.Point) float64

// Uniform erodes every edge by d.
func Uniform(d float64) EdgeDistance {
	return func(orb.Point) float64 { return d }
}

// ErodedArea erodes a projected multipolygon inward edge by edge and returns
// the area that remains. Each edge removes a strip of its own distance on both
// sides. At a convex corner the strip runs on past the vertex for as long as
// the neighbouring edge stays within that distance of the edge's line, so a
// shallow corner between a deep and a shallow setback leaves no wedge behind.
// Reflex corners are slightly over-eroded.
func ErodedArea(mp orb.MultiPolygon, dist EdgeDistance) float64 {
	res := toClip(mp)
	if len(res) == 0 {
		return 0
	}
	for _, poly := range mp {
		for ri, r := range poly {
			// outer ring normals point away from the interior; hole ring normals
			// point into the hole, which is also away from the lot
			sign := 1.0
			if ringSignedArea(r) < 0 {
				sign = -1
			}
			if ri > 0 {
				sign = -sign
			}
			edges := ringEdges(r, sign)
			n := len(edges)
			for i, e := range edges {
				d := dist(e.out)
				if d <= 0 {
					continue
				}
				prev, next := edges[(i+n-1)%n], edges[(i+1)%n]
				back := cornerReach(d, dot(prev.u, e.u), dot(prev.u, e.out), prev.l)
				ahead := cornerReach(d, dot(e.u, next.u), -dot(next.u, e.out), next.l)
				res = res.Construct(polyclip.DIFFERENCE, strip(e, d, back, ahead))
				if len(res) == 0 {
					return 0
				}
			}
		}
	}
	return clipArea(res)
}

type ringEdge struct {
	a, b orb.Point
	u    orb.Point // unit direction a→b
	out  orb.Point // unit outward normal
	l    float64
}

// ringEdges returns the non-degenerate edges of a closed ring.
func ringEdges(r orb.Ring, sign float64) []ringEdge {
	edges := make([]ringEdge, 0, len(r))
	for i := 0; i+1 < len(r); i++ {
		a, b := r[i], r[i+1]
		dx, dy := b[0]-a[0], b[1]-a[1]
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		ux, uy := dx/l, dy/l
		edges = append(edges, ringEdge{
			a: a, b: b, l: l,
			u:   orb.Point{ux, uy},
			out: orb.Point{sign * uy, -sign * ux},
		})
	}
	return edges
}

func dot(p, q orb.Point) float64 { return p[0]*q[0] + p[1]*q[1] }

// cornerReach is how far an edge's strip extends past a vertex. cos is the
// cosine of the turn at the vertex and sin its sine measured towards the
// lot, so sin > 0 is a convex corner. The neighbour of length l stays
// within d of the edge's line for d·cos/sin along it.
func cornerReach(d, cos, sin, l float64) float64 {
	if sin <= 0 || cos <= 0 {
		return d
	}
	reach := l*cos + d
	if sin > 1e-12 {
		reach = math.Min(reach, d*cos/sin)
	}
	return math.Max(d, reach)
}

func strip(e ringEdge, d, back, ahead float64) polyclip.Polygon {
	ux, uy := e.u[0], e.u[1]
	nx, ny := -uy, ux
	ax, ay := e.a[0]-ux*back, e.a[1]-uy*back
	bx, by := e.b[0]+ux*ahead, e.b[1]+uy*ahead
	return polyclip.Polygon{polyclip.Contour{
		{X: ax - nx*d, Y: ay - ny*d},
		{X: bx - nx*d, Y: by - ny*d},
		{X: bx + nx*d, Y: by + ny*d},
		{X: ax + nx*d, Y: ay + ny*d},
	}}
}

// EdgeClass is the orientation of a lot boundary relative to its frontage.
type EdgeClass int

const (
	EdgeFront EdgeClass = iota
	EdgeSide
	EdgeRear
)

// String returns the class name.
func (c EdgeClass) String() string {
	switch c {
	case EdgeFront:
		return "front"
	case EdgeRear:
		return "rear"
	default:
		return "side"
	}
}

// ClassifyEdge compares an edge's outward normal with the frontage bearing
// (degrees clockwise from north, pointing from the lot towards the road).
// Within 45° is front, beyond 135° is rear, anything else is side.
func ClassifyEdge(outward orb.Point, frontageBearing float64) EdgeClass {
	rad := frontageBearing * math.Pi / 180
	fx, fy := math.Sin(rad), math.Cos(rad)
	cos := outward[0]*fx + outward[1]*fy
	switch {
	case cos >= math.Cos(math.Pi/4)-1e-12:
		return EdgeFront
	case cos <= math.Cos(3*math.Pi/4)+1e-12:
		return EdgeRear
	default:
		return EdgeSide
	}
}
