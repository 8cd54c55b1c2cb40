package geom

import (
	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// Index is a bounding-box prefilter over lon/lat geometry. Exact
// intersection is left to the caller.
type Index[T any] struct {
	tr rtree.RTreeG[T]
}

// NewIndex returns an empty index.
func NewIndex[T any]() *Index[T] {
	return &Index[T]{}
}

// Insert adds v under bound b.
func (ix *Index[T]) Insert(b orb.Bound, v T) {
	ix.tr.Insert([2]float64{b.Min[0], b.Min[1]}, [2]float64{b.Max[0], b.Max[1]}, v)
}

// Search returns every value whose bound intersects b.
func (ix *Index[T]) Search(b orb.Bound) []T {
	var out []T
	ix.tr.Search([2]float64{b.Min[0], b.Min[1]}, [2]float64{b.Max[0], b.Max[1]},
		func(_, _ [2]float64, v T) bool {
			out = append(out, v)
			return true
		})
	return out
}

// Len returns the number of indexed values.
func (ix *Index[T]) Len() int {
	return ix.tr.Len()
}
