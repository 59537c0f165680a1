// Package neldermead implements bounded Nelder-Mead simplex search over
// real-valued inputs with any ordered objective output.
package neldermead

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/simplex/internal/optimization"
)

// Point is one simplex vertex: an input vector and the objective output
// evaluated there. Points are values; a new candidate is a new Point.
type Point[T cmp.Ordered] struct {
	Inputs []float64
	Output T
}

// clone returns a copy of p that shares no memory with it.
func (p Point[T]) clone() Point[T] {
	return Point[T]{Inputs: slices.Clone(p.Inputs), Output: p.Output}
}

// Simplex is an unordered set of vertices sharing one input dimensionality.
type Simplex[T cmp.Ordered] struct {
	points []Point[T]
}

// NewSimplex validates points and returns a simplex over copies of them.
// At least two points are required, all with the same non-zero dimension.
func NewSimplex[T cmp.Ordered](points []Point[T]) (*Simplex[T], error) {
	if len(points) < 2 {
		return nil, optimization.NewConfigError("simplex needs at least 2 points, got %d", len(points)).
			WithOperation("new_simplex").WithComponent("neldermead")
	}
	dim := len(points[0].Inputs)
	if dim == 0 {
		return nil, optimization.NewConfigError("simplex points have no inputs").
			WithOperation("new_simplex").WithComponent("neldermead")
	}
	owned := make([]Point[T], len(points))
	for i, p := range points {
		if len(p.Inputs) != dim {
			return nil, optimization.NewConfigError("point %d has %d inputs, want %d", i, len(p.Inputs), dim).
				WithOperation("new_simplex").WithComponent("neldermead")
		}
		owned[i] = p.clone()
	}
	return &Simplex[T]{points: owned}, nil
}

// Len returns the number of vertices.
func (s *Simplex[T]) Len() int {
	return len(s.points)
}

// Dim returns the input dimensionality.
func (s *Simplex[T]) Dim() int {
	return len(s.points[0].Inputs)
}

// Points returns a deep copy of the vertices.
func (s *Simplex[T]) Points() []Point[T] {
	out := make([]Point[T], len(s.points))
	for i, p := range s.points {
		out[i] = p.clone()
	}
	return out
}

// Centroid returns the per-dimension mean of all vertex inputs.
func (s *Simplex[T]) Centroid() []float64 {
	c := make([]float64, s.Dim())
	for _, p := range s.points {
		floats.Add(c, p.Inputs)
	}
	floats.Scale(1/float64(len(s.points)), c)
	return c
}

// Diameter returns twice the largest Euclidean distance from any vertex to
// the centroid, i.e. the diameter of the centroid-centred sphere enclosing
// every vertex.
func (s *Simplex[T]) Diameter() float64 {
	c := s.Centroid()
	var radius float64
	for _, p := range s.points {
		radius = math.Max(radius, floats.Distance(p.Inputs, c, 2))
	}
	return 2 * radius
}

// Volume returns the k-dimensional volume spanned by the k+1 vertices,
// sqrt(det(E*E^T))/k! where the rows of E are the edges from the first
// vertex. A volume near zero flags a degenerate simplex that can no longer
// search every direction.
func (s *Simplex[T]) Volume() float64 {
	k := len(s.points) - 1
	n := s.Dim()
	if k == 0 {
		return 0
	}

	edges := mat.NewDense(k, n, nil)
	origin := s.points[0].Inputs
	for i, p := range s.points[1:] {
		row := make([]float64, n)
		floats.SubTo(row, p.Inputs, origin)
		edges.SetRow(i, row)
	}

	var gram mat.Dense
	gram.Mul(edges, edges.T())
	det := mat.Det(&gram)
	if !(det > 0) {
		return 0
	}
	return math.Sqrt(det) / math.Gamma(float64(k+1))
}

// OrderedSimplex keeps its vertices sorted from worst to best for a given
// direction. It is never mutated after construction; every derivation
// returns a new value.
type OrderedSimplex[T cmp.Ordered] struct {
	Simplex[T]
	direction optimization.Direction
}

// NewOrderedSimplex validates points like NewSimplex and sorts them worst
// first under direction.
func NewOrderedSimplex[T cmp.Ordered](points []Point[T], direction optimization.Direction) (*OrderedSimplex[T], error) {
	s, err := NewSimplex(points)
	if err != nil {
		return nil, err
	}
	return newOrdered(s.points, direction), nil
}

// newOrdered takes ownership of points and sorts them. It skips the
// two-point minimum so that a one-dimensional simplex can drop a vertex.
func newOrdered[T cmp.Ordered](points []Point[T], direction optimization.Direction) *OrderedSimplex[T] {
	o := &OrderedSimplex[T]{Simplex: Simplex[T]{points: points}, direction: direction}
	slices.SortStableFunc(o.points, func(a, b Point[T]) int {
		return o.compare(a.Output, b.Output)
	})
	return o
}

// compare returns a positive number when a is better than b, negative when
// worse, and zero when they rank equally. NaN ranks below every number in
// both directions.
func (o *OrderedSimplex[T]) compare(a, b T) int {
	aNaN, bNaN := a != a, b != b
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	}
	if o.direction == optimization.Maximize {
		return cmp.Compare(a, b)
	}
	return cmp.Compare(b, a)
}

// Direction returns the ordering direction.
func (o *OrderedSimplex[T]) Direction() optimization.Direction {
	return o.direction
}

// IsBetterThan reports whether a strictly outranks b.
func (o *OrderedSimplex[T]) IsBetterThan(a, b Point[T]) bool {
	return o.compare(a.Output, b.Output) > 0
}

// Worst returns a copy of the lowest-ranked vertex.
func (o *OrderedSimplex[T]) Worst() Point[T] {
	return o.worst().clone()
}

// Best returns a copy of the highest-ranked vertex.
func (o *OrderedSimplex[T]) Best() Point[T] {
	return o.best().clone()
}

func (o *OrderedSimplex[T]) worst() Point[T] {
	return o.points[0]
}

func (o *OrderedSimplex[T]) best() Point[T] {
	return o.points[len(o.points)-1]
}

// WithoutWorst returns a new simplex lacking the worst vertex.
func (o *OrderedSimplex[T]) WithoutWorst() *OrderedSimplex[T] {
	return &OrderedSimplex[T]{
		Simplex:   Simplex[T]{points: slices.Clone(o.points[1:])},
		direction: o.direction,
	}
}

// WithoutBest returns a new simplex lacking the best vertex.
func (o *OrderedSimplex[T]) WithoutBest() *OrderedSimplex[T] {
	return &OrderedSimplex[T]{
		Simplex:   Simplex[T]{points: slices.Clone(o.points[:len(o.points)-1])},
		direction: o.direction,
	}
}

// With returns a new simplex containing p inserted at its rank. Among equal
// outputs the new point sorts after the existing ones.
func (o *OrderedSimplex[T]) With(p Point[T]) *OrderedSimplex[T] {
	idx, _ := slices.BinarySearchFunc(o.points, p, func(e, target Point[T]) int {
		if o.compare(e.Output, target.Output) > 0 {
			return 1
		}
		return -1
	})
	points := make([]Point[T], 0, len(o.points)+1)
	points = append(points, o.points[:idx]...)
	points = append(points, p.clone())
	points = append(points, o.points[idx:]...)
	return &OrderedSimplex[T]{Simplex: Simplex[T]{points: points}, direction: o.direction}
}
