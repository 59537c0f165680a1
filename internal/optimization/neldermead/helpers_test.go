package neldermead

import (
	"cmp"
	"math"
	"testing"

	"github.com/copyleftdev/simplex/internal/optimization"
)

// sphere is a simple quadratic objective with its minimum at the origin.
func sphere(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

// shifted returns sum((x[i]-center[i])^2).
func shifted(center ...float64) Objective[float64] {
	return func(x []float64) (float64, error) {
		sum := 0.0
		for i, v := range x {
			d := v - center[i]
			sum += d * d
		}
		return sum, nil
	}
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// assertSorted fails unless no vertex ranks above a later one.
func assertSorted[T cmp.Ordered](t *testing.T, s *OrderedSimplex[T]) {
	t.Helper()

	points := s.Points()
	for i := 1; i < len(points); i++ {
		if s.IsBetterThan(points[i-1], points[i]) {
			t.Fatalf("vertex %d (%v) outranks vertex %d (%v) under %s",
				i-1, points[i-1].Output, i, points[i].Output, s.Direction())
		}
	}
}

// mustOrdered builds an ordered simplex by evaluating f at each input.
func mustOrdered(t *testing.T, f Objective[float64], dir optimization.Direction, inputs ...[]float64) *OrderedSimplex[float64] {
	t.Helper()

	points := make([]Point[float64], len(inputs))
	for i, x := range inputs {
		out, err := f(x)
		if err != nil {
			t.Fatalf("objective failed at %v: %v", x, err)
		}
		points[i] = Point[float64]{Inputs: x, Output: out}
	}
	s, err := NewOrderedSimplex(points, dir)
	if err != nil {
		t.Fatalf("NewOrderedSimplex: %v", err)
	}
	return s
}

// recorder collects every observed iteration.
type recorder[T cmp.Ordered] struct {
	iterations []Iteration[T]
}

func (r *recorder[T]) OnIteration(it Iteration[T]) {
	r.iterations = append(r.iterations, it)
}
