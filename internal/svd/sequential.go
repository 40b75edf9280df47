package svd

import (
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Sequential is the single-goroutine Jacobi engine.
type Sequential struct {
	state
	pairs     []ColumnPair
	rotations []JacobiRotation
}

// NewSequential returns a sequential engine.
func NewSequential(opts Options) *Sequential {
	return &Sequential{state: state{name: "sequential", opts: opts}}
}

// Begin starts a new decomposition of the square matrix m.
func (s *Sequential) Begin(m *mat.Dense) {
	s.begin(m)
	if p := pairCount(s.n); cap(s.pairs) < p {
		s.pairs = make([]ColumnPair, p)
	} else {
		s.pairs = s.pairs[:p]
	}
}

// Step performs one sweep and reports whether the iteration has converged or
// hit the sweep cap.
func (s *Sequential) Step() bool {
	if s.iter >= s.opts.MaxSweeps {
		s.outcome = outcomeCap
		return true
	}

	for j := 0; j < s.n; j++ {
		fillPairs(s.pairs[pairOffset(j, s.n):], s.u, j, s.n)
	}
	slices.SortFunc(s.pairs, ComparePairs)
	pivots := s.pairs[:min(len(s.pairs), s.opts.PivotCount(len(s.pairs)))]
	if s.converged(pivots) {
		return true
	}

	s.rotations = s.rotations[:0]
	for _, p := range pivots {
		s.rotations = append(s.rotations, NewRotation(s.u, p))
	}
	for _, r := range s.rotations {
		r.Apply(s.u)
		r.Apply(s.v)
	}
	return s.capped()
}

// StepN performs up to n sweeps and reports whether it stopped early.
func (s *Sequential) StepN(n int) bool {
	for i := 0; i < n; i++ {
		if s.Step() {
			return true
		}
	}
	return false
}

// Finish extracts the singular values.
func (s *Sequential) Finish() { s.finish() }
