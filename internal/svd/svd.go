// Package svd implements the two-sided pivoted Jacobi SVD used by the
// reduction engine, in a sequential and a parallel flavor that produce
// bit-identical results.
//
// Each sweep computes the dot products of all column pairs of U, keeps the
// largest ones as pivots and rotates each pivot pair until the columns of U
// are mutually orthogonal. The column norms of U are then the singular
// values and V accumulates the right rotations.
package svd

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/objones25/gamm/internal/linalg"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotSquare is raised when Begin is handed a non-square matrix.
	ErrNotSquare = errors.New("svd: matrix is not square")

	// ErrInvalidOptions is returned by Options.Validate.
	ErrInvalidOptions = errors.New("svd: invalid options")
)

// Engine is an incremental SVD solver. Begin takes ownership of m; U, V and
// Values are valid after Finish until the next Begin.
type Engine interface {
	Begin(m *mat.Dense)
	Step() bool
	StepN(n int) bool
	Finish()
	U() *mat.Dense
	V() *mat.Dense
	Values() []float64
	Options() Options
}

// Options controls the Jacobi iteration.
type Options struct {
	Tau       int     // Fraction of pairs rotated per sweep is 1/Tau
	MaxSweeps int     // Sweeps after which the iteration reports convergence
	Tolerance float64 // Convergence threshold relative to the squared Frobenius norm
}

// DefaultOptions returns the default Jacobi options.
func DefaultOptions() Options {
	return Options{
		Tau:       32,
		MaxSweeps: 100,
		Tolerance: 1e-7,
	}
}

// Validate checks that the options are usable.
func (o Options) Validate() error {
	if o.Tau < 1 {
		return fmt.Errorf("%w: tau must be positive, got %d", ErrInvalidOptions, o.Tau)
	}
	if o.MaxSweeps < 1 {
		return fmt.Errorf("%w: max sweeps must be positive, got %d", ErrInvalidOptions, o.MaxSweeps)
	}
	if o.Tolerance < 0 || math.IsNaN(o.Tolerance) {
		return fmt.Errorf("%w: tolerance must be non-negative, got %g", ErrInvalidOptions, o.Tolerance)
	}
	return nil
}

// PivotCount returns how many of pairs column pairs are rotated per sweep.
func (o Options) PivotCount(pairs int) int {
	return max(1, pairs/o.Tau)
}

// ColumnPair is a candidate rotation: columns J < K of U and their dot product.
type ColumnPair struct {
	J, K int
	Dot  float64
}

// ComparePairs orders pairs by |Dot| descending, then by J and K ascending.
func ComparePairs(a, b ColumnPair) int {
	da, db := math.Abs(a.Dot), math.Abs(b.Dot)
	switch {
	case da > db:
		return -1
	case da < db:
		return 1
	}
	if c := cmp.Compare(a.J, b.J); c != 0 {
		return c
	}
	return cmp.Compare(a.K, b.K)
}

// pairCount returns the number of unordered column pairs of n columns.
func pairCount(n int) int { return n * (n - 1) / 2 }

// pairOffset returns where the pairs (j, j+1..n-1) start in a row-major
// listing of all pairs.
func pairOffset(j, n int) int { return j*(2*n-j-1) / 2 }

// fillPairs writes the pairs (j, k) for k > j starting at dst[0].
func fillPairs(dst []ColumnPair, u *mat.Dense, j, n int) {
	for k := j + 1; k < n; k++ {
		dst[k-j-1] = ColumnPair{J: j, K: k, Dot: linalg.ColDot(u, j, u, k)}
	}
}

// mergePairs merges two sorted runs into dst, keeping at most limit entries.
func mergePairs(dst, a, b []ColumnPair, limit int) int {
	n, i, j := 0, 0, 0
	for n < limit && (i < len(a) || j < len(b)) {
		if j >= len(b) || (i < len(a) && ComparePairs(a[i], b[j]) <= 0) {
			dst[n] = a[i]
			i++
		} else {
			dst[n] = b[j]
			j++
		}
		n++
	}
	return n
}

// JacobiRotation zeroes the dot product of columns J and K.
type JacobiRotation struct {
	C, S, InvC, T float64
	J, K          int
}

// NewRotation builds the rotation for pair p from the current state of u.
func NewRotation(u *mat.Dense, p ColumnPair) JacobiRotation {
	r := JacobiRotation{C: 1, InvC: 1, J: p.J, K: p.K}
	if p.Dot == 0 {
		return r
	}
	nj := linalg.ColSquaredNorm(u, p.J)
	nk := linalg.ColSquaredNorm(u, p.K)
	gamma := (nk - nj) / (2 * p.Dot)
	sign := 1.0
	if gamma < 0 {
		sign = -1
	}
	r.T = sign / (math.Abs(gamma) + math.Sqrt(1+gamma*gamma))
	r.InvC = math.Sqrt(1 + r.T*r.T)
	r.C = 1 / r.InvC
	r.S = r.T * r.C
	return r
}

// Apply rotates columns J and K of m on every row.
func (r JacobiRotation) Apply(m *mat.Dense) {
	rows, _ := m.Dims()
	r.ApplyRows(m, linalg.Range{Start: 0, Len: rows})
}

// ApplyRows rotates columns J and K of m on the given rows only.
func (r JacobiRotation) ApplyRows(m *mat.Dense, rows linalg.Range) {
	raw := m.RawMatrix()
	for i := rows.Start; i < rows.End(); i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		j := r.C*row[r.J] - r.S*row[r.K]
		row[r.K] = r.InvC*row[r.K] + r.T*j
		row[r.J] = j
	}
}

// Outcomes recorded when a run finishes.
const (
	outcomeThreshold = "threshold"
	outcomeCap       = "cap"
	outcomePartial   = "partial"
)

// state is the bookkeeping shared by both engines.
type state struct {
	name    string
	opts    Options
	n       int
	u, v    *mat.Dense
	values  []float64
	delta   float64
	iter    int
	outcome string
}

func (s *state) begin(m *mat.Dense) {
	r, c := m.Dims()
	if r != c {
		panic(fmt.Errorf("%w: %dx%d", ErrNotSquare, r, c))
	}
	s.n = r
	s.u = m
	if s.v == nil || s.v.RawMatrix().Rows != r {
		s.v = mat.NewDense(r, r, nil)
	} else {
		s.v.Zero()
	}
	for i := 0; i < r; i++ {
		s.v.Set(i, i, 1)
	}
	s.values = s.values[:0]
	s.delta = s.opts.Tolerance * linalg.SquaredFrobenius(m)
	s.iter = 0
	s.outcome = outcomePartial
}

// converged reports whether the best pivot of a sweep is below threshold.
func (s *state) converged(pivots []ColumnPair) bool {
	if len(pivots) == 0 || math.Abs(pivots[0].Dot) <= s.delta {
		s.outcome = outcomeThreshold
		return true
	}
	return false
}

// capped advances the sweep counter and reports whether the cap is reached.
func (s *state) capped() bool {
	s.iter++
	sweepsTotal.WithLabelValues(s.name).Inc()
	if s.iter >= s.opts.MaxSweeps {
		s.outcome = outcomeCap
		return true
	}
	return false
}

// finish normalizes U, extracts the singular values and sorts them in
// descending order, permuting U and V to match.
func (s *state) finish() {
	n := s.n
	values := make([]float64, n)
	for j := 0; j < n; j++ {
		norm := linalg.ColNorm(s.u, j)
		if linalg.IsZero(norm) {
			linalg.ZeroCol(s.u, j)
			continue
		}
		values[j] = norm
		linalg.ScaleCol(s.u, j, 1/norm)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(values[b], values[a])
	})

	s.values = make([]float64, n)
	for i, o := range order {
		s.values[i] = values[o]
	}
	if !slices.IsSorted(order) {
		s.u = permuteColumns(s.u, order)
		s.v = permuteColumns(s.v, order)
	}

	runsTotal.WithLabelValues(s.name, s.outcome).Inc()
	log.Trace().
		Str("engine", s.name).
		Int("sweeps", s.iter).
		Str("outcome", s.outcome).
		Msg("Finished Jacobi SVD")
}

func permuteColumns(m *mat.Dense, order []int) *mat.Dense {
	src := mat.DenseCopyOf(m)
	for dst, from := range order {
		linalg.CopyCol(m, dst, src, from)
	}
	return m
}

func (s *state) U() *mat.Dense { return s.u }

func (s *state) V() *mat.Dense { return s.v }

func (s *state) Values() []float64 { return s.values }

func (s *state) Options() Options { return s.opts }

// Sweeps returns the number of rotation sweeps performed since Begin.
func (s *state) Sweeps() int { return s.iter }

var (
	_ Engine = (*Sequential)(nil)
	_ Engine = (*Parallel)(nil)
)
