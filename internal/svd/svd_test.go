package svd

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/objones25/gamm/internal/linalg"
	"github.com/objones25/gamm/internal/logging"
	"github.com/objones25/gamm/internal/pool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomSquare(seed int64, n int) *mat.Dense {
	return linalg.RandomMatrix(rand.New(rand.NewSource(seed)), n, n)
}

// precise converges far enough to compare against a reference SVD.
var precise = Options{Tau: 32, MaxSweeps: 100000, Tolerance: 1e-13}

// decompose drives an engine to completion on a copy of m.
func decompose(e Engine, m *mat.Dense) {
	e.Begin(mat.DenseCopyOf(m))
	e.StepN(e.Options().MaxSweeps)
	e.Finish()
}

func TestOptions(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	opts := DefaultOptions()
	assert.Equal(t, Options{Tau: 32, MaxSweeps: 100, Tolerance: 1e-7}, opts)
	require.NoError(t, opts.Validate())

	assert.Equal(t, 1, opts.PivotCount(0))
	assert.Equal(t, 1, opts.PivotCount(31))
	assert.Equal(t, 3, opts.PivotCount(100))

	bad := []Options{
		{Tau: 0, MaxSweeps: 1, Tolerance: 0},
		{Tau: 1, MaxSweeps: 0, Tolerance: 0},
		{Tau: 1, MaxSweeps: 1, Tolerance: -1},
		{Tau: 1, MaxSweeps: 1, Tolerance: math.NaN()},
	}
	for _, o := range bad {
		assert.True(t, errors.Is(o.Validate(), ErrInvalidOptions), "%+v", o)
	}
}

func TestComparePairs(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	pairs := []ColumnPair{
		{J: 1, K: 2, Dot: 0.5},
		{J: 0, K: 3, Dot: -2},
		{J: 0, K: 2, Dot: 0.5},
		{J: 0, K: 1, Dot: -0.5},
		{J: 2, K: 3, Dot: 1},
	}
	slices.SortFunc(pairs, ComparePairs)
	assert.Equal(t, []ColumnPair{
		{J: 0, K: 3, Dot: -2},
		{J: 2, K: 3, Dot: 1},
		{J: 0, K: 1, Dot: -0.5},
		{J: 0, K: 2, Dot: 0.5},
		{J: 1, K: 2, Dot: 0.5},
	}, pairs)
}

func TestMergePairs(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	a := []ColumnPair{{J: 0, K: 1, Dot: 5}, {J: 0, K: 2, Dot: 1}}
	b := []ColumnPair{{J: 1, K: 2, Dot: -3}, {J: 1, K: 3, Dot: 1}}
	dst := make([]ColumnPair, 4)

	n := mergePairs(dst, a, b, 3)
	assert.Equal(t, 3, n)
	assert.Equal(t, []ColumnPair{a[0], b[0], a[1]}, dst[:n])

	n = mergePairs(dst, nil, b, 10)
	assert.Equal(t, b, dst[:n])
}

func TestPairOffset(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	const n = 5
	seen := make([]bool, pairCount(n))
	for j := 0; j < n; j++ {
		for k := j + 1; k < n; k++ {
			i := pairOffset(j, n) + k - j - 1
			require.False(t, seen[i])
			seen[i] = true
		}
	}
	assert.NotContains(t, seen, false)
}

func TestRotationZeroesDot(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	u := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 1,
		0, 4,
	})
	p := ColumnPair{J: 0, K: 1, Dot: linalg.ColDot(u, 0, u, 1)}
	before := linalg.SquaredFrobenius(u)

	r := NewRotation(u, p)
	assert.InDelta(t, 1, r.C*r.InvC, 1e-15)
	r.Apply(u)

	assert.InDelta(t, 0, linalg.ColDot(u, 0, u, 1), 1e-12)
	assert.InDelta(t, before, linalg.SquaredFrobenius(u), 1e-12, "rotation must preserve the Frobenius norm")

	t.Run("Zero dot is identity", func(t *testing.T) {
		r := NewRotation(u, ColumnPair{J: 0, K: 1})
		assert.Equal(t, JacobiRotation{C: 1, InvC: 1, J: 0, K: 1}, r)
	})
}

func TestBeginRejectsNonSquare(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	e := NewSequential(DefaultOptions())
	defer func() {
		err, ok := recover().(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrNotSquare))
	}()
	e.Begin(mat.NewDense(3, 2, nil))
}

func TestSequentialDecomposition(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	for _, n := range []int{1, 2, 5, 16} {
		m := randomSquare(int64(n), n)
		e := NewSequential(precise)
		decompose(e, m)

		values := e.Values()
		require.Len(t, values, n)
		assert.True(t, slices.IsSortedFunc(values, func(a, b float64) int {
			switch {
			case a > b:
				return -1
			case a < b:
				return 1
			}
			return 0
		}), "values must be descending: %v", values)

		var want mat.SVD
		require.True(t, want.Factorize(m, mat.SVDNone))
		assert.InDeltaSlice(t, want.Values(nil), values, 1e-6)

		// U·diag(σ)·Vᵗ reproduces the input.
		us := mat.DenseCopyOf(e.U())
		for j, s := range values {
			linalg.ScaleCol(us, j, s)
		}
		var back mat.Dense
		back.Mul(us, e.V().T())
		assert.True(t, mat.EqualApprox(&back, m, 1e-6), "n=%d", n)

		var vtv mat.Dense
		vtv.Mul(e.V().T(), e.V())
		assert.True(t, mat.EqualApprox(&vtv, identity(n), 1e-10))
	}
}

func TestRankDeficient(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	m := mat.NewDense(3, 3, []float64{
		1, 2, 0,
		2, 4, 0,
		0, 0, 0,
	})
	e := NewSequential(DefaultOptions())
	decompose(e, m)

	values := e.Values()
	assert.InDelta(t, 5, values[0], 1e-9)
	assert.Zero(t, values[1])
	assert.Zero(t, values[2])
	assert.True(t, linalg.IsZeroCol(e.U(), 1))
	assert.True(t, linalg.IsZeroCol(e.U(), 2))
}

func TestSweepCap(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	opts := DefaultOptions()
	opts.MaxSweeps = 2
	e := NewSequential(opts)
	e.Begin(randomSquare(3, 12))

	assert.False(t, e.Step())
	assert.True(t, e.Step(), "second sweep reaches the cap")
	assert.Equal(t, 2, e.Sweeps())
	assert.True(t, e.Step(), "steps past the cap report convergence")
	assert.Equal(t, 2, e.Sweeps())
	e.Finish()
	assert.Len(t, e.Values(), 12)
}

func TestConvergedInputNeedsNoSweep(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	e := NewSequential(DefaultOptions())
	e.Begin(mat.NewDense(2, 2, []float64{3, 0, 0, 4}))
	assert.True(t, e.Step())
	assert.Equal(t, 0, e.Sweeps())
	e.Finish()
	assert.Equal(t, []float64{4, 3}, e.Values())
	assert.Equal(t, []float64{0, 1}, mat.Col(nil, 0, e.V()))
}

// Equal singular values keep the order of their original columns.
func TestFinishTieOrder(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	engines := map[string]func() Engine{
		"Sequential": func() Engine { return NewSequential(DefaultOptions()) },
		"Parallel":   func() Engine { return NewParallel(DefaultOptions(), 2) },
	}
	for name, newEngine := range engines {
		t.Run(name, func(t *testing.T) {
			e := newEngine()
			if p, ok := e.(*Parallel); ok {
				defer p.Close()
			}
			m := mat.NewDense(3, 3, []float64{
				1, 0, 0,
				0, 2, 0,
				0, 0, 2,
			})
			decompose(e, m)

			assert.Equal(t, []float64{2, 2, 1}, e.Values())
			assert.Equal(t, []float64{0, 1, 0}, mat.Col(nil, 0, e.V()))
			assert.Equal(t, []float64{0, 0, 1}, mat.Col(nil, 1, e.V()))
			assert.Equal(t, []float64{1, 0, 0}, mat.Col(nil, 2, e.V()))
		})
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	for _, threads := range []int{1, 2, 3, 4, 7} {
		for _, n := range []int{1, 2, 9, 24} {
			m := randomSquare(int64(100*threads+n), n)

			seq := NewSequential(DefaultOptions())
			decompose(seq, m)

			par := NewParallel(DefaultOptions(), threads)
			decompose(par, m)
			par.Close()

			assert.Equal(t, seq.Sweeps(), par.Sweeps(), "threads=%d n=%d", threads, n)
			assert.Equal(t, seq.Values(), par.Values(), "threads=%d n=%d", threads, n)
			assert.True(t, mat.Equal(seq.U(), par.U()), "threads=%d n=%d", threads, n)
			assert.True(t, mat.Equal(seq.V(), par.V()), "threads=%d n=%d", threads, n)
		}
	}
}

func TestParallelStepwise(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	opts := DefaultOptions()
	opts.MaxSweeps = 3
	m := randomSquare(11, 16)

	seq := NewSequential(opts)
	seq.Begin(mat.DenseCopyOf(m))
	shared := pool.New(3)
	defer shared.Close()
	par := NewParallelWithPool(opts, shared, 4)
	par.Begin(mat.DenseCopyOf(m))

	assert.False(t, par.StepN(0))
	for i := 0; i < 4; i++ {
		assert.Equal(t, seq.Step(), par.Step(), "sweep %d", i)
		assert.True(t, mat.Equal(seq.U(), par.U()), "sweep %d", i)
	}
	assert.Equal(t, 3, par.Sweeps())
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
