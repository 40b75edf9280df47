// Package amm computes approximate matrix products X·Yᵗ ≈ BX·BYᵗ by folding
// the columns of X and Y into a pair of l-column sketches.
//
// A Reducer holds the algorithm parameters; binding it to inputs yields a
// Reduction, which is driven through Setup, Step and Finish until every
// source column has been consumed. Strategies decide how many reductions
// run and how their results are merged.
package amm

import (
	"fmt"
	"math"

	"github.com/objones25/gamm/internal/linalg"
	"github.com/objones25/gamm/internal/svd"
	"github.com/objones25/gamm/internal/zeroed"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Reducer is an unbound reduction engine: sketch width, attenuation
// strength and the SVD engine to drive.
type Reducer struct {
	l           int
	beta        float64
	engine      svd.Engine
	attenuation []float64
}

// NewReducer validates the parameters and returns a reducer.
func NewReducer(l int, beta float64, engine svd.Engine) (*Reducer, error) {
	if engine == nil {
		return nil, fmt.Errorf("amm: nil SVD engine")
	}
	if err := validate(l, beta, engine.Options()); err != nil {
		return nil, err
	}
	return &Reducer{
		l:           l,
		beta:        beta,
		engine:      engine,
		attenuation: Attenuation(l, beta),
	}, nil
}

func validate(l int, beta float64, opts svd.Options) error {
	if l < 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidRank, l)
	}
	if beta < 0 || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return fmt.Errorf("%w: got %g", ErrInvalidBeta, beta)
	}
	return opts.Validate()
}

// L returns the sketch width.
func (r *Reducer) L() int { return r.l }

// Beta returns the attenuation strength.
func (r *Reducer) Beta() float64 { return r.beta }

// Bind attaches the reducer to the sources x (n×d), y (m×d) and the sketches
// bx (n×l), by (m×l). The sketches are updated in place; their all-zero
// columns are the initial free slots.
func (r *Reducer) Bind(x, y, bx, by *mat.Dense) (*Reduction, error) {
	xr, d := x.Dims()
	yr, yd := y.Dims()
	bxr, bxc := bx.Dims()
	byr, byc := by.Dims()
	switch {
	case yd != d:
		return nil, fmt.Errorf("%w: x has %d columns, y has %d", ErrShapeMismatch, d, yd)
	case bxr != xr || bxc != r.l:
		return nil, fmt.Errorf("%w: bx is %dx%d, want %dx%d", ErrShapeMismatch, bxr, bxc, xr, r.l)
	case byr != yr || byc != r.l:
		return nil, fmt.Errorf("%w: by is %dx%d, want %dx%d", ErrShapeMismatch, byr, byc, yr, r.l)
	}

	red := &Reduction{
		Reducer: r,
		x:       x,
		y:       y,
		bx:      bx,
		by:      by,
		free:    zeroed.New(r.l),
		d:       d,
		rx:      mat.NewDense(r.l, r.l, nil),
		ry:      mat.NewDense(r.l, r.l, nil),
		sigma:   make([]float64, r.l),
	}
	red.free.InitializeFromMatrix(bx)
	return red, nil
}

// Reduction is a reducer bound to one set of inputs.
type Reduction struct {
	*Reducer
	x, y   *mat.Dense
	bx, by *mat.Dense
	free   *zeroed.Columns
	xi, d  int

	rx, ry     *mat.Dense
	tmpX, tmpY mat.Dense
	sigma      []float64
}

// Setup folds source columns into the free sketch slots and starts an SVD of
// the coupling between the two sketches. It returns true, doing nothing, once
// every source column has been consumed.
func (r *Reduction) Setup() bool {
	if r.xi == r.d {
		return true
	}

	folded, skipped := 0, 0
	for r.free.Count() > 0 && r.xi < r.d {
		if linalg.IsExactZeroCol(r.x, r.xi) || linalg.IsExactZeroCol(r.y, r.xi) {
			r.xi++
			skipped++
			continue
		}
		slot := r.free.TakeFree()
		linalg.CopyCol(r.bx, slot, r.x, r.xi)
		linalg.CopyCol(r.by, slot, r.y, r.xi)
		r.xi++
		folded++
	}
	columnsFolded.Add(float64(folded))

	linalg.QR(r.bx, r.rx, false)
	linalg.QR(r.by, r.ry, true)
	core := mat.NewDense(r.l, r.l, nil)
	core.Mul(r.rx, r.ry)
	r.engine.Begin(core)

	log.Trace().
		Int("cursor", r.xi).
		Int("folded", folded).
		Int("skipped", skipped).
		Msg("Prepared reduction step")
	return false
}

// Step runs up to n sweeps of the SVD and reports whether it converged.
func (r *Reduction) Step(n int) bool {
	return r.engine.StepN(n)
}

// Finish shrinks the spectrum, rotates the sketches onto the singular
// vectors and reclaims every column whose weight vanished.
func (r *Reduction) Finish() {
	r.engine.Finish()
	values := r.engine.Values()
	u, v := r.engine.U(), r.engine.V()

	r.free.InitializeAllLive(r.l)
	anchor := values[0]
	for i, s := range values {
		shrunk := math.Sqrt(max(s-anchor*r.attenuation[i], 0))
		if linalg.IsZero(shrunk) {
			shrunk = 0
			r.free.MarkFree(i)
		}
		r.sigma[i] = shrunk
	}
	for j, s := range r.sigma {
		linalg.ScaleCol(u, j, s)
		linalg.ScaleCol(v, j, s)
	}

	r.tmpX.Mul(r.bx, u)
	r.bx.Copy(&r.tmpX)
	r.tmpY.Mul(r.by, v)
	r.by.Copy(&r.tmpY)

	if !linalg.AllFinite(r.bx) || !linalg.AllFinite(r.by) {
		panic(fmt.Errorf("%w: after folding column %d", ErrNonFinite, r.xi))
	}

	reductionSteps.Inc()
	columnsReclaimed.Add(float64(r.free.Count()))
	log.Trace().
		Int("cursor", r.xi).
		Int("free", r.free.Count()).
		Float64("sigma0", anchor).
		Msg("Finished reduction step")
}

// Run drives the reduction until every source column has been consumed.
func (r *Reduction) Run() {
	for !r.Setup() {
		r.Step(r.engine.Options().MaxSweeps)
		r.Finish()
	}
}

// Cursor returns the index of the next source column to fold.
func (r *Reduction) Cursor() int { return r.xi }

// FreeColumns returns how many sketch slots are currently free.
func (r *Reduction) FreeColumns() int { return r.free.Count() }

// Sketch returns the sketches the reduction writes into.
func (r *Reduction) Sketch() *Sketch { return &Sketch{BX: r.bx, BY: r.by} }
