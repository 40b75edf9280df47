package amm

import (
	"fmt"
	"time"

	"github.com/objones25/gamm/internal/pool"
	"github.com/objones25/gamm/internal/svd"
	"gonum.org/v1/gonum/mat"
)

// IntraParallel runs one reduction whose SVD sweeps are spread over t threads.
type IntraParallel struct {
	l       int
	beta    float64
	threads int
	opts    svd.Options
	engine  *svd.Parallel
}

// NewIntraParallel returns the strategy with a private pool of t-1 workers.
// Close releases it.
func NewIntraParallel(l int, beta float64, t int, opts svd.Options) *IntraParallel {
	return &IntraParallel{l: l, beta: beta, threads: t, opts: opts, engine: svd.NewParallel(opts, t)}
}

// NewIntraParallelWithPool returns the strategy borrowing t-1 workers from shared.
func NewIntraParallelWithPool(l int, beta float64, t int, opts svd.Options, shared *pool.Pool) *IntraParallel {
	return &IntraParallel{l: l, beta: beta, threads: t, opts: opts, engine: svd.NewParallelWithPool(opts, shared, t)}
}

func (s *IntraParallel) Name() string { return "intra" }

// Threads returns the number of threads each SVD sweep runs on.
func (s *IntraParallel) Threads() int { return s.engine.Threads() }

func (s *IntraParallel) Reduce(x, y *mat.Dense) (sketch *Sketch, err error) {
	defer func(start time.Time) { observe(s.Name(), start, err) }(time.Now())

	if s.threads < 1 {
		return nil, NewReductionError("reduce", s.Name(), fmt.Errorf("%w: got %d", ErrInvalidThreads, s.threads))
	}
	if err := checkSources(x, y); err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	reducer, err := NewReducer(s.l, s.beta, s.engine)
	if err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	sketch, err = reduceInto(reducer, x, y, nil)
	if err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	return sketch, nil
}

// Close releases the private pool, if any.
func (s *IntraParallel) Close() { s.engine.Close() }
