package amm

import (
	"fmt"
	"math"
	"time"

	"github.com/objones25/gamm/internal/linalg"
	"github.com/objones25/gamm/internal/pool"
	"github.com/objones25/gamm/internal/svd"
	"gonum.org/v1/gonum/mat"
)

// CombinedParallel runs the InterParallel merge tree over p workers, with
// every reduction in the tree using a parallel SVD. The t intra threads are
// redistributed among the workers still active at each level of the tree.
//
// The shared pool holds t+p-1 workers: p-1 run the tree itself and the rest
// serve the SVD gangs, so a worker that falls behind still finds its threads.
type CombinedParallel struct {
	l       int
	beta    float64
	threads int
	workers int
	opts    svd.Options
	pool    *pool.Pool
}

// NewCombinedParallel returns the strategy with t intra threads and p tree
// workers. Close releases its pool.
func NewCombinedParallel(l int, beta float64, t, p int, opts svd.Options) *CombinedParallel {
	return &CombinedParallel{
		l:       l,
		beta:    beta,
		threads: t,
		workers: p,
		opts:    opts,
		pool:    pool.New(t + p - 1),
	}
}

func (s *CombinedParallel) Name() string { return "combined" }

// Threads returns the intra thread budget.
func (s *CombinedParallel) Threads() int { return s.threads }

// Workers returns the number of tree workers.
func (s *CombinedParallel) Workers() int { return s.workers }

func (s *CombinedParallel) Reduce(x, y *mat.Dense) (sketch *Sketch, err error) {
	defer func(start time.Time) { observe(s.Name(), start, err) }(time.Now())

	if s.threads < 1 || s.workers < 1 {
		return nil, NewReductionError("reduce", s.Name(),
			fmt.Errorf("%w: got t=%d p=%d", ErrInvalidThreads, s.threads, s.workers))
	}
	if err := checkSources(x, y); err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	if err := validate(s.l, s.beta, s.opts); err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	if err := checkSplit(s.Name(), x, s.workers, s.l); err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}

	tree := newMergeTree(x, y, s.l, s.workers)
	batch := s.pool.SubmitGang(s.workers-1, func(member int) {
		tree.work(member+1, s.reducer)
	})
	tree.work(0, s.reducer)
	batch.Wait()
	return tree.result(), nil
}

func (s *CombinedParallel) reducer(worker, round int) *Reducer {
	threads := IntraThreads(worker, round, s.workers, s.threads)
	engine := svd.NewParallelWithPool(s.opts, s.pool, threads)
	return &Reducer{l: s.l, beta: s.beta, engine: engine, attenuation: Attenuation(s.l, s.beta)}
}

// Close releases the pool.
func (s *CombinedParallel) Close() { s.pool.Close() }

// IntraThreads returns how many of the t intra threads worker w gets in the
// given round of a p-worker tree. The workers active in a round are w with
// w mod 2^round = 0; they split t unevenly by their rank among themselves.
func IntraThreads(w, round, p, t int) int {
	active := max(1, int(math.Ceil(float64(p)/float64(uint64(1)<<round)-0.5)))
	rank := w >> round
	if rank >= active {
		rank = active - 1
	}
	n := linalg.UnevenDivide(rank, t, active).Len
	return min(max(n, 1), t)
}
