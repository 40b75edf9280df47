package amm

import (
	"fmt"
	"time"

	"github.com/objones25/gamm/internal/linalg"
	"github.com/objones25/gamm/internal/pool"
	"github.com/objones25/gamm/internal/svd"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// InterParallel splits the source columns into t contiguous ranges, reduces
// each on its own worker and merges the sketches in a binary tree. In round
// i > 0 worker w absorbs the sketch of worker w+2^(i-1); the result ends up
// in worker 0's slot.
type InterParallel struct {
	l       int
	beta    float64
	threads int
	opts    svd.Options
	pool    *pool.Pool
	owned   bool
}

// NewInterParallel returns the strategy with a private pool of t-1 workers.
// Close releases it.
func NewInterParallel(l int, beta float64, t int, opts svd.Options) *InterParallel {
	s := NewInterParallelWithPool(l, beta, t, opts, pool.New(t-1))
	s.owned = true
	return s
}

// NewInterParallelWithPool returns the strategy borrowing t-1 workers from shared.
func NewInterParallelWithPool(l int, beta float64, t int, opts svd.Options, shared *pool.Pool) *InterParallel {
	return &InterParallel{l: l, beta: beta, threads: t, opts: opts, pool: shared}
}

func (s *InterParallel) Name() string { return "inter" }

// Threads returns the number of workers.
func (s *InterParallel) Threads() int { return s.threads }

// Workers returns the number of tree workers, one per thread.
func (s *InterParallel) Workers() int { return s.threads }

func (s *InterParallel) Reduce(x, y *mat.Dense) (sketch *Sketch, err error) {
	defer func(start time.Time) { observe(s.Name(), start, err) }(time.Now())

	if s.threads < 1 {
		return nil, NewReductionError("reduce", s.Name(), fmt.Errorf("%w: got %d", ErrInvalidThreads, s.threads))
	}
	if err := checkSources(x, y); err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	if err := validate(s.l, s.beta, s.opts); err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	if err := checkSplit(s.Name(), x, s.threads, s.l); err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}

	tree := newMergeTree(x, y, s.l, s.threads)
	batch := s.pool.SubmitGang(s.threads-1, func(member int) {
		tree.work(member+1, s.reducer)
	})
	tree.work(0, s.reducer)
	batch.Wait()
	return tree.result(), nil
}

func (s *InterParallel) reducer(int, int) *Reducer {
	return &Reducer{l: s.l, beta: s.beta, engine: svd.NewSequential(s.opts), attenuation: Attenuation(s.l, s.beta)}
}

// Close releases the private pool, if any.
func (s *InterParallel) Close() {
	if s.owned {
		s.pool.Close()
	}
}

// mergeTree holds the per-worker slots of a tree reduction.
type mergeTree struct {
	x, y    *mat.Dense
	workers int
	slots   []lockedSketch
	barrier *pool.Barrier
}

func newMergeTree(x, y *mat.Dense, l, workers int) *mergeTree {
	xr, _ := x.Dims()
	yr, _ := y.Dims()
	t := &mergeTree{
		x:       x,
		y:       y,
		workers: workers,
		slots:   make([]lockedSketch, workers),
		barrier: pool.NewBarrier(workers),
	}
	for i := range t.slots {
		t.slots[i].sketch = NewSketch(xr, yr, l)
	}
	return t
}

// work runs worker w's part of the tree. reducer supplies the reducer for
// each round; round 0 reduces the worker's own source range.
func (t *mergeTree) work(w int, reducer func(worker, round int) *Reducer) {
	own := &t.slots[w]
	own.mu.Lock()
	defer own.mu.Unlock()
	t.barrier.Wait()

	_, d := t.x.Dims()
	r := linalg.UnevenDivide(w, d, t.workers)
	x := sourceRange(t.x, r.Start, r.End())
	y := sourceRange(t.y, r.Start, r.End())
	if _, err := reduceInto(reducer(w, 0), x, y, own.sketch); err != nil {
		panic(err)
	}
	log.Debug().Int("worker", w).Int("start", r.Start).Int("columns", r.Len).Msg("Reduced source range")

	rounds := linalg.MergeRounds(w, t.workers)
	for i := 1; i < rounds; i++ {
		partner := w + 1<<(i-1)
		if partner >= t.workers {
			break
		}
		other := &t.slots[partner]
		other.mu.Lock()
		_, err := reduceInto(reducer(w, i), other.sketch.BX, other.sketch.BY, own.sketch)
		other.mu.Unlock()
		if err != nil {
			panic(err)
		}
		log.Debug().Int("worker", w).Int("partner", partner).Int("round", i).Msg("Merged sketch")
	}
}

// result returns worker 0's sketch once every worker has finished.
func (t *mergeTree) result() *Sketch {
	t.slots[0].mu.Lock()
	defer t.slots[0].mu.Unlock()
	return t.slots[0].sketch
}
