package svd

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/objones25/gamm/internal/linalg"
	"github.com/objones25/gamm/internal/pool"
	"gonum.org/v1/gonum/mat"
)

// run is one worker's sorted share of the pair list.
type run struct {
	mu    sync.Mutex
	start int
	kept  int
}

// Parallel is the multi-goroutine Jacobi engine. Its results are
// bit-identical to Sequential for the same input and options.
//
// A sweep runs in three phases separated by barriers: pair dot products,
// rotation construction and rotation application. Between the first two the
// pair list is partially sorted: every worker sorts its own run and the runs
// are merged pairwise in a binary tree, each run only ever holding the
// pivots that can still win.
type Parallel struct {
	state
	pool    *pool.Pool
	owned   bool
	threads int
	barrier *pool.Barrier

	pairs     []ColumnPair
	scratch   []ColumnPair
	runs      []run
	pivots    []ColumnPair
	rotations []JacobiRotation
	next      atomic.Int64

	remaining int
	stop      bool
	result    bool
}

// NewParallel returns an engine running on threads goroutines: the caller
// plus a private pool of threads-1 workers. Close releases the pool.
func NewParallel(opts Options, threads int) *Parallel {
	threads = max(threads, 1)
	p := NewParallelWithPool(opts, pool.New(threads-1), threads)
	p.owned = true
	return p
}

// NewParallelWithPool returns an engine that borrows threads-1 workers from
// shared for every StepN call.
func NewParallelWithPool(opts Options, shared *pool.Pool, threads int) *Parallel {
	threads = max(threads, 1)
	return &Parallel{
		state:   state{name: "parallel", opts: opts},
		pool:    shared,
		threads: threads,
		barrier: pool.NewBarrier(threads),
		runs:    make([]run, threads),
	}
}

// Threads returns the number of goroutines taking part in a sweep.
func (p *Parallel) Threads() int { return p.threads }

// Close stops the private pool, if any.
func (p *Parallel) Close() {
	if p.owned {
		p.pool.Close()
	}
}

// Begin starts a new decomposition of the square matrix m.
func (p *Parallel) Begin(m *mat.Dense) {
	p.begin(m)
	n := pairCount(p.n)
	if cap(p.pairs) < n {
		p.pairs = make([]ColumnPair, n)
		p.scratch = make([]ColumnPair, n)
	}
	p.pairs = p.pairs[:n]
	p.scratch = p.scratch[:n]
	if cap(p.rotations) < n {
		p.rotations = make([]JacobiRotation, 0, n)
	}
}

// Step performs one sweep.
func (p *Parallel) Step() bool { return p.StepN(1) }

// StepN performs up to n sweeps and reports whether it stopped early.
func (p *Parallel) StepN(n int) bool {
	if n <= 0 {
		return false
	}
	p.remaining = n
	p.stop = false
	p.result = false

	batch := p.pool.SubmitGang(p.threads-1, func(member int) {
		p.work(member + 1)
	})
	p.work(0)
	batch.Wait()
	return p.result
}

// Finish extracts the singular values.
func (p *Parallel) Finish() { p.finish() }

func (p *Parallel) work(w int) {
	for {
		if w == 0 {
			p.control()
		}
		p.barrier.Wait()
		if p.stop {
			return
		}

		p.computePairs()
		p.barrier.Wait()

		p.sortRun(w)
		p.barrier.Wait()

		for step := 1; step < p.threads; step <<= 1 {
			if w%(2*step) == 0 && w+step < p.threads {
				p.mergeRuns(w, w+step)
			}
			p.barrier.Wait()
		}

		if w == 0 {
			p.decide()
		}
		p.barrier.Wait()
		if p.stop {
			return
		}

		p.computeRotations()
		p.barrier.Wait()

		p.applyRotations(w)
		p.barrier.Wait()

		if w == 0 {
			p.remaining--
			p.capped()
		}
	}
}

// control runs on worker 0 at the top of every sweep.
func (p *Parallel) control() {
	switch {
	case p.iter >= p.opts.MaxSweeps:
		p.outcome = outcomeCap
		p.stop, p.result = true, true
	case p.remaining == 0:
		p.stop, p.result = true, false
	}
	p.next.Store(0)
}

func (p *Parallel) computePairs() {
	for {
		j := int(p.next.Add(1) - 1)
		if j >= p.n-1 {
			return
		}
		fillPairs(p.pairs[pairOffset(j, p.n):], p.u, j, p.n)
	}
}

func (p *Parallel) sortRun(w int) {
	r := linalg.UnevenDivide(w, len(p.pairs), p.threads)
	own := p.pairs[r.Start:r.End()]
	slices.SortFunc(own, ComparePairs)

	p.runs[w].mu.Lock()
	p.runs[w].start = r.Start
	p.runs[w].kept = min(len(own), p.opts.PivotCount(len(p.pairs)))
	p.runs[w].mu.Unlock()
}

// mergeRuns folds run b into run a, keeping only the leading pivots.
func (p *Parallel) mergeRuns(a, b int) {
	ra, rb := &p.runs[a], &p.runs[b]
	ra.mu.Lock()
	defer ra.mu.Unlock()
	rb.mu.Lock()
	defer rb.mu.Unlock()

	left := p.pairs[ra.start : ra.start+ra.kept]
	right := p.pairs[rb.start : rb.start+rb.kept]
	out := p.scratch[ra.start:]
	kept := mergePairs(out, left, right, p.opts.PivotCount(len(p.pairs)))
	copy(p.pairs[ra.start:], out[:kept])
	ra.kept = kept
	rb.kept = 0
}

// decide runs on worker 0 once the pivots are known.
func (p *Parallel) decide() {
	p.pivots = p.pairs[p.runs[0].start : p.runs[0].start+p.runs[0].kept]
	if p.converged(p.pivots) {
		p.stop, p.result = true, true
	}
	p.rotations = p.rotations[:len(p.pivots)]
	p.next.Store(0)
}

func (p *Parallel) computeRotations() {
	for {
		i := int(p.next.Add(1) - 1)
		if i >= len(p.pivots) {
			return
		}
		p.rotations[i] = NewRotation(p.u, p.pivots[i])
	}
}

// applyRotations applies every rotation, in pivot order, to this worker's
// rows of U and V. Rows are independent so the split does not change the
// arithmetic.
func (p *Parallel) applyRotations(w int) {
	rows := linalg.UnevenDivide(w, p.n, p.threads)
	for _, r := range p.rotations {
		r.ApplyRows(p.u, rows)
		r.ApplyRows(p.v, rows)
	}
}
