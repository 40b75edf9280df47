// Package benchmark runs the reduction strategies against an exact product
// and reports time, accuracy and resource usage for each.
package benchmark

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/objones25/gamm/internal/amm"
	"github.com/objones25/gamm/internal/config"
	"github.com/objones25/gamm/internal/linalg"
	"github.com/objones25/gamm/internal/store"
	"github.com/objones25/gamm/internal/svd"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const sampleInterval = 50 * time.Millisecond

// Settings selects the strategies and their parameters.
type Settings struct {
	L    int
	T    int
	Beta float64
	Bins []string
	SVD  svd.Options
	TTL  time.Duration
}

// FromConfig builds Settings from a validated configuration.
func FromConfig(cfg *config.Config) Settings {
	return Settings{
		L:    cfg.L,
		T:    cfg.T,
		Beta: cfg.Beta,
		Bins: cfg.Bins,
		SVD:  cfg.Options(),
		TTL:  cfg.Cache.TTL,
	}
}

// Entry is one strategy run of a benchmark.
type Entry struct {
	Name string
	New  func() amm.Strategy
}

// threaded and tree are implemented by the parallel strategies.
type (
	threaded interface{ Threads() int }
	tree     interface{ Workers() int }
)

// shape returns the thread and tree-worker counts of s.
func shape(s amm.Strategy) (threads, workers int) {
	threads = 1
	if t, ok := s.(threaded); ok {
		threads = t.Threads()
	}
	if w, ok := s.(tree); ok {
		workers = w.Workers()
	}
	return threads, workers
}

// Entries expands the bins into strategy runs. The combined bin yields one
// run for every worker count from 1 to T.
func Entries(s Settings) ([]Entry, error) {
	bins, err := config.ExpandBins(s.Bins)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, bin := range bins {
		switch bin {
		case config.BinSingle:
			entries = append(entries, Entry{Name: "single-threaded",
				New: func() amm.Strategy { return amm.NewSingle(s.L, s.Beta, s.SVD) }})
		case config.BinIntra:
			entries = append(entries, Entry{Name: "intra-parallel",
				New: func() amm.Strategy { return amm.NewIntraParallel(s.L, s.Beta, s.T, s.SVD) }})
		case config.BinInter:
			entries = append(entries, Entry{Name: "inter-parallel",
				New: func() amm.Strategy { return amm.NewInterParallel(s.L, s.Beta, s.T, s.SVD) }})
		case config.BinCombined:
			for p := 1; p <= s.T; p++ {
				p := p
				entries = append(entries, Entry{Name: fmt.Sprintf("combined-parallel-%d", p),
					New: func() amm.Strategy { return amm.NewCombinedParallel(s.L, s.Beta, s.T, p, s.SVD) }})
			}
		}
	}
	return entries, nil
}

// Runner executes benchmark entries. A nil cache disables sketch caching.
type Runner struct {
	settings Settings
	cache    *store.SketchCache
	monitor  *monitor
}

// NewRunner returns a runner for s.
func NewRunner(s Settings, cache *store.SketchCache) *Runner {
	return &Runner{settings: s, cache: cache, monitor: newMonitor(sampleInterval)}
}

// Run computes the exact product of x and yᵗ and measures every entry
// against it. Strategy failures are recorded in the report; only context
// cancellation and invalid settings abort the run.
func (r *Runner) Run(ctx context.Context, x, y *mat.Dense) (*Report, error) {
	entries, err := Entries(r.settings)
	if err != nil {
		return nil, err
	}
	xRows, cols := x.Dims()
	yRows, _ := y.Dims()
	report := newReport(r.settings, xRows, yRows, cols)

	start := time.Now()
	var exact mat.Dense
	exact.Mul(x, y.T())
	report.ExactSeconds = time.Since(start).Seconds()
	report.ExactNorm, err = linalg.SpectralNorm(&exact)
	if err != nil {
		return nil, fmt.Errorf("exact product: %w", err)
	}

	log.Info().
		Int("x_rows", xRows).
		Int("y_rows", yRows).
		Int("columns", cols).
		Int("entries", len(entries)).
		Float64("exact_seconds", report.ExactSeconds).
		Msg("Starting benchmark")

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := r.runEntry(ctx, entry, x, y, &exact, report.ExactNorm)
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (r *Runner) runEntry(ctx context.Context, entry Entry, x, y *mat.Dense, exact *mat.Dense, exactNorm float64) Result {
	strategy := entry.New()
	if c, ok := strategy.(interface{ Close() }); ok {
		defer c.Close()
	}
	threads, workers := shape(strategy)
	res := Result{
		Name:     entry.Name,
		Strategy: strategy.Name(),
		Threads:  threads,
		Workers:  workers,
	}
	key := store.RunKey{
		X:        x,
		Y:        y,
		Strategy: strategy.Name(),
		L:        r.settings.L,
		Beta:     r.settings.Beta,
		Threads:  threads,
		Workers:  workers,
		Options:  r.settings.SVD,
	}.Key()

	if sketch := r.lookup(ctx, key); sketch != nil {
		res.Cached = true
		return r.evaluate(res, sketch, exact, exactNorm)
	}

	r.monitor.Start()
	start := time.Now()
	sketch, err := strategy.Reduce(x, y)
	res.Seconds = time.Since(start).Seconds()
	res.Usage = r.monitor.Stop()
	if err != nil {
		log.Warn().Err(err).Str("entry", entry.Name).Msg("Strategy failed")
		res.Err = err.Error()
		return res
	}
	r.remember(ctx, key, sketch)
	return r.evaluate(res, sketch, exact, exactNorm)
}

// evaluate fills in the error measures, computing them concurrently.
func (r *Runner) evaluate(res Result, sketch *amm.Sketch, exact *mat.Dense, exactNorm float64) Result {
	diff := sketch.Product()
	diff.Sub(diff, exact)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		res.SpectralError, err = linalg.SpectralNorm(diff)
		return err
	})
	g.Go(func() error {
		res.FrobeniusError = mat.Norm(diff, 2)
		return nil
	})
	if err := g.Wait(); err != nil {
		res.Err = err.Error()
		return res
	}
	if exactNorm > 0 {
		res.RelativeError = res.SpectralError / exactNorm
	} else {
		res.RelativeError = math.Inf(1)
		if res.SpectralError == 0 {
			res.RelativeError = 0
		}
	}

	log.Info().
		Str("entry", res.Name).
		Float64("seconds", res.Seconds).
		Float64("spectral_error", res.SpectralError).
		Float64("relative_error", res.RelativeError).
		Bool("cached", res.Cached).
		Msg("Strategy measured")
	return res
}

func (r *Runner) lookup(ctx context.Context, key string) *amm.Sketch {
	if r.cache == nil {
		return nil
	}
	sketch, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Sketch cache lookup failed")
		return nil
	}
	return sketch
}

func (r *Runner) remember(ctx context.Context, key string, sketch *amm.Sketch) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, sketch, r.settings.TTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache sketch")
	}
}
