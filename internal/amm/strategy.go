package amm

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Strategy reduces a pair of source matrices to a sketch pair.
type Strategy interface {
	Name() string
	Reduce(x, y *mat.Dense) (*Sketch, error)
}

// Sketch is the result of a reduction: X·Yᵗ ≈ BX·BYᵗ.
type Sketch struct {
	BX *mat.Dense
	BY *mat.Dense
}

// NewSketch returns an all-zero sketch pair with l columns.
func NewSketch(xRows, yRows, l int) *Sketch {
	return &Sketch{
		BX: mat.NewDense(xRows, l, nil),
		BY: mat.NewDense(yRows, l, nil),
	}
}

// Product returns BX·BYᵗ.
func (s *Sketch) Product() *mat.Dense {
	var z mat.Dense
	z.Mul(s.BX, s.BY.T())
	return &z
}

// Multiply reduces x and y with s and returns the approximate product.
func Multiply(s Strategy, x, y *mat.Dense) (*mat.Dense, error) {
	sketch, err := s.Reduce(x, y)
	if err != nil {
		return nil, err
	}
	return sketch.Product(), nil
}

// lockedSketch is a worker's slot in a merge tree.
type lockedSketch struct {
	mu     sync.Mutex
	sketch *Sketch
}

func checkSources(x, y *mat.Dense) error {
	if x == nil || y == nil {
		return fmt.Errorf("%w: nil source matrix", ErrShapeMismatch)
	}
	if _, xd := x.Dims(); xd != y.RawMatrix().Cols {
		return fmt.Errorf("%w: x has %d columns, y has %d", ErrShapeMismatch, xd, y.RawMatrix().Cols)
	}
	return nil
}

// checkSplit rejects splits that leave a worker fewer columns than a sketch holds.
func checkSplit(name string, x *mat.Dense, workers, l int) error {
	_, d := x.Dims()
	if workers*l > d {
		log.Warn().
			Str("strategy", name).
			Int("workers", workers).
			Int("l", l).
			Int("columns", d).
			Msg("Too few source columns for split, no sketch produced")
		return fmt.Errorf("%w: %d workers × %d columns > %d", ErrSplitTooSmall, workers, l, d)
	}
	return nil
}

// sourceRange returns the column slice [start, end) of m.
func sourceRange(m *mat.Dense, start, end int) *mat.Dense {
	rows, _ := m.Dims()
	return m.Slice(0, rows, start, end).(*mat.Dense)
}

// observe records the outcome of a strategy run.
func observe(name string, start time.Time, err error) {
	elapsed := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
	}
	strategyDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	strategyRuns.WithLabelValues(name, status).Inc()
	log.Debug().
		Str("strategy", name).
		Dur("elapsed", elapsed).
		Str("status", status).
		Msg("Reduction finished")
}
