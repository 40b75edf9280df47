package amm

import (
	"time"

	"github.com/objones25/gamm/internal/svd"
	"gonum.org/v1/gonum/mat"
)

// Single reduces on the calling goroutine with the sequential SVD.
type Single struct {
	l    int
	beta float64
	opts svd.Options
}

// NewSingle returns the single-threaded strategy.
func NewSingle(l int, beta float64, opts svd.Options) *Single {
	return &Single{l: l, beta: beta, opts: opts}
}

func (s *Single) Name() string { return "single" }

func (s *Single) Reduce(x, y *mat.Dense) (sketch *Sketch, err error) {
	defer func(start time.Time) { observe(s.Name(), start, err) }(time.Now())

	if err := checkSources(x, y); err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	reducer, err := NewReducer(s.l, s.beta, svd.NewSequential(s.opts))
	if err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	sketch, err = reduceInto(reducer, x, y, nil)
	if err != nil {
		return nil, NewReductionError("reduce", s.Name(), err)
	}
	return sketch, nil
}

// reduceInto folds x and y into sketch, allocating an empty one when nil.
func reduceInto(reducer *Reducer, x, y *mat.Dense, sketch *Sketch) (*Sketch, error) {
	if sketch == nil {
		xr, _ := x.Dims()
		yr, _ := y.Dims()
		sketch = NewSketch(xr, yr, reducer.L())
	}
	red, err := reducer.Bind(x, y, sketch.BX, sketch.BY)
	if err != nil {
		return nil, err
	}
	red.Run()
	return sketch, nil
}
