package amm

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when the source and sketch matrices disagree on dimensions.
	ErrShapeMismatch = errors.New("amm: shape mismatch")

	// ErrInvalidRank is returned for sketch widths below two.
	ErrInvalidRank = errors.New("amm: sketch width must be at least 2")

	// ErrInvalidBeta is returned for negative or NaN attenuation strength.
	ErrInvalidBeta = errors.New("amm: beta must be a non-negative number")

	// ErrInvalidThreads is returned when a strategy is asked to run on no threads.
	ErrInvalidThreads = errors.New("amm: thread count must be positive")

	// ErrSplitTooSmall is returned when the source cannot give every worker a full sketch worth of columns.
	ErrSplitTooSmall = errors.New("amm: too few source columns for the requested split")

	// ErrNonFinite is raised when a sketch picks up a NaN or Inf.
	ErrNonFinite = errors.New("amm: non-finite value in sketch")
)

// ReductionError describes a failed strategy run.
type ReductionError struct {
	Op       string // Operation that failed
	Strategy string // Strategy that was running
	Err      error  // Underlying error
}

func (e *ReductionError) Error() string {
	if e.Strategy != "" {
		return fmt.Sprintf("%s %s: %v", e.Strategy, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ReductionError) Unwrap() error {
	return e.Err
}

// NewReductionError creates a new ReductionError.
func NewReductionError(op, strategy string, err error) error {
	return &ReductionError{
		Op:       op,
		Strategy: strategy,
		Err:      err,
	}
}

// IsSplitTooSmall checks if an error is a "split too small" error.
func IsSplitTooSmall(err error) bool {
	return errors.Is(err, ErrSplitTooSmall)
}

// IsShapeMismatch checks if an error is a "shape mismatch" error.
func IsShapeMismatch(err error) bool {
	return errors.Is(err, ErrShapeMismatch)
}
