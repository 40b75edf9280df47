// Package linalg holds the dense-matrix primitives shared by the SVD engines
// and the reduction engine: tolerance predicates, column operations on
// row-major gonum matrices, Gram-Schmidt QR and a handful of integer helpers
// used to split work between workers.
package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// ZeroTolerance is the magnitude at or below which a value is treated as zero.
const ZeroTolerance = 1.1920929e-07

var (
	// ErrShape is raised when operands have incompatible dimensions.
	ErrShape = errors.New("linalg: incompatible shape")

	// ErrNonFinite is raised when a NaN or Inf shows up in an intermediate result.
	ErrNonFinite = errors.New("linalg: NaN or Inf encountered")
)

// CloseTo reports whether a and b differ by at most ZeroTolerance.
func CloseTo(a, b float64) bool {
	return math.Abs(a-b) <= ZeroTolerance
}

// IsZero reports whether a is numerically zero.
func IsZero(a float64) bool {
	return CloseTo(a, 0)
}

// column returns a strided blas view over column j of m.
func column(m *mat.Dense, j int) blas64.Vector {
	raw := m.RawMatrix()
	if raw.Rows == 0 {
		return blas64.Vector{N: 0, Inc: 1}
	}
	return blas64.Vector{N: raw.Rows, Inc: raw.Stride, Data: raw.Data[j:]}
}

// ColDot returns the dot product of column i of a and column j of b.
func ColDot(a *mat.Dense, i int, b *mat.Dense, j int) float64 {
	return blas64.Dot(column(a, i), column(b, j))
}

// ColSquaredNorm returns the squared Euclidean norm of column j.
func ColSquaredNorm(m *mat.Dense, j int) float64 {
	return ColDot(m, j, m, j)
}

// ColNorm returns the Euclidean norm of column j.
func ColNorm(m *mat.Dense, j int) float64 {
	return math.Sqrt(ColSquaredNorm(m, j))
}

// ScaleCol multiplies column j of m by alpha in place.
func ScaleCol(m *mat.Dense, j int, alpha float64) {
	if alpha == 0 {
		ZeroCol(m, j)
		return
	}
	blas64.Scal(alpha, column(m, j))
}

// ZeroCol sets every entry of column j to zero.
func ZeroCol(m *mat.Dense, j int) {
	raw := m.RawMatrix()
	for r := 0; r < raw.Rows; r++ {
		raw.Data[r*raw.Stride+j] = 0
	}
}

// AxpyCol adds alpha times column i of src to column j of dst.
func AxpyCol(alpha float64, src *mat.Dense, i int, dst *mat.Dense, j int) {
	blas64.Axpy(alpha, column(src, i), column(dst, j))
}

// CopyCol copies column i of src into column j of dst. Both matrices must
// have the same number of rows.
func CopyCol(dst *mat.Dense, j int, src *mat.Dense, i int) {
	dr, _ := dst.Dims()
	sr, _ := src.Dims()
	if dr != sr {
		panic(shapeError("CopyCol", dr, sr))
	}
	blas64.Copy(column(src, i), column(dst, j))
}

// IsZeroCol reports whether every entry of column j is numerically zero.
func IsZeroCol(m *mat.Dense, j int) bool {
	raw := m.RawMatrix()
	for r := 0; r < raw.Rows; r++ {
		if !IsZero(raw.Data[r*raw.Stride+j]) {
			return false
		}
	}
	return true
}

// IsExactZeroCol reports whether every entry of column j is exactly zero.
func IsExactZeroCol(m *mat.Dense, j int) bool {
	raw := m.RawMatrix()
	for r := 0; r < raw.Rows; r++ {
		if raw.Data[r*raw.Stride+j] != 0 {
			return false
		}
	}
	return true
}

// SquaredFrobenius returns the sum of squares of all entries of m.
func SquaredFrobenius(m *mat.Dense) float64 {
	_, c := m.Dims()
	var sum float64
	for j := 0; j < c; j++ {
		sum += ColSquaredNorm(m, j)
	}
	return sum
}

// AllFinite reports whether m contains no NaN or Inf entries.
func AllFinite(m *mat.Dense) bool {
	raw := m.RawMatrix()
	for r := 0; r < raw.Rows; r++ {
		row := raw.Data[r*raw.Stride : r*raw.Stride+raw.Cols]
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func shapeError(op string, got, want int) error {
	return fmt.Errorf("%w: %s got %d, want %d", ErrShape, op, got, want)
}
