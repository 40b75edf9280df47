package linalg

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// SpectralNorm returns the largest singular value of m.
func SpectralNorm(m mat.Matrix) (float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		return 0, fmt.Errorf("spectral norm: SVD factorization failed")
	}
	values := svd.Values(nil)
	if len(values) == 0 {
		return 0, nil
	}
	return values[0], nil
}

// ApproximationError returns ||BX·BYᵗ - exact||₂.
func ApproximationError(bx, by *mat.Dense, exact mat.Matrix) (float64, error) {
	var diff mat.Dense
	diff.Mul(bx, by.T())
	diff.Sub(&diff, exact)
	return SpectralNorm(&diff)
}

// RandomMatrix fills an r×c matrix with standard normal entries drawn from rng.
func RandomMatrix(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}
