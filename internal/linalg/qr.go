package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// QR performs a thin QR factorization of q in place using modified
// Gram-Schmidt. On return q holds the orthonormal factor and r the n×n upper
// triangular factor, or its transpose when transposed is set.
//
// A column whose residual norm is numerically zero is left as a zero column
// with a zero pivot.
func QR(q, r *mat.Dense, transposed bool) {
	_, n := q.Dims()
	rr, rc := r.Dims()
	if rr != n || rc != n {
		panic(fmt.Errorf("%w: QR needs r of %dx%d, got %dx%d", ErrShape, n, n, rr, rc))
	}
	r.Zero()

	for k := 0; k < n; k++ {
		for i := 0; i < k; i++ {
			d := ColDot(q, i, q, k)
			if IsZero(d) {
				d = 0
			}
			if math.IsNaN(d) || math.IsInf(d, 0) {
				panic(fmt.Errorf("%w: projection of column %d on column %d", ErrNonFinite, k, i))
			}
			if transposed {
				r.Set(k, i, d)
			} else {
				r.Set(i, k, d)
			}
			if d != 0 {
				AxpyCol(-d, q, i, q, k)
			}
		}

		norm := ColNorm(q, k)
		if IsZero(norm) {
			norm = 0
			ZeroCol(q, k)
		} else {
			ScaleCol(q, k, 1/norm)
		}
		r.Set(k, k, norm)
	}
}
