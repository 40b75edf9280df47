package amm

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

type attenuationKey struct {
	l    int
	beta float64
}

var attenuationCache, _ = lru.New[attenuationKey, []float64](64)

// Attenuation returns the per-rank shrink weights a[i] = expm1(i·β/(l-1)) / expm1(β).
// The weights rise from 0 to 1; β = 0 gives the linear ramp i/(l-1). The
// returned slice is shared and must not be modified.
func Attenuation(l int, beta float64) []float64 {
	key := attenuationKey{l: l, beta: beta}
	if a, ok := attenuationCache.Get(key); ok {
		return a
	}

	a := make([]float64, max(l, 0))
	switch {
	case l <= 1:
	case beta == 0:
		for i := range a {
			a[i] = float64(i) / float64(l-1)
		}
	default:
		denom := math.Expm1(beta)
		for i := range a {
			a[i] = math.Expm1(float64(i)*beta/float64(l-1)) / denom
		}
		a[l-1] = 1
	}

	attenuationCache.Add(key, a)
	return a
}
