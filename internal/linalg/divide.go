package linalg

import "math/bits"

// Range is a half-open slice [Start, Start+Len) of some index space.
type Range struct {
	Start int
	Len   int
}

// End returns the exclusive upper bound of the range.
func (r Range) End() int { return r.Start + r.Len }

// UnevenDivide splits m items into n contiguous ranges whose lengths differ
// by at most one, and returns the i-th. The first m%n ranges get the extra
// item.
func UnevenDivide(i, m, n int) Range {
	base := m / n
	extra := m % n
	if i < extra {
		return Range{Start: i * (base + 1), Len: base + 1}
	}
	return Range{Start: i*base + extra, Len: base}
}

// NextPowerOfTwo returns the smallest power of two that is >= n. Zero and one
// map to one.
func NextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}

// TrailingZeros returns the number of trailing zero bits of n.
func TrailingZeros(n uint64) int {
	return bits.TrailingZeros64(n)
}

// MergeRounds returns how many rounds worker takes part in when workers
// sketches are combined by binary doubling: round 0 reduces the worker's own
// range, round i>0 absorbs worker+2^(i-1) if it exists.
func MergeRounds(worker, workers int) int {
	return TrailingZeros(uint64(worker)|NextPowerOfTwo(uint64(workers))) + 1
}
