package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/objones25/gamm/internal/svd"
	"gonum.org/v1/gonum/mat"
)

// KeyPrefix is the prefix for all sketch cache keys.
const KeyPrefix = "gamm:sketch"

// RunKey identifies one reduction: its inputs and every parameter that
// influences the result.
type RunKey struct {
	X, Y     *mat.Dense
	Strategy string
	L        int
	Beta     float64
	Threads  int
	Workers  int
	Options  svd.Options
}

// Key returns the cache key for k.
// Format: prefix:strategy:l:fingerprint
func (k RunKey) Key() string {
	return fmt.Sprintf("%s:%s:%d:%016x", KeyPrefix, strings.ToLower(k.Strategy), k.L, k.Fingerprint())
}

// Fingerprint hashes the inputs and parameters.
func (k RunKey) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [8]byte
	putUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	putMatrix := func(m *mat.Dense) {
		rows, cols := m.Dims()
		putUint(uint64(rows))
		putUint(uint64(cols))
		for i := 0; i < rows; i++ {
			for _, v := range m.RawRowView(i) {
				putUint(math.Float64bits(v))
			}
		}
	}

	h.WriteString(k.Strategy)
	putUint(uint64(k.L))
	putUint(math.Float64bits(k.Beta))
	putUint(uint64(k.Threads))
	putUint(uint64(k.Workers))
	putUint(uint64(k.Options.Tau))
	putUint(uint64(k.Options.MaxSweeps))
	putUint(math.Float64bits(k.Options.Tolerance))
	putMatrix(k.X)
	putMatrix(k.Y)
	return h.Sum64()
}
