package store

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/objones25/gamm/internal/amm"
	"github.com/objones25/gamm/internal/linalg"
	"github.com/objones25/gamm/internal/logging"
	"github.com/objones25/gamm/internal/svd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestCache(t *testing.T, threshold int) (*SketchCache, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	c, err := NewSketchCache(Config{
		Addr:                 s.Addr(),
		DefaultTTL:           time.Hour,
		CompressionThreshold: threshold,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, s
}

func testSketch(seed int64, rows, l int) *amm.Sketch {
	rng := rand.New(rand.NewSource(seed))
	return &amm.Sketch{
		BX: linalg.RandomMatrix(rng, rows, l),
		BY: linalg.RandomMatrix(rng, rows+3, l),
	}
}

func TestSketchCache(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		c, _ := newTestCache(t, 1024)
		got, err := c.Get(ctx, "gamm:sketch:none")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	for _, tc := range []struct {
		name       string
		threshold  int
		compressed bool
	}{
		{"Plain", 1 << 20, false},
		{"Compressed", 16, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, s := newTestCache(t, tc.threshold)
			sketch := testSketch(1, 20, 4)
			key := "gamm:sketch:single:4:abc"

			require.NoError(t, c.Set(ctx, key, sketch, 0))
			assert.Equal(t, tc.compressed, s.Exists(compressedPrefix+key))
			assert.Equal(t, !tc.compressed, s.Exists(key))

			got, err := c.Get(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, mat.Equal(sketch.BX, got.BX))
			assert.True(t, mat.Equal(sketch.BY, got.BY))

			keys, err := c.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{key}, keys)

			require.NoError(t, c.Delete(ctx, key))
			got, err = c.Get(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}

	t.Run("Expiry", func(t *testing.T) {
		c, s := newTestCache(t, 1024)
		require.NoError(t, c.Set(ctx, "gamm:sketch:k", testSketch(2, 3, 2), time.Minute))
		s.FastForward(2 * time.Minute)
		got, err := c.Get(ctx, "gamm:sketch:k")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalid input", func(t *testing.T) {
		c, s := newTestCache(t, 1024)
		assert.ErrorIs(t, c.Set(ctx, "", testSketch(3, 2, 2), 0), ErrEmptyKey)
		assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), ErrNilSketch)
		_, err := c.Get(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyKey)

		require.NoError(t, s.Set("broken", "{not json"))
		_, err = c.Get(ctx, "broken")
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("Health", func(t *testing.T) {
		c, s := newTestCache(t, 1024)
		require.NoError(t, c.Health(ctx))
		s.Close()
		assert.Error(t, c.Health(ctx))
	})
}

func TestNewSketchCacheUnreachable(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	_, err := NewSketchCache(Config{})
	assert.Error(t, err)

	s, err := miniredis.Run()
	require.NoError(t, err)
	addr := s.Addr()
	s.Close()
	_, err = NewSketchCache(Config{Addr: addr, MaxRetries: 1})
	assert.Error(t, err)
}

func TestRunKey(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	rng := rand.New(rand.NewSource(5))
	x := linalg.RandomMatrix(rng, 6, 4)
	y := linalg.RandomMatrix(rng, 5, 4)
	base := RunKey{X: x, Y: y, Strategy: "Inter", L: 8, Beta: 28, Threads: 4, Options: svd.DefaultOptions()}

	assert.Equal(t, base.Key(), base.Key())
	assert.Regexp(t, `^gamm:sketch:inter:8:[0-9a-f]{16}$`, base.Key())

	changed := []func(k *RunKey){
		func(k *RunKey) { k.Beta = 27 },
		func(k *RunKey) { k.Threads = 2 },
		func(k *RunKey) { k.Options.Tau = 16 },
		func(k *RunKey) {
			x2 := mat.DenseCopyOf(x)
			x2.Set(0, 0, x2.At(0, 0)+1e-12)
			k.X = x2
		},
	}
	for i, change := range changed {
		k := base
		change(&k)
		assert.NotEqual(t, base.Fingerprint(), k.Fingerprint(), "change %d", i)
	}
}
