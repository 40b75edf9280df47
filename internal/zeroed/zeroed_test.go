package zeroed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// chainLength walks the free list from head.
func chainLength(c *Columns) int {
	n := 0
	for i := c.head; i != end; i = c.next[i] {
		n++
		if n > c.Len() {
			break
		}
	}
	return n
}

func TestColumns(t *testing.T) {
	t.Run("All live", func(t *testing.T) {
		c := New(4)
		assert.Equal(t, 4, c.Len())
		assert.Equal(t, 0, c.Count())
		for i := 0; i < 4; i++ {
			assert.False(t, c.IsFree(i))
		}
		assert.PanicsWithValue(t, ErrNoFreeColumn, func() { c.TakeFree() })
	})

	t.Run("All free pops ascending", func(t *testing.T) {
		c := New(0)
		c.InitializeAllFree(3)
		assert.Equal(t, 3, c.Count())
		assert.Equal(t, 3, chainLength(c))
		assert.Equal(t, 0, c.TakeFree())
		assert.Equal(t, 1, c.TakeFree())
		assert.Equal(t, 2, c.TakeFree())
		assert.Equal(t, 0, c.Count())
	})

	t.Run("Free then take is LIFO", func(t *testing.T) {
		c := New(5)
		c.MarkFree(1)
		c.MarkFree(3)
		assert.True(t, c.IsFree(1))
		assert.True(t, c.IsFree(3))
		assert.Equal(t, 2, chainLength(c))
		assert.Equal(t, 3, c.TakeFree())
		assert.Equal(t, 1, c.TakeFree())
		assert.False(t, c.IsFree(1))
	})

	t.Run("Double free panics", func(t *testing.T) {
		c := New(2)
		c.MarkFree(0)
		defer func() {
			r := recover()
			require.NotNil(t, r)
			err, ok := r.(error)
			require.True(t, ok)
			assert.True(t, errors.Is(err, ErrDoubleFree))
			assert.Equal(t, 1, c.Count())
		}()
		c.MarkFree(0)
	})

	t.Run("Index out of range panics", func(t *testing.T) {
		c := New(2)
		assert.Panics(t, func() { c.MarkFree(2) })
		assert.Panics(t, func() { c.MarkFree(-1) })
		assert.Panics(t, func() { c.IsFree(7) })
	})

	t.Run("Reinitialize is idempotent", func(t *testing.T) {
		c := New(3)
		c.MarkFree(2)
		c.InitializeAllLive(3)
		c.InitializeAllLive(3)
		assert.Equal(t, 0, c.Count())
		c.InitializeAllFree(3)
		c.InitializeAllFree(3)
		assert.Equal(t, 3, c.Count())
		assert.Equal(t, 3, chainLength(c))
	})
}

func TestInitializeFromMatrix(t *testing.T) {
	m := mat.NewDense(2, 4, []float64{
		0, 1, 0, 1e-9,
		0, 2, 0, 0,
	})
	c := New(0)
	c.InitializeFromMatrix(m)

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, 3, c.Count())
	assert.Equal(t, c.Count(), chainLength(c))
	assert.False(t, c.IsFree(1))

	// Marked in ascending order, so the last zero column sits at the head.
	assert.Equal(t, 3, c.TakeFree())
	assert.Equal(t, 2, c.TakeFree())
	assert.Equal(t, 0, c.TakeFree())
}
