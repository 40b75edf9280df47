// Package zeroed tracks which sketch columns are currently free to receive
// new data. Free columns form an intrusive singly linked list threaded
// through a flat index array, so every operation is O(1).
package zeroed

import (
	"errors"
	"fmt"

	"github.com/objones25/gamm/internal/linalg"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDoubleFree is raised when a column that is already free is freed again.
	ErrDoubleFree = errors.New("zeroed: column already free")

	// ErrNoFreeColumn is raised by TakeFree on an empty free list.
	ErrNoFreeColumn = errors.New("zeroed: no free column")

	// ErrIndexOutOfRange is raised for indices outside 0..Len()-1.
	ErrIndexOutOfRange = errors.New("zeroed: index out of range")
)

const (
	live = -2
	end  = -1
)

// Columns is a free list over the column indices 0..n-1. Every index is
// either live or free; free indices are chained through next starting at
// head.
type Columns struct {
	next  []int
	head  int
	count int
}

// New returns a tracker over n columns, all live.
func New(n int) *Columns {
	c := &Columns{}
	c.InitializeAllLive(n)
	return c
}

// InitializeAllLive resets the tracker to n live columns.
func (c *Columns) InitializeAllLive(n int) {
	c.next = resize(c.next, n)
	for i := range c.next {
		c.next[i] = live
	}
	c.head = end
	c.count = 0
}

// InitializeAllFree resets the tracker to n free columns chained in
// ascending order.
func (c *Columns) InitializeAllFree(n int) {
	c.next = resize(c.next, n)
	for i := range c.next {
		c.next[i] = i + 1
	}
	if n > 0 {
		c.next[n-1] = end
		c.head = 0
	} else {
		c.head = end
	}
	c.count = n
}

// InitializeFromMatrix resets the tracker to m's column count, with every
// all-zero column marked free in ascending index order.
func (c *Columns) InitializeFromMatrix(m *mat.Dense) {
	_, cols := m.Dims()
	c.InitializeAllLive(cols)
	for j := 0; j < cols; j++ {
		if linalg.IsZeroCol(m, j) {
			c.MarkFree(j)
		}
	}
}

// MarkFree pushes column i onto the free list.
func (c *Columns) MarkFree(i int) {
	c.check(i)
	if c.next[i] != live {
		panic(fmt.Errorf("%w: %d", ErrDoubleFree, i))
	}
	c.next[i] = c.head
	c.head = i
	c.count++
}

// TakeFree pops a free column and marks it live.
func (c *Columns) TakeFree() int {
	if c.head == end {
		panic(ErrNoFreeColumn)
	}
	i := c.head
	c.head = c.next[i]
	c.next[i] = live
	c.count--
	return i
}

// IsFree reports whether column i is on the free list.
func (c *Columns) IsFree(i int) bool {
	c.check(i)
	return c.next[i] != live
}

// Count returns the number of free columns.
func (c *Columns) Count() int { return c.count }

// Len returns the number of tracked columns.
func (c *Columns) Len() int { return len(c.next) }

func (c *Columns) check(i int) {
	if i < 0 || i >= len(c.next) {
		panic(fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, len(c.next)))
	}
}

func resize(s []int, n int) []int {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]int, n)
}
