// Package snapshot implements a single-writer RCU cell: readers always see
// a complete, immutable value; the writer publishes a new one by cloning,
// mutating, and atomically swapping in a replacement. This is the engine's
// equivalent of the teacher's read-mostly, rarely-mutated snapshot
// listings (internal/restic's snapshot policy evaluation reads a
// consistent view while new snapshots are appended concurrently), built
// directly on atomic.Pointer the way the byte stream's current-buffer
// pointer is.
package snapshot

import "sync/atomic"

// Cell holds a *T that readers load and the single writer replaces.
// T itself should be treated as immutable once published: Update only
// ever mutates the clone it was handed, never the live value Load()
// returns to a concurrent reader.
type Cell[T any] struct {
	p atomic.Pointer[T]
}

// NewCell constructs a Cell with an initial value. initial is cloned once
// to become the first published snapshot.
func NewCell[T any](initial T) *Cell[T] {
	c := &Cell[T]{}
	v := initial
	c.p.Store(&v)
	return c
}

// Load returns the current snapshot. Safe for any number of concurrent
// readers and the single writer.
func (c *Cell[T]) Load() *T {
	return c.p.Load()
}

// Update clones the current snapshot, applies f to the clone, and
// publishes the clone. Only one goroutine may call Update (or
// MaybeUpdate) at a time; concurrent readers always see either the old or
// the new snapshot, never a partially-mutated one.
func (c *Cell[T]) Update(f func(next *T)) {
	cur := *c.p.Load()
	f(&cur)
	c.p.Store(&cur)
}

// MaybeUpdate behaves like Update but only publishes the mutated clone if
// f reports true; otherwise the current snapshot is left untouched.
func (c *Cell[T]) MaybeUpdate(f func(next *T) bool) {
	cur := *c.p.Load()
	if f(&cur) {
		c.p.Store(&cur)
	}
}
