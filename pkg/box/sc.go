package box

import (
	"github.com/flier/onsen/internal/debug"
	"github.com/flier/onsen/pkg/pool"
)

// scCell is the strong-counted cell layout: the count shares the cell with
// the value, so the pool's cell-size formula absorbs it.
type scCell[T any] struct {
	strong uint32
	value  T
}

// ScPool allocates strong-counted cells of T.
type ScPool[T any] struct {
	cells *pool.Pool[scCell[T]]
}

// NewScPool returns an empty pool of strong-counted cells.
func NewScPool[T any]() *ScPool[T] {
	return &ScPool[T]{cells: pool.New[scCell[T]]()}
}

// New allocates v with a single strong owner.
func (sp *ScPool[T]) New(v T) Sc[T] {
	return Sc[T]{h: sp.cells.New(scCell[T]{strong: 1, value: v}), p: sp}
}

// LiveCount returns the number of cells currently handed out.
func (sp *ScPool[T]) LiveCount() int { return sp.cells.LiveCount() }

// Close destroys the pool; see [pool.Pool.Close].
func (sp *ScPool[T]) Close() { sp.cells.Close() }

// Sc is a strong-counted box without weak references: the small sibling of
// [Rc], whose cell header holds one uint32 count instead of two.
type Sc[T any] struct {
	h pool.Handle[scCell[T]]
	p *ScPool[T]
}

// Ptr returns a pointer to the shared value.
func (s Sc[T]) Ptr() *T { return &s.h.Ptr().value }

// StrongCount returns the number of strong owners.
func (s Sc[T]) StrongCount() int { return int(s.h.Ptr().strong) }

// Clone adds a strong owner of the same cell, duplicating the handle
// explicitly.
func (s Sc[T]) Clone() Sc[T] {
	s.h.Ptr().strong++
	return Sc[T]{h: s.h.Dup(), p: s.p}
}

// Drop releases this owner; the last drop returns the cell to the pool.
func (s Sc[T]) Drop() {
	c := s.h.Ptr()
	debug.Assert(c.strong > 0, "drop of a dead Sc at %#x", s.h.Bits())

	c.strong--
	if c.strong == 0 {
		s.p.cells.Free(s.h)
	}
}
