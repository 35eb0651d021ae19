package box

import (
	"github.com/flier/onsen/internal/debug"
	"github.com/flier/onsen/pkg/pool"
)

// rcCell splits the count into strong and weak owners. The value is dead
// once the strong count reaches zero; the cell itself is recycled when both
// counts are zero, since a [Weak] still needs the counts to answer
// [Weak.Upgrade].
type rcCell[T any] struct {
	strong, weak uint32
	value        T
}

// RcPool allocates reference-counted cells of T.
type RcPool[T any] struct {
	cells *pool.Pool[rcCell[T]]
}

// NewRcPool returns an empty pool of reference-counted cells.
func NewRcPool[T any]() *RcPool[T] {
	return &RcPool[T]{cells: pool.New[rcCell[T]]()}
}

// New allocates v with a single strong owner and no weak owners.
func (rp *RcPool[T]) New(v T) Rc[T] {
	return Rc[T]{h: rp.cells.New(rcCell[T]{strong: 1, value: v}), p: rp}
}

// LiveCount returns the number of cells currently handed out.
func (rp *RcPool[T]) LiveCount() int { return rp.cells.LiveCount() }

// Close destroys the pool; see [pool.Pool.Close].
func (rp *RcPool[T]) Close() { rp.cells.Close() }

// Rc is a strong owner of a reference-counted cell.
type Rc[T any] struct {
	h pool.Handle[rcCell[T]]
	p *RcPool[T]
}

// Ptr returns a pointer to the shared value.
func (r Rc[T]) Ptr() *T { return &r.h.Ptr().value }

// StrongCount returns the number of strong owners.
func (r Rc[T]) StrongCount() int { return int(r.h.Ptr().strong) }

// WeakCount returns the number of weak owners.
func (r Rc[T]) WeakCount() int { return int(r.h.Ptr().weak) }

// Clone adds a strong owner of the same cell.
func (r Rc[T]) Clone() Rc[T] {
	r.h.Ptr().strong++
	return Rc[T]{h: r.h.Dup(), p: r.p}
}

// Downgrade adds a weak owner that observes the value without keeping it
// alive.
func (r Rc[T]) Downgrade() Weak[T] {
	r.h.Ptr().weak++
	return Weak[T]{h: r.h.Dup(), p: r.p}
}

// Drop releases this strong owner. The last strong drop clears the value;
// the cell itself survives until the weak count also drains.
func (r Rc[T]) Drop() {
	c := r.h.Ptr()
	debug.Assert(c.strong > 0, "drop of a dead Rc at %#x", r.h.Bits())

	c.strong--
	if c.strong > 0 {
		return
	}

	var z T
	c.value = z
	if c.weak == 0 {
		r.p.cells.Free(r.h)
	}
}

// Weak is a non-owning observer of a reference-counted cell.
type Weak[T any] struct {
	h pool.Handle[rcCell[T]]
	p *RcPool[T]
}

// Upgrade returns a new strong owner, or ok=false if the value is already
// dead.
func (w Weak[T]) Upgrade() (r Rc[T], ok bool) {
	c := w.h.Ptr()
	if c.strong == 0 {
		return Rc[T]{}, false
	}

	c.strong++
	return Rc[T]{h: w.h.Dup(), p: w.p}, true
}

// Drop releases this weak owner; the cell is recycled once both counts are
// zero.
func (w Weak[T]) Drop() {
	c := w.h.Ptr()
	debug.Assert(c.weak > 0, "drop of a dead Weak at %#x", w.h.Bits())

	c.weak--
	if c.weak == 0 && c.strong == 0 {
		w.p.cells.Free(w.h)
	}
}
