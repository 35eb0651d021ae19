// Package box provides safe owner wrappers around pool handles.
//
// A raw [pool.Handle] is a bare address: the pool cannot tell who owns it or
// when it should come back. The types in this package pair a handle with a
// reference to its pool and a reclamation policy:
//
//   - [Box] frees its cell when explicitly dropped.
//   - [Leaky] never frees; for arena-style workloads that reclaim by
//     leaking or closing the whole pool.
//   - [Sc] counts strong owners in a header beside the value.
//   - [Rc] counts strong and weak owners, so observers can hold a [Weak]
//     that outlives the value without keeping it alive.
//
// The counted wrappers follow the pool's single-threaded discipline: counts
// are plain integers, not atomics.
package box

import (
	"github.com/flier/onsen/pkg/pool"
)

// Box is the owning pair of a handle and its pool. Dropping it with
// [Box.Free] returns the cell.
type Box[T any] struct {
	h pool.Handle[T]
	p *pool.Pool[T]
}

// New allocates v on p and returns the owning box.
func New[T any](p *pool.Pool[T], v T) Box[T] {
	return Box[T]{h: p.New(v), p: p}
}

// Ptr returns a pointer to the boxed value.
func (b Box[T]) Ptr() *T { return b.h.Ptr() }

// Free returns the cell to its pool. The box, and any pointer obtained from
// it, must not be used afterwards.
func (b *Box[T]) Free() {
	if b.p == nil {
		panic("onsen: box already freed")
	}
	b.p.Free(b.h)
	b.p = nil
}

// Leaky is a box that never returns its cell: the value lives until its
// pool is closed or leaked. Like [Box] it pairs the handle with its pool,
// which keeps the pool, and with it the value's block, reachable for as
// long as the box is.
type Leaky[T any] struct {
	h pool.Handle[T]
	p *pool.Pool[T]
}

// Leak allocates v on p without an owner to reclaim it.
func Leak[T any](p *pool.Pool[T], v T) Leaky[T] {
	return Leaky[T]{h: p.New(v), p: p}
}

// Ptr returns a pointer to the boxed value.
func (b Leaky[T]) Ptr() *T { return b.h.Ptr() }

// Handle surrenders the underlying handle, for callers that decide to
// reclaim the cell after all.
func (b Leaky[T]) Handle() pool.Handle[T] { return b.h }
