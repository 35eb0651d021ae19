// Package xunsafe carries the few unsafe primitives the pool allocator is
// built on: integer addresses for cells and freelist links ([Addr]), and the
// escape hatch that keeps a growing pool heap-allocated ([Escape]).
//
// Everything here trades the compiler's supervision for control over
// representation; the invariants live with the callers.
package xunsafe

import "unsafe"

// NoCopy makes `go vet` flag any value copy of a struct that embeds it, by
// giving it the shape of a lock.
type NoCopy struct{}

func (*NoCopy) Lock()   {}
func (*NoCopy) Unlock() {}

// escaped is never actually written: its existence keeps the compiler from
// proving that pointers passed to Escape stay local.
var escaped struct {
	on bool
	p  unsafe.Pointer
}

// Escape forces p onto the heap.
//
// A pool must escape itself before its first block is allocated: the block's
// trailing owner pointer is only useful if the pool it names is not living
// on some stack frame.
func Escape[P ~*E, E any](p P) P {
	if escaped.on {
		escaped.p = unsafe.Pointer(p)
	}
	return p
}
