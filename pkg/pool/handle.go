package pool

import (
	"github.com/flier/onsen/internal/debug"
	"github.com/flier/onsen/pkg/xunsafe"
)

// Uninit is a handle to a freshly allocated cell whose contents are not yet
// meaningful. It crosses to the initialized [Handle] state exactly once,
// through [Uninit.Init] or [Uninit.AssumeInit]; there is no way back.
//
// In debug builds the handle also carries the identity of its pool, which
// [Pool.Free] and [Pool.Discard] verify.
type Uninit[T any] struct {
	// The debug-only tag comes first: as a trailing field, its zero size in
	// regular builds would still pad the handle by a word.
	pool debug.Value[uint64]
	addr xunsafe.Addr[T]
}

// Ptr returns a pointer to the cell for in-place initialization. The cell
// must not be read through this pointer before it has been written.
func (u Uninit[T]) Ptr() *T { return u.addr.AssertValid() }

// Init stores v in the cell and returns the initialized handle.
func (u Uninit[T]) Init(v T) Handle[T] {
	*u.Ptr() = v
	return u.AssumeInit()
}

// AssumeInit asserts that the cell has been fully initialized through
// [Uninit.Ptr] and returns the initialized handle.
func (u Uninit[T]) AssumeInit() Handle[T] {
	return Handle[T]{addr: u.addr, pool: u.pool}
}

// Handle is a pointer-sized token for an initialized cell.
//
// A handle does not keep its pool alive: it is an address the collector
// cannot see. The caller duties are listed in the package documentation.
// Go cannot distinguish shared from exclusive projections, so [Handle.Ptr]
// is the one way to reach the value; keeping aliasing sane is on the caller.
type Handle[T any] struct {
	pool debug.Value[uint64] // First, for the same reason as in [Uninit].
	addr xunsafe.Addr[T]
}

// Ptr returns a pointer to the cell's value.
func (h Handle[T]) Ptr() *T { return h.addr.AssertValid() }

// Dup duplicates the handle.
//
// Duplication is deliberately not the default way to share a cell: two
// handles to one cell mean two chances to free it. It exists for
// reference-counted wrappers, which need several copies of the same address
// and arbitrate the single Free themselves.
func (h Handle[T]) Dup() Handle[T] { return h }

// Bits encodes the handle into a machine word, losing the debug pool tag.
func (h Handle[T]) Bits() uintptr { return uintptr(h.addr) }

// TagBits is the number of high bits of an encoded handle that are free to
// carry a tag. Addresses never use them on the platforms Go supports.
const TagBits = 16

// FromBits decodes a handle previously encoded with [Handle.Bits].
//
// The word is taken at face value: decoding anything else produces a handle
// whose safety contract the caller must re-establish. A decoded handle
// carries no pool identity, so debug builds cannot check its origin.
func FromBits[T any](bits uintptr) Handle[T] {
	return Handle[T]{addr: xunsafe.Addr[T](bits)}
}

// FromTagged is [FromBits] with the upper [TagBits] cleared first, for
// handles stored in tagged-integer representations.
func FromTagged[T any](bits uintptr) Handle[T] {
	const mask = ^uintptr(0) >> TagBits
	return FromBits[T](bits & mask)
}
