// Package pool provides a low-level, relatively unsafe object pool allocator
// for values of a single type.
//
// A Pool hands out pointer-sized handles to slots of a fixed layout. Compared
// to allocating through the Go runtime, a pool is a good fit for hot paths
// that allocate and free many objects of the same shape: allocation is a
// freelist pop or a bump-pointer increment, and freed slots are recycled in
// address-clustered order, so repeated traversals of pool-resident objects
// stay cache-hot.
//
// # Design
//
// Storage grows as a sequence of blocks of geometrically doubling capacity.
// Blocks never move and are never released before the pool is closed, so
// every address a pool hands out stays valid until the corresponding Free.
//
// Freed cells are threaded into a doubly-linked cyclic freelist that lives
// inside the cells themselves; a hot cursor tracks the most recent action.
// Pushes splice next to the cursor and pops prefer the neighbor closest in
// memory, which keeps the list weakly ordered by address: freeing a batch of
// recently-allocated cells hands the same locality cluster back to the next
// allocations.
//
// Each block is allocated with the shape
//
//	type chunk struct {
//		memory [N]byte
//		owner  unsafe.Pointer
//	}
//
// where owner points back to the Pool. Holding a pointer into chunk.memory
// anywhere reachable by a GC root keeps the whole chunk alive, and through
// the owner pointer, the pool and every other block with it. Handles
// themselves are raw addresses the collector cannot see; see the safety
// notes below.
//
// # Memory Safety
//
// The pool cannot enforce these duties in regular builds; builds with the
// debug tag check what they can.
//
//   - Every handle must be freed to the pool that produced it, at most once.
//   - Handles must not outlive their pool: keep the pool reachable for as
//     long as any handle exists, or consume it with [Pool.Leak].
//   - A pointer projected from a handle must not be used after the handle is
//     freed.
//   - An uninitialized cell must be fully written before its handle crosses
//     to the initialized state.
//   - Element types must not contain pointers into the Go heap: block memory
//     is not scanned by the collector.
//
// A Pool is not safe for concurrent use; see [Shared] and [Affine] for the
// wrapped variants.
package pool

import (
	"reflect"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/dolthub/maphash"

	"github.com/flier/onsen/internal/debug"
	"github.com/flier/onsen/pkg/xunsafe"
	"github.com/flier/onsen/pkg/xunsafe/layout"
)

// Align is the alignment of every cell in a pool.
const Align = int(unsafe.Sizeof(uintptr(0)))

// Pool is an allocator for values of type T.
//
// A zero Pool is empty and ready to use; it allocates its first block, sized
// by default to roughly one cache line of cells, on first use.
type Pool[T any] struct {
	_ xunsafe.NoCopy

	// Bump window of the newest block.
	next, end xunsafe.Addr[byte]

	blocks   []block
	base     int // Cells in block 0; always a power of 2.
	cellSize int

	cursor xunsafe.Addr[link] // Hot cursor into the freelist; 0 when empty.
	free   int
	live   int

	id     debug.Value[uint64]
	stamps debug.Value[maphash.Hasher[uintptr]]
}

var poolIDs atomic.Uint64

// New returns an empty pool for values of type T.
func New[T any]() *Pool[T] {
	p := &Pool[T]{}
	watchLeak(p)
	return p
}

// NewSized returns an empty pool whose first block holds base cells, rounded
// up to a power of two. Later blocks double: block N holds base·2^N cells.
func NewSized[T any](base int) *Pool[T] {
	p := &Pool[T]{}
	if base > 0 {
		p.base = roundPow2(base)
	}
	watchLeak(p)
	return p
}

// watchLeak reports pools that get collected while cells are still live.
// Only the constructors may install the finalizer: a pool embedded in a
// wrapper struct is an interior pointer the runtime would reject.
func watchLeak[T any](p *Pool[T]) {
	if debug.Enabled {
		runtime.SetFinalizer(p, func(p *Pool[T]) {
			debug.Log(nil, "pool collected", "%p, live %d", p, p.live)
		})
	}
}

// init computes the cell layout on first use, so that the zero Pool works.
func (p *Pool[T]) init() {
	if p.cellSize != 0 {
		return
	}

	l := cellLayout[T]()
	p.cellSize = l.Size
	if p.base == 0 {
		p.base = max(1, cacheLine/p.cellSize)
	}

	if debug.Enabled {
		debug.Assert(!hasHeapPointers(reflect.TypeFor[T]()),
			"%v contains heap pointers, which block memory hides from the GC", reflect.TypeFor[T]())

		*p.id.Get() = poolIDs.Add(1)
		*p.stamps.Get() = maphash.NewHasher[uintptr]()
	}
}

// cellLayout computes the layout of one cell: large enough for either a T or
// a freelist link, aligned and sized to the pool alignment.
func cellLayout[T any]() layout.Layout {
	l := layout.Of[T]().Max(layout.Of[link]())
	if l.Align > Align {
		panic("onsen: over-aligned object")
	}

	return layout.Layout{Size: layout.RoundUp(l.Size, Align), Align: Align}
}

// cacheLine is the assumed size of a cache line; the default first block is
// one cache line's worth of cells.
const cacheLine = 64

// Alloc reserves a cell and returns its handle in the uninitialized state.
//
// The cell is recycled from the freelist if one is available; otherwise it
// comes from the bump cursor of the newest block, growing the block list if
// that block is full. The caller must initialize the cell before reading it.
func (p *Pool[T]) Alloc() Uninit[T] {
	p.init()

	c := xunsafe.Addr[byte](p.pop())
	if c == 0 {
		c = p.reserveCell()
	}
	p.live++
	p.log("alloc", "%v, live %d", c, p.live)

	u := Uninit[T]{addr: xunsafe.Addr[T](c)}
	if debug.Enabled {
		*u.pool.Get() = *p.id.Get()
	}
	return u
}

// New allocates a cell, stores v in it, and returns the initialized handle.
func (p *Pool[T]) New(v T) Handle[T] {
	return p.Alloc().Init(v)
}

// Free returns the cell behind h to the pool for reuse.
//
// The caller owes the duties listed in the package documentation: h must
// originate from this pool, must not have been freed before, and no pointer
// projected from it may be used afterwards.
func (p *Pool[T]) Free(h Handle[T]) {
	p.release(xunsafe.Addr[link](h.addr), h.pool)
}

// Discard returns a cell that was never initialized.
func (p *Pool[T]) Discard(u Uninit[T]) {
	p.release(xunsafe.Addr[link](u.addr), u.pool)
}

func (p *Pool[T]) release(c xunsafe.Addr[link], tag debug.Value[uint64]) {
	if debug.Enabled {
		if t := *tag.Get(); t != 0 {
			debug.Assert(t == *p.id.Get(),
				"free to wrong pool: handle %v tagged %d, pool %d", c, t, *p.id.Get())
		}
		p.checkOwned(xunsafe.Addr[byte](c))
		p.checkNotFree(c)
		debug.Assert(p.live > 0, "free of %v with no live allocations", c)
	}

	// A free cell under the cursor is the one double free that is always
	// cheap to detect, so this check stays in regular builds.
	if c == p.cursor {
		panic(misuse("double free", c))
	}

	p.push(c)
	p.live--
	p.log("free", "%v, live %d", c, p.live)
}

// LiveCount returns the number of cells currently handed out.
func (p *Pool[T]) LiveCount() int { return p.live }

// FreeCount returns the length of the freelist.
func (p *Pool[T]) FreeCount() int { return p.free }

// BlockCount returns the number of blocks allocated so far.
func (p *Pool[T]) BlockCount() int { return len(p.blocks) }

// Cap returns the total number of cells across all blocks.
func (p *Pool[T]) Cap() int {
	var n int
	for _, b := range p.blocks {
		n += b.cells
	}
	return n
}

// Close destroys the pool.
//
// The live count must be zero: debug builds panic otherwise, regular builds
// pin the blocks for the rest of the process (outstanding handles are raw
// addresses the collector cannot see, so leaking is the only memory-safe
// fallback). With no live cells, every block reference is dropped and the
// collector reclaims them.
func (p *Pool[T]) Close() {
	if p.live != 0 {
		debug.Assert(false, "pool %v closed with %d live allocations", p.poolID(), p.live)
		p.Leak()
		return
	}

	p.log("close", "%d blocks", len(p.blocks))
	p.reset()
}

// Leak consumes the pool without teardown checks: all blocks are pinned for
// the rest of the process and stay readable forever. Intended for alloc-only
// workloads whose handles outlive the pool.
func (p *Pool[T]) Leak() {
	p.log("leak", "%d blocks, live %d", len(p.blocks), p.live)
	pin(p.blocks)
	p.reset()
}

func (p *Pool[T]) reset() {
	p.blocks = nil
	p.next, p.end = 0, 0
	p.cursor, p.free = 0, 0
}

func (p *Pool[T]) poolID() uint64 {
	if debug.Enabled {
		return *p.id.Get()
	}
	return 0
}

func (p *Pool[T]) log(op, format string, args ...any) {
	if debug.Enabled {
		debug.Log([]any{"pool %d %v:%v", *p.id.Get(), p.next, p.end}, op, format, args...)
	}
}

func roundPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// hasHeapPointers reports whether values of type t embed pointers the
// collector would need to scan.
func hasHeapPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasHeapPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasHeapPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
