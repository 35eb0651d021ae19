package pool

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/flier/onsen/internal/debug"
	"github.com/flier/onsen/pkg/xunsafe"
	"github.com/flier/onsen/pkg/xunsafe/layout"
)

// block is one contiguous storage region. Block N holds base·2^N cells; the
// list only ever appends, and a block is never moved, reused from the back,
// or released before the pool is closed.
type block struct {
	data  *byte
	cells int
}

// reserveCell advances the bump cursor of the newest block, growing the
// block list when that block is full.
func (p *Pool[T]) reserveCell() xunsafe.Addr[byte] {
	if p.next.ByteAdd(p.cellSize) > p.end {
		p.grow()
	}

	c := p.next
	p.next = p.next.ByteAdd(p.cellSize)
	return c
}

// grow appends a block of twice the previous capacity and points the bump
// window at it. Earlier blocks are full by construction and never receive
// the cursor again.
func (p *Pool[T]) grow() {
	xunsafe.Escape(p)

	cells := p.base << len(p.blocks)
	bytes := cells * p.cellSize
	data := allocTraceable(bytes, unsafe.Pointer(p))

	p.blocks = append(p.blocks, block{data, cells})
	p.next = xunsafe.AddrOf(data)
	p.end = p.next.ByteAdd(bytes)
	p.log("grow", "block %d, %d cells, %v:%v", len(p.blocks)-1, cells, p.next, p.end)
}

// allocTraceable allocates size bytes of garbage-collected memory and returns
// a pointer to them.
//
// This function will also store owner in the same allocation in such a way
// that as long as any pointer into the allocated memory is live, owner will
// be marked as live by the garbage collector.
func allocTraceable(size int, owner unsafe.Pointer) *byte {
	// This needs to be done with reflection, because we need a weirdly-shaped
	// allocation: a bunch of bytes followed by a pointer.
	//
	// A pool grows at most a logarithmic number of times, so unlike a
	// general-purpose arena there is no point caching these shapes.
	size = layout.RoundUp(size, Align)

	shape := reflect.StructOf([]reflect.StructField{
		{Name: "Data", Type: reflect.ArrayOf(size, reflect.TypeFor[byte]())},
		{Name: "Owner", Type: reflect.TypeFor[unsafe.Pointer]()},
	})

	p := (*byte)(reflect.New(shape).UnsafePointer())

	// Store the tracee in the chunk's trailing pointer field.
	trailer := xunsafe.Addr[unsafe.Pointer](xunsafe.AddrOf(p).ByteAdd(size))
	*trailer.AssertValid() = owner

	return p
}

// checkOwned asserts that a lies on a cell boundary of exactly one block,
// and that the cell has been handed out at least once.
func (p *Pool[T]) checkOwned(a xunsafe.Addr[byte]) {
	for i, b := range p.blocks {
		base := xunsafe.AddrOf(b.data)
		end := base.ByteAdd(b.cells * p.cellSize)
		if a < base || a >= end {
			continue
		}

		debug.Assert(a.ByteSub(base)%p.cellSize == 0,
			"handle %v is not cell-aligned within its block at %v", a, base)
		if i == len(p.blocks)-1 {
			debug.Assert(a < p.next, "handle %v addresses an unformed cell", a)
		}
		return
	}

	debug.Assert(false, "handle %v does not belong to pool %d", a, p.poolID())
}

// Blocks leaked on purpose, or on a close with live handles. Pinning the
// chunk start keeps the whole chunk, and through its owner pointer the rest
// of the pool, reachable forever.
var pinned struct {
	mu     sync.Mutex
	blocks []*byte
}

func pin(blocks []block) {
	if len(blocks) == 0 {
		return
	}

	pinned.mu.Lock()
	defer pinned.mu.Unlock()
	for _, b := range blocks {
		pinned.blocks = append(pinned.blocks, b.data)
	}
}
