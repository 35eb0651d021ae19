package pool

import (
	"github.com/flier/onsen/internal/debug"
	"github.com/flier/onsen/pkg/xunsafe"
)

// link is the freelist node embedded in a free cell, reusing the bytes that
// hold a T while the cell is live. The list is doubly-linked and cyclic:
// middle removal is O(1) and neighbors never need a null check.
//
// The stamp marks the cell as free in debug builds; it costs nothing in
// regular builds, where a cell is exactly max(sizeof(T), two addresses).
type link struct {
	stamp      debug.Value[uintptr] // First, so its zero size adds no padding.
	next, prev xunsafe.Addr[link]
}

// push splices c into the freelist next to the hot cursor and moves the
// cursor onto it.
func (p *Pool[T]) push(c xunsafe.Addr[link]) {
	n := c.AssertValid()
	if p.cursor == 0 {
		n.next, n.prev = c, c
	} else {
		cur := p.cursor.AssertValid()
		nxt := cur.next
		n.prev, n.next = p.cursor, nxt
		cur.next = c
		nxt.AssertValid().prev = c
	}
	p.cursor = c
	p.free++

	if debug.Enabled {
		*n.stamp.Get() = p.stampOf(c)
		p.checkCycle()
	}
}

// pop takes the cell under the hot cursor, or returns 0 if the freelist is
// empty. The cursor advances to whichever neighbor is closer in memory,
// lower address on a tie, which biases the list toward address clusters
// without paying for a strict sort.
func (p *Pool[T]) pop() xunsafe.Addr[link] {
	c := p.cursor
	if c == 0 {
		return 0
	}

	n := c.AssertValid()
	if n.next == c {
		p.cursor = 0
	} else {
		nxt, prv := n.next, n.prev
		p.cursor = closer(c, nxt, prv)
		nxt.AssertValid().prev = prv
		prv.AssertValid().next = nxt
	}
	p.free--

	if debug.Enabled {
		*n.stamp.Get() = 0
		p.checkCycle()
	}
	return c
}

func closer(c, a, b xunsafe.Addr[link]) xunsafe.Addr[link] {
	da, db := abs(a.ByteSub(c)), abs(b.ByteSub(c))
	switch {
	case da < db:
		return a
	case db < da:
		return b
	case a < b:
		return a
	default:
		return b
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// stampOf derives the debug free-cell stamp for c. The per-pool hasher makes
// a stamp unforgeable enough that a matching stamp on a cell being freed is
// a double free, not leftover caller data.
func (p *Pool[T]) stampOf(c xunsafe.Addr[link]) uintptr {
	return uintptr(p.stamps.Get().Hash(uintptr(c)))
}

func (p *Pool[T]) checkNotFree(c xunsafe.Addr[link]) {
	if p.free == 0 {
		return
	}
	if *c.AssertValid().stamp.Get() == p.stampOf(c) {
		debug.Assert(false, "%s", misuse("double free", c))
	}
}

// checkCycle walks the freelist in both directions and asserts it is a clean
// free-length cycle with no repeated cells.
func (p *Pool[T]) checkCycle() {
	if p.cursor == 0 {
		debug.Assert(p.free == 0, "empty freelist with length %d", p.free)
		return
	}

	seen := make(map[xunsafe.Addr[link]]bool, p.free)
	c := p.cursor
	for i := 0; i < p.free; i++ {
		debug.Assert(!seen[c], "cell %v appears twice in the freelist", c)
		seen[c] = true

		n := c.AssertValid()
		debug.Assert(n.next.AssertValid().prev == c, "broken links at %v", c)
		c = n.next
	}
	debug.Assert(c == p.cursor, "freelist is not a %d-cycle", p.free)
}
