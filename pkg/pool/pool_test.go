package pool_test

import (
	"math/rand"
	"runtime"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/flier/onsen/internal/debug"
	"github.com/flier/onsen/pkg/pool"
)

func TestPool(t *testing.T) {
	Convey("Given a fresh pool", t, func() {
		p := pool.NewSized[int64](4)

		Convey("It should start empty", func() {
			So(p.LiveCount(), ShouldEqual, 0)
			So(p.FreeCount(), ShouldEqual, 0)
			So(p.BlockCount(), ShouldEqual, 0)
			So(p.Cap(), ShouldEqual, 0)
		})

		Convey("When a single value is allocated and freed", func() {
			h := p.New(42)
			So(*h.Ptr(), ShouldEqual, 42)
			So(p.LiveCount(), ShouldEqual, 1)

			Convey("Then the first block holds exactly the base capacity", func() {
				So(p.BlockCount(), ShouldEqual, 1)
				So(p.Cap(), ShouldEqual, 4)
			})

			p.Free(h)
			So(p.LiveCount(), ShouldEqual, 0)
			So(p.FreeCount(), ShouldEqual, 1)

			Convey("Then the pool can be closed without panicking", func() {
				So(p.Close, ShouldNotPanic)
				So(p.BlockCount(), ShouldEqual, 0)
			})
		})

		Convey("When a cell is initialized in place", func() {
			u := p.Alloc()
			*u.Ptr() = 7
			h := u.AssumeInit()

			So(*h.Ptr(), ShouldEqual, 7)
			p.Free(h)
		})

		Convey("When an allocation is discarded uninitialized", func() {
			u := p.Alloc()
			So(p.LiveCount(), ShouldEqual, 1)

			p.Discard(u)
			So(p.LiveCount(), ShouldEqual, 0)
			So(p.FreeCount(), ShouldEqual, 1)
		})
	})
}

func TestPoolGrowth(t *testing.T) {
	Convey("Given a pool with base 4", t, func() {
		p := pool.NewSized[int64](4)

		Convey("When seven values are allocated", func() {
			var hs []pool.Handle[int64]
			for i := range int64(7) {
				hs = append(hs, p.New(i))

				// Blocks appear at allocations #1 and #5.
				switch {
				case i < 4:
					So(p.BlockCount(), ShouldEqual, 1)
				default:
					So(p.BlockCount(), ShouldEqual, 2)
				}
			}

			Convey("Then two blocks of doubling capacity exist", func() {
				So(p.LiveCount(), ShouldEqual, 7)
				So(p.BlockCount(), ShouldEqual, 2)
				So(p.Cap(), ShouldEqual, 4+8)
			})

			Convey("And every value is intact", func() {
				for i, h := range hs {
					So(*h.Ptr(), ShouldEqual, int64(i))
				}
			})
		})

		Convey("When the pool keeps growing", func() {
			// Block count follows the smallest N with 4·(2^N − 1) ≥ k.
			for k := 1; k <= 28; k++ {
				p.New(int64(k))

				want := 1
				for cells := 4; cells < k; cells += 4 << (want - 1) {
					want++
				}
				So(p.BlockCount(), ShouldEqual, want)
			}
		})
	})
}

func TestPoolRecycling(t *testing.T) {
	Convey("Given three live cells a, b, c", t, func() {
		p := pool.NewSized[int64](8)

		a := p.New(1)
		b := p.New(2)
		c := p.New(3)

		Convey("When freed as b, a, c and reallocated", func() {
			p.Free(b)
			p.Free(a)
			p.Free(c)
			So(p.FreeCount(), ShouldEqual, 3)

			// The recycler hands the cluster back most-recent first, then by
			// address proximity: c, b, a.
			h1 := p.New(10)
			h2 := p.New(20)
			h3 := p.New(30)

			So(h1.Bits(), ShouldEqual, c.Bits())
			So(h2.Bits(), ShouldEqual, b.Bits())
			So(h3.Bits(), ShouldEqual, a.Bits())
			So(p.FreeCount(), ShouldEqual, 0)
		})

		Convey("When freed and reallocated one at a time", func() {
			p.Free(b)
			h := p.New(4)

			Convey("Then the hot cell is reused immediately", func() {
				So(h.Bits(), ShouldEqual, b.Bits())
			})
		})
	})
}

func TestPoolCountInvariant(t *testing.T) {
	Convey("Given a random alloc/free workload", t, func() {
		rng := rand.New(rand.NewSource(42))
		p := pool.New[[2]int64]()

		var live []pool.Handle[[2]int64]
		allocs, frees := 0, 0

		for range 2_000 {
			if len(live) == 0 || rng.Intn(3) != 0 {
				live = append(live, p.New([2]int64{int64(allocs), 0}))
				allocs++
			} else {
				i := rng.Intn(len(live))
				p.Free(live[i])
				live[i] = live[len(live)-1]
				live = live[:len(live)-1]
				frees++
			}

			So(p.LiveCount(), ShouldEqual, allocs-frees)
		}

		Convey("Then the counts balance", func() {
			So(p.LiveCount(), ShouldEqual, len(live))
			So(p.LiveCount()+p.FreeCount(), ShouldBeLessThanOrEqualTo, p.Cap())
		})

		Convey("And draining everything empties the pool", func() {
			for _, h := range live {
				p.Free(h)
			}
			So(p.LiveCount(), ShouldEqual, 0)
			So(p.Close, ShouldNotPanic)
		})
	})
}

func TestPoolStability(t *testing.T) {
	Convey("Given handles allocated before the pool grows", t, func() {
		p := pool.NewSized[int64](2)

		var hs []pool.Handle[int64]
		for i := range int64(100) {
			hs = append(hs, p.New(i))
		}

		Convey("Then every early address still reads its value", func() {
			So(p.BlockCount(), ShouldBeGreaterThan, 4)
			for i, h := range hs {
				So(*h.Ptr(), ShouldEqual, int64(i))
			}
		})
	})
}

func TestPoolDoubleFree(t *testing.T) {
	Convey("Given a freed cell under the hot cursor", t, func() {
		p := pool.NewSized[int64](4)

		h := p.New(42)
		p.Free(h)

		Convey("Then freeing it again panics", func() {
			So(func() { p.Free(h) }, ShouldPanic)
		})
	})
}

func TestPoolLeak(t *testing.T) {
	Convey("Given a pool consumed by Leak", t, func() {
		p := pool.NewSized[int64](4)

		h := p.New(42)
		ptr := h.Ptr()
		p.Leak()

		Convey("Then the memory outlives the pool", func() {
			runtime.GC()
			runtime.GC()

			So(*ptr, ShouldEqual, 42)
			*ptr = 43
			So(*ptr, ShouldEqual, 43)
		})
	})
}

func TestPoolCloseWithLive(t *testing.T) {
	if debug.Enabled {
		t.Skip("closing with live cells is a debug panic")
	}

	Convey("Given a pool closed with a live cell", t, func() {
		p := pool.NewSized[int64](4)

		h := p.New(42)
		ptr := h.Ptr()

		Convey("Then the close degrades to a leak", func() {
			So(p.Close, ShouldNotPanic)
			So(p.LiveCount(), ShouldEqual, 1)

			runtime.GC()
			runtime.GC()
			So(*ptr, ShouldEqual, 42)
		})
	})
}
