package pool_test

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/timandy/routine"

	"github.com/flier/onsen/pkg/pool"
)

func TestShared(t *testing.T) {
	Convey("Given a shared pool", t, func() {
		s := pool.NewShared[int64]()

		Convey("When many goroutines allocate and free", func() {
			const workers, each = 8, 500

			var wg sync.WaitGroup
			for w := range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()

					hs := make([]pool.Handle[int64], 0, each)
					for i := range int64(each) {
						hs = append(hs, s.New(int64(w)<<32|i))
					}
					for _, h := range hs {
						s.Free(h)
					}
				}()
			}
			wg.Wait()

			Convey("Then nothing stays live", func() {
				So(s.LiveCount(), ShouldEqual, 0)
				So(s.Close, ShouldNotPanic)
			})
		})

		Convey("When a critical section needs several operations", func() {
			s.Do(func(p *pool.Pool[int64]) {
				h := p.New(1)
				So(p.LiveCount(), ShouldEqual, 1)
				p.Free(h)
			})

			So(s.LiveCount(), ShouldEqual, 0)
		})
	})
}

func TestAffine(t *testing.T) {
	Convey("Given a goroutine-affine pool", t, func() {
		a := pool.NewAffine[int64]()

		Convey("It records its owner", func() {
			So(a.Owner(), ShouldEqual, routine.Goid())
		})

		Convey("When the owner allocates and frees", func() {
			h := a.New(42)
			So(*h.Ptr(), ShouldEqual, 42)
			So(a.LiveCount(), ShouldEqual, 1)

			a.Free(h)
			So(a.LiveCount(), ShouldEqual, 0)
			So(a.Close, ShouldNotPanic)
		})
	})
}

func TestGlobal(t *testing.T) {
	Convey("Given the process-wide pool for a type", t, func() {
		type key struct{ Hi, Lo uint64 }

		g := pool.Global[key]()

		Convey("It is created once", func() {
			So(pool.Global[key](), ShouldEqual, g)
		})

		Convey("It allocates like any shared pool", func() {
			h := g.New(key{1, 2})
			So(*h.Ptr(), ShouldResemble, key{1, 2})
			g.Free(h)
		})

		Convey("Distinct types get distinct pools", func() {
			type other struct{ X uint64 }

			o := pool.Global[other]()
			h := o.New(other{7})
			So(*h.Ptr(), ShouldResemble, other{7})
			o.Free(h)
		})
	})
}
