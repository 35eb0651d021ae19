package pool

import (
	"github.com/timandy/routine"

	"github.com/flier/onsen/internal/debug"
)

// Affine is a cooperatively goroutine-affine pool: it belongs to the
// goroutine that created it, and every operation must be called from that
// goroutine. Debug builds verify the caller; regular builds trust it, which
// keeps the wrapper free compared to [Shared].
type Affine[T any] struct {
	pool  Pool[T]
	owner uint64
}

// NewAffine returns an empty pool owned by the calling goroutine.
func NewAffine[T any]() *Affine[T] {
	return &Affine[T]{owner: routine.Goid()}
}

func (a *Affine[T]) check() {
	if debug.Enabled {
		debug.Assert(routine.Goid() == a.owner,
			"pool owned by goroutine %d used from goroutine %d", a.owner, routine.Goid())
	}
}

// Owner returns the id of the owning goroutine.
func (a *Affine[T]) Owner() uint64 { return a.owner }

// Alloc reserves a cell; see [Pool.Alloc].
func (a *Affine[T]) Alloc() Uninit[T] {
	a.check()
	return a.pool.Alloc()
}

// New allocates and initializes a cell; see [Pool.New].
func (a *Affine[T]) New(v T) Handle[T] {
	a.check()
	return a.pool.New(v)
}

// Free returns a cell; see [Pool.Free].
func (a *Affine[T]) Free(h Handle[T]) {
	a.check()
	a.pool.Free(h)
}

// Discard returns a never-initialized cell; see [Pool.Discard].
func (a *Affine[T]) Discard(u Uninit[T]) {
	a.check()
	a.pool.Discard(u)
}

// LiveCount returns the number of cells currently handed out.
func (a *Affine[T]) LiveCount() int {
	a.check()
	return a.pool.LiveCount()
}

// Close destroys the pool; see [Pool.Close].
func (a *Affine[T]) Close() {
	a.check()
	a.pool.Close()
}
