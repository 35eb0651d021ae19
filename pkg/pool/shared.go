package pool

import "sync"

// Shared is a mutex-guarded pool, safe for concurrent use. Every operation
// takes the lock for exactly one core operation; use [Shared.Do] when a
// sequence of operations must not interleave with other goroutines.
//
// Cells handed out by a Shared pool are still plain memory: the lock guards
// the pool's bookkeeping, not the values behind handles.
type Shared[T any] struct {
	mu   sync.Mutex
	pool Pool[T]
}

// NewShared returns an empty mutex-guarded pool.
func NewShared[T any]() *Shared[T] {
	return &Shared[T]{}
}

// Alloc reserves a cell; see [Pool.Alloc].
func (s *Shared[T]) Alloc() Uninit[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Alloc()
}

// New allocates and initializes a cell; see [Pool.New].
func (s *Shared[T]) New(v T) Handle[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.New(v)
}

// Free returns a cell; see [Pool.Free].
func (s *Shared[T]) Free(h Handle[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.Free(h)
}

// Discard returns a never-initialized cell; see [Pool.Discard].
func (s *Shared[T]) Discard(u Uninit[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.Discard(u)
}

// LiveCount returns the number of cells currently handed out.
func (s *Shared[T]) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.LiveCount()
}

// Close destroys the pool; see [Pool.Close].
func (s *Shared[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.Close()
}

// Do runs f with the lock held, handing it the underlying pool.
func (s *Shared[T]) Do(f func(*Pool[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.pool)
}
