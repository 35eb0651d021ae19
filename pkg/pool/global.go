package pool

import (
	"reflect"
	"sync"
)

// registry holds the process-wide pools, keyed by element type. Entries are
// never removed: a global pool lives for the rest of the process.
var registry sync.Map // reflect.Type → *Shared[T]

// Global returns the process-wide pool for values of type T, creating it on
// first use. The pool is shared by everything in the process, so it is
// handed out mutex-guarded; it is never closed.
func Global[T any]() *Shared[T] {
	key := reflect.TypeFor[T]()
	if v, ok := registry.Load(key); ok {
		return v.(*Shared[T]) //nolint:errcheck
	}

	v, _ := registry.LoadOrStore(key, NewShared[T]())
	return v.(*Shared[T]) //nolint:errcheck
}
