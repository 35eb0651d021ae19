package debug

import (
	"testing"

	"github.com/timandy/routine"
)

// Debug output can be routed to a test, keyed per goroutine so parallel
// tests do not steal each other's traces.
var tls = routine.NewThreadLocal[testing.TB]()

// WithTesting routes this goroutine's debug traces to t.Log until the
// returned restore func runs.
func WithTesting(t testing.TB) (restore func()) {
	t.Helper()

	prev := tls.Get()
	tls.Set(t)
	return func() { tls.Set(prev) }
}
