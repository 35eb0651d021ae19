package pool

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/flier/onsen/pkg/xunsafe"
)

// misuse builds the message for a caller-error panic: what went wrong, which
// cell, and a trace that starts at the frame that misused the pool rather
// than somewhere inside it.
func misuse(what string, c xunsafe.Addr[link]) string {
	var out strings.Builder
	fmt.Fprintf(&out, "onsen: %s of cell %v", what, c)

	pcs := make([]uintptr, 32)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(2, pcs)])
	for {
		frame, more := frames.Next()

		// The pool's own frames (release, the wrappers) only say that a free
		// happened, not whose free it was; skip down to the caller.
		if !strings.Contains(frame.Function, "/pkg/pool.") {
			fmt.Fprintf(&out, "\n\t%s\n\t\t%s:%d", frame.Function, frame.File, frame.Line)
		}

		if !more {
			return out.String()
		}
	}
}
