//go:build debug

// Package debug includes the debugging helpers behind the module's debug
// build tag: assertions, trace logging, and struct fields that only exist
// while debugging.
package debug

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/timandy/routine"
)

// Enabled is true if the module is being built with the debug tag, which
// enables various debugging features.
const Enabled = true

var (
	filter    *regexp.Regexp
	nocapture = flag.Bool("onsen.nocapture", false, "print debug logs to stderr even under a test")
)

func init() {
	flag.Func("onsen.filter", "regexp to filter debug logs by", func(s string) (err error) {
		filter, err = regexp.Compile(s)
		return err
	})
}

// Log prints one trace line, attributed to the pool operation that emitted
// it rather than to this package.
//
// context, if non-empty, is a leading format string plus its args; it tags
// the pool instance the line belongs to, so that interleaved traces from
// several pools stay readable.
func Log(context []any, operation, format string, args ...any) {
	line := new(strings.Builder)

	fmt.Fprintf(line, "%s [g%04d", caller(), routine.Goid())
	if len(context) > 0 {
		fmt.Fprintf(line, ", "+context[0].(string), context[1:]...)
	}
	fmt.Fprintf(line, "] %s: ", operation)
	fmt.Fprintf(line, format, args...)

	if filter != nil && !filter.MatchString(line.String()) {
		return
	}

	if t := tls.Get(); t != nil && !*nocapture {
		t.Log(line.String())
		return
	}

	_, _ = os.Stderr.WriteString(line.String() + "\n")
}

// caller names the frame the trace belongs to, walking up past this
// package and any intermediate Log helpers.
func caller() string {
	for skip := 2; ; skip++ {
		pc, file, lineno, ok := runtime.Caller(skip)
		if !ok {
			return "?"
		}

		name := runtime.FuncForPC(pc).Name()
		if short := name[strings.LastIndex(name, ".")+1:]; short == "log" || strings.Contains(short, "Log") {
			continue
		}

		pkg := strings.TrimPrefix(name, "github.com/flier/")
		pkg = strings.TrimPrefix(pkg, "onsen/pkg/")
		if i := strings.Index(pkg, "."); i >= 0 {
			pkg = pkg[:i]
		}

		return fmt.Sprintf("%s/%s:%d", pkg, filepath.Base(file), lineno)
	}
}

// Assert panics if cond is false, but only in debug mode.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("onsen: assertion failed: "+format, args...))
	}
}

// Value is storage that only exists while the debug tag is on; regular
// builds replace it with a zero-size field.
type Value[T any] struct {
	x T
}

// Get returns a pointer to the debug-only value.
func (v *Value[T]) Get() *T { return &v.x }
