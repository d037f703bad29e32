//go:build debug

// Package debug provides build-tag gated invariant assertions, grounded on
// the teacher's cmn/debug usage (debug.Assert, debug.AssertNoErr) seen
// throughout xact/xs and ais. Build with -tags debug to enable.
package debug

import "fmt"

const Enabled = true

// Assert panics if cond is false. args, if present, are formatted with
// fmt.Sprintln and included in the panic message.
func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
	}
}

// Assertf panics with a formatted message if cond is false.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

// AssertNoErr panics if err is non-nil.
func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
	}
}
