//go:build !debug

package debug

const Enabled = false

// Assert is a no-op in release builds: invariant breaches become undefined
// behavior rather than a fatal panic, per the ProgrammerError policy.
func Assert(cond bool, args ...any) {}

// Assertf is a no-op in release builds.
func Assertf(cond bool, format string, args ...any) {}

// AssertNoErr is a no-op in release builds.
func AssertNoErr(err error) {}
