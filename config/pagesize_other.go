//go:build !unix

package config

// DefaultAlignment falls back to the typical 4096-byte page size on
// non-unix targets, where golang.org/x/sys/unix is unavailable.
func DefaultAlignment() int64 { return 4096 }
