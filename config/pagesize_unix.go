//go:build unix

package config

import "golang.org/x/sys/unix"

// DefaultAlignment returns the platform page size (spec.md §6: "typical
// alignment = 4096").
func DefaultAlignment() int64 {
	if pz := unix.Getpagesize(); pz > 0 {
		return int64(pz)
	}
	return 4096
}
