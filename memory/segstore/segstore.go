// Package segstore implements segregated storage (spec.md §4.1): a thin
// manager over a single pre-allocated byte buffer sliced into equal-sized
// blocks, with a LIFO free list for locality. Grounded on
// original_source/ash/memory/segregated_storage.h and its .cpp.
//
// Storage is not thread-safe; concurrent callers must externally serialize,
// per spec.md §5.
package segstore

import (
	"github.com/pkg/errors"

	"github.com/NVIDIA/ash/internal/debug"
)

// Block identifies a single block within a Storage's buffer by its byte
// offset. It replaces the original's raw block pointer: offsets are stable,
// comparable, and don't require unsafe.Pointer arithmetic to validate.
type Block int

// Storage slices Buffer into Capacity blocks of BlockSize bytes each and
// hands them out LIFO.
type Storage struct {
	buffer    []byte
	blockSize int
	capacity  int
	free      []Block // LIFO stack of free block offsets
}

// New slices buf into blocks of blockSize bytes. len(buf) need not be an
// exact multiple of blockSize; the remainder is unused. blockSize must be
// positive and no larger than len(buf).
func New(buf []byte, blockSize int) (*Storage, error) {
	if blockSize <= 0 {
		return nil, errors.Errorf("segstore: block size must be positive, got %d", blockSize)
	}
	if len(buf) < blockSize {
		return nil, errors.Errorf("segstore: buffer of %d bytes too small for block size %d", len(buf), blockSize)
	}
	s := &Storage{
		buffer:    buf,
		blockSize: blockSize,
		capacity:  len(buf) / blockSize,
	}
	s.Reset()
	return s, nil
}

// Buffer returns the backing buffer. The byte range for Block b is
// [int(b)*BlockSize(), int(b)*BlockSize()+BlockSize()).
func (s *Storage) Buffer() []byte { return s.buffer }

// BlockSize returns the fixed size of each block, in bytes.
func (s *Storage) BlockSize() int { return s.blockSize }

// Capacity returns the total number of blocks.
func (s *Storage) Capacity() int { return s.capacity }

// Bytes returns the byte slice backing block b.
func (s *Storage) Bytes(b Block) []byte {
	off := int(b) * s.blockSize
	return s.buffer[off : off+s.blockSize : off+s.blockSize]
}

// Allocate pops the most recently freed block (LIFO, for locality) and
// returns it along with true, or (0, false) if the storage is exhausted.
func (s *Storage) Allocate() (Block, bool) {
	n := len(s.free)
	if n == 0 {
		return 0, false
	}
	b := s.free[n-1]
	s.free = s.free[:n-1]
	return b, true
}

// Deallocate returns b to the free list. Passing a block not owned by this
// storage (out of range, or not block-aligned) is a programmer error: it is
// a fatal assertion in debug builds and undefined in release builds, per
// spec.md §4.1/§7.
func (s *Storage) Deallocate(b Block) {
	valid := b >= 0 && int(b) < s.capacity
	debug.Assertf(valid, "segstore: block %d out of range [0,%d)", b, s.capacity)
	s.free = append(s.free, b)
}

// Reset discards all outstanding allocations and restores the free list to
// its initial ascending-address order.
func (s *Storage) Reset() {
	s.free = make([]Block, s.capacity)
	for i := 0; i < s.capacity; i++ {
		// Pushed in ascending-address order per spec.md §4.1, so the first
		// Allocate() (LIFO pop of the tail) returns the highest-address
		// block first, matching the original's first-touch order.
		s.free[i] = Block(i)
	}
}

// FillRate returns the fraction of blocks currently free, in [0,1].
func (s *Storage) FillRate() float64 {
	return float64(len(s.free)) / float64(s.capacity)
}

// Empty reports whether no blocks are free.
func (s *Storage) Empty() bool { return len(s.free) == 0 }

// Full reports whether every block is free.
func (s *Storage) Full() bool { return len(s.free) == s.capacity }

// Size returns the number of currently free blocks.
func (s *Storage) Size() int { return len(s.free) }
