package buddy

import (
	"unsafe"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"
	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// PortableAllocator wraps an Allocator and hands out plain []byte slices
// with no header (spec.md §4.4.5's "portable" variant, for embedding in
// structures the caller does not control the layout of). In place of the
// original's pointer-prefix trick it keeps a side table from backing
// address to Block, fronted by a cuckoo filter so that Deallocate on a
// foreign slice is rejected in O(1) before the map lookup even runs.
type PortableAllocator struct {
	alloc  *Allocator
	byAddr map[uintptr]*Block
	filter *cuckoo.Filter
}

// NewPortable builds a PortableAllocator over buf with the given alignment
// and minimum coefficient.
func NewPortable(buf []byte, align, minCoefficient int64, opts ...Option) (*PortableAllocator, error) {
	alloc, err := New(buf, align, minCoefficient, opts...)
	if err != nil {
		return nil, err
	}
	return &PortableAllocator{
		alloc:  alloc,
		byAddr: make(map[uintptr]*Block),
		filter: cuckoo.NewFilter(1024),
	}, nil
}

func addrOf(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// addrKey hashes addr with xxhash before it is fed to the cuckoo filter,
// so the filter's fixed-width fingerprint is derived from the full address
// space rather than truncating it.
func addrKey(addr uintptr) []byte {
	var raw [8]byte
	for i := 0; i < 8; i++ {
		raw[i] = byte(addr >> (8 * i))
	}
	sum := xxhash.Checksum64(raw[:])
	var key [8]byte
	for i := 0; i < 8; i++ {
		key[i] = byte(sum >> (8 * i))
	}
	return key[:]
}

// Allocate returns a header-free slice of at least size bytes.
func (p *PortableAllocator) Allocate(size uint64) ([]byte, bool) {
	block, ok := p.alloc.AllocateBlock(size)
	if !ok {
		return nil, false
	}
	buf := p.alloc.Bytes(block)
	addr := addrOf(buf)
	p.byAddr[addr] = block
	p.filter.InsertUnique(addrKey(addr))
	return buf, true
}

// Owns reports whether buf's backing address was issued by this allocator
// and not yet freed. Intended as a cheap pre-check before Deallocate on
// paths that may see foreign slices.
func (p *PortableAllocator) Owns(buf []byte) bool {
	return p.filter.Lookup(addrKey(addrOf(buf)))
}

// Deallocate returns buf, previously returned by Allocate, to the
// allocator. Deallocating a foreign slice is a programmer error.
func (p *PortableAllocator) Deallocate(buf []byte) error {
	addr := addrOf(buf)
	if !p.filter.Lookup(addrKey(addr)) {
		return errors.New("buddy: portable deallocate of unknown address")
	}
	block, ok := p.byAddr[addr]
	if !ok {
		return errors.New("buddy: portable deallocate of unknown or already-freed address")
	}
	delete(p.byAddr, addr)
	p.filter.Delete(addrKey(addr))
	p.alloc.DeallocateBlock(block)
	return nil
}

// Underlying exposes the wrapped Allocator for introspection.
func (p *PortableAllocator) Underlying() *Allocator { return p.alloc }
