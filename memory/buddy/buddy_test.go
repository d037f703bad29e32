package buddy

import "testing"

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	a, err := New(buf, 8, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, ok := a.Allocate(24)
	if !ok {
		t.Fatalf("allocate 24: failed")
	}
	if len(h.Bytes()) < 24 {
		t.Fatalf("payload len = %d, want >= 24", len(h.Bytes()))
	}
	if a.TotalAllocated() != 1 {
		t.Fatalf("total allocated = %d, want 1", a.TotalAllocated())
	}
	a.Deallocate(h)
	if a.TotalAllocated() != 0 {
		t.Fatalf("total allocated after dealloc = %d, want 0", a.TotalAllocated())
	}
	if a.FreeListDepth(0) != 1 {
		t.Fatalf("root free list depth = %d, want 1 (fully coalesced)", a.FreeListDepth(0))
	}
}

func TestMultipleAllocationsCoalesceOnFree(t *testing.T) {
	buf := make([]byte, 512)
	a, err := New(buf, 8, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var handles []Handle
	for i := 0; i < 6; i++ {
		h, ok := a.Allocate(20)
		if !ok {
			t.Fatalf("allocate %d: failed", i)
		}
		handles = append(handles, h)
	}
	if a.TotalAllocated() != 6 {
		t.Fatalf("total allocated = %d, want 6", a.TotalAllocated())
	}
	for _, h := range handles {
		a.Deallocate(h)
	}
	if a.TotalAllocated() != 0 {
		t.Fatalf("total allocated after draining = %d, want 0", a.TotalAllocated())
	}
	if a.FreeListDepth(0) != 1 {
		t.Fatalf("root free list depth = %d, want 1 (fully coalesced after draining all allocations)", a.FreeListDepth(0))
	}
}

func TestExhaustionFailsCleanly(t *testing.T) {
	// Tiny region that one allocation consumes whole (alignment must be even).
	buf := make([]byte, 16)
	a, err := New(buf, 2, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, ok := a.Allocate(16 - HeaderSize)
	if !ok {
		t.Fatalf("allocate the whole region: failed")
	}
	if _, ok := a.Allocate(1); ok {
		t.Fatalf("expected second allocate to fail: region already fully committed")
	}
	a.Deallocate(h)
	if _, ok := a.Allocate(16 - HeaderSize); !ok {
		t.Fatalf("allocate after full deallocate: failed, expected region reusable")
	}
}

func TestOversizeRequestFails(t *testing.T) {
	buf := make([]byte, 256)
	a, err := New(buf, 8, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := a.Allocate(uint64(a.MaxAlloc()) + 1); ok {
		t.Fatalf("expected oversize allocate to fail")
	}
}

func TestPreventRootAllocRefusesWholeRegion(t *testing.T) {
	buf := make([]byte, 64)
	a, err := New(buf, 8, 3, WithPreventRootAlloc(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := a.Allocate(uint64(a.MaxAlloc()) - HeaderSize); ok {
		t.Fatalf("expected root-sized allocate to be refused under WithPreventRootAlloc")
	}
}

func TestRawBlockAllocateDeallocate(t *testing.T) {
	buf := make([]byte, 256)
	a, err := New(buf, 8, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blk, ok := a.AllocateBlock(30)
	if !ok {
		t.Fatalf("AllocateBlock: failed")
	}
	payload := a.Bytes(blk)
	if int64(len(payload)) < 30 {
		t.Fatalf("payload len = %d, want >= 30", len(payload))
	}
	a.DeallocateBlock(blk)
	if a.FreeListDepth(0) != 1 {
		t.Fatalf("root free list depth = %d, want 1", a.FreeListDepth(0))
	}
}
