package uop

import "testing"

func TestAllocateReusesCurrentClusterS4(t *testing.T) {
	// S4: cluster_size=4, allocate 4, deallocate 3: cluster remains current.
	// Deallocate the 4th: current does not self-recycle; next allocate
	// reuses current rather than growing.
	p := New[int](WithClusterSize(4))
	var ptrs [4]*int
	for i := range ptrs {
		ptrs[i] = p.Allocate()
		*ptrs[i] = i
	}
	if p.NumClusters() != 1 {
		t.Fatalf("num clusters = %d, want 1", p.NumClusters())
	}
	for i := 0; i < 3; i++ {
		p.Deallocate(ptrs[i])
	}
	p.Deallocate(ptrs[3])
	if p.NumClusters() != 1 {
		t.Fatalf("num clusters after full drain = %d, want 1 (current cluster self-recycles? should not)", p.NumClusters())
	}
	got := p.Allocate()
	*got = 42
	if p.NumClusters() != 1 {
		t.Fatalf("num clusters after reuse allocate = %d, want 1 (should reuse current, not grow)", p.NumClusters())
	}
}

func TestMultiClusterRecycleS5(t *testing.T) {
	// S5: cluster_size=2, allocate 5 (forces 3 clusters). Deallocate 2 from
	// cluster #1 so its fill rate >= 0.5: it is pushed onto the recycle
	// stack; a later allocate (after current fills) pops it.
	p := New[int](WithClusterSize(2))
	var ptrs []*int
	for i := 0; i < 5; i++ {
		v := p.Allocate()
		*v = i
		ptrs = append(ptrs, v)
	}
	if p.NumClusters() != 3 {
		t.Fatalf("num clusters = %d, want 3", p.NumClusters())
	}

	// ptrs[0], ptrs[1] are in the first cluster.
	p.Deallocate(ptrs[0])
	p.Deallocate(ptrs[1])

	// Fill the current (3rd) cluster: it already has 1 used slot (ptrs[4]),
	// one free slot remains.
	v := p.Allocate()
	*v = 100

	// Current cluster is now full; next allocate must pop the recycled
	// first cluster rather than grow a 4th.
	before := p.NumClusters()
	got := p.Allocate()
	*got = 200
	if p.NumClusters() != before {
		t.Fatalf("num clusters grew to %d after recycle should have been available, want unchanged from %d", p.NumClusters(), before)
	}
}

func TestReserveGrowsCapacityToMultiple(t *testing.T) {
	p := New[int](WithClusterSize(8), WithReserve(20))
	if p.Capacity() != 24 {
		t.Fatalf("capacity = %d, want 24 (ceil(20/8)*8)", p.Capacity())
	}
}

func TestDeallocateRoundTripLeavesNoLeak(t *testing.T) {
	p := New[int](WithClusterSize(16))
	before := p.NumClusters()
	var ptrs []*int
	for i := 0; i < 40; i++ {
		ptrs = append(ptrs, p.Allocate())
	}
	for _, v := range ptrs {
		p.Deallocate(v)
	}
	if p.NumClusters() < before {
		t.Fatalf("num clusters shrank unexpectedly: %d < %d", p.NumClusters(), before)
	}
}

func TestConstructDestroy(t *testing.T) {
	type point struct{ X, Y int }
	p := New[point](WithClusterSize(4))
	v := p.Construct(point{X: 1, Y: 2})
	if v.X != 1 || v.Y != 2 {
		t.Fatalf("construct = %+v, want {1 2}", *v)
	}
	p.Destroy(v)
}
