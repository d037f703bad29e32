// Package uop implements the unordered object pool (spec.md §4.2): a
// clustered segregated-storage pool with per-cluster free lists, a recycle
// stack for partially-full clusters, and O(1) deallocation via a
// back-pointer prefix. Grounded on
// original_source/ash/memory/unordered_object_pool.h.
//
// Pool is not thread-safe; concurrent callers must externally serialize,
// per spec.md §5.
package uop

import (
	"unsafe"

	"github.com/NVIDIA/ash/internal/debug"
	"github.com/NVIDIA/ash/internal/tagged"
	"github.com/NVIDIA/ash/memory/segstore"
)

// RecycleFactor is the fill-rate threshold (fraction of blocks free) at or
// above which a non-current cluster is moved onto the recycle stack on its
// next deallocation, per spec.md §4.2.
const RecycleFactor = 0.5

// DefaultClusterSize is the default number of blocks per cluster.
const DefaultClusterSize = 1024

// block is the contiguous (key, value) pair described in spec.md §3: key is
// a tagged (cluster index, slot index) back-pointer written at allocate and
// read at deallocate. It replaces the original's raw owning-cluster pointer
// (see SPEC_FULL.md "Supplemented Features" / internal/tagged). The tag's
// generation field is left at 0: clusters are never freed (only recycled
// onto the stack while still partially live, per spec.md §4.2), so there is
// no cluster-reuse event for a generation counter to distinguish between,
// and bumping one on stack-pop would misclassify a survivor from before
// recycling as a stale pointer.
type block[T any] struct {
	key   tagged.Value
	value T
}

func blockOf[T any](p *T) *block[T] {
	var b block[T]
	offset := uintptr(unsafe.Pointer(&b.value)) - uintptr(unsafe.Pointer(&b))
	return (*block[T])(unsafe.Pointer(uintptr(unsafe.Pointer(p)) - offset))
}

type clusterNode[T any] struct {
	index      int
	buf        []byte
	blocks     []block[T]
	storage    *segstore.Storage
	next, prev *clusterNode[T]
	stacked    bool
}

// Pool is a segregated-storage object pool of T, organized into fixed-size
// clusters.
type Pool[T any] struct {
	clusterSize   int
	recycleFactor float64
	capacity      int
	clusters      []*clusterNode[T]
	current       *clusterNode[T]
	stack         []*clusterNode[T]
}

// Option configures a new Pool.
type Option func(*poolOpts)

type poolOpts struct {
	clusterSize   int
	recycleFactor float64
	reserve       int
}

// WithClusterSize overrides DefaultClusterSize.
func WithClusterSize(n int) Option {
	return func(o *poolOpts) { o.clusterSize = n }
}

// WithRecycleFactor overrides RecycleFactor.
func WithRecycleFactor(f float64) Option {
	return func(o *poolOpts) { o.recycleFactor = f }
}

// WithReserve preallocates clusters up front so that Capacity() is at least
// n blocks immediately after New returns.
func WithReserve(n int) Option {
	return func(o *poolOpts) { o.reserve = n }
}

// New constructs a Pool, always allocating one initial cluster (so
// Capacity() is never zero), then applying WithReserve if given.
func New[T any](opts ...Option) *Pool[T] {
	o := poolOpts{clusterSize: DefaultClusterSize, recycleFactor: RecycleFactor}
	for _, fn := range opts {
		fn(&o)
	}
	debug.Assert(o.clusterSize > 0, "uop: cluster size must be positive")

	p := &Pool[T]{clusterSize: o.clusterSize, recycleFactor: o.recycleFactor}
	p.current = p.allocateNode()
	if o.reserve > p.capacity {
		p.Reserve(o.reserve)
	}
	return p
}

func (p *Pool[T]) allocateNode() *clusterNode[T] {
	var zero block[T]
	blockSize := int(unsafe.Sizeof(zero))
	buf := make([]byte, blockSize*p.clusterSize)
	storage, err := segstore.New(buf, blockSize)
	debug.AssertNoErr(err)

	// The runtime aligns make([]byte, n) sufficiently for any type that
	// fits in it, so reinterpreting the buffer as a []block[T] is safe here.
	node := &clusterNode[T]{
		index:   len(p.clusters),
		buf:     buf,
		blocks:  unsafe.Slice((*block[T])(unsafe.Pointer(&buf[0])), p.clusterSize),
		storage: storage,
	}
	p.clusters = append(p.clusters, node)
	p.capacity += p.clusterSize
	return node
}

func insertAfter[T any](target, node *clusterNode[T]) {
	next := target.next
	node.next = next
	node.prev = target
	target.next = node
	if next != nil {
		next.prev = node
	}
}

func detach[T any](node *clusterNode[T]) {
	if node.prev != nil {
		node.prev.next = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	}
	node.prev, node.next = nil, nil
}

// Allocate returns a pointer to an uninitialized (possibly previously used)
// T slot. Never returns nil: a pool never fails to grow on the host heap.
func (p *Pool[T]) Allocate() *T {
	if off, ok := p.current.storage.Allocate(); ok {
		return p.deploy(p.current, off)
	}

	if n := len(p.stack); n > 0 {
		node := p.stack[n-1]
		p.stack = p.stack[:n-1]
		debug.Assert(node.stacked, "uop: popped node not marked stacked")
		node.stacked = false
		insertAfter(p.current, node)
		p.current = node
		off, ok := node.storage.Allocate()
		debug.Assert(ok, "uop: freshly recycled cluster unexpectedly full")
		return p.deploy(node, off)
	}

	node := p.allocateNode()
	insertAfter(p.current, node)
	p.current = node
	off, ok := node.storage.Allocate()
	debug.Assert(ok, "uop: freshly created cluster unexpectedly full")
	return p.deploy(node, off)
}

func (p *Pool[T]) deploy(node *clusterNode[T], off segstore.Block) *T {
	blk := &node.blocks[off]
	blk.key = tagged.Pack(uint32(node.index), 0, uint16(off))
	return &blk.value
}

// AllocateZeroInitialized is Allocate followed by zeroing the slot, for
// callers that rely on T's zero value rather than explicit initialization.
func (p *Pool[T]) AllocateZeroInitialized() *T {
	v := p.Allocate()
	var zero T
	*v = zero
	return v
}

// Construct allocates a slot and copies value into it.
func (p *Pool[T]) Construct(value T) *T {
	v := p.Allocate()
	*v = value
	return v
}

// Deallocate returns p's slot to its owning cluster, recycling the cluster
// onto the stack once its fill rate crosses RecycleFactor, per spec.md
// §4.2. Passing a pointer not obtained from this pool's Allocate/Construct
// is a programmer error (§7): fatal in debug builds, undefined otherwise.
func (p *Pool[T]) Deallocate(v *T) {
	blk := blockOf(v)
	ci := int(blk.key.Index())
	debug.Assertf(ci >= 0 && ci < len(p.clusters), "uop: foreign pointer (cluster index %d out of range)", ci)
	node := p.clusters[ci]

	node.storage.Deallocate(segstore.Block(blk.key.Tag()))

	if node == p.current || node.stacked {
		return
	}
	if node.storage.FillRate() >= p.recycleFactor {
		detach(node)
		node.stacked = true
		p.stack = append(p.stack, node)
	}
}

// Destroy zeroes *v and returns its slot to the pool, approximating the
// original's destructor-then-deallocate pairing; T has no destructor in Go,
// so this is construct/destroy symmetry rather than a hard requirement.
func (p *Pool[T]) Destroy(v *T) {
	var zero T
	*v = zero
	p.Deallocate(v)
}

// Reserve grows capacity, if needed, to at least the next multiple of the
// cluster size ≥ required, preallocating the additional clusters directly
// onto the recycle stack.
func (p *Pool[T]) Reserve(required int) {
	if required <= p.capacity {
		return
	}
	target := roundUp(required, p.clusterSize)
	for p.capacity < target {
		node := p.allocateNode()
		node.stacked = true
		p.stack = append(p.stack, node)
	}
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return (n/multiple + 1) * multiple
}

// Capacity returns the total number of T slots across all clusters.
func (p *Pool[T]) Capacity() int { return p.capacity }

// NumClusters returns the number of clusters currently owned by the pool.
func (p *Pool[T]) NumClusters() int { return len(p.clusters) }
