// Package tagged implements a 64-bit tagged index, grounded on
// original_source/ash/tagged_pointer.h. memory/uop uses it for the block
// back-pointer prefix (spec.md §9 design note: "encode (cluster_index,
// slot_index) in a 64-bit tag" in place of a raw owning-cluster pointer).
package tagged

// Value packs a cluster index, a per-cluster generation counter, and a
// small free-form tag into a single uint64. The generation lets a reader
// detect that the slot has been recycled into a different cluster
// generation since the pointer was captured (use-after-free across cluster
// reuse), which the original's raw pointer prefix could not catch.
type Value uint64

// Pack builds a Value from its components. index must fit in 32 bits,
// generation and tag in 16 bits each; callers in this module guarantee that
// by construction (cluster counts and generations never approach 2^32/2^16
// in practice), so Pack does not validate ranges.
func Pack(index uint32, generation, tag uint16) Value {
	return Value(uint64(index)<<32 | uint64(generation)<<16 | uint64(tag))
}

// Index returns the packed cluster index.
func (v Value) Index() uint32 { return uint32(v >> 32) }

// Generation returns the packed generation counter.
func (v Value) Generation() uint16 { return uint16(v >> 16) }

// Tag returns the packed free-form tag.
func (v Value) Tag() uint16 { return uint16(v) }
