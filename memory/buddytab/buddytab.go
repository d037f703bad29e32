// Package buddytab implements the buddy table (spec.md §4.3): a pure
// descriptor table computed once from (root_coefficient, alignment,
// min_coefficient), mapping block indices to (level, coefficient, flags,
// dist, offset). No allocation happens at runtime; the table is immutable
// after construction and safe for concurrent readers.
//
// Grounded on original_source/ash/memory/buddy_table.h and
// source/memory/buddy_table.cpp — the construction algorithm (linear phase,
// binary phase, first-binary-level fix-up) and best_fit search follow the
// original's _init_properties/best_fit exactly.
package buddytab

import (
	"fmt"
	"math/bits"

	"github.com/pkg/errors"
)

// Flag is a bitmask describing a table entry's routing role.
type Flag uint8

const (
	Unique Flag = 1 << iota
	Frequent
	Rare
	A1B3
	A3B1
)

func (f Flag) String() string {
	var parts []string
	for _, x := range []struct {
		bit  Flag
		name string
	}{{Unique, "Unique"}, {Frequent, "Frequent"}, {Rare, "Rare"}, {A1B3, "A1B3"}, {A3B1, "A3B1"}} {
		if f&x.bit != 0 {
			parts = append(parts, x.name)
		}
	}
	if parts == nil {
		return "none"
	}
	s := parts[0]
	for _, p := range parts[1:] {
		s += "|" + p
	}
	return s
}

// Has reports whether all bits in want are set in f.
func (f Flag) Has(want Flag) bool { return f&want == want }

// Entry is one row of the buddy table (spec.md §3 "Buddy table entry").
type Entry struct {
	Level       int
	Coefficient int64
	Flags       Flag
	Dist        int // distance, in table indices, to the first slot of the parent level
	Offset      int // 0 = left/frequent slot of a binary level (or the sole Unique slot), 1 = right/rare slot
}

func (e Entry) String() string {
	return fmt.Sprintf("lvl=%d cof=%d flags=%s dist=%d offset=%d", e.Level, e.Coefficient, e.Flags, e.Dist, e.Offset)
}

// Table is the immutable, descending-coefficient-order buddy table.
type Table struct {
	align    int64
	minCof   int64
	entries  []Entry
	buddyLv  int
}

// New builds a Table for (rootCoefficient, align, minCoefficient).
// align must be even; minCoefficient must be positive.
func New(rootCoefficient, align, minCoefficient int64) (*Table, error) {
	if align%2 != 0 {
		return nil, errors.Errorf("buddytab: alignment %d must be even", align)
	}
	if minCoefficient <= 0 {
		return nil, errors.Errorf("buddytab: min coefficient %d must be positive", minCoefficient)
	}
	if rootCoefficient <= 0 {
		return nil, errors.Errorf("buddytab: root coefficient %d must be positive", rootCoefficient)
	}
	tblSize, buddyLv := sizeInfo(rootCoefficient, minCoefficient)
	entries := build(tblSize, rootCoefficient)
	return &Table{align: align, minCof: minCoefficient, entries: entries, buddyLv: buddyLv}, nil
}

func sizeInfo(root, minCof int64) (tblSize, buddyLv int) {
	linearBound := linearBoundOf(root, minCof)
	linearDepth := int(log2u(uint64(root/linearBound))) + 1
	if linearBound <= minCof {
		return linearDepth, linearDepth
	}
	binaryDepth := binaryDepthOf(linearBound, minCof)
	return linearDepth + binaryDepth*2, linearDepth + binaryDepth
}

func linearBoundOf(n, minCof int64) int64 {
	for {
		if n&1 != 0 || n <= minCof {
			return n
		}
		n /= 2
	}
}

func binaryDepthOf(odd, minCof int64) int {
	depth := 0
	for {
		q := odd / 2
		if q&1 != 0 {
			odd = q
		} else {
			odd = q + 1
		}
		if q < minCof {
			break
		}
		depth++
	}
	return depth
}

func log2u(n uint64) int {
	if n == 0 {
		return 0
	}
	return bits.Len64(n) - 1
}

func build(tblSize int, root int64) []Entry {
	entries := make([]Entry, tblSize)

	n := root
	entries[0] = Entry{Level: 0, Coefficient: n, Flags: Unique, Dist: 0, Offset: 0}

	i := 1
	for i < tblSize && n&1 == 0 {
		n /= 2
		entries[i] = Entry{Level: i, Coefficient: n, Flags: Unique, Dist: 1, Offset: 0}
		i++
	}
	if i >= tblSize {
		return entries
	}

	lv := i
	linearSize := i
	a1b3 := false
	for i+1 < tblSize {
		r := n / 2
		l := r + 1

		left := Entry{Level: lv, Coefficient: l, Dist: 2, Offset: 0}
		right := Entry{Level: lv, Coefficient: r, Dist: 3, Offset: 1}
		if a1b3 {
			left.Flags = Rare | A1B3
			right.Flags = Frequent | A1B3
		} else {
			left.Flags = Frequent | A3B1
			right.Flags = Rare | A3B1
		}
		entries[i] = left
		entries[i+1] = right

		a1b3 = l&1 != 0
		if a1b3 {
			n = l
		} else {
			n = r
		}
		i += 2
		lv++
	}

	// Fix-up: both slots of the first binary level are forced Rare-A3B1,
	// per spec.md §4.3 step 4 (and the original's "first binary level"
	// comment in buddy_table.cpp).
	entries[linearSize].Dist = 1
	entries[linearSize+1].Dist = 2
	entries[linearSize].Flags = Rare | A3B1
	entries[linearSize+1].Flags = Rare | A3B1

	return entries
}

// Align returns the alignment in bytes.
func (t *Table) Align() int64 { return t.align }

// Size returns the number of table entries.
func (t *Table) Size() int { return len(t.entries) }

// MaxLevel returns the deepest level present in the table.
func (t *Table) MaxLevel() int { return t.entries[len(t.entries)-1].Level }

// Level returns the level of entry i.
func (t *Table) Level(i int) int { return t.entries[i].Level }

// Coefficient returns the coefficient of entry i.
func (t *Table) Coefficient(i int) int64 { return t.entries[i].Coefficient }

// Property returns the full entry at index i.
func (t *Table) Property(i int) Entry { return t.entries[i] }

// BestFit returns the largest table index whose coefficient is >=
// ceil(size/align), per spec.md §3's best_fit invariant. Indices are in
// descending-coefficient order, so this is a reverse lower-bound search.
func (t *Table) BestFit(size uint64) int {
	findCof := int64((size + uint64(t.align) - 1) / uint64(t.align))
	lo, hi, best := 0, len(t.entries)-1, 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if t.entries[mid].Coefficient >= findCof {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// MaxBlockSize returns the largest request (in bytes) the table can route,
// i.e. the root's coefficient in bytes.
func (t *Table) MaxBlockSize() int64 { return t.entries[0].Coefficient * t.align }
