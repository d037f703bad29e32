package buddytab

import "testing"

// Golden table for root coefficient 232, alignment 8, min coefficient 3 —
// hand-traced against original_source/ash/memory/buddy_table.h's worked
// example (root=232) to confirm the linear phase (232→116→58→29), the
// binary phase's A3B1/A1B3 alternation, and the first-binary-level
// fix-up all agree index-for-index.
var golden = []Entry{
	{Level: 0, Coefficient: 232, Flags: Unique, Dist: 0, Offset: 0},
	{Level: 1, Coefficient: 116, Flags: Unique, Dist: 1, Offset: 0},
	{Level: 2, Coefficient: 58, Flags: Unique, Dist: 1, Offset: 0},
	{Level: 3, Coefficient: 29, Flags: Unique, Dist: 1, Offset: 0},
	{Level: 4, Coefficient: 15, Flags: Rare | A3B1, Dist: 1, Offset: 0},
	{Level: 4, Coefficient: 14, Flags: Rare | A3B1, Dist: 2, Offset: 1},
	{Level: 5, Coefficient: 8, Flags: Rare | A1B3, Dist: 2, Offset: 0},
	{Level: 5, Coefficient: 7, Flags: Frequent | A1B3, Dist: 3, Offset: 1},
	{Level: 6, Coefficient: 4, Flags: Frequent | A3B1, Dist: 2, Offset: 0},
	{Level: 6, Coefficient: 3, Flags: Rare | A3B1, Dist: 3, Offset: 1},
}

func TestBuildMatchesGoldenTable(t *testing.T) {
	tbl, err := New(232, 8, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tbl.Size() != len(golden) {
		t.Fatalf("size = %d, want %d", tbl.Size(), len(golden))
	}
	for i, want := range golden {
		got := tbl.Property(i)
		if got != want {
			t.Fatalf("entry %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestBestFitPicksSmallestSufficientCoefficient(t *testing.T) {
	tbl, err := New(232, 8, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cases := []struct {
		size uint64
		want int
	}{
		{1, 9},  // ceil(1/8)=1 <= cof3 at idx9
		{24, 9}, // ceil(24/8)=3 == cof3 at idx9
		{25, 8}, // ceil(25/8)=4 == cof4 at idx8
		{32, 8}, // ceil(32/8)=4 == cof4 at idx8
		{33, 7}, // ceil(33/8)=5: largest index whose coefficient is still >=5 is idx7 (cof7)
	}
	for _, c := range cases {
		if got := tbl.BestFit(c.size); got != c.want {
			t.Fatalf("BestFit(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestMaxBlockSizeIsRootInBytes(t *testing.T) {
	tbl, err := New(232, 8, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := tbl.MaxBlockSize(); got != 232*8 {
		t.Fatalf("MaxBlockSize = %d, want %d", got, 232*8)
	}
}

func TestNewRejectsOddAlignment(t *testing.T) {
	if _, err := New(232, 7, 3); err == nil {
		t.Fatalf("expected error for odd alignment")
	}
}

func TestNewRejectsNonPositiveMinCoefficient(t *testing.T) {
	if _, err := New(232, 8, 0); err == nil {
		t.Fatalf("expected error for non-positive min coefficient")
	}
}

func TestPurePowerOfTwoRootIsAllLinear(t *testing.T) {
	// root=64, min_cof=4: pure linear chain down to 4, no binary phase.
	tbl, err := New(64, 8, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []int64{64, 32, 16, 8, 4}
	if tbl.Size() != len(want) {
		t.Fatalf("size = %d, want %d", tbl.Size(), len(want))
	}
	for i, cof := range want {
		if tbl.Coefficient(i) != cof {
			t.Fatalf("entry %d coefficient = %d, want %d", i, tbl.Coefficient(i), cof)
		}
		if !tbl.Property(i).Flags.Has(Unique) {
			t.Fatalf("entry %d flags = %s, want Unique", i, tbl.Property(i).Flags)
		}
	}
}
