package labels

import (
	"reflect"
	"testing"

	"github.com/janelia-flyem/dvidviewer/dvid"
)

func TestSet(t *testing.T) {
	s := NewSet(7, 3, 21)
	if !s.Contains(3) || s.Contains(4) {
		t.Errorf("bad membership in set %s", s)
	}
	s.Merge(NewSet(4, 7))
	if got := s.Sorted(); !reflect.DeepEqual(got, []uint64{3, 4, 7, 21}) {
		t.Errorf("expected sorted [3 4 7 21], got %v", got)
	}
	if s.String() != "[3, 4, 7, 21]" {
		t.Errorf("bad set string: %s", s)
	}
	dup := s.Copy()
	dup.Add(100)
	if s.Contains(100) {
		t.Errorf("copy of set shares storage with original")
	}
}

func TestMergeTuple(t *testing.T) {
	tests := []struct {
		tuple  MergeTuple
		target uint64
		merged []uint64
		bad    bool
	}{
		{MergeTuple{4, 1, 2, 3}, 4, []uint64{1, 2, 3}, false},
		{MergeTuple{9, 10}, 9, []uint64{10}, false},
		{MergeTuple{9}, 0, nil, true},
		{MergeTuple{0, 1}, 0, nil, true},
		{MergeTuple{5, 5}, 0, nil, true},
		{MergeTuple{5, 0}, 0, nil, true},
	}
	for _, tc := range tests {
		op, err := tc.tuple.Op()
		if tc.bad {
			if err == nil {
				t.Errorf("expected error on merge tuple %v", tc.tuple)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error on merge tuple %v: %v", tc.tuple, err)
		}
		if op.Target != tc.target {
			t.Errorf("expected target %d, got %d", tc.target, op.Target)
		}
		if got := op.Merged.Sorted(); !reflect.DeepEqual(got, tc.merged) {
			t.Errorf("expected merged %v, got %v", tc.merged, got)
		}
		if !reflect.DeepEqual(op.Tuple(), tc.tuple) {
			t.Errorf("round trip of %v gave %v", tc.tuple, op.Tuple())
		}
	}
}

func TestDecisionOp(t *testing.T) {
	d := Decision{Master: 100, Slave: 200, Location: dvid.Point3d{1, 2, 3}}
	op := d.Op()
	if op.Target != 100 || !op.Merged.Contains(200) || len(op.Merged) != 1 {
		t.Errorf("bad merge op from decision %s: %s", d, op)
	}
	if d.String() != "merge 200 -> 100 at (1,2,3)" {
		t.Errorf("bad decision string: %s", d)
	}
}

func TestMask(t *testing.T) {
	m, err := NewMask(DefaultMaskBits)
	if err != nil {
		t.Fatal(err)
	}
	if m.Size() != 1<<20 {
		t.Errorf("expected color table size 2^20, got %d", m.Size())
	}
	if v := m.Apply(100); v != 100 {
		t.Errorf("small label changed by mask: %d", v)
	}
	big := uint64(1)<<20 + 5
	if v := m.Apply(big); v != 5 {
		t.Errorf("expected label %d masked to 5, got %d", big, v)
	}
	if v := m.Apply(1<<40 | 0xABCDE); v != 0xABCDE {
		t.Errorf("expected high bits dropped, got %x", v)
	}
	if _, err := NewMask(0); err == nil {
		t.Errorf("expected error for 0-bit mask")
	}
	if _, err := NewMask(33); err == nil {
		t.Errorf("expected error for 33-bit mask")
	}
	m32, err := NewMask(32)
	if err != nil {
		t.Fatal(err)
	}
	if v := m32.Apply(1<<32 + 7); v != 7 {
		t.Errorf("32-bit mask gave %d", v)
	}
}
