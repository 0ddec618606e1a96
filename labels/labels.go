/*
Package labels holds the label types shared by the merge queue, the volume
session, and the store adapters: label sets, the display mask, merge
decisions, and the merge tuples exchanged with a DVID server.
*/
package labels

import (
	"fmt"
	"sort"
	"strings"

	"github.com/janelia-flyem/dvidviewer/dvid"
)

// Background is the reserved "no label" value.  It is never selectable,
// mergeable, or colorable.
const Background uint64 = 0

// Set is a set of labels.
type Set map[uint64]struct{}

// NewSet returns a Set holding the given labels.
func NewSet(lbls ...uint64) Set {
	s := make(Set, len(lbls))
	for _, label := range lbls {
		s[label] = struct{}{}
	}
	return s
}

// Add inserts a label into the set.
func (s Set) Add(label uint64) {
	s[label] = struct{}{}
}

// Contains returns true if the label is in the set.
func (s Set) Contains(label uint64) bool {
	_, found := s[label]
	return found
}

// Merge adds all labels of s2 into the receiver.
func (s Set) Merge(s2 Set) {
	for label := range s2 {
		s[label] = struct{}{}
	}
}

// Copy returns a copy of the set.
func (s Set) Copy() Set {
	dup := make(Set, len(s))
	for label := range s {
		dup[label] = struct{}{}
	}
	return dup
}

// Sorted returns the labels in ascending order.
func (s Set) Sorted() []uint64 {
	lbls := make([]uint64, 0, len(s))
	for label := range s {
		lbls = append(lbls, label)
	}
	sort.Slice(lbls, func(i, j int) bool { return lbls[i] < lbls[j] })
	return lbls
}

func (s Set) String() string {
	lbls := s.Sorted()
	strs := make([]string, len(lbls))
	for i, label := range lbls {
		strs[i] = fmt.Sprintf("%d", label)
	}
	return "[" + strings.Join(strs, ", ") + "]"
}

// Decision is a single merge action: the slave label is absorbed into the
// master label.  The location is the full resolution voxel that was clicked,
// kept so an undo can return the viewport to where the merge was made.
type Decision struct {
	Master   uint64
	Slave    uint64
	Location dvid.Point3d
}

func (d Decision) String() string {
	return fmt.Sprintf("merge %d -> %d at %s", d.Slave, d.Master, d.Location)
}

// Op returns the store-level merge operation for this decision.
func (d Decision) Op() MergeOp {
	return MergeOp{Target: d.Master, Merged: NewSet(d.Slave)}
}

// MergeTuple represents a merge of labels.  Its first element is the destination label
// and all later elements in the slice are labels to be merged.  This is the JSON
// body of a DVID merge request.
type MergeTuple []uint64

// Op converts a MergeTuple into a MergeOp.
func (t MergeTuple) Op() (MergeOp, error) {
	var op MergeOp
	if len(t) < 2 {
		return op, fmt.Errorf("merge tuple must have at least a target and one label to merge, got %v", []uint64(t))
	}
	op.Target = t[0]
	if op.Target == Background {
		return op, fmt.Errorf("merge target cannot be background label 0")
	}
	op.Merged = make(Set, len(t)-1)
	for _, label := range t[1:] {
		if label == op.Target {
			return op, fmt.Errorf("cannot merge label %d into itself", label)
		}
		if label == Background {
			return op, fmt.Errorf("cannot merge background label 0")
		}
		op.Merged[label] = struct{}{}
	}
	return op, nil
}

// MergeOp represents the merging of a set of labels into a target label.
type MergeOp struct {
	Target uint64
	Merged Set
}

// Tuple returns the MergeTuple for this operation with merged labels in ascending order.
func (op MergeOp) Tuple() MergeTuple {
	t := make(MergeTuple, 1, len(op.Merged)+1)
	t[0] = op.Target
	return append(t, op.Merged.Sorted()...)
}

func (op MergeOp) String() string {
	return fmt.Sprintf("merge %s -> %d", op.Merged, op.Target)
}
