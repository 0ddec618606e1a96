package session

import (
	"fmt"
	"strings"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
)

// Change is a bit set of the parts of a session modified by one operation.
type Change uint32

const (
	PlaneChanged Change = 1 << iota
	LocationChanged
	ZoomChanged
	SelectionChanged       // display form of the selection
	ActualSelectionChanged // canonical label targeted by merges
	ActiveLabelsChanged
	ShowAllChanged
	OpacityChanged
	MappingChanged // labels were remapped without a refetch
	RetiredChanged
	StatusChanged
	BuffersChanged // a new frame was fetched
)

var changeNames = []string{
	"plane", "location", "zoom", "selection", "actual selection", "active labels",
	"show all", "opacity", "mapping", "retired", "status", "buffers",
}

func (c Change) String() string {
	var names []string
	for i, name := range changeNames {
		if c&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "unchanged"
	}
	return strings.Join(names, ", ")
}

// StatusKind classifies a status message.
type StatusKind uint8

const (
	ActionStatus StatusKind = iota
	UndoStatus
	WarningStatus
)

func (k StatusKind) String() string {
	switch k {
	case ActionStatus:
		return "action"
	case UndoStatus:
		return "undo"
	case WarningStatus:
		return "warning"
	default:
		return fmt.Sprintf("status kind %d", k)
	}
}

// Status is a human-readable notice about the result of an operation.
type Status struct {
	Message string
	Kind    StatusKind
}

// ChangeSet describes what a single operation changed.  Only the payload
// fields whose flag is set in Changed are meaningful.  A ChangeSet with no
// flags means the operation changed nothing.
type ChangeSet struct {
	Changed Change

	Plane    int32
	Location dvid.Point3d // full resolution center of the viewport
	Zoom     uint8

	// Selection in display (masked) form, as it appears in Frame.Display.
	Selection     uint32
	PrevSelection uint32

	// Selection as a canonical label.  Background means nothing is selected.
	ActualSelection     uint64
	PrevActualSelection uint64

	ActiveLabels labels.Set
	ShowAll      bool
	Opacity      int

	// Remapped holds the canonical labels whose display changed.
	Remapped labels.Set
	Retired  []uint64

	Status Status
	Frame  *Frame
}

// Empty returns true if nothing changed.
func (cs ChangeSet) Empty() bool {
	return cs.Changed == 0
}

// Has returns true if any of the given changes happened.
func (cs ChangeSet) Has(c Change) bool {
	return cs.Changed&c != 0
}

// LocationString returns the viewport center as "x y z".
func (cs ChangeSet) LocationString() string {
	return fmt.Sprintf("%d %d %d", cs.Location[0], cs.Location[1], cs.Location[2])
}

func (cs ChangeSet) String() string {
	return fmt.Sprintf("changed %s", cs.Changed)
}
