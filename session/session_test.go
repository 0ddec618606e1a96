package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
	"github.com/janelia-flyem/dvidviewer/mergequeue"
	"github.com/janelia-flyem/dvidviewer/store"
	"github.com/janelia-flyem/dvidviewer/store/memstore"
)

// Test volume is 64 x 64 x 10 with label 100 for x < 32, label 200 for
// x >= 32, label 300 for y >= 36, and a small background patch.  With a
// 16 x 16 viewport centered at (32, 32, z), frame position (4, 4) is label
// 100, (12, 4) is 200, (4, 14) and (12, 14) are 300, and (0, 0) is
// background.
func newTestStore() *memstore.Store {
	st := memstore.New(dvid.Point3d{0, 0, 0}, dvid.Point3d{63, 63, 9}, 2)
	st.Fill(dvid.Point3d{0, 0, 0}, dvid.Point3d{31, 63, 9}, 100, 10)
	st.Fill(dvid.Point3d{32, 0, 0}, dvid.Point3d{63, 63, 9}, 200, 20)
	st.Fill(dvid.Point3d{0, 36, 0}, dvid.Point3d{63, 63, 9}, 300, 30)
	st.Fill(dvid.Point3d{24, 24, 0}, dvid.Point3d{25, 25, 9}, 0, 0)
	return st
}

type recorder struct {
	sets []ChangeSet
}

func (r *recorder) SessionChanged(cs ChangeSet) {
	r.sets = append(r.sets, cs)
}

func newTestSession(t *testing.T, st *memstore.Store, depth int) (*Session, *recorder) {
	start := dvid.Point3d{32, 32, 5}
	s, err := New(context.Background(), st, mergequeue.New(st, depth), Config{Width: 16, Height: 16, Start: &start})
	if err != nil {
		t.Fatalf("can't create session: %v\n", err)
	}
	r := &recorder{}
	s.Attach(r)
	return s, r
}

func TestBootstrap(t *testing.T) {
	st := newTestStore()
	s, _ := newTestSession(t, st, mergequeue.DefaultDepth)
	if s.Location() != (dvid.Point3d{32, 32, 5}) || s.Plane() != 5 || s.Zoom() != 0 || s.MaxZoom() != 2 {
		t.Errorf("bad initial viewport: %s, zoom %d\n", s.Location(), s.Zoom())
	}
	f := s.Frame()
	if f.Request.Origin != (dvid.Point3d{24, 24, 5}) || f.Size() != (dvid.Point2d{16, 16}) {
		t.Errorf("bad initial frame request: %s\n", f.Request)
	}
	if f.Display(0, 0) != 0 || f.Display(4, 4) != 100 || f.Display(12, 4) != 200 || f.Display(12, 14) != 300 {
		t.Errorf("bad initial frame labels\n")
	}
	if f.GrayAt(12, 4) != 20 {
		t.Errorf("bad grayscale, got %d\n", f.GrayAt(12, 4))
	}
	if st.Fetches() != 1 {
		t.Errorf("expected 1 fetch, got %d\n", st.Fetches())
	}
	if !s.ShowAll() || s.Opacity() != DefaultOpacity || s.Selection() != labels.Background {
		t.Errorf("bad initial display state\n")
	}

	// Default start is the center of the volume with a 500 x 500 viewport.
	s2, err := New(context.Background(), st, mergequeue.New(st, 5), Config{})
	if err != nil {
		t.Fatalf("can't create default session: %v\n", err)
	}
	if s2.Location() != (dvid.Point3d{31, 31, 4}) || s2.Frame().Size() != (dvid.Point2d{500, 500}) {
		t.Errorf("bad default viewport %s, size %s\n", s2.Location(), s2.Frame().Size())
	}

	// Bounds can be narrowed by configuration.
	minPt, maxPt := dvid.Point3d{10, 10, 2}, dvid.Point3d{20, 20, 4}
	s3, err := New(context.Background(), st, mergequeue.New(st, 5), Config{MinPoint: &minPt, MaxPoint: &maxPt})
	if err != nil {
		t.Fatalf("can't create bounded session: %v\n", err)
	}
	if s3.Location() != (dvid.Point3d{15, 15, 3}) {
		t.Errorf("bad bounded viewport %s\n", s3.Location())
	}
	bad := dvid.Point3d{100, 0, 0}
	if _, err := New(context.Background(), st, mergequeue.New(st, 5), Config{Start: &bad}); err == nil {
		t.Errorf("expected error for start outside bounds\n")
	}
	if _, err := New(context.Background(), st, mergequeue.New(st, 5), Config{MaskBits: 40}); err == nil {
		t.Errorf("expected error for bad mask bits\n")
	}
}

func TestMergeScenario(t *testing.T) {
	st := newTestStore()
	s, r := newTestSession(t, st, mergequeue.DefaultDepth)
	ctx := context.Background()

	if cs, err := s.SetPlane(ctx, 5); err != nil || !cs.Empty() {
		t.Errorf("setting current plane should be a no-op, got %s, %v\n", cs, err)
	}
	cs, err := s.SelectLabel(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !cs.Has(SelectionChanged) || !cs.Has(ActualSelectionChanged) || cs.ActualSelection != 100 || cs.Selection != 100 || cs.PrevActualSelection != 0 {
		t.Fatalf("bad selection change: %+v\n", cs)
	}

	cs, err = s.MergeLabel(ctx, 12, 4)
	if err != nil {
		t.Fatal(err)
	}
	expected := []labels.Decision{{Master: 100, Slave: 200, Location: dvid.Point3d{36, 28, 5}}}
	if !reflect.DeepEqual(s.Queue().Pending(), expected) {
		t.Errorf("expected pending %v, got %v\n", expected, s.Queue().Pending())
	}
	if s.Queue().Resolve(200) != 100 {
		t.Errorf("expected 200 to resolve to 100\n")
	}
	if !cs.Has(MappingChanged) || cs.Has(BuffersChanged) || !cs.Has(StatusChanged) || cs.Status.Kind != ActionStatus {
		t.Errorf("bad merge change set: %s, status %v\n", cs, cs.Status)
	}
	if !cs.Remapped.Contains(100) || !cs.Remapped.Contains(200) {
		t.Errorf("expected 100 and 200 remapped, got %s\n", cs.Remapped)
	}
	f := s.Frame()
	if cs.Frame != f || f.Display(12, 4) != 100 || f.Display(15, 0) != 100 || f.RawLabel(12, 4) != 200 {
		t.Errorf("expected former 200 voxels displayed as 100\n")
	}
	if st.Fetches() != 1 {
		t.Errorf("merge without flush should not refetch, got %d fetches\n", st.Fetches())
	}

	cs, err = s.MergeLabel(ctx, 12, 4)
	if err != nil || !cs.Empty() {
		t.Errorf("repeated merge should be a no-op, got %s, %v\n", cs, err)
	}
	if s.Queue().Len() != 1 {
		t.Errorf("repeated merge queued another decision\n")
	}
	if len(r.sets) != 2 {
		t.Errorf("expected 2 notifications, got %d\n", len(r.sets))
	}
}

func TestMergeNoOps(t *testing.T) {
	st := newTestStore()
	s, r := newTestSession(t, st, mergequeue.DefaultDepth)
	ctx := context.Background()

	if cs, _ := s.MergeLabel(ctx, 12, 4); !cs.Empty() {
		t.Errorf("merge without selection should be a no-op\n")
	}
	if cs, _ := s.SelectLabel(0, 0); !cs.Empty() {
		t.Errorf("selecting background should be a no-op\n")
	}
	if cs, _ := s.SelectLabel(-1, 40); !cs.Empty() {
		t.Errorf("selecting outside the frame should be a no-op\n")
	}
	s.SelectLabel(4, 4)
	if cs, _ := s.MergeLabel(ctx, 0, 0); !cs.Empty() {
		t.Errorf("merging background should be a no-op\n")
	}
	if cs, _ := s.MergeLabel(ctx, 5, 5); !cs.Empty() {
		t.Errorf("merging selection into itself should be a no-op\n")
	}
	if s.Queue().Len() != 0 || len(r.sets) != 1 {
		t.Errorf("expected no decisions and only the selection notified\n")
	}
}

func TestSelectToggle(t *testing.T) {
	s, _ := newTestSession(t, newTestStore(), mergequeue.DefaultDepth)
	s.SelectLabel(4, 4)
	cs, _ := s.SelectLabel(12, 4)
	if cs.ActualSelection != 200 || cs.PrevActualSelection != 100 || cs.PrevSelection != 100 {
		t.Errorf("bad selection replacement: %+v\n", cs)
	}
	cs, _ = s.SelectLabel(13, 5)
	if cs.ActualSelection != 0 || cs.PrevActualSelection != 200 || s.Selection() != labels.Background {
		t.Errorf("reselecting should deselect: %+v\n", cs)
	}
}

func TestEdgeTriggered(t *testing.T) {
	s, r := newTestSession(t, newTestStore(), mergequeue.DefaultDepth)
	ctx := context.Background()
	cs, _ := s.SetOpacity(7)
	if cs.Changed != OpacityChanged || cs.Opacity != 7 {
		t.Errorf("expected only opacity change, got %s\n", cs)
	}
	cs, _ = s.SelectLabel(4, 4)
	if cs.Has(OpacityChanged) {
		t.Errorf("opacity change should not persist into later change sets\n")
	}
	cs, _ = s.IncrementPlane(ctx)
	if cs.Has(SelectionChanged) || cs.Has(OpacityChanged) {
		t.Errorf("unexpected flags on plane change: %s\n", cs)
	}
	if len(r.sets) != 3 {
		t.Fatalf("expected 3 notifications, got %d\n", len(r.sets))
	}
	for i, flag := range []Change{OpacityChanged, SelectionChanged, PlaneChanged} {
		if !r.sets[i].Has(flag) {
			t.Errorf("notification %d missing %s\n", i, flag)
		}
	}
}

func TestViewportMoves(t *testing.T) {
	st := newTestStore()
	s, r := newTestSession(t, st, mergequeue.DefaultDepth)
	ctx := context.Background()

	cs, err := s.IncrementPlane(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cs.Plane != 6 || !cs.Has(PlaneChanged|LocationChanged|BuffersChanged) || cs.Has(ZoomChanged) {
		t.Errorf("bad plane increment: %s\n", cs)
	}
	if cs.LocationString() != "32 32 6" {
		t.Errorf("bad location string %q\n", cs.LocationString())
	}
	if cs, _ = s.DecrementPlane(ctx); s.Plane() != 5 || !cs.Has(PlaneChanged) {
		t.Errorf("bad plane decrement\n")
	}
	for _, z := range []int32{-1, 10, 100} {
		if cs, err := s.SetPlane(ctx, z); err != nil || !cs.Empty() {
			t.Errorf("plane %d outside volume should be ignored\n", z)
		}
	}
	cs, _ = s.Pan(ctx, 1, -2)
	if s.Location() != (dvid.Point3d{33, 30, 5}) || cs.Has(PlaneChanged) || !cs.Has(LocationChanged) {
		t.Errorf("bad pan to %s: %s\n", s.Location(), cs)
	}
	if cs, _ = s.Pan(ctx, 100, 0); !cs.Empty() {
		t.Errorf("pan outside volume should be ignored\n")
	}
	if cs, _ = s.SetLocation(ctx, dvid.Point3d{33, 30, 5}); !cs.Empty() {
		t.Errorf("setting current location should be a no-op\n")
	}
	if cs, _ = s.SetLocation(ctx, dvid.Point3d{10, 50, 2}); s.Location() != (dvid.Point3d{10, 50, 2}) || !cs.Has(PlaneChanged) {
		t.Errorf("bad set location\n")
	}
	if s.Frame().Display(8, 8) != 300 {
		t.Errorf("expected label 300 at new center, got %d\n", s.Frame().Display(8, 8))
	}
	if st.Fetches() != 5 || len(r.sets) != 4 {
		t.Errorf("expected 5 fetches and 4 notifications, got %d and %d\n", st.Fetches(), len(r.sets))
	}
}

func TestZoom(t *testing.T) {
	st := newTestStore()
	s, _ := newTestSession(t, st, mergequeue.DefaultDepth)
	ctx := context.Background()

	if cs, err := s.ZoomIn(ctx); err != nil || !cs.Empty() || s.Zoom() != 0 {
		t.Errorf("zoom in at full resolution should fail\n")
	}
	cs, err := s.ZoomOut(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cs.Zoom != 1 || !cs.Has(ZoomChanged|BuffersChanged) || cs.Has(LocationChanged) {
		t.Errorf("bad zoom out: %s\n", cs)
	}
	if req := s.Frame().Request; req.Origin != (dvid.Point3d{8, 8, 2}) || req.Scale != 1 {
		t.Errorf("bad zoomed request %s\n", req)
	}
	// Frame position (5, 4) at scale 1 is full resolution (26, 24).
	if loc := s.Frame().Location(5, 4); loc != (dvid.Point3d{26, 24, 5}) {
		t.Errorf("bad full resolution location %s\n", loc)
	}
	s.Pan(ctx, 1, 0)
	if s.Location() != (dvid.Point3d{34, 32, 5}) {
		t.Errorf("pan at scale 1 should move 2 voxels, at %s\n", s.Location())
	}
	s.IncrementPlane(ctx)
	if s.Plane() != 7 {
		t.Errorf("plane step at scale 1 should be 2, at plane %d\n", s.Plane())
	}
	s.ZoomOut(ctx)
	if cs, _ := s.ZoomOut(ctx); !cs.Empty() || s.Zoom() != 2 {
		t.Errorf("zoom out past max scale should fail\n")
	}
	if cs, _ := s.ZoomIn(ctx); cs.Zoom != 1 || !cs.Has(ZoomChanged) {
		t.Errorf("bad zoom in\n")
	}
}

func TestActiveLabels(t *testing.T) {
	s, _ := newTestSession(t, newTestStore(), mergequeue.DefaultDepth)
	ctx := context.Background()

	cs, _ := s.ActiveLabel(4, 4)
	if !cs.Has(ActiveLabelsChanged|ShowAllChanged) || cs.ShowAll || !reflect.DeepEqual(cs.ActiveLabels, labels.NewSet(100)) {
		t.Errorf("bad active label change: %s, %s\n", cs, cs.ActiveLabels)
	}
	if cs, _ := s.SelectLabel(12, 4); !cs.Empty() {
		t.Errorf("inactive labels should not be selectable\n")
	}
	if cs, _ := s.SelectLabel(4, 4); cs.ActualSelection != 100 {
		t.Errorf("active label should be selectable\n")
	}
	cs, _ = s.ActiveLabel(4, 4)
	if !cs.ShowAll || len(cs.ActiveLabels) != 0 || cs.Has(SelectionChanged) {
		t.Errorf("removing last active label should show all: %s\n", cs)
	}
	s.ActiveLabel(12, 14)
	if s.Selection() != labels.Background {
		t.Errorf("selection outside active set should be cleared\n")
	}
	cs, _ = s.ResetActiveLabels()
	if !cs.ShowAll || len(s.ActiveLabels()) != 0 || !s.ShowAll() {
		t.Errorf("reset should clear active labels\n")
	}

	// A merged active label is replaced by its new canonical label.
	s.ActiveLabel(12, 4)
	s.ActiveLabel(4, 4)
	s.SelectLabel(4, 4)
	cs, err := s.MergeLabel(ctx, 12, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !cs.Has(ActiveLabelsChanged) || !reflect.DeepEqual(s.ActiveLabels(), labels.NewSet(100)) {
		t.Errorf("expected active labels [100] after merge, got %s\n", s.ActiveLabels())
	}
}

func TestOpacity(t *testing.T) {
	s, _ := newTestSession(t, newTestStore(), mergequeue.DefaultDepth)
	if cs, _ := s.ToggleShowAll(); cs.Opacity != 0 || s.Opacity() != 0 {
		t.Errorf("toggle should hide overlay\n")
	}
	if cs, _ := s.ToggleShowAll(); cs.Opacity != DefaultOpacity {
		t.Errorf("toggle should restore opacity %d, got %d\n", DefaultOpacity, cs.Opacity)
	}
	if cs, _ := s.SetOpacity(20); cs.Opacity != MaxOpacity {
		t.Errorf("opacity should clamp to %d\n", MaxOpacity)
	}
	if cs, _ := s.SetOpacity(MaxOpacity); !cs.Empty() {
		t.Errorf("unchanged opacity should be a no-op\n")
	}
	s.ToggleShowAll()
	if cs, _ := s.ToggleShowAll(); cs.Opacity != MaxOpacity {
		t.Errorf("toggle should restore opacity %d, got %d\n", MaxOpacity, cs.Opacity)
	}
	if cs, _ := s.SetOpacity(-3); cs.Opacity != 0 {
		t.Errorf("opacity should clamp to 0\n")
	}
}

func TestUndo(t *testing.T) {
	st := newTestStore()
	s, r := newTestSession(t, st, mergequeue.DefaultDepth)
	ctx := context.Background()

	cs, err := s.Undo(ctx)
	if err != nil || cs.Changed != StatusChanged || cs.Status.Kind != WarningStatus {
		t.Errorf("undo of empty queue should only warn: %s, %v\n", cs, err)
	}
	if len(r.sets) != 1 {
		t.Errorf("warning should be notified\n")
	}

	s.SelectLabel(4, 4)
	s.MergeLabel(ctx, 12, 4)
	s.Pan(ctx, 0, 1)
	s.SelectLabel(4, 14)

	cs, err = s.Undo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cs.Status.Kind != UndoStatus || !cs.Has(LocationChanged|BuffersChanged) {
		t.Errorf("bad undo change set: %s\n", cs)
	}
	if s.Location() != (dvid.Point3d{36, 28, 5}) {
		t.Errorf("undo should return to merge location, at %s\n", s.Location())
	}
	if cs.ActualSelection != 100 || cs.PrevActualSelection != 300 {
		t.Errorf("undo should select master 100, got %d (prev %d)\n", cs.ActualSelection, cs.PrevActualSelection)
	}
	if s.Queue().Resolve(200) != 200 || s.Frame().Display(8, 8) != 200 {
		t.Errorf("undo should restore label 200\n")
	}
	if !cs.Remapped.Contains(100) || !cs.Remapped.Contains(200) {
		t.Errorf("expected 100 and 200 remapped, got %s\n", cs.Remapped)
	}
	if cs, _ := s.Undo(ctx); cs.Status.Kind != WarningStatus {
		t.Errorf("second undo should warn\n")
	}
}

func TestUndoInPlace(t *testing.T) {
	st := newTestStore()
	s, _ := newTestSession(t, st, mergequeue.DefaultDepth)
	ctx := context.Background()
	s.SelectLabel(12, 4)
	s.MergeLabel(ctx, 4, 4)
	s.SetLocation(ctx, dvid.Point3d{28, 28, 5})

	// The viewport is already centered on the merge location so only labels change.
	cs, err := s.Undo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cs.Has(BuffersChanged) || !cs.Has(MappingChanged) || cs.Has(LocationChanged) {
		t.Errorf("bad in-place undo: %s\n", cs)
	}
	if s.Frame().Display(8, 8) != 100 || cs.ActualSelection != 200 {
		t.Errorf("expected 100 restored and 200 selected, got %d and %d\n", s.Frame().Display(8, 8), cs.ActualSelection)
	}
}

func TestFlushRefetches(t *testing.T) {
	st := newTestStore()
	s, _ := newTestSession(t, st, 1)
	ctx := context.Background()

	s.SelectLabel(4, 4)
	cs, err := s.MergeLabel(ctx, 12, 4)
	if err != nil || cs.Has(BuffersChanged) {
		t.Fatalf("first merge should not flush: %s, %v\n", cs, err)
	}
	cs, err = s.MergeLabel(ctx, 4, 14)
	if err != nil {
		t.Fatal(err)
	}
	if !cs.Has(BuffersChanged|MappingChanged|RetiredChanged) || !reflect.DeepEqual(cs.Retired, []uint64{200}) {
		t.Errorf("flushing merge should refetch and retire 200: %s, retired %v\n", cs, cs.Retired)
	}
	if st.Fetches() != 2 {
		t.Errorf("expected refetch after flush, got %d fetches\n", st.Fetches())
	}
	f := s.Frame()
	if f.RawLabel(12, 4) != 100 || f.Display(12, 4) != 100 || f.Display(4, 14) != 100 {
		t.Errorf("refetched frame should show persisted and pending merges\n")
	}
	if s.Queue().Len() != 1 {
		t.Errorf("expected 1 pending decision, got %d\n", s.Queue().Len())
	}
	if retired := s.Queue().TakeRetired(); len(retired) != 0 {
		t.Errorf("retired labels should be cleared after notification, got %v\n", retired)
	}
	if cs, _ := s.Undo(ctx); s.Frame().Display(4, 14) != 300 || cs.Status.Kind != UndoStatus {
		t.Errorf("pending merge should be undoable\n")
	}
	if cs, _ := s.Undo(ctx); cs.Status.Kind != WarningStatus {
		t.Errorf("flushed merge should not be undoable\n")
	}
}

func TestStoreUnavailable(t *testing.T) {
	st := newTestStore()
	s, r := newTestSession(t, st, 0)
	ctx := context.Background()
	frame := s.Frame()

	st.FailFetch = fmt.Errorf("server down")
	cs, err := s.IncrementPlane(ctx)
	if !errors.Is(err, store.ErrStoreUnavailable) || !cs.Empty() {
		t.Errorf("expected store unavailable with no change, got %s, %v\n", cs, err)
	}
	if s.Plane() != 5 || s.Frame() != frame || len(r.sets) != 0 {
		t.Errorf("failed fetch should leave the session unchanged\n")
	}
	st.FailFetch = nil

	s.SelectLabel(4, 4)
	st.FailPersist = fmt.Errorf("server down")
	cs, err = s.MergeLabel(ctx, 12, 4)
	if !errors.Is(err, store.ErrStoreUnavailable) || !cs.Empty() {
		t.Errorf("expected store unavailable on persist, got %s, %v\n", cs, err)
	}
	if s.Queue().Len() != 0 || s.Queue().Resolve(200) != 200 || s.Frame().Display(12, 4) != 200 || s.Selection() != 100 {
		t.Errorf("failed persist should leave the merge undone\n")
	}
	if len(r.sets) != 1 {
		t.Errorf("expected only the selection notified, got %d\n", len(r.sets))
	}

	st.FailPersist = nil
	cs, err = s.MergeLabel(ctx, 12, 4)
	if err != nil || !cs.Has(BuffersChanged) || len(st.Merges()) != 1 {
		t.Errorf("zero depth merge should persist and refetch: %s, %v\n", cs, err)
	}
}

func TestRefetchFailsAfterFlush(t *testing.T) {
	st := newTestStore()
	s, _ := newTestSession(t, st, 0)
	ctx := context.Background()

	s.SelectLabel(4, 4)
	st.FailFetch = fmt.Errorf("server down")
	cs, err := s.MergeLabel(ctx, 12, 4)
	if !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("expected refetch failure after persist, got %v\n", err)
	}
	if len(st.Merges()) != 1 || !cs.Has(MappingChanged) || cs.Has(BuffersChanged) {
		t.Errorf("expected merge persisted and old frame remapped: %s\n", cs)
	}
	if s.Frame().RawLabel(12, 4) != 200 || s.Frame().Display(12, 4) != 100 || s.Queue().Resolve(200) != 100 {
		t.Errorf("stale frame must still show 200 merged into 100, display %d\n", s.Frame().Display(12, 4))
	}
	if cs, err := s.MergeLabel(ctx, 12, 4); err != nil || !cs.Empty() || len(st.Merges()) != 1 {
		t.Errorf("merging an already persisted label should be a no-op: %s, %v, %d merges\n", cs, err, len(st.Merges()))
	}

	st.FailFetch = nil
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Queue().Unsettled() != 0 || s.Queue().Resolve(200) != 200 {
		t.Errorf("refetch should settle flushed merges\n")
	}
	if s.Frame().RawLabel(12, 4) != 100 || s.Frame().Display(12, 4) != 100 {
		t.Errorf("refetched frame should carry the persisted merge\n")
	}
}

func TestFlushAllAndRecover(t *testing.T) {
	st := newTestStore()
	s, _ := newTestSession(t, st, mergequeue.DefaultDepth)
	ctx := context.Background()

	if cs, err := s.FlushAll(ctx); err != nil || !cs.Empty() {
		t.Errorf("flush of empty queue should be a no-op\n")
	}
	s.SelectLabel(4, 4)
	s.MergeLabel(ctx, 12, 4)
	cs, err := s.FlushAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !cs.Has(BuffersChanged|StatusChanged) || s.Queue().Len() != 0 || len(st.Merges()) != 1 {
		t.Errorf("bad flush all: %s\n", cs)
	}
	if s.Frame().RawLabel(12, 4) != 100 {
		t.Errorf("frame should be refetched after flush all\n")
	}

	st2 := newTestStore()
	s2, _ := newTestSession(t, st2, mergequeue.DefaultDepth)
	pending := []labels.Decision{{Master: 200, Slave: 300, Location: dvid.Point3d{36, 38, 5}}}
	cs, err = s2.Recover(ctx, pending)
	if err != nil {
		t.Fatal(err)
	}
	if !cs.Has(StatusChanged) || s2.Queue().Len() != 1 || s2.Frame().Display(4, 14) != 200 {
		t.Errorf("bad recovery: %s\n", cs)
	}
	if len(st2.Merges()) != 0 {
		t.Errorf("recovered decisions within queue depth should stay pending\n")
	}
}

func TestDisplayMask(t *testing.T) {
	low, high := uint64(1)<<20|5, uint64(2)<<20|5
	st := memstore.New(dvid.Point3d{0, 0, 0}, dvid.Point3d{63, 63, 9}, 0)
	st.Fill(dvid.Point3d{0, 0, 0}, dvid.Point3d{31, 63, 9}, low, 10)
	st.Fill(dvid.Point3d{32, 0, 0}, dvid.Point3d{63, 63, 9}, high, 20)
	s, _ := newTestSession(t, st, mergequeue.DefaultDepth)
	ctx := context.Background()

	if s.Frame().Display(4, 4) != 5 || s.Frame().Display(12, 4) != 5 {
		t.Errorf("expected masked display labels\n")
	}
	cs, _ := s.SelectLabel(4, 4)
	if cs.ActualSelection != low || cs.Selection != 5 {
		t.Errorf("bad selection forms: actual %d, display %d\n", cs.ActualSelection, cs.Selection)
	}
	cs, err := s.MergeLabel(ctx, 12, 4)
	if err != nil || cs.Empty() {
		t.Fatalf("labels sharing masked bits should still merge: %v\n", err)
	}
	pending := s.Queue().Pending()
	if len(pending) != 1 || pending[0].Master != low || pending[0].Slave != high {
		t.Errorf("queue should hold unmasked labels, got %v\n", pending)
	}
	if s.Queue().Resolve(high) != low {
		t.Errorf("expected %d to resolve to %d\n", high, low)
	}
}
