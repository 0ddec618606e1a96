/*
Package session tracks an interactive viewing and proofreading session over a
labeled volume: the viewport into the volume, the fetched plane of grayscale
and labels, the selected and active labels, and the merge decisions routed
through a merge queue.

Every operation returns a ChangeSet describing what it changed, and the same
ChangeSet is delivered to all attached observers.  An empty ChangeSet means
the operation was a no-op, e.g. clicking on background or zooming past the
coarsest scale.  Operations that talk to the store can also fail with an
error wrapping store.ErrStoreUnavailable; in that case the viewport and
buffers are left as they were.

A Session is not safe for concurrent use.  Observers may call back into the
session while being notified; resulting notifications are delivered after
the current round.
*/
package session

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
	"github.com/janelia-flyem/dvidviewer/mergequeue"
	"github.com/janelia-flyem/dvidviewer/store"
)

const (
	DefaultWidth   = 500
	DefaultHeight  = 500
	DefaultOpacity = 4
	MaxOpacity     = 10
)

// Config holds the viewport settings of a session.  Zero values select
// defaults.
type Config struct {
	Width       int32
	Height      int32
	PanFactor   int32 // voxels moved per pan step at the current scale
	PlaneFactor int32 // planes moved per plane step at the current scale
	MaskBits    uint8

	// MinPoint and MaxPoint, if set, override the bounds reported by the store.
	MinPoint *dvid.Point3d
	MaxPoint *dvid.Point3d

	// Start is the initial viewport center.  The default is the center of
	// the bounds.
	Start *dvid.Point3d
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.PanFactor <= 0 {
		c.PanFactor = 1
	}
	if c.PlaneFactor <= 0 {
		c.PlaneFactor = 1
	}
	if c.MaskBits == 0 {
		c.MaskBits = labels.DefaultMaskBits
	}
	return c
}

// Session is the state of one viewing session.
type Session struct {
	Dispatcher

	store store.Store
	queue *mergequeue.Queue
	mask  labels.Mask

	minPt    dvid.Point3d
	maxPt    dvid.Point3d
	maxScale uint8

	size        dvid.Point2d
	panFactor   int32
	planeFactor int32

	center dvid.Point3d // full resolution
	scale  uint8
	frame  *Frame

	selection    uint64
	activeLabels labels.Set
	showAll      bool
	opacity      int
	savedOpacity int
}

// New bootstraps a session from the store's metadata and fetches the
// initial viewport.
func New(ctx context.Context, s store.Store, q *mergequeue.Queue, c Config) (*Session, error) {
	c = c.withDefaults()
	mask, err := labels.NewMask(c.MaskBits)
	if err != nil {
		return nil, err
	}
	md, err := s.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get volume metadata: %w", err)
	}
	minPt, maxPt := md.MinPoint, md.MaxPoint
	if c.MinPoint != nil {
		minPt = *c.MinPoint
	}
	if c.MaxPoint != nil {
		maxPt = *c.MaxPoint
	}
	for i := 0; i < 3; i++ {
		if minPt[i] > maxPt[i] {
			return nil, fmt.Errorf("bad volume bounds %s to %s", minPt, maxPt)
		}
	}
	center := dvid.Point3d{
		minPt[0] + (maxPt[0]-minPt[0])/2,
		minPt[1] + (maxPt[1]-minPt[1])/2,
		minPt[2] + (maxPt[2]-minPt[2])/2,
	}
	if c.Start != nil {
		if !c.Start.Within(minPt, maxPt) {
			return nil, fmt.Errorf("start location %s is outside volume bounds %s to %s", *c.Start, minPt, maxPt)
		}
		center = *c.Start
	}

	sess := &Session{
		store:        s,
		queue:        q,
		mask:         mask,
		minPt:        minPt,
		maxPt:        maxPt,
		maxScale:     md.MaxScale,
		size:         dvid.Point2d{c.Width, c.Height},
		panFactor:    c.PanFactor,
		planeFactor:  c.PlaneFactor,
		activeLabels: labels.NewSet(),
		showAll:      true,
		opacity:      DefaultOpacity,
		savedOpacity: DefaultOpacity,
	}
	if _, err := sess.moveTo(ctx, center, 0, true); err != nil {
		return nil, err
	}
	dvid.Infof("Started session over %s to %s (max scale %d) at %s\n", minPt, maxPt, md.MaxScale, center)
	return sess, nil
}

// Frame returns the currently displayed plane.
func (s *Session) Frame() *Frame {
	return s.frame
}

// Location returns the full resolution viewport center.
func (s *Session) Location() dvid.Point3d {
	return s.center
}

// Plane returns the full resolution z of the viewport.
func (s *Session) Plane() int32 {
	return s.center[2]
}

// Zoom returns the current scale, where 0 is full resolution.
func (s *Session) Zoom() uint8 {
	return s.scale
}

// MaxZoom returns the coarsest available scale.
func (s *Session) MaxZoom() uint8 {
	return s.maxScale
}

// Bounds returns the inclusive full resolution bounds of the volume.
func (s *Session) Bounds() (minPt, maxPt dvid.Point3d) {
	return s.minPt, s.maxPt
}

// Mask returns the display mask applied to frame labels.
func (s *Session) Mask() labels.Mask {
	return s.mask
}

// Selection returns the selected canonical label or background.
func (s *Session) Selection() uint64 {
	return s.selection
}

// ActiveLabels returns a copy of the active label set.
func (s *Session) ActiveLabels() labels.Set {
	return s.activeLabels.Copy()
}

// ShowAll returns true if all labels, not just active ones, are shown.
func (s *Session) ShowAll() bool {
	return s.showAll
}

// Opacity returns the label overlay opacity in [0, MaxOpacity].
func (s *Session) Opacity() int {
	return s.opacity
}

// Queue returns the session's merge queue.
func (s *Session) Queue() *mergequeue.Queue {
	return s.queue
}

// request returns the plane fetched for a viewport centered at the given
// full resolution point.
func (s *Session) request(center dvid.Point3d, scale uint8) store.Request {
	origin := center.Downres(scale)
	origin[0] -= s.size[0] / 2
	origin[1] -= s.size[1] / 2
	return store.Request{Origin: origin, Size: s.size, Scale: scale}
}

func (s *Session) fetch(ctx context.Context, req store.Request, plane int32) (*Frame, error) {
	timedLog := dvid.NewTimeLog()
	subvol, err := s.store.FetchSubvolume(ctx, req)
	if err != nil {
		return nil, err
	}
	if subvol.Size != req.Size {
		return nil, store.Unavailable("fetch of %s returned %s plane", req, subvol.Size)
	}
	if err := subvol.Check(); err != nil {
		return nil, store.Unavailable("fetch of %s: %v", req, err)
	}
	f := newFrame(req, plane, subvol, s.queue.Resolve, s.mask)
	timedLog.Debugf("Fetched %s", req)
	return f, nil
}

// moveTo sets the viewport, fetching a new frame if the plane at the new
// viewport differs from the current frame or if forced.  Nothing changes if
// the fetch fails, so flushed merges stay resolved in memory until a frame
// fetched after them arrives.
func (s *Session) moveTo(ctx context.Context, center dvid.Point3d, scale uint8, force bool) (ChangeSet, error) {
	var cs ChangeSet
	req := s.request(center, scale)
	if force || s.frame == nil || s.frame.Request != req || s.frame.Plane != center[2] {
		frame, err := s.fetch(ctx, req, center[2])
		if err != nil {
			return ChangeSet{}, err
		}
		s.frame = frame
		cs.Changed |= BuffersChanged
		// The new frame carries every flushed merge.
		s.queue.Settle()
	}
	if center[2] != s.center[2] {
		cs.Changed |= PlaneChanged
	}
	if center != s.center {
		cs.Changed |= LocationChanged
	}
	if scale != s.scale {
		cs.Changed |= ZoomChanged
	}
	s.center, s.scale = center, scale
	s.fillViewport(&cs)
	return cs, nil
}

func (s *Session) fillViewport(cs *ChangeSet) {
	cs.Plane = s.center[2]
	cs.Location = s.center
	cs.Zoom = s.scale
	cs.Frame = s.frame
}

func (s *Session) move(ctx context.Context, center dvid.Point3d, scale uint8) (ChangeSet, error) {
	if !center.Within(s.minPt, s.maxPt) {
		return ChangeSet{}, nil
	}
	if center == s.center && scale == s.scale {
		return ChangeSet{}, nil
	}
	cs, err := s.moveTo(ctx, center, scale, false)
	if err != nil {
		return cs, err
	}
	s.Notify(cs)
	return cs, nil
}

// SetPlane moves the viewport to full resolution plane z.  Planes outside
// the volume are ignored.
func (s *Session) SetPlane(ctx context.Context, z int32) (ChangeSet, error) {
	center := s.center
	center[2] = z
	return s.move(ctx, center, s.scale)
}

// IncrementPlane moves the viewport forward by the plane step, scaled to
// the current zoom.
func (s *Session) IncrementPlane(ctx context.Context) (ChangeSet, error) {
	return s.SetPlane(ctx, s.center[2]+s.planeFactor<<s.scale)
}

// DecrementPlane moves the viewport back by the plane step, scaled to the
// current zoom.
func (s *Session) DecrementPlane(ctx context.Context) (ChangeSet, error) {
	return s.SetPlane(ctx, s.center[2]-s.planeFactor<<s.scale)
}

// Pan shifts the viewport center by (dx, dy) pan steps.  A step covers
// more voxels at coarser scales.
func (s *Session) Pan(ctx context.Context, dx, dy int32) (ChangeSet, error) {
	center := s.center
	center[0] += dx * s.panFactor << s.scale
	center[1] += dy * s.panFactor << s.scale
	return s.move(ctx, center, s.scale)
}

// SetLocation centers the viewport on a full resolution point.
func (s *Session) SetLocation(ctx context.Context, p dvid.Point3d) (ChangeSet, error) {
	return s.move(ctx, p, s.scale)
}

// ZoomIn moves to the next finer scale.  It is a no-op at full resolution.
func (s *Session) ZoomIn(ctx context.Context) (ChangeSet, error) {
	if s.scale == 0 {
		return ChangeSet{}, nil
	}
	return s.move(ctx, s.center, s.scale-1)
}

// ZoomOut moves to the next coarser scale.  It is a no-op at the coarsest
// scale the store provides.
func (s *Session) ZoomOut(ctx context.Context) (ChangeSet, error) {
	if s.scale >= s.maxScale {
		return ChangeSet{}, nil
	}
	return s.move(ctx, s.center, s.scale+1)
}

// Refresh refetches the current viewport even if it has not moved.
func (s *Session) Refresh(ctx context.Context) (ChangeSet, error) {
	cs, err := s.moveTo(ctx, s.center, s.scale, true)
	if err != nil {
		return cs, err
	}
	s.Notify(cs)
	return cs, nil
}

func (s *Session) selectionChange(cs *ChangeSet, prev uint64) {
	cs.Changed |= SelectionChanged | ActualSelectionChanged
	cs.ActualSelection = s.selection
	cs.PrevActualSelection = prev
	cs.Selection = s.mask.Apply(s.selection)
	cs.PrevSelection = s.mask.Apply(prev)
}

// labelAt returns the canonical label at frame position (x, y).
func (s *Session) labelAt(x, y int32) uint64 {
	if s.frame == nil {
		return labels.Background
	}
	raw := s.frame.RawLabel(x, y)
	if raw == labels.Background {
		return labels.Background
	}
	return s.queue.Resolve(raw)
}

// SelectLabel toggles selection of the label at frame position (x, y).
// Selecting the selected label deselects it.  Background is ignored, as are
// labels outside a non-empty active set.
func (s *Session) SelectLabel(x, y int32) (ChangeSet, error) {
	label := s.labelAt(x, y)
	if label == labels.Background {
		return ChangeSet{}, nil
	}
	if len(s.activeLabels) > 0 && !s.activeLabels.Contains(label) {
		return ChangeSet{}, nil
	}
	prev := s.selection
	if label == prev {
		s.selection = labels.Background
	} else {
		s.selection = label
	}
	var cs ChangeSet
	s.selectionChange(&cs, prev)
	s.Notify(cs)
	return cs, nil
}

// ActiveLabel toggles the label at frame position (x, y) in the active set.
// While the active set is non-empty only active labels are shown and
// selectable.
func (s *Session) ActiveLabel(x, y int32) (ChangeSet, error) {
	label := s.labelAt(x, y)
	if label == labels.Background {
		return ChangeSet{}, nil
	}
	if s.activeLabels.Contains(label) {
		delete(s.activeLabels, label)
	} else {
		s.activeLabels.Add(label)
	}
	cs := ChangeSet{Changed: ActiveLabelsChanged}
	showAll := len(s.activeLabels) == 0
	if showAll != s.showAll {
		s.showAll = showAll
		cs.Changed |= ShowAllChanged
	}
	if s.selection != labels.Background && !showAll && !s.activeLabels.Contains(s.selection) {
		prev := s.selection
		s.selection = labels.Background
		s.selectionChange(&cs, prev)
	}
	cs.ActiveLabels = s.activeLabels.Copy()
	cs.ShowAll = s.showAll
	s.Notify(cs)
	return cs, nil
}

// ResetActiveLabels empties the active set so all labels are shown.
func (s *Session) ResetActiveLabels() (ChangeSet, error) {
	s.activeLabels = labels.NewSet()
	s.showAll = true
	cs := ChangeSet{
		Changed:      ActiveLabelsChanged | ShowAllChanged,
		ActiveLabels: labels.NewSet(),
		ShowAll:      true,
	}
	s.Notify(cs)
	return cs, nil
}

// SetOpacity sets the label overlay opacity, clamped to [0, MaxOpacity].
func (s *Session) SetOpacity(opacity int) (ChangeSet, error) {
	if opacity < 0 {
		opacity = 0
	}
	if opacity > MaxOpacity {
		opacity = MaxOpacity
	}
	if opacity == s.opacity {
		return ChangeSet{}, nil
	}
	s.opacity = opacity
	cs := ChangeSet{Changed: OpacityChanged, Opacity: opacity}
	s.Notify(cs)
	return cs, nil
}

// ToggleShowAll hides the label overlay, remembering its opacity, or
// restores the remembered opacity if the overlay is hidden.
func (s *Session) ToggleShowAll() (ChangeSet, error) {
	opacity := s.savedOpacity
	if s.opacity > 0 {
		s.savedOpacity = s.opacity
		opacity = 0
	}
	return s.SetOpacity(opacity)
}

// remapFrame recomputes display labels of the current frame after the
// merge queue changed.
func (s *Session) remapFrame(cs *ChangeSet) {
	if s.frame == nil {
		return
	}
	s.frame = s.frame.remap(s.queue.Resolve, s.mask)
	cs.Changed |= MappingChanged
	cs.Frame = s.frame
}

// MergeLabel merges the label at frame position (x, y) into the selected
// label.  It is a no-op if nothing is selected, if (x, y) is background, or
// if both already resolve to the same label.  If the merge caused pending
// decisions to be persisted, the viewport is refetched.
func (s *Session) MergeLabel(ctx context.Context, x, y int32) (ChangeSet, error) {
	if s.selection == labels.Background {
		return ChangeSet{}, nil
	}
	target := s.labelAt(x, y)
	if target == labels.Background {
		return ChangeSet{}, nil
	}
	master := s.queue.Resolve(s.selection)
	if master == target {
		return ChangeSet{}, nil
	}
	d := labels.Decision{Master: master, Slave: target, Location: s.frame.Location(x, y)}
	flushed, err := s.queue.AddDecision(ctx, d)
	if err != nil {
		return ChangeSet{}, err
	}

	var cs ChangeSet
	var refreshErr error
	if flushed {
		// Persisted labels must come from the store from now on.
		cs, refreshErr = s.moveTo(ctx, s.center, s.scale, true)
		if refreshErr != nil {
			refreshErr = fmt.Errorf("%s persisted but view not refreshed: %w", d, refreshErr)
			s.remapFrame(&cs)
		} else {
			cs.Changed |= MappingChanged
		}
	} else {
		s.remapFrame(&cs)
	}
	s.fillViewport(&cs)

	if retired := s.queue.TakeRetired(); len(retired) > 0 {
		cs.Changed |= RetiredChanged
		cs.Retired = retired
	}
	if s.activeLabels.Contains(target) {
		delete(s.activeLabels, target)
		s.activeLabels.Add(master)
		cs.Changed |= ActiveLabelsChanged
		cs.ActiveLabels = s.activeLabels.Copy()
		cs.ShowAll = s.showAll
	}
	if s.selection != master {
		prev := s.selection
		s.selection = master
		s.selectionChange(&cs, prev)
	}
	cs.Remapped = s.queue.Group(master)
	cs.Remapped.Add(target)
	cs.Changed |= StatusChanged
	cs.Status = Status{Message: fmt.Sprintf("Merged %d into %d", target, master), Kind: ActionStatus}

	s.Notify(cs)
	s.queue.ClearRetired()
	return cs, refreshErr
}

// Undo reverts the most recent pending merge, moves the viewport to where
// it was made, and selects the label it was merged into.  If there is
// nothing to undo, only a warning status is published.
func (s *Session) Undo(ctx context.Context) (ChangeSet, error) {
	d, ok := s.queue.UndoDecision()
	if !ok {
		cs := ChangeSet{
			Changed: StatusChanged,
			Status:  Status{Message: "Nothing to undo", Kind: WarningStatus},
		}
		s.Notify(cs)
		return cs, nil
	}

	var cs ChangeSet
	var moveErr error
	if d.Location.Within(s.minPt, s.maxPt) {
		cs, moveErr = s.moveTo(ctx, d.Location, s.scale, false)
		if moveErr != nil {
			moveErr = fmt.Errorf("undid %s but can't move to its location: %w", d, moveErr)
		}
	}
	if !cs.Has(BuffersChanged) {
		s.remapFrame(&cs)
	} else {
		cs.Changed |= MappingChanged
	}
	s.fillViewport(&cs)

	prev := s.selection
	s.selection = s.queue.Resolve(d.Master)
	s.selectionChange(&cs, prev)

	cs.Remapped = s.queue.Group(d.Master)
	cs.Remapped.Merge(s.queue.Group(d.Slave))
	cs.Changed |= StatusChanged
	cs.Status = Status{Message: fmt.Sprintf("Undid merge of %d into %d", d.Slave, d.Master), Kind: UndoStatus}
	s.Notify(cs)
	return cs, moveErr
}

// FlushAll persists every pending decision and refetches the viewport so
// that it reflects the store.
func (s *Session) FlushAll(ctx context.Context) (ChangeSet, error) {
	n := s.queue.Len()
	if err := s.queue.FlushAll(ctx); err != nil {
		return ChangeSet{}, err
	}
	if n == 0 {
		return ChangeSet{}, nil
	}
	cs, err := s.moveTo(ctx, s.center, s.scale, true)
	if err != nil {
		s.remapFrame(&cs)
		err = fmt.Errorf("merges persisted but view not refreshed: %w", err)
	} else {
		cs.Changed |= MappingChanged
	}
	s.fillViewport(&cs)
	if retired := s.queue.TakeRetired(); len(retired) > 0 {
		cs.Changed |= RetiredChanged
		cs.Retired = retired
	}
	cs.Changed |= StatusChanged
	cs.Status = Status{Message: fmt.Sprintf("Saved %d merges", n), Kind: ActionStatus}
	s.Notify(cs)
	s.queue.ClearRetired()
	return cs, err
}

// Recover queues merge decisions left pending by an earlier session and
// refetches the viewport.
func (s *Session) Recover(ctx context.Context, decisions []labels.Decision) (ChangeSet, error) {
	if len(decisions) == 0 {
		return ChangeSet{}, nil
	}
	if err := s.queue.Restore(ctx, decisions); err != nil {
		return ChangeSet{}, err
	}
	cs, err := s.moveTo(ctx, s.center, s.scale, true)
	if err != nil {
		s.remapFrame(&cs)
		err = fmt.Errorf("merges recovered but view not refreshed: %w", err)
	} else {
		cs.Changed |= MappingChanged
	}
	s.fillViewport(&cs)
	if retired := s.queue.TakeRetired(); len(retired) > 0 {
		cs.Changed |= RetiredChanged
		cs.Retired = retired
	}
	cs.Changed |= StatusChanged
	cs.Status = Status{Message: fmt.Sprintf("Recovered %d unsaved merges", len(decisions)), Kind: ActionStatus}
	s.Notify(cs)
	s.queue.ClearRetired()
	return cs, err
}
