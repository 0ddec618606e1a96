package session

import (
	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
	"github.com/janelia-flyem/dvidviewer/store"
)

// Frame is one fetched viewport plane.  A Frame is never modified after it
// is published to observers; remapping or refetching produces a new Frame.
type Frame struct {
	Request store.Request
	Plane   int32 // full resolution z of the plane

	Gray []byte
	Raw  []uint64 // labels as stored

	// Labels are the raw labels resolved through pending merges and then
	// masked for display.
	Labels []uint32
}

func newFrame(req store.Request, plane int32, subvol *store.Subvolume, resolve func(uint64) uint64, mask labels.Mask) *Frame {
	f := &Frame{
		Request: req,
		Plane:   plane,
		Gray:    subvol.Gray,
		Raw:     subvol.Labels,
	}
	f.Labels = f.displayLabels(resolve, mask)
	return f
}

func (f *Frame) displayLabels(resolve func(uint64) uint64, mask labels.Mask) []uint32 {
	out := make([]uint32, len(f.Raw))
	mapped := make(map[uint64]uint32)
	for i, label := range f.Raw {
		if label == labels.Background {
			continue
		}
		display, found := mapped[label]
		if !found {
			display = mask.Apply(resolve(label))
			mapped[label] = display
		}
		out[i] = display
	}
	return out
}

// remap returns a frame with the same fetched data but display labels
// recomputed from the current merges.
func (f *Frame) remap(resolve func(uint64) uint64, mask labels.Mask) *Frame {
	return &Frame{
		Request: f.Request,
		Plane:   f.Plane,
		Gray:    f.Gray,
		Raw:     f.Raw,
		Labels:  f.displayLabels(resolve, mask),
	}
}

// Size returns the width and height of the frame.
func (f *Frame) Size() dvid.Point2d {
	return f.Request.Size
}

func (f *Frame) index(x, y int32) (int, bool) {
	size := f.Request.Size
	if x < 0 || y < 0 || x >= size[0] || y >= size[1] {
		return 0, false
	}
	return int(y)*int(size[0]) + int(x), true
}

// RawLabel returns the stored label at frame position (x, y), or background
// outside the frame.
func (f *Frame) RawLabel(x, y int32) uint64 {
	i, ok := f.index(x, y)
	if !ok {
		return labels.Background
	}
	return f.Raw[i]
}

// Display returns the display label at frame position (x, y).
func (f *Frame) Display(x, y int32) uint32 {
	i, ok := f.index(x, y)
	if !ok {
		return 0
	}
	return f.Labels[i]
}

// GrayAt returns the intensity at frame position (x, y).
func (f *Frame) GrayAt(x, y int32) byte {
	i, ok := f.index(x, y)
	if !ok {
		return 0
	}
	return f.Gray[i]
}

// Location returns the full resolution voxel shown at frame position (x, y).
func (f *Frame) Location(x, y int32) dvid.Point3d {
	p := dvid.Point3d{f.Request.Origin[0] + x, f.Request.Origin[1] + y, 0}.Upres(f.Request.Scale)
	p[2] = f.Plane
	return p
}
