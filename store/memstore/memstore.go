/*
Package memstore is an in-memory label store.  It holds a full resolution
grayscale and label volume, serves downsampled planes by nearest-voxel
sampling, and applies merges by relabeling voxels.  Tests and offline demos
use it in place of a DVID server.
*/
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
	"github.com/janelia-flyem/dvidviewer/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	minPt    dvid.Point3d
	maxPt    dvid.Point3d
	size     dvid.Point3d
	maxScale uint8

	gray   []byte
	labels []uint64

	merges  []labels.MergeOp
	fetches int

	// FailFetch and FailPersist, when set, are returned (as store unavailable)
	// by the next and all subsequent calls until cleared.
	FailFetch   error
	FailPersist error

	sync.RWMutex
}

// New returns an empty volume spanning the inclusive bounds with the given
// number of downres levels available.
func New(minPt, maxPt dvid.Point3d, maxScale uint8) *Store {
	size := maxPt.Sub(minPt).Add(dvid.Point3d{1, 1, 1})
	n := size.Prod()
	return &Store{
		minPt:    minPt,
		maxPt:    maxPt,
		size:     size,
		maxScale: maxScale,
		gray:     make([]byte, n),
		labels:   make([]uint64, n),
	}
}

func (s *Store) index(p dvid.Point3d) (int, bool) {
	if !p.Within(s.minPt, s.maxPt) {
		return 0, false
	}
	d := p.Sub(s.minPt)
	return int(d[2])*int(s.size[0])*int(s.size[1]) + int(d[1])*int(s.size[0]) + int(d[0]), true
}

// SetLabel sets the label of one full resolution voxel.
func (s *Store) SetLabel(p dvid.Point3d, label uint64) {
	s.Lock()
	defer s.Unlock()
	if i, ok := s.index(p); ok {
		s.labels[i] = label
	}
}

// Label returns the label of one full resolution voxel.
func (s *Store) Label(p dvid.Point3d) uint64 {
	s.RLock()
	defer s.RUnlock()
	if i, ok := s.index(p); ok {
		return s.labels[i]
	}
	return labels.Background
}

// Fill sets the label and grayscale value of all voxels within the inclusive box.
func (s *Store) Fill(minPt, maxPt dvid.Point3d, label uint64, gray byte) {
	s.Lock()
	defer s.Unlock()
	for z := minPt[2]; z <= maxPt[2]; z++ {
		for y := minPt[1]; y <= maxPt[1]; y++ {
			for x := minPt[0]; x <= maxPt[0]; x++ {
				if i, ok := s.index(dvid.Point3d{x, y, z}); ok {
					s.labels[i] = label
					s.gray[i] = gray
				}
			}
		}
	}
}

// Metadata returns the volume bounds and available scales.
func (s *Store) Metadata(ctx context.Context) (*store.Metadata, error) {
	return &store.Metadata{MinPoint: s.minPt, MaxPoint: s.maxPt, MaxScale: s.maxScale}, nil
}

// FetchSubvolume samples the requested plane.  Voxels outside the volume are
// background with zero intensity.
func (s *Store) FetchSubvolume(ctx context.Context, req store.Request) (*store.Subvolume, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, store.Unavailable("fetch of %s: %v", req, err)
	}
	s.Lock()
	defer s.Unlock()
	if s.FailFetch != nil {
		return nil, store.Unavailable("fetch of %s: %v", req, s.FailFetch)
	}
	if req.Scale > s.maxScale {
		return nil, store.Unavailable("scale %d requested but max scale is %d", req.Scale, s.maxScale)
	}
	s.fetches++
	subvol := store.NewSubvolume(req.Size)
	z := req.Origin[2] << req.Scale
	var i int
	for y := int32(0); y < req.Size[1]; y++ {
		for x := int32(0); x < req.Size[0]; x++ {
			p := dvid.Point3d{(req.Origin[0] + x) << req.Scale, (req.Origin[1] + y) << req.Scale, z}
			if vi, ok := s.index(p); ok {
				subvol.Labels[i] = s.labels[vi]
				subvol.Gray[i] = s.gray[vi]
			}
			i++
		}
	}
	return subvol, nil
}

// PersistMerge relabels every voxel of the merged labels to the target.
// The merge is checked the way a DVID server parses a posted merge tuple.
func (s *Store) PersistMerge(ctx context.Context, op labels.MergeOp) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable("merge %s: %v", op, err)
	}
	op, err := op.Tuple().Op()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrBadRequest, err)
	}
	s.Lock()
	defer s.Unlock()
	if s.FailPersist != nil {
		return store.Unavailable("merge %s: %v", op, s.FailPersist)
	}
	for i, label := range s.labels {
		if op.Merged.Contains(label) {
			s.labels[i] = op.Target
		}
	}
	s.merges = append(s.merges, labels.MergeOp{Target: op.Target, Merged: op.Merged.Copy()})
	return nil
}

// Merges returns the merges persisted so far in the order received.
func (s *Store) Merges() []labels.MergeOp {
	s.RLock()
	defer s.RUnlock()
	out := make([]labels.MergeOp, len(s.merges))
	copy(out, s.merges)
	return out
}

// Fetches returns the number of successful plane fetches served.
func (s *Store) Fetches() int {
	s.RLock()
	defer s.RUnlock()
	return s.fetches
}
