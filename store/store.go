/*
Package store defines the contract between a viewing session and the remote
segmented-image store: fetching a plane of grayscale and label data, persisting
merges, and reading the volume metadata needed at startup.
*/
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
)

var (
	// ErrStoreUnavailable marks any failure to reach or get a usable answer from
	// the remote store.  Callers must leave their state untouched when they see it.
	ErrStoreUnavailable = errors.New("label store unavailable")

	// ErrBadRequest marks a request the store could never satisfy.
	ErrBadRequest = errors.New("bad label store request")
)

// Unavailable wraps an underlying error as ErrStoreUnavailable.
func Unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStoreUnavailable, fmt.Sprintf(format, args...))
}

// Request describes a single XY plane of data.  Origin and Size are given in
// voxel coordinates of the requested scale, where scale 0 is full resolution
// and each higher scale halves the resolution.
type Request struct {
	Origin dvid.Point3d
	Size   dvid.Point2d
	Scale  uint8
}

// Validate returns ErrBadRequest if the footprint is empty.
func (r Request) Validate() error {
	if r.Size[0] <= 0 || r.Size[1] <= 0 {
		return fmt.Errorf("%w: plane size %s must be positive", ErrBadRequest, r.Size)
	}
	return nil
}

// NumVoxels returns the number of voxels in the requested plane.
func (r Request) NumVoxels() int {
	return int(r.Size.Prod())
}

// Key returns a compact binary key unique to the request.
func (r Request) Key() []byte {
	b := make([]byte, 21)
	binary.LittleEndian.PutUint32(b[0:4], uint32(r.Origin[0]))
	binary.LittleEndian.PutUint32(b[4:8], uint32(r.Origin[1]))
	binary.LittleEndian.PutUint32(b[8:12], uint32(r.Origin[2]))
	binary.LittleEndian.PutUint32(b[12:16], uint32(r.Size[0]))
	binary.LittleEndian.PutUint32(b[16:20], uint32(r.Size[1]))
	b[20] = r.Scale
	return b
}

func (r Request) String() string {
	return fmt.Sprintf("%d x %d plane at %s, scale %d", r.Size[0], r.Size[1], r.Origin, r.Scale)
}

// Subvolume is a dense, row-major plane of grayscale and label data.
// Labels are in the store's native 64-bit width.
type Subvolume struct {
	Size   dvid.Point2d
	Gray   []byte
	Labels []uint64
}

// NewSubvolume allocates zeroed buffers for the given plane size.
func NewSubvolume(size dvid.Point2d) *Subvolume {
	n := int(size.Prod())
	return &Subvolume{
		Size:   size,
		Gray:   make([]byte, n),
		Labels: make([]uint64, n),
	}
}

// Label returns the label at plane position (x, y) or background if outside the plane.
func (s *Subvolume) Label(x, y int32) uint64 {
	if x < 0 || y < 0 || x >= s.Size[0] || y >= s.Size[1] {
		return labels.Background
	}
	return s.Labels[int(y)*int(s.Size[0])+int(x)]
}

// Check returns an error if buffer lengths disagree with the plane size.
func (s *Subvolume) Check() error {
	n := int(s.Size.Prod())
	if len(s.Gray) != n {
		return fmt.Errorf("grayscale buffer has %d voxels, expected %d", len(s.Gray), n)
	}
	if len(s.Labels) != n {
		return fmt.Errorf("label buffer has %d voxels, expected %d", len(s.Labels), n)
	}
	return nil
}

// Metadata describes the labeled volume: its inclusive bounding box in full
// resolution voxels and the coarsest available scale.
type Metadata struct {
	MinPoint dvid.Point3d
	MaxPoint dvid.Point3d
	MaxScale uint8
}

// Fetcher retrieves planes of data.
type Fetcher interface {
	FetchSubvolume(ctx context.Context, req Request) (*Subvolume, error)
}

// Persister durably applies merges.
type Persister interface {
	PersistMerge(ctx context.Context, op labels.MergeOp) error
}

// Store is everything a session needs from a remote label store.
type Store interface {
	Fetcher
	Persister
	Metadata(ctx context.Context) (*Metadata, error)
}
