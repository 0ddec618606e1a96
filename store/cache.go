package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"
	"github.com/golang/snappy"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
)

// Cache wraps a Store, keeping recently fetched planes in a byte-bounded
// cache of snappy-compressed entries.  Any persisted merge clears the cache
// since cached label data may no longer reflect the store.
//
// The underlying cache refuses entries larger than about 1/1024 of its size,
// so each plane is stored as bands of rows that fit under that limit.  A
// plane is served from cache only if all of its bands are present.
type Cache struct {
	Store
	cache    *freecache.Cache
	maxEntry int // largest key plus value the cache accepts

	attempts uint64
	hits     uint64
}

const (
	minCacheBytes = 512 * 1024 // freecache enforces this minimum
	entryOverhead = 24         // freecache entry header
	bandKeyBytes  = 23         // request key plus band index
)

// NewCache returns a caching Store using about numBytes of memory.
func NewCache(s Store, numBytes int) *Cache {
	if numBytes < minCacheBytes {
		numBytes = minCacheBytes
	}
	c := &Cache{
		Store:    s,
		cache:    freecache.NewCache(numBytes),
		maxEntry: numBytes/1024 - entryOverhead,
	}
	dvid.Infof("Created subvolume cache of ~ %s with entries up to %s\n",
		humanize.IBytes(uint64(numBytes)), humanize.IBytes(uint64(c.maxEntry)))
	return c
}

// bandRows returns the number of rows of a plane of the given width stored
// per cache entry, or 0 if even one row can't fit.
func (c *Cache) bandRows(width int32) int32 {
	// snappy output can exceed its input by 32 + n/6 bytes
	maxRaw := (c.maxEntry - bandKeyBytes - 32) * 6 / 7
	return int32(maxRaw / (9 * int(width)))
}

func bandKey(req Request, band int) []byte {
	k := req.Key()
	return append(k, byte(band>>8), byte(band))
}

// FetchSubvolume returns a cached plane if available, else fetches and caches it.
func (c *Cache) FetchSubvolume(ctx context.Context, req Request) (*Subvolume, error) {
	atomic.AddUint64(&c.attempts, 1)
	rows := c.bandRows(req.Size[0])
	if rows > 0 {
		subvol, err := c.get(req, rows)
		if err != nil {
			return nil, err
		}
		if subvol != nil {
			atomic.AddUint64(&c.hits, 1)
			return subvol, nil
		}
	}
	subvol, err := c.Store.FetchSubvolume(ctx, req)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		dvid.Warningf("can't cache %s: a single row exceeds the %s cache entry limit\n",
			req, humanize.IBytes(uint64(c.maxEntry)))
		return subvol, nil
	}
	c.set(req, subvol, rows)
	return subvol, nil
}

// get assembles a plane from its bands, returning nil if any band is missing.
func (c *Cache) get(req Request, rows int32) (*Subvolume, error) {
	width, height := req.Size[0], req.Size[1]
	subvol := NewSubvolume(req.Size)
	for band, y0 := 0, int32(0); y0 < height; band, y0 = band+1, y0+rows {
		k := bandKey(req, band)
		data, err := c.cache.Get(k)
		if err == freecache.ErrNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		y1 := y0 + rows
		if y1 > height {
			y1 = height
		}
		if err := decodeBand(data, subvol, y0*width, y1*width); err != nil {
			dvid.Errorf("dropping corrupt cache entry for band %d of %s: %v\n", band, req, err)
			c.cache.Del(k)
			return nil, nil
		}
	}
	return subvol, nil
}

func (c *Cache) set(req Request, subvol *Subvolume, rows int32) {
	width, height := req.Size[0], req.Size[1]
	var stored int
	for band, y0 := 0, int32(0); y0 < height; band, y0 = band+1, y0+rows {
		y1 := y0 + rows
		if y1 > height {
			y1 = height
		}
		encoded := encodeBand(subvol, y0*width, y1*width)
		if err := c.cache.Set(bandKey(req, band), encoded, 0); err != nil {
			dvid.Warningf("unable to cache band %d of %s (%s): %v\n",
				band, req, humanize.Bytes(uint64(len(encoded))), err)
			return
		}
		stored += len(encoded)
	}
	dvid.Debugf("cached %s in %s\n", req, humanize.Bytes(uint64(stored)))
}

// PersistMerge passes the merge to the wrapped store and invalidates all cached planes.
func (c *Cache) PersistMerge(ctx context.Context, op labels.MergeOp) error {
	if err := c.Store.PersistMerge(ctx, op); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// Invalidate drops all cached planes.
func (c *Cache) Invalidate() {
	c.cache.Clear()
}

// Stats returns the number of fetch attempts and how many were served from cache.
func (c *Cache) Stats() (attempts, hits uint64) {
	return atomic.LoadUint64(&c.attempts), atomic.LoadUint64(&c.hits)
}

// serialization of voxels [begin, end): gray bytes, then little-endian
// uint64 labels, all snappy compressed.
func encodeBand(s *Subvolume, begin, end int32) []byte {
	n := int(end - begin)
	buf := make([]byte, 9*n)
	copy(buf[:n], s.Gray[begin:end])
	pos := n
	for _, label := range s.Labels[begin:end] {
		binary.LittleEndian.PutUint64(buf[pos:pos+8], label)
		pos += 8
	}
	return snappy.Encode(nil, buf)
}

func decodeBand(data []byte, s *Subvolume, begin, end int32) error {
	buf, err := snappy.Decode(nil, data)
	if err != nil {
		return err
	}
	n := int(end - begin)
	if len(buf) != 9*n {
		return fmt.Errorf("cached band has %d bytes, expected %d", len(buf), 9*n)
	}
	copy(s.Gray[begin:end], buf[:n])
	pos := n
	for i := begin; i < end; i++ {
		s.Labels[i] = binary.LittleEndian.Uint64(buf[pos : pos+8])
		pos += 8
	}
	return nil
}
