/*
The hash directory is a single on-disk page addressing every bucket of the
extendible hash table.

Wire layout (little-endian, fixed offsets within the 4096-byte page):

	offset 0    page id            int32
	offset 4    global depth       uint32
	offset 8    local depth array  512 x 1 byte
	offset 520  bucket page ids    512 x int32
	offset 2568 padding to PageSize

A lookup takes the low globalDepth bits of the key's hash as the directory
index. Several indexes may share one bucket page: exactly those agreeing in
the low localDepth bits of that bucket. Raising a bucket's local depth up to
the global depth splits that aliasing set in two; raising it past the global
depth first doubles the directory.
*/
package hash

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/page"
)

const (
	// MaxBucketDepth bounds both local and global depth
	MaxBucketDepth = 9
	// DirectoryArraySize is the fixed slot capacity: 1 << MaxBucketDepth
	DirectoryArraySize = 1 << MaxBucketDepth

	dirPageIDOffset     = 0
	dirGlobalDepthOff   = 4
	dirLocalDepthOff    = 8
	dirBucketPageIDsOff = dirLocalDepthOff + DirectoryArraySize
)

// Directory is a typed view over the directory page's bytes.
// the caller owns the page latch while the view is in use.
type Directory struct {
	pg *page.Page
}

// AsDirectory wraps the frame in a directory view
func AsDirectory(pg *page.Page) *Directory {
	return &Directory{pg: pg}
}

// Page returns the underlying frame
func (d *Directory) Page() *page.Page {
	return d.pg
}

// Init stamps a fresh directory: depth 0, all buckets invalid
func (d *Directory) Init(pid common.PageID) {
	d.SetPageID(pid)
	d.setGlobalDepth(0)
	for i := uint32(0); i < DirectoryArraySize; i++ {
		d.SetLocalDepth(i, 0)
		d.SetBucketPageID(i, common.InvalidPageID)
	}
}

// PageID returns the directory's own page id
func (d *Directory) PageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(d.pg.Data()[dirPageIDOffset:]))
}

// SetPageID stamps the directory's own page id
func (d *Directory) SetPageID(pid common.PageID) {
	binary.LittleEndian.PutUint32(d.pg.Data()[dirPageIDOffset:], uint32(pid))
}

// GlobalDepth returns the number of hash bits used for directory indexing
func (d *Directory) GlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.pg.Data()[dirGlobalDepthOff:])
}

func (d *Directory) setGlobalDepth(depth uint32) {
	binary.LittleEndian.PutUint32(d.pg.Data()[dirGlobalDepthOff:], depth)
}

// GlobalDepthMask masks a hash down to a directory index
func (d *Directory) GlobalDepthMask() uint32 {
	return (1 << d.GlobalDepth()) - 1
}

// Size returns the number of addressable directory slots
func (d *Directory) Size() uint32 {
	return 1 << d.GlobalDepth()
}

// IncrGlobalDepth doubles the directory. The new upper half inherits the
// existing mappings slot-for-slot, so every bucket's aliasing set simply
// gains its high-bit twins.
func (d *Directory) IncrGlobalDepth() {
	size := d.Size()
	for i := uint32(0); i < size; i++ {
		d.SetLocalDepth(size+i, d.LocalDepth(i))
		d.SetBucketPageID(size+i, d.BucketPageID(i))
	}
	d.setGlobalDepth(d.GlobalDepth() + 1)
}

// DecrGlobalDepth halves the directory
func (d *Directory) DecrGlobalDepth() {
	d.setGlobalDepth(d.GlobalDepth() - 1)
}

// CanShrink reports whether no bucket uses the full global depth
func (d *Directory) CanShrink() bool {
	depth := d.GlobalDepth()
	if depth == 0 {
		return false
	}
	for i := uint32(0); i < d.Size(); i++ {
		if d.LocalDepth(i) == depth {
			return false
		}
	}
	return true
}

// LocalDepth returns the number of hash bits pinning slot idx to its bucket
func (d *Directory) LocalDepth(idx uint32) uint32 {
	return uint32(d.pg.Data()[dirLocalDepthOff+idx])
}

// SetLocalDepth stamps slot idx's local depth
func (d *Directory) SetLocalDepth(idx uint32, depth uint32) {
	d.pg.Data()[dirLocalDepthOff+idx] = byte(depth)
}

// IncrLocalDepth raises slot idx's local depth by one
func (d *Directory) IncrLocalDepth(idx uint32) {
	d.SetLocalDepth(idx, d.LocalDepth(idx)+1)
}

// DecrLocalDepth lowers slot idx's local depth by one
func (d *Directory) DecrLocalDepth(idx uint32) {
	d.SetLocalDepth(idx, d.LocalDepth(idx)-1)
}

// LocalDepthMask masks a hash down to the low localDepth bits of slot idx
func (d *Directory) LocalDepthMask(idx uint32) uint32 {
	return (1 << d.LocalDepth(idx)) - 1
}

// BucketPageID returns the bucket page addressed by slot idx
func (d *Directory) BucketPageID(idx uint32) common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(d.pg.Data()[dirBucketPageIDsOff+4*idx:]))
}

// SetBucketPageID points slot idx at a bucket page
func (d *Directory) SetBucketPageID(idx uint32, pid common.PageID) {
	binary.LittleEndian.PutUint32(d.pg.Data()[dirBucketPageIDsOff+4*idx:], uint32(pid))
}

// SplitImageIndex returns the slot that differs from idx exactly in the
// bucket's highest significant bit. A bucket and its split image merge back
// together when both sit at the same local depth and one empties.
func (d *Directory) SplitImageIndex(idx uint32) uint32 {
	depth := d.LocalDepth(idx)
	if depth == 0 {
		return idx
	}
	return idx ^ (1 << (depth - 1))
}

// VerifyIntegrity checks the structural invariants:
// every slot's local depth is bounded by the global depth, and two slots
// share a bucket page exactly when they agree in that bucket's low
// localDepth bits.
func (d *Directory) VerifyIntegrity() error {
	depth := d.GlobalDepth()
	size := d.Size()
	for i := uint32(0); i < size; i++ {
		if d.LocalDepth(i) > depth {
			return errors.Errorf("slot %d: local depth %d exceeds global depth %d", i, d.LocalDepth(i), depth)
		}
	}
	for i := uint32(0); i < size; i++ {
		for j := i + 1; j < size; j++ {
			mask := d.LocalDepthMask(i)
			samePage := d.BucketPageID(i) == d.BucketPageID(j)
			sameBits := i&mask == j&mask
			if samePage && !sameBits {
				return errors.Errorf("slots %d and %d share page %d without agreeing in %d low bits",
					i, j, d.BucketPageID(i), d.LocalDepth(i))
			}
			if samePage && d.LocalDepth(i) != d.LocalDepth(j) {
				return errors.Errorf("slots %d and %d share page %d with depths %d != %d",
					i, j, d.BucketPageID(i), d.LocalDepth(i), d.LocalDepth(j))
			}
			if !samePage && sameBits && d.LocalDepth(i) == d.LocalDepth(j) {
				return errors.Errorf("slots %d and %d agree in %d low bits but point at pages %d and %d",
					i, j, d.LocalDepth(i), d.BucketPageID(i), d.BucketPageID(j))
			}
		}
	}
	return nil
}
