/*
A bucket page stores up to BucketCapacity (key, value) pairs plus two
bitmaps:

	occupied: the slot has held a pair at some point in this page's life
	readable: the slot currently holds a live pair

readable implies occupied. occupied is never cleared once set (the index
never reads it; only IsOccupied exposes it); removal clears readable alone.

Wire layout (little-endian):

	offset 0   occupied bitmap   32 bytes
	offset 32  readable bitmap   32 bytes
	offset 64  entries           252 x 16 bytes (key int64, page id int32, slot uint32)

64 + 252*16 = 4096, filling the page exactly.
*/
package hash

import (
	"encoding/binary"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/page"
)

const (
	// BucketCapacity is the fixed number of slots per bucket page
	BucketCapacity = 252

	bucketBitmapBytes  = (BucketCapacity + 7) / 8
	bucketOccupiedOff  = 0
	bucketReadableOff  = bucketBitmapBytes
	bucketEntriesOff   = 2 * bucketBitmapBytes
	bucketEntrySize    = 16
	bucketKeyOff       = 0
	bucketValuePageOff = 8
	bucketValueSlotOff = 12
)

// Entry is one live (key, value) pair of a bucket
type Entry struct {
	Key   int64
	Value common.RID
}

// Bucket is a typed view over a bucket page's bytes.
// the caller owns the page latch while the view is in use.
type Bucket struct {
	pg *page.Page
}

// AsBucket wraps the frame in a bucket view
func AsBucket(pg *page.Page) *Bucket {
	return &Bucket{pg: pg}
}

// Page returns the underlying frame
func (b *Bucket) Page() *page.Page {
	return b.pg
}

// IsOccupied reports whether slot i has ever held a pair
func (b *Bucket) IsOccupied(i uint32) bool {
	return b.pg.Data()[bucketOccupiedOff+i/8]&(1<<(i%8)) != 0
}

func (b *Bucket) setOccupied(i uint32) {
	b.pg.Data()[bucketOccupiedOff+i/8] |= 1 << (i % 8)
}

// IsReadable reports whether slot i currently holds a live pair
func (b *Bucket) IsReadable(i uint32) bool {
	return b.pg.Data()[bucketReadableOff+i/8]&(1<<(i%8)) != 0
}

func (b *Bucket) setReadable(i uint32) {
	b.pg.Data()[bucketReadableOff+i/8] |= 1 << (i % 8)
}

func (b *Bucket) clearReadable(i uint32) {
	b.pg.Data()[bucketReadableOff+i/8] &^= 1 << (i % 8)
}

// KeyAt returns the key stored in slot i
func (b *Bucket) KeyAt(i uint32) int64 {
	off := bucketEntriesOff + int(i)*bucketEntrySize
	return int64(binary.LittleEndian.Uint64(b.pg.Data()[off+bucketKeyOff:]))
}

// ValueAt returns the value stored in slot i
func (b *Bucket) ValueAt(i uint32) common.RID {
	off := bucketEntriesOff + int(i)*bucketEntrySize
	return common.RID{
		PageID: common.PageID(binary.LittleEndian.Uint32(b.pg.Data()[off+bucketValuePageOff:])),
		Slot:   binary.LittleEndian.Uint32(b.pg.Data()[off+bucketValueSlotOff:]),
	}
}

func (b *Bucket) putEntry(i uint32, key int64, value common.RID) {
	off := bucketEntriesOff + int(i)*bucketEntrySize
	binary.LittleEndian.PutUint64(b.pg.Data()[off+bucketKeyOff:], uint64(key))
	binary.LittleEndian.PutUint32(b.pg.Data()[off+bucketValuePageOff:], uint32(value.PageID))
	binary.LittleEndian.PutUint32(b.pg.Data()[off+bucketValueSlotOff:], value.Slot)
}

// GetValue collects the values of every live pair matching key
func (b *Bucket) GetValue(key int64) []common.RID {
	var result []common.RID
	for i := uint32(0); i < BucketCapacity; i++ {
		if b.IsReadable(i) && b.KeyAt(i) == key {
			result = append(result, b.ValueAt(i))
		}
	}
	return result
}

// Insert stores the pair in the first free slot.
// an exact (key, value) duplicate is rejected, as is a full bucket.
func (b *Bucket) Insert(key int64, value common.RID) bool {
	free := int64(-1)
	for i := uint32(0); i < BucketCapacity; i++ {
		if b.IsReadable(i) {
			if b.KeyAt(i) == key && b.ValueAt(i) == value {
				return false
			}
		} else if free == -1 {
			free = int64(i)
		}
	}
	if free == -1 {
		return false
	}
	i := uint32(free)
	b.putEntry(i, key, value)
	b.setOccupied(i)
	b.setReadable(i)
	return true
}

// Remove clears the readable bit of the matching pair
func (b *Bucket) Remove(key int64, value common.RID) bool {
	for i := uint32(0); i < BucketCapacity; i++ {
		if b.IsReadable(i) && b.KeyAt(i) == key && b.ValueAt(i) == value {
			b.clearReadable(i)
			return true
		}
	}
	return false
}

// IsFull reports whether every slot holds a live pair
func (b *Bucket) IsFull() bool {
	return b.NumReadable() == BucketCapacity
}

// IsEmpty reports whether no slot holds a live pair
func (b *Bucket) IsEmpty() bool {
	return b.NumReadable() == 0
}

// NumReadable counts the live pairs
func (b *Bucket) NumReadable() uint32 {
	count := uint32(0)
	for i := 0; i < bucketBitmapBytes; i++ {
		c := b.pg.Data()[bucketReadableOff+i]
		for c != 0 {
			count += uint32(c & 1)
			c >>= 1
		}
	}
	return count
}

// Entries snapshots every live pair, in slot order
func (b *Bucket) Entries() []Entry {
	entries := make([]Entry, 0, b.NumReadable())
	for i := uint32(0); i < BucketCapacity; i++ {
		if b.IsReadable(i) {
			entries = append(entries, Entry{Key: b.KeyAt(i), Value: b.ValueAt(i)})
		}
	}
	return entries
}

// Reset wipes every slot and both bitmaps
func (b *Bucket) Reset() {
	data := b.pg.Data()
	for i := 0; i < bucketEntriesOff+BucketCapacity*bucketEntrySize; i++ {
		data[i] = 0
	}
}
