/*
Page is the unit of disk and buffer transfer.
The disk manager organizes the data file as a collection of fixed-size pages
addressed by common.PageID.

In memory a page lives inside a buffer frame. The frame carries, next to the
raw bytes, the metadata the buffer pool needs for replacement:
  - the resident page id
  - the pin count: the number of outstanding users. a pinned frame is never
    eligible for eviction and must not appear in the replacer.
  - the dirty bit: when set, the in-memory content is authoritative over the
    disk copy and must be written back before the frame is reused.

The frame also exposes a reader-writer latch protecting the page content.
The latch is a distinct lock from the buffer pool instance mutex: the
instance mutex serializes the page table and replacement bookkeeping, the
latch serializes readers/writers of the content and may be held long after
the instance mutex is released. Lock order is always table-level lock (for
index structure decisions), then page latch, never the reverse.
*/
package page

import (
	"sync"

	"github.com/mkihara/harudb/common"
)

// PageSize is the byte size of every page. Both on-disk index structures
// (directory page and bucket page) are laid out to fit this size.
const PageSize = 4096

// Page is a buffer frame: the in-memory home of one disk page.
// All metadata mutators are called by the buffer pool with the instance
// mutex held; other packages only read content under the latch.
type Page struct {
	// content latch, independent of the pool instance mutex
	latch sync.RWMutex
	// id of the resident page; InvalidPageID when the frame is free
	id common.PageID
	// number of outstanding users of this frame
	pinCount int32
	// when true, the frame content is newer than the disk copy
	dirty bool
	// the page bytes
	data [PageSize]byte
}

// NewPage initializes a free frame
func NewPage() *Page {
	return &Page{id: common.InvalidPageID}
}

// ID returns the resident page id
func (p *Page) ID() common.PageID {
	return p.id
}

// SetID installs the resident page id. Only the buffer pool calls this.
func (p *Page) SetID(pid common.PageID) {
	p.id = pid
}

// PinCount returns the number of outstanding users of the frame
func (p *Page) PinCount() int32 {
	return p.pinCount
}

// IncPin pins the frame
func (p *Page) IncPin() {
	p.pinCount++
}

// DecPin unpins the frame. The pool guarantees pinCount never drops below 0.
func (p *Page) DecPin() {
	p.pinCount--
}

// IsDirty reports whether the content must be written back before reuse
func (p *Page) IsDirty() bool {
	return p.dirty
}

// SetDirty sets or clears the dirty bit.
// Within one residency the bit is monotone: the pool only clears it on
// flush or eviction.
func (p *Page) SetDirty(dirty bool) {
	p.dirty = dirty
}

// Data returns the page bytes. The caller must hold the latch while
// reading or writing through the returned pointer.
func (p *Page) Data() *[PageSize]byte {
	return &p.data
}

// Reset zero-fills the content and clears the metadata.
// Called by the pool when a frame is handed out for a brand-new page.
func (p *Page) Reset() {
	p.data = [PageSize]byte{}
	p.dirty = false
	p.pinCount = 0
	p.id = common.InvalidPageID
}

// WLatch acquires the content latch exclusively
func (p *Page) WLatch() { p.latch.Lock() }

// WUnlatch releases the exclusive content latch
func (p *Page) WUnlatch() { p.latch.Unlock() }

// RLatch acquires the content latch shared
func (p *Page) RLatch() { p.latch.RLock() }

// RUnlatch releases the shared content latch
func (p *Page) RUnlatch() { p.latch.RUnlock() }
