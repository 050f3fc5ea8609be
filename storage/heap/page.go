/*
Heap pages hold tuples in a slotted layout.

Wire layout (little-endian):

	offset 0  next page id      int32 (InvalidPageID ends the chain)
	offset 4  slot count        uint16
	offset 6  free space start  uint16 (tuple data grows down from here)
	offset 8  slot array        slotCount x 6 bytes

Each slot is {tuple offset uint16, tuple size uint16, flags uint16}; the
only flag is the deleted bit. Tuple bytes are written from the end of the
page towards the slot array; a page is full when the gap between the two
cannot fit another slot plus the tuple.

Deleting marks the slot and leaves the bytes in place; the space of
deleted tuples is not compacted or reused.
*/
package heap

import (
	"encoding/binary"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/page"
)

const (
	headerNextPageOff  = 0
	headerSlotCountOff = 4
	headerFreeStartOff = 6
	headerSize         = 8
	slotSize           = 6

	slotFlagDeleted uint16 = 1
)

// MaxTupleSize is the largest payload one page can hold
const MaxTupleSize = page.PageSize - headerSize - slotSize

// heapPage is a typed view over a heap page's bytes.
// the caller owns the page latch while the view is in use.
type heapPage struct {
	pg *page.Page
}

func asHeapPage(pg *page.Page) *heapPage {
	return &heapPage{pg: pg}
}

// init stamps an empty page with no successor
func (h *heapPage) init() {
	h.setNextPageID(common.InvalidPageID)
	h.setSlotCount(0)
	h.setFreeStart(page.PageSize)
}

func (h *heapPage) nextPageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(h.pg.Data()[headerNextPageOff:]))
}

func (h *heapPage) setNextPageID(pid common.PageID) {
	binary.LittleEndian.PutUint32(h.pg.Data()[headerNextPageOff:], uint32(pid))
}

func (h *heapPage) slotCount() uint16 {
	return binary.LittleEndian.Uint16(h.pg.Data()[headerSlotCountOff:])
}

func (h *heapPage) setSlotCount(n uint16) {
	binary.LittleEndian.PutUint16(h.pg.Data()[headerSlotCountOff:], n)
}

func (h *heapPage) freeStart() uint16 {
	return binary.LittleEndian.Uint16(h.pg.Data()[headerFreeStartOff:])
}

func (h *heapPage) setFreeStart(off uint16) {
	binary.LittleEndian.PutUint16(h.pg.Data()[headerFreeStartOff:], off)
}

func (h *heapPage) slot(i uint16) (off, size, flags uint16) {
	base := headerSize + int(i)*slotSize
	data := h.pg.Data()
	return binary.LittleEndian.Uint16(data[base:]),
		binary.LittleEndian.Uint16(data[base+2:]),
		binary.LittleEndian.Uint16(data[base+4:])
}

func (h *heapPage) setSlot(i uint16, off, size, flags uint16) {
	base := headerSize + int(i)*slotSize
	data := h.pg.Data()
	binary.LittleEndian.PutUint16(data[base:], off)
	binary.LittleEndian.PutUint16(data[base+2:], size)
	binary.LittleEndian.PutUint16(data[base+4:], flags)
}

// freeSpace is the gap between the slot array and the tuple data
func (h *heapPage) freeSpace() int {
	return int(h.freeStart()) - headerSize - int(h.slotCount())*slotSize
}

// insert places the payload in a fresh slot; false when it does not fit
func (h *heapPage) insert(data []byte) (uint32, bool) {
	if h.freeSpace() < len(data)+slotSize {
		return 0, false
	}
	newStart := h.freeStart() - uint16(len(data))
	copy(h.pg.Data()[newStart:], data)
	slot := h.slotCount()
	h.setSlot(slot, newStart, uint16(len(data)), 0)
	h.setFreeStart(newStart)
	h.setSlotCount(slot + 1)
	return uint32(slot), true
}

// get reads the payload of a live slot; false when the slot is out of
// range or deleted
func (h *heapPage) get(slot uint32) ([]byte, bool) {
	if slot >= uint32(h.slotCount()) {
		return nil, false
	}
	off, size, flags := h.slot(uint16(slot))
	if flags&slotFlagDeleted != 0 {
		return nil, false
	}
	return h.pg.Data()[off : off+size], true
}

// update rewrites a live slot in place; false when the new payload is
// longer than the slot's current payload. the slot's recorded size becomes
// the new payload's length, so a shorter update narrows later updates.
func (h *heapPage) update(slot uint32, data []byte) bool {
	if slot >= uint32(h.slotCount()) {
		return false
	}
	off, size, flags := h.slot(uint16(slot))
	if flags&slotFlagDeleted != 0 {
		return false
	}
	if len(data) > int(size) {
		return false
	}
	copy(h.pg.Data()[off:], data)
	h.setSlot(uint16(slot), off, uint16(len(data)), flags)
	return true
}

// markDelete flags a live slot as deleted; false when already deleted or
// out of range
func (h *heapPage) markDelete(slot uint32) bool {
	if slot >= uint32(h.slotCount()) {
		return false
	}
	off, size, flags := h.slot(uint16(slot))
	if flags&slotFlagDeleted != 0 {
		return false
	}
	h.setSlot(uint16(slot), off, size, flags|slotFlagDeleted)
	return true
}
