/*
The replacer decides, among the currently unpinned frames, which one the
buffer pool instance reuses next.

The policy is LRU over unpin time: the frame that has stayed unpinned the
longest is the victim. The replacer holds an insertion-ordered sequence of
frame ids (most-recently-unpinned at the front) plus a side map for O(1)
membership and removal. Only unpinned frames may appear here; the pool
removes a frame (Pin) the moment it hands it out and re-inserts it (Unpin)
when the pin count drops back to zero.
*/
package buffer

import (
	"container/list"
	"sync"

	"github.com/mkihara/harudb/common"
)

// LRUReplacer tracks eviction candidates in least-recently-unpinned order
type LRUReplacer struct {
	mu sync.Mutex
	// front = most recently unpinned, back = victim
	order *list.List
	// frame id -> node in order
	elems map[common.FrameID]*list.Element
	// capacity bound: the total number of frames in the instance
	capacity int
}

// NewLRUReplacer initializes a replacer for an instance with numPages frames
func NewLRUReplacer(numPages int) *LRUReplacer {
	return &LRUReplacer{
		order:    list.New(),
		elems:    make(map[common.FrameID]*list.Element),
		capacity: numPages,
	}
}

// Victim removes and returns the frame unpinned longest.
// returns false when no frame is evictable.
func (r *LRUReplacer) Victim() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	back := r.order.Back()
	if back == nil {
		return common.InvalidFrameID, false
	}
	fid := back.Value.(common.FrameID)
	r.order.Remove(back)
	delete(r.elems, fid)
	return fid, true
}

// Pin removes the frame from the candidate set: it is now in use.
// no-op when the frame is not present.
func (r *LRUReplacer) Pin(fid common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	elem, ok := r.elems[fid]
	if !ok {
		return
	}
	r.order.Remove(elem)
	delete(r.elems, fid)
}

// Unpin makes the frame an eviction candidate, as the most recently
// unpinned one. Repeated unpins of the same frame are no-ops, as is an
// unpin when the replacer is already at capacity.
func (r *LRUReplacer) Unpin(fid common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.elems[fid]; ok {
		return
	}
	if r.order.Len() >= r.capacity {
		return
	}
	r.elems[fid] = r.order.PushFront(fid)
}

// Size returns the number of evictable frames
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
