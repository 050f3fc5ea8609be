/*
Buffer pool instance: a fixed array of frames, a page table mapping resident
page ids to frames, a free list, and an LRU replacer, all bound to the disk
manager.

Access rule for callers: every page obtained through FetchPage or NewPage is
pinned; the caller must UnpinPage it with an accurate dirty hint on every
path, including errors. A frame sits in the replacer exactly when its pin
count is zero.

One coarse mutex serializes all bookkeeping. Disk I/O for a victim's
write-back and for the requested page's read happens under that mutex; I/O
for unrelated pages on other instances proceeds in parallel, which is what
the sharded pool is for.

Page allocation is shard-local: an instance only ever emits page ids
satisfying id % numInstances == instanceIndex, so instances never contend
for the same new page id and routing by modulo stays stable.
*/
package buffer

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/disk"
	"github.com/mkihara/harudb/storage/page"
)

// ErrNoVictim is returned when every frame is pinned and nothing can be
// evicted
var ErrNoVictim = errors.New("all frames are pinned")

// Instance is one buffer pool shard
type Instance struct {
	mu sync.Mutex
	// the frame array; index is the frame id
	frames []*page.Page
	// resident page id -> frame id
	pageTable map[common.PageID]common.FrameID
	// frames that never held a page (or were freed by DeletePage)
	freeList []common.FrameID
	// eviction policy over unpinned frames
	replacer *LRUReplacer
	// disk manager
	dm *disk.Manager
	// shard-local new-page allocator state
	nextPageID    common.PageID
	numInstances  uint32
	instanceIndex uint32
}

// NewInstance initializes a buffer pool instance with poolSize frames.
// numInstances/instanceIndex configure the shard-local page allocator; a
// standalone pool passes 1 and 0.
func NewInstance(poolSize int, numInstances, instanceIndex uint32, dm *disk.Manager) *Instance {
	frames := make([]*page.Page, poolSize)
	freeList := make([]common.FrameID, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = page.NewPage()
		freeList = append(freeList, common.FrameID(i))
	}
	return &Instance{
		frames:        frames,
		pageTable:     make(map[common.PageID]common.FrameID),
		freeList:      freeList,
		replacer:      NewLRUReplacer(poolSize),
		dm:            dm,
		nextPageID:    common.PageID(instanceIndex),
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
	}
}

// allocatePageID emits the next shard-local page id:
// every id satisfies id % numInstances == instanceIndex
func (in *Instance) allocatePageID() common.PageID {
	pid := in.nextPageID
	in.nextPageID += common.PageID(in.numInstances)
	return pid
}

// getVictimFrame acquires a frame for reuse: the free list first, then the
// replacer. the returned frame has been removed from both.
func (in *Instance) getVictimFrame() (common.FrameID, error) {
	if len(in.freeList) > 0 {
		fid := in.freeList[0]
		in.freeList = in.freeList[1:]
		return fid, nil
	}
	fid, ok := in.replacer.Victim()
	if !ok {
		return common.InvalidFrameID, ErrNoVictim
	}
	return fid, nil
}

// evict writes the frame's current page back if dirty and drops its page
// table mapping. the frame's id and bytes are left for the caller to
// overwrite.
func (in *Instance) evict(fid common.FrameID) error {
	frame := in.frames[fid]
	if !frame.ID().IsValid() {
		return nil
	}
	if frame.IsDirty() {
		if err := in.dm.WritePage(frame.ID(), frame.Data()); err != nil {
			return errors.Wrap(err, "dm.WritePage failed")
		}
		frame.SetDirty(false)
	}
	delete(in.pageTable, frame.ID())
	return nil
}

// FetchPage returns the frame holding the page, pinned.
// on a hit the resident frame is pinned and returned; on a miss a victim
// frame is acquired (free list first, then replacer), written back when
// dirty, and the page is read from disk into it.
func (in *Instance) FetchPage(pid common.PageID) (*page.Page, error) {
	if !pid.IsValid() {
		return nil, errors.Errorf("invalid page id %d", pid)
	}
	in.mu.Lock()
	defer in.mu.Unlock()

	if fid, ok := in.pageTable[pid]; ok {
		frame := in.frames[fid]
		frame.IncPin()
		in.replacer.Pin(fid)
		return frame, nil
	}

	fid, err := in.getVictimFrame()
	if err != nil {
		return nil, err
	}
	frame := in.frames[fid]
	if err := in.evict(fid); err != nil {
		// put the frame back so it is not leaked
		in.freeList = append(in.freeList, fid)
		return nil, err
	}

	if err := in.dm.ReadPage(pid, frame.Data()); err != nil {
		in.freeList = append(in.freeList, fid)
		frame.SetID(common.InvalidPageID)
		return nil, errors.Wrap(err, "dm.ReadPage failed")
	}
	frame.SetID(pid)
	frame.SetDirty(false)
	frame.IncPin()
	in.pageTable[pid] = fid
	return frame, nil
}

// UnpinPage releases one pin on the page.
// the dirty hint is OR-ed into the frame's dirty bit: once dirty, only a
// flush or eviction clears it. returns false when the page is not resident
// or not pinned.
func (in *Instance) UnpinPage(pid common.PageID, isDirty bool) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	fid, ok := in.pageTable[pid]
	if !ok {
		return false
	}
	frame := in.frames[fid]
	if frame.PinCount() <= 0 {
		return false
	}
	frame.DecPin()
	if isDirty {
		frame.SetDirty(true)
	}
	if frame.PinCount() == 0 {
		in.replacer.Unpin(fid)
	}
	return true
}

// NewPage allocates a shard-local fresh page id, installs it in a victim
// frame and returns the frame pinned with zeroed content.
// fails only when every frame is pinned.
func (in *Instance) NewPage() (*page.Page, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	fid, err := in.getVictimFrame()
	if err != nil {
		return nil, err
	}
	frame := in.frames[fid]
	if err := in.evict(fid); err != nil {
		in.freeList = append(in.freeList, fid)
		return nil, err
	}

	pid := in.allocatePageID()
	frame.Reset()
	frame.SetID(pid)
	frame.IncPin()
	in.pageTable[pid] = fid
	return frame, nil
}

// DeletePage removes the page from the pool and deallocates it on disk.
// a non-resident page only needs the disk-side deallocation and succeeds
// trivially. a pinned page cannot be deleted.
func (in *Instance) DeletePage(pid common.PageID) (bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	fid, ok := in.pageTable[pid]
	if !ok {
		in.dm.DeallocatePage(pid)
		return true, nil
	}
	frame := in.frames[fid]
	if frame.PinCount() > 0 {
		return false, nil
	}
	// the content is about to be deallocated, no write-back needed; drop
	// the mapping and recycle the frame
	in.replacer.Pin(fid)
	delete(in.pageTable, pid)
	frame.Reset()
	in.freeList = append(in.freeList, fid)
	in.dm.DeallocatePage(pid)
	return true, nil
}

// FlushPage writes the page to disk and clears the dirty bit, regardless of
// the pin count. returns false when the page is not resident.
func (in *Instance) FlushPage(pid common.PageID) (bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	fid, ok := in.pageTable[pid]
	if !ok {
		return false, nil
	}
	frame := in.frames[fid]
	if err := in.dm.WritePage(pid, frame.Data()); err != nil {
		return false, errors.Wrap(err, "dm.WritePage failed")
	}
	frame.SetDirty(false)
	return true, nil
}

// FlushAllPages flushes every resident page
func (in *Instance) FlushAllPages() error {
	in.mu.Lock()
	pids := make([]common.PageID, 0, len(in.pageTable))
	for pid := range in.pageTable {
		pids = append(pids, pid)
	}
	in.mu.Unlock()
	for _, pid := range pids {
		if _, err := in.FlushPage(pid); err != nil {
			return err
		}
	}
	return nil
}

// PoolSize returns the number of frames
func (in *Instance) PoolSize() int {
	return len(in.frames)
}
