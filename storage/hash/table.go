/*
Extendible hash table: a disk-resident index mapping int64 keys to record
ids, built from one directory page and a growing/shrinking set of bucket
pages, all manipulated through the buffer pool.

Concurrency discipline:
  - a reader-writer lock on the whole table gates structural changes. the
    fast paths (GetValue, non-splitting Insert) hold it shared; SplitInsert,
    Remove and Merge hold it exclusive.
  - per-page latches gate payload access: shared for scans, exclusive for
    slot mutation. the table lock is always taken before any page latch.
  - every page fetched is unpinned before return, on every path, with a
    dirty flag reflecting whether it was actually written.

The hash function is injectable; the production default truncates xxhash's
64-bit sum to 32 bits. Keys land in the directory via the low globalDepth
bits of the 32-bit hash.
*/
package hash

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/page"
)

// ErrDepthExhausted is returned when a bucket at MaxBucketDepth overflows:
// the directory cannot double any further and the key cannot be placed.
var ErrDepthExhausted = errors.New("bucket local depth exhausted")

// BufferPool is the slice of the buffer pool the index needs.
// both a single instance and the sharded pool satisfy it.
type BufferPool interface {
	FetchPage(pid common.PageID) (*page.Page, error)
	UnpinPage(pid common.PageID, isDirty bool) bool
	NewPage() (*page.Page, error)
	DeletePage(pid common.PageID) (bool, error)
}

// HashFunc maps a key to the 32-bit hash the directory is addressed with
type HashFunc func(key int64) uint32

// DefaultHash truncates the 64-bit xxhash sum of the key's fixed encoding
func DefaultHash(key int64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return uint32(xxhash.Sum64(buf[:]))
}

// Table is the extendible hash table
type Table struct {
	// table lock: shared for payload paths, exclusive for structure
	mu sync.RWMutex
	// serializes lazy creation of the directory
	initMu sync.Mutex

	pool      BufferPool
	dirPageID common.PageID
	hash      HashFunc
}

// NewTable initializes an index over the pool. hash may be nil to use
// DefaultHash; tests inject a transparent function to steer placement.
func NewTable(pool BufferPool, hash HashFunc) *Table {
	if hash == nil {
		hash = DefaultHash
	}
	return &Table{
		pool:      pool,
		dirPageID: common.InvalidPageID,
		hash:      hash,
	}
}

// dirIndex masks the key's hash down to a directory slot
func (t *Table) dirIndex(d *Directory, key int64) uint32 {
	return t.hash(key) & d.GlobalDepthMask()
}

// fetchDirectory returns the directory page, pinned, creating the
// directory and its first bucket on first use
func (t *Table) fetchDirectory() (*page.Page, error) {
	t.initMu.Lock()
	if !t.dirPageID.IsValid() {
		dirPg, err := t.pool.NewPage()
		if err != nil {
			t.initMu.Unlock()
			return nil, errors.Wrap(err, "NewPage for directory failed")
		}
		dir := AsDirectory(dirPg)
		dir.Init(dirPg.ID())

		bucketPg, err := t.pool.NewPage()
		if err != nil {
			t.pool.UnpinPage(dirPg.ID(), true)
			t.initMu.Unlock()
			return nil, errors.Wrap(err, "NewPage for first bucket failed")
		}
		dir.SetBucketPageID(0, bucketPg.ID())

		t.dirPageID = dirPg.ID()
		t.pool.UnpinPage(bucketPg.ID(), true)
		t.pool.UnpinPage(dirPg.ID(), true)
	}
	t.initMu.Unlock()

	return t.pool.FetchPage(t.dirPageID)
}

// GetValue returns every value inserted with the key and not yet removed
func (t *Table) GetValue(key int64) ([]common.RID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dirPg, err := t.fetchDirectory()
	if err != nil {
		return nil, err
	}
	dir := AsDirectory(dirPg)
	bucketPID := dir.BucketPageID(t.dirIndex(dir, key))

	bucketPg, err := t.pool.FetchPage(bucketPID)
	if err != nil {
		t.pool.UnpinPage(dirPg.ID(), false)
		return nil, err
	}
	bucketPg.RLatch()
	values := AsBucket(bucketPg).GetValue(key)
	bucketPg.RUnlatch()

	t.pool.UnpinPage(bucketPID, false)
	t.pool.UnpinPage(dirPg.ID(), false)
	return values, nil
}

// Insert stores the pair.
// an exact (key, value) duplicate returns false. a full bucket takes the
// structural slow path; ErrDepthExhausted reports an unsplittable bucket.
func (t *Table) Insert(key int64, value common.RID) (bool, error) {
	t.mu.RLock()

	dirPg, err := t.fetchDirectory()
	if err != nil {
		t.mu.RUnlock()
		return false, err
	}
	dir := AsDirectory(dirPg)
	bucketPID := dir.BucketPageID(t.dirIndex(dir, key))

	bucketPg, err := t.pool.FetchPage(bucketPID)
	if err != nil {
		t.pool.UnpinPage(dirPg.ID(), false)
		t.mu.RUnlock()
		return false, err
	}

	bucketPg.WLatch()
	bucket := AsBucket(bucketPg)
	if !bucket.IsFull() {
		inserted := bucket.Insert(key, value)
		bucketPg.WUnlatch()
		t.pool.UnpinPage(bucketPID, inserted)
		t.pool.UnpinPage(dirPg.ID(), false)
		t.mu.RUnlock()
		return inserted, nil
	}

	// full bucket: release everything and restructure
	bucketPg.WUnlatch()
	t.pool.UnpinPage(bucketPID, false)
	t.pool.UnpinPage(dirPg.ID(), false)
	t.mu.RUnlock()
	return t.splitInsert(key, value)
}

// splitInsert splits the key's bucket (doubling the directory when the
// bucket already uses every global bit), redistributes the entries under
// the deepened mask, and retries the insert.
func (t *Table) splitInsert(key int64, value common.RID) (bool, error) {
	t.mu.Lock()

	dirPg, err := t.fetchDirectory()
	if err != nil {
		t.mu.Unlock()
		return false, err
	}
	dir := AsDirectory(dirPg)

	splitIdx := t.dirIndex(dir, key)
	depth := dir.LocalDepth(splitIdx)

	if depth >= MaxBucketDepth {
		t.pool.UnpinPage(dirPg.ID(), false)
		t.mu.Unlock()
		return false, ErrDepthExhausted
	}

	if depth == dir.GlobalDepth() {
		dir.IncrGlobalDepth()
	}
	dir.IncrLocalDepth(splitIdx)
	newDepth := dir.LocalDepth(splitIdx)

	splitPID := dir.BucketPageID(splitIdx)
	splitPg, err := t.pool.FetchPage(splitPID)
	if err != nil {
		t.pool.UnpinPage(dirPg.ID(), true)
		t.mu.Unlock()
		return false, err
	}
	splitPg.WLatch()
	splitBucket := AsBucket(splitPg)
	entries := splitBucket.Entries()
	splitBucket.Reset()

	newPg, err := t.pool.NewPage()
	if err != nil {
		splitPg.WUnlatch()
		t.pool.UnpinPage(splitPID, true)
		t.pool.UnpinPage(dirPg.ID(), true)
		t.mu.Unlock()
		return false, err
	}
	newPg.WLatch()
	newBucket := AsBucket(newPg)
	newPID := newPg.ID()

	imageIdx := dir.SplitImageIndex(splitIdx)
	dir.SetLocalDepth(imageIdx, newDepth)
	dir.SetBucketPageID(imageIdx, newPID)

	// redistribute under the deepened mask: entries whose low newDepth
	// hash bits still match the old slot stay, the rest move to the image
	mask := uint32(1<<newDepth) - 1
	for _, e := range entries {
		if t.hash(e.Key)&mask == splitIdx&mask {
			splitBucket.Insert(e.Key, e.Value)
		} else {
			newBucket.Insert(e.Key, e.Value)
		}
	}

	// every directory slot aliasing either bucket (stride 1<<newDepth)
	// learns the new page id and depth
	stride := uint32(1) << newDepth
	for i := splitIdx & mask; i < dir.Size(); i += stride {
		dir.SetLocalDepth(i, newDepth)
		dir.SetBucketPageID(i, splitPID)
	}
	for i := imageIdx & mask; i < dir.Size(); i += stride {
		dir.SetLocalDepth(i, newDepth)
		dir.SetBucketPageID(i, newPID)
	}

	newPg.WUnlatch()
	splitPg.WUnlatch()
	t.pool.UnpinPage(newPID, true)
	t.pool.UnpinPage(splitPID, true)
	t.pool.UnpinPage(dirPg.ID(), true)
	t.mu.Unlock()

	// the rehash may not have relieved pressure for this key; the retry
	// splits again until it fits or the depth is exhausted
	return t.Insert(key, value)
}

// Remove deletes the pair. an emptied bucket is merged with its split
// image when eligible.
func (t *Table) Remove(key int64, value common.RID) (bool, error) {
	t.mu.Lock()

	dirPg, err := t.fetchDirectory()
	if err != nil {
		t.mu.Unlock()
		return false, err
	}
	dir := AsDirectory(dirPg)
	bucketIdx := t.dirIndex(dir, key)
	bucketPID := dir.BucketPageID(bucketIdx)

	bucketPg, err := t.pool.FetchPage(bucketPID)
	if err != nil {
		t.pool.UnpinPage(dirPg.ID(), false)
		t.mu.Unlock()
		return false, err
	}
	bucketPg.WLatch()
	bucket := AsBucket(bucketPg)
	removed := bucket.Remove(key, value)
	empty := bucket.IsEmpty()
	bucketPg.WUnlatch()

	t.pool.UnpinPage(bucketPID, removed)
	t.pool.UnpinPage(dirPg.ID(), false)
	t.mu.Unlock()

	if removed && empty {
		if err := t.merge(bucketIdx); err != nil {
			return false, err
		}
	}
	return removed, nil
}

// merge folds the (still) empty bucket at bucketIdx into its split image
// and shrinks the directory while no bucket uses the full global depth.
// preconditions are re-validated under the exclusive table lock because
// the bucket was observed empty outside of it. folding repeats while the
// surviving bucket is itself empty and eligible, so a drained table
// collapses all the way back to one bucket.
func (t *Table) merge(bucketIdx uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	dirPg, err := t.fetchDirectory()
	if err != nil {
		return err
	}
	dir := AsDirectory(dirPg)
	dirty := false

	for {
		// the directory may have shrunk since the index was computed
		if bucketIdx >= dir.Size() {
			break
		}
		depth := dir.LocalDepth(bucketIdx)
		if depth == 0 {
			break
		}
		imageIdx := dir.SplitImageIndex(bucketIdx)
		if dir.LocalDepth(imageIdx) != depth {
			break
		}

		bucketPID := dir.BucketPageID(bucketIdx)
		bucketPg, err := t.pool.FetchPage(bucketPID)
		if err != nil {
			t.pool.UnpinPage(dirPg.ID(), dirty)
			return err
		}
		bucketPg.RLatch()
		empty := AsBucket(bucketPg).IsEmpty()
		bucketPg.RUnlatch()
		t.pool.UnpinPage(bucketPID, false)

		if !empty {
			break
		}

		if _, err := t.pool.DeletePage(bucketPID); err != nil {
			t.pool.UnpinPage(dirPg.ID(), dirty)
			return err
		}

		imagePID := dir.BucketPageID(imageIdx)
		dir.SetBucketPageID(bucketIdx, imagePID)
		dir.DecrLocalDepth(bucketIdx)
		dir.DecrLocalDepth(imageIdx)

		// rebind every alias of the dead bucket to the surviving image
		for i := uint32(0); i < dir.Size(); i++ {
			pid := dir.BucketPageID(i)
			if pid == bucketPID || pid == imagePID {
				dir.SetBucketPageID(i, imagePID)
				dir.SetLocalDepth(i, dir.LocalDepth(imageIdx))
			}
		}

		for dir.CanShrink() {
			dir.DecrGlobalDepth()
		}
		dirty = true

		// the survivor may be empty too; retry the fold at its depth
		bucketIdx &= dir.GlobalDepthMask()
	}

	t.pool.UnpinPage(dirPg.ID(), dirty)
	return nil
}

// GlobalDepth returns the directory's current global depth
func (t *Table) GlobalDepth() (uint32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dirPg, err := t.fetchDirectory()
	if err != nil {
		return 0, err
	}
	depth := AsDirectory(dirPg).GlobalDepth()
	t.pool.UnpinPage(dirPg.ID(), false)
	return depth, nil
}

// VerifyIntegrity checks the directory's structural invariants
func (t *Table) VerifyIntegrity() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dirPg, err := t.fetchDirectory()
	if err != nil {
		return err
	}
	verifyErr := AsDirectory(dirPg).VerifyIntegrity()
	t.pool.UnpinPage(dirPg.ID(), false)
	return verifyErr
}
