/*
TableHeap is the tuple store of one table: a chain of slotted pages linked
by next-page ids, reached through the buffer pool.

The access pattern for every mutation is the one the buffer pool demands:
pin the page, take its latch, mutate the bytes, release the latch, unpin
with the dirty flag. Inserts walk the chain and extend it with a fresh
page when no page fits the tuple.
*/
package heap

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/page"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/tuple"
)

// ErrTupleTooLarge is returned when a tuple cannot fit any page
var ErrTupleTooLarge = errors.New("tuple exceeds page capacity")

// BufferPool is the slice of the buffer pool the heap needs
type BufferPool interface {
	FetchPage(pid common.PageID) (*page.Page, error)
	UnpinPage(pid common.PageID, isDirty bool) bool
	NewPage() (*page.Page, error)
}

// TableHeap stores one table's tuples
type TableHeap struct {
	pool BufferPool
	// guards chain extension so two inserts do not both append a page
	extendMu sync.Mutex

	firstPageID common.PageID
	schema      *tuple.Schema
}

// NewTableHeap creates an empty heap with one page
func NewTableHeap(pool BufferPool, schema *tuple.Schema) (*TableHeap, error) {
	pg, err := pool.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "NewPage for heap failed")
	}
	pg.WLatch()
	asHeapPage(pg).init()
	pg.WUnlatch()
	pool.UnpinPage(pg.ID(), true)

	return &TableHeap{
		pool:        pool,
		firstPageID: pg.ID(),
		schema:      schema,
	}, nil
}

// Schema returns the heap's tuple schema
func (th *TableHeap) Schema() *tuple.Schema {
	return th.schema
}

// FirstPageID returns the head of the page chain
func (th *TableHeap) FirstPageID() common.PageID {
	return th.firstPageID
}

// InsertTuple appends the tuple to the first page with room, extending the
// chain when every page is full, and records the landing rid on the tuple.
func (th *TableHeap) InsertTuple(t *tuple.Tuple, tx *transaction.Tx) (common.RID, error) {
	data, err := t.Serialize(th.schema)
	if err != nil {
		return common.RID{}, errors.Wrap(err, "tuple.Serialize failed")
	}
	if len(data) > MaxTupleSize {
		return common.RID{}, ErrTupleTooLarge
	}

	pid := th.firstPageID
	for {
		pg, err := th.pool.FetchPage(pid)
		if err != nil {
			return common.RID{}, err
		}
		pg.WLatch()
		hp := asHeapPage(pg)

		if slot, ok := hp.insert(data); ok {
			pg.WUnlatch()
			th.pool.UnpinPage(pid, true)
			rid := common.NewRID(pid, slot)
			t.SetRID(rid)
			return rid, nil
		}

		next := hp.nextPageID()
		if next.IsValid() {
			pg.WUnlatch()
			th.pool.UnpinPage(pid, false)
			pid = next
			continue
		}

		// end of chain: append a page. the extension lock keeps two
		// concurrent inserts from racing to link different successors.
		pg.WUnlatch()
		th.extendMu.Lock()
		pg.WLatch()
		if next = hp.nextPageID(); next.IsValid() {
			// someone else extended while we waited
			th.extendMu.Unlock()
			pg.WUnlatch()
			th.pool.UnpinPage(pid, false)
			pid = next
			continue
		}
		newPg, err := th.pool.NewPage()
		if err != nil {
			th.extendMu.Unlock()
			pg.WUnlatch()
			th.pool.UnpinPage(pid, false)
			return common.RID{}, err
		}
		newPg.WLatch()
		asHeapPage(newPg).init()
		newPg.WUnlatch()
		hp.setNextPageID(newPg.ID())
		th.extendMu.Unlock()
		pg.WUnlatch()
		th.pool.UnpinPage(newPg.ID(), true)
		th.pool.UnpinPage(pid, true)
		pid = newPg.ID()
	}
}

// GetTuple reads the live tuple at rid
func (th *TableHeap) GetTuple(rid common.RID, tx *transaction.Tx) (*tuple.Tuple, error) {
	pg, err := th.pool.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	pg.RLatch()
	data, ok := asHeapPage(pg).get(rid.Slot)
	var t *tuple.Tuple
	if ok {
		t, err = tuple.Deserialize(data, th.schema)
	}
	pg.RUnlatch()
	th.pool.UnpinPage(rid.PageID, false)

	if !ok {
		return nil, errors.Errorf("no live tuple at rid %s", rid)
	}
	if err != nil {
		return nil, errors.Wrap(err, "tuple.Deserialize failed")
	}
	t.SetRID(rid)
	return t, nil
}

// UpdateTuple rewrites the tuple at rid in place.
// false when the slot is dead or the new content is longer than the
// slot's current content.
func (th *TableHeap) UpdateTuple(t *tuple.Tuple, rid common.RID, tx *transaction.Tx) (bool, error) {
	data, err := t.Serialize(th.schema)
	if err != nil {
		return false, errors.Wrap(err, "tuple.Serialize failed")
	}
	pg, err := th.pool.FetchPage(rid.PageID)
	if err != nil {
		return false, err
	}
	pg.WLatch()
	ok := asHeapPage(pg).update(rid.Slot, data)
	pg.WUnlatch()
	th.pool.UnpinPage(rid.PageID, ok)
	if ok {
		t.SetRID(rid)
	}
	return ok, nil
}

// MarkDelete flags the tuple at rid as deleted
func (th *TableHeap) MarkDelete(rid common.RID, tx *transaction.Tx) (bool, error) {
	pg, err := th.pool.FetchPage(rid.PageID)
	if err != nil {
		return false, err
	}
	pg.WLatch()
	ok := asHeapPage(pg).markDelete(rid.Slot)
	pg.WUnlatch()
	th.pool.UnpinPage(rid.PageID, ok)
	return ok, nil
}
