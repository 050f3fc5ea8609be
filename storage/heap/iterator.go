package heap

import (
	"io"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/tuple"
)

// Iterator walks every live tuple of the heap in page-chain order,
// skipping deleted slots. Next returns io.EOF at the end.
type Iterator struct {
	heap *TableHeap
	tx   *transaction.Tx

	pageID common.PageID
	slot   uint32
}

// Begin positions an iterator at the start of the heap
func (th *TableHeap) Begin(tx *transaction.Tx) *Iterator {
	return &Iterator{
		heap:   th,
		tx:     tx,
		pageID: th.firstPageID,
		slot:   0,
	}
}

// Next returns the next live tuple and its rid, or io.EOF
func (it *Iterator) Next() (*tuple.Tuple, common.RID, error) {
	for it.pageID.IsValid() {
		pg, err := it.heap.pool.FetchPage(it.pageID)
		if err != nil {
			return nil, common.RID{}, err
		}
		pg.RLatch()
		hp := asHeapPage(pg)
		count := uint32(hp.slotCount())

		for it.slot < count {
			slot := it.slot
			it.slot++
			data, ok := hp.get(slot)
			if !ok {
				continue
			}
			t, err := tuple.Deserialize(data, it.heap.schema)
			pg.RUnlatch()
			it.heap.pool.UnpinPage(pg.ID(), false)
			if err != nil {
				return nil, common.RID{}, err
			}
			rid := common.NewRID(pg.ID(), slot)
			t.SetRID(rid)
			return t, rid, nil
		}

		next := hp.nextPageID()
		pg.RUnlatch()
		it.heap.pool.UnpinPage(pg.ID(), false)
		it.pageID = next
		it.slot = 0
	}
	return nil, common.RID{}, io.EOF
}
