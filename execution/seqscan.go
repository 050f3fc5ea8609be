package execution

import (
	"github.com/pkg/errors"

	"github.com/mkihara/harudb/catalog"
	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/plan"
	"github.com/mkihara/harudb/storage/heap"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/tuple"
)

// SeqScanExecutor walks a table heap, locks each visited record shared
// (isolation permitting), projects the output columns and filters by the
// plan's predicate.
type SeqScanExecutor struct {
	ctx  *Context
	plan *plan.SeqScanPlan

	table *catalog.TableInfo
	iter  *heap.Iterator
}

// NewSeqScanExecutor builds a scan over the plan's table
func NewSeqScanExecutor(ctx *Context, p *plan.SeqScanPlan) *SeqScanExecutor {
	return &SeqScanExecutor{ctx: ctx, plan: p}
}

func (e *SeqScanExecutor) Init() error {
	table, err := e.ctx.Catalog.GetTable(e.plan.TableOID)
	if err != nil {
		return errors.Wrap(err, "catalog.GetTable failed")
	}
	e.table = table
	e.iter = table.Heap.Begin(e.ctx.Tx)
	return nil
}

func (e *SeqScanExecutor) Next() (*tuple.Tuple, common.RID, error) {
	tx := e.ctx.Tx
	for {
		src, rid, err := e.iter.Next()
		if err != nil {
			// io.EOF passes through untouched
			return nil, common.RID{}, err
		}

		// reads lock shared unless the level never locks reads or the
		// transaction already holds this record
		if e.ctx.Locks != nil && tx.IsolationLevel() != transaction.ReadUncommitted {
			if !tx.IsExclusiveLocked(rid) && !tx.IsSharedLocked(rid) {
				if !e.ctx.Locks.LockShared(tx, rid) {
					return nil, common.RID{}, ErrTxnAborted
				}
			}
		}

		values := make([]tuple.Value, 0, len(e.plan.OutputExprs))
		for _, ex := range e.plan.OutputExprs {
			v, err := ex.Evaluate(src, e.table.Schema)
			if err != nil {
				return nil, common.RID{}, err
			}
			values = append(values, v)
		}
		out := tuple.NewTuple(values...)

		// under READ_COMMITTED the shared lock is released right after
		// the read
		if e.ctx.Locks != nil && tx.IsolationLevel() == transaction.ReadCommitted {
			e.ctx.Locks.Unlock(tx, rid)
		}

		if e.plan.Predicate != nil {
			keep, err := e.plan.Predicate.Evaluate(out, e.plan.OutputSchema)
			if err != nil {
				return nil, common.RID{}, err
			}
			if !keep.Bool() {
				continue
			}
		}
		out.SetRID(rid)
		return out, rid, nil
	}
}
