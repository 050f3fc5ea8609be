package execution

import (
	"io"

	"github.com/pkg/errors"

	"github.com/mkihara/harudb/catalog"
	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/plan"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/tuple"
)

// DeleteExecutor marks every row produced by the child as deleted, under
// an exclusive lock, and removes the rows' keys from every table index
// with an undo record per removal.
type DeleteExecutor struct {
	ctx   *Context
	plan  *plan.DeletePlan
	child Executor

	table   *catalog.TableInfo
	indexes []*catalog.IndexInfo
	done    bool
}

// NewDeleteExecutor builds a delete over the child's rows
func NewDeleteExecutor(ctx *Context, p *plan.DeletePlan, child Executor) *DeleteExecutor {
	return &DeleteExecutor{ctx: ctx, plan: p, child: child}
}

func (e *DeleteExecutor) Init() error {
	table, err := e.ctx.Catalog.GetTable(e.plan.TableOID)
	if err != nil {
		return errors.Wrap(err, "catalog.GetTable failed")
	}
	e.table = table
	e.indexes = e.ctx.Catalog.GetTableIndexes(table.Name)
	return e.child.Init()
}

func (e *DeleteExecutor) Next() (*tuple.Tuple, common.RID, error) {
	if e.done {
		return nil, common.RID{}, io.EOF
	}
	e.done = true

	for {
		row, rid, err := e.child.Next()
		if err == io.EOF {
			return nil, common.RID{}, io.EOF
		}
		if err != nil {
			return nil, common.RID{}, errors.Wrap(err, "delete child failed")
		}

		if err := e.ctx.lockExclusiveOrUpgrade(rid); err != nil {
			return nil, common.RID{}, err
		}

		ok, err := e.table.Heap.MarkDelete(rid, e.ctx.Tx)
		if err != nil {
			return nil, common.RID{}, errors.Wrap(err, "heap mark-delete failed")
		}
		if !ok {
			return nil, common.RID{}, errors.Errorf("no live tuple to delete at %s", rid)
		}

		for _, ix := range e.indexes {
			key, err := ix.KeyFromTuple(row)
			if err != nil {
				return nil, common.RID{}, err
			}
			if err := ix.DeleteEntry(key, rid, e.ctx.Tx); err != nil {
				return nil, common.RID{}, errors.Wrap(err, "index delete failed")
			}
			e.ctx.Tx.AppendIndexWrite(transaction.IndexWriteRecord{
				RID:   rid,
				Table: e.table.OID,
				Type:  transaction.WriteDelete,
				Index: ix,
				Key:   key,
			})
		}

		e.ctx.unlockIfReadCommitted(rid)
	}
}
