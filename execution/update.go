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

// UpdateExecutor rewrites every row produced by the child according to
// the plan's per-column updates, in place on the heap, keeping every
// table index in step (old key out, new key in, same rid) with undo
// records for both sides.
type UpdateExecutor struct {
	ctx   *Context
	plan  *plan.UpdatePlan
	child Executor

	table   *catalog.TableInfo
	indexes []*catalog.IndexInfo
	done    bool
}

// NewUpdateExecutor builds an update over the child's rows
func NewUpdateExecutor(ctx *Context, p *plan.UpdatePlan, child Executor) *UpdateExecutor {
	return &UpdateExecutor{ctx: ctx, plan: p, child: child}
}

func (e *UpdateExecutor) Init() error {
	table, err := e.ctx.Catalog.GetTable(e.plan.TableOID)
	if err != nil {
		return errors.Wrap(err, "catalog.GetTable failed")
	}
	e.table = table
	e.indexes = e.ctx.Catalog.GetTableIndexes(table.Name)
	return e.child.Init()
}

// generateUpdatedTuple applies the plan's column rewrites to one row
func (e *UpdateExecutor) generateUpdatedTuple(src *tuple.Tuple) *tuple.Tuple {
	values := make([]tuple.Value, 0, src.NumValues())
	for i := 0; i < src.NumValues(); i++ {
		info, ok := e.plan.UpdateAttrs[i]
		if !ok {
			values = append(values, src.Value(i))
			continue
		}
		switch info.Type {
		case plan.UpdateAdd:
			values = append(values, src.Value(i).Add(info.Value))
		case plan.UpdateSet:
			values = append(values, tuple.NewIntValue(info.Value))
		}
	}
	return tuple.NewTuple(values...)
}

func (e *UpdateExecutor) Next() (*tuple.Tuple, common.RID, error) {
	if e.done {
		return nil, common.RID{}, io.EOF
	}
	e.done = true

	for {
		oldRow, rid, err := e.child.Next()
		if err == io.EOF {
			return nil, common.RID{}, io.EOF
		}
		if err != nil {
			return nil, common.RID{}, errors.Wrap(err, "update child failed")
		}

		if err := e.ctx.lockExclusiveOrUpgrade(rid); err != nil {
			return nil, common.RID{}, err
		}

		newRow := e.generateUpdatedTuple(oldRow)
		ok, err := e.table.Heap.UpdateTuple(newRow, rid, e.ctx.Tx)
		if err != nil {
			return nil, common.RID{}, errors.Wrap(err, "heap update failed")
		}
		if !ok {
			return nil, common.RID{}, errors.Errorf("tuple at %s cannot be updated in place", rid)
		}

		for _, ix := range e.indexes {
			oldKey, err := ix.KeyFromTuple(oldRow)
			if err != nil {
				return nil, common.RID{}, err
			}
			newKey, err := ix.KeyFromTuple(newRow)
			if err != nil {
				return nil, common.RID{}, err
			}
			if err := ix.DeleteEntry(oldKey, rid, e.ctx.Tx); err != nil {
				return nil, common.RID{}, errors.Wrap(err, "index delete failed")
			}
			if err := ix.InsertEntry(newKey, rid, e.ctx.Tx); err != nil {
				return nil, common.RID{}, errors.Wrap(err, "index insert failed")
			}
			e.ctx.Tx.AppendIndexWrite(transaction.IndexWriteRecord{
				RID:    rid,
				Table:  e.table.OID,
				Type:   transaction.WriteUpdate,
				Index:  ix,
				Key:    newKey,
				OldKey: oldKey,
			})
		}

		e.ctx.unlockIfReadCommitted(rid)
	}
}
