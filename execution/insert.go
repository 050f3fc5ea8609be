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

// InsertExecutor is the write-only terminal operator appending rows to a
// table: either the plan's literal rows or everything pulled from the
// child. Each inserted rid is locked exclusively and every table index
// learns the new entry, with an undo record in the transaction's write
// set.
type InsertExecutor struct {
	ctx   *Context
	plan  *plan.InsertPlan
	child Executor

	table   *catalog.TableInfo
	indexes []*catalog.IndexInfo
	done    bool
}

// NewInsertExecutor builds an insert; child is nil for raw inserts
func NewInsertExecutor(ctx *Context, p *plan.InsertPlan, child Executor) *InsertExecutor {
	return &InsertExecutor{ctx: ctx, plan: p, child: child}
}

func (e *InsertExecutor) Init() error {
	table, err := e.ctx.Catalog.GetTable(e.plan.TableOID)
	if err != nil {
		return errors.Wrap(err, "catalog.GetTable failed")
	}
	e.table = table
	e.indexes = e.ctx.Catalog.GetTableIndexes(table.Name)
	if e.child != nil {
		return e.child.Init()
	}
	return nil
}

func (e *InsertExecutor) Next() (*tuple.Tuple, common.RID, error) {
	if e.done {
		return nil, common.RID{}, io.EOF
	}
	e.done = true

	if e.plan.IsRawInsert() {
		for _, row := range e.plan.RawValues {
			if err := e.insertOne(row); err != nil {
				return nil, common.RID{}, err
			}
		}
		return nil, common.RID{}, io.EOF
	}

	// drain the child completely before writing so a scan over the same
	// table does not chase its own inserts
	var rows []*tuple.Tuple
	for {
		row, _, err := e.child.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, common.RID{}, errors.Wrap(err, "insert child failed")
		}
		rows = append(rows, row)
	}
	for _, row := range rows {
		if err := e.insertOne(row); err != nil {
			return nil, common.RID{}, err
		}
	}
	return nil, common.RID{}, io.EOF
}

// insertOne appends one row, locks it and maintains every index
func (e *InsertExecutor) insertOne(row *tuple.Tuple) error {
	rid, err := e.table.Heap.InsertTuple(row, e.ctx.Tx)
	if err != nil {
		return errors.Wrap(err, "heap insert failed")
	}

	if err := e.ctx.lockExclusiveOrUpgrade(rid); err != nil {
		return err
	}

	for _, ix := range e.indexes {
		key, err := ix.KeyFromTuple(row)
		if err != nil {
			return err
		}
		if err := ix.InsertEntry(key, rid, e.ctx.Tx); err != nil {
			return errors.Wrap(err, "index insert failed")
		}
		e.ctx.Tx.AppendIndexWrite(transaction.IndexWriteRecord{
			RID:   rid,
			Table: e.table.OID,
			Type:  transaction.WriteInsert,
			Index: ix,
			Key:   key,
		})
	}

	e.ctx.unlockIfReadCommitted(rid)
	return nil
}
