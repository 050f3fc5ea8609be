/*
Plan nodes are the data-only descriptions the executors consume: which
table, which output columns, which predicate. Executors are built from
plan nodes plus their child executors; plans never execute themselves.

Output columns pair a schema (names and kinds) with one expression per
column; the executor evaluates the expressions against source tuples to
materialize output tuples.
*/
package plan

import (
	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/expr"
	"github.com/mkihara/harudb/tuple"
)

// SeqScanPlan scans a table, projects the output columns and filters by
// the predicate (nil means no filter, evaluated against the output row)
type SeqScanPlan struct {
	TableOID     common.TableOID
	OutputSchema *tuple.Schema
	OutputExprs  []expr.Expression
	Predicate    expr.Expression
}

// InsertPlan inserts raw literal rows (RawValues set) or the rows pulled
// from a child executor (RawValues nil)
type InsertPlan struct {
	TableOID  common.TableOID
	RawValues []*tuple.Tuple
}

// IsRawInsert reports whether the plan carries literal rows
func (p *InsertPlan) IsRawInsert() bool {
	return p.RawValues != nil
}

// DeletePlan deletes every row produced by the child executor
type DeletePlan struct {
	TableOID common.TableOID
}

// UpdateType selects how an update rewrites a column
type UpdateType int

const (
	// UpdateAdd adds an integer constant to the column
	UpdateAdd UpdateType = iota
	// UpdateSet replaces the column with an integer constant
	UpdateSet
)

// UpdateInfo is one column rewrite
type UpdateInfo struct {
	Type  UpdateType
	Value int64
}

// UpdatePlan rewrites the rows produced by the child executor.
// UpdateAttrs maps column positions to their rewrites; untouched columns
// keep their values.
type UpdatePlan struct {
	TableOID    common.TableOID
	UpdateAttrs map[int]UpdateInfo
}

// HashJoinPlan joins two children on key-expression equality.
// the side schemas describe the children's outputs for join evaluation.
type HashJoinPlan struct {
	LeftKeyExpr  expr.Expression
	RightKeyExpr expr.Expression
	LeftSchema   *tuple.Schema
	RightSchema  *tuple.Schema
	OutputSchema *tuple.Schema
	OutputExprs  []expr.Expression
}
