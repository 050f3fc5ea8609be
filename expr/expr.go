/*
Expressions are the little evaluation trees the planner hands to the
executors: column references, constants and comparisons.

Every expression evaluates two ways. Evaluate reads from a single tuple
and its schema; EvaluateJoin reads from a left and a right tuple at once,
with column references carrying which side they resolve against.
*/
package expr

import (
	"github.com/pkg/errors"

	"github.com/mkihara/harudb/tuple"
)

// Expression is a node of an evaluation tree
type Expression interface {
	Evaluate(t *tuple.Tuple, s *tuple.Schema) (tuple.Value, error)
	EvaluateJoin(lt *tuple.Tuple, ls *tuple.Schema, rt *tuple.Tuple, rs *tuple.Schema) (tuple.Value, error)
}

// Side selects which input of a join a column reference resolves against
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// ColumnValue references one column of the input tuple
type ColumnValue struct {
	// join side; ignored by single-tuple evaluation
	Side Side
	// column position within that side's schema
	Index int
}

// NewColumnValue references column index of the single input
func NewColumnValue(index int) *ColumnValue {
	return &ColumnValue{Side: SideLeft, Index: index}
}

// NewJoinColumnValue references column index of the given join side
func NewJoinColumnValue(side Side, index int) *ColumnValue {
	return &ColumnValue{Side: side, Index: index}
}

func (c *ColumnValue) Evaluate(t *tuple.Tuple, s *tuple.Schema) (tuple.Value, error) {
	if c.Index >= t.NumValues() {
		return tuple.Value{}, errors.Errorf("column index %d out of range", c.Index)
	}
	return t.Value(c.Index), nil
}

func (c *ColumnValue) EvaluateJoin(lt *tuple.Tuple, ls *tuple.Schema, rt *tuple.Tuple, rs *tuple.Schema) (tuple.Value, error) {
	if c.Side == SideLeft {
		return c.Evaluate(lt, ls)
	}
	return c.Evaluate(rt, rs)
}

// Constant is a literal value
type Constant struct {
	Value tuple.Value
}

// NewConstant wraps a literal
func NewConstant(v tuple.Value) *Constant {
	return &Constant{Value: v}
}

func (c *Constant) Evaluate(*tuple.Tuple, *tuple.Schema) (tuple.Value, error) {
	return c.Value, nil
}

func (c *Constant) EvaluateJoin(*tuple.Tuple, *tuple.Schema, *tuple.Tuple, *tuple.Schema) (tuple.Value, error) {
	return c.Value, nil
}

// CompareOp is a comparison operator
type CompareOp int

const (
	OpEquals CompareOp = iota
	OpNotEquals
	OpLessThan
	OpGreaterThan
)

// Comparison evaluates both children and compares the results, producing
// a boolean value
type Comparison struct {
	Op          CompareOp
	Left, Right Expression
}

// NewComparison builds a comparison predicate
func NewComparison(op CompareOp, left, right Expression) *Comparison {
	return &Comparison{Op: op, Left: left, Right: right}
}

func (c *Comparison) compare(l, r tuple.Value) (tuple.Value, error) {
	switch c.Op {
	case OpEquals:
		return tuple.NewBoolValue(l.Equals(r)), nil
	case OpNotEquals:
		return tuple.NewBoolValue(!l.Equals(r)), nil
	case OpLessThan:
		return tuple.NewBoolValue(l.Less(r)), nil
	case OpGreaterThan:
		return tuple.NewBoolValue(r.Less(l)), nil
	}
	return tuple.Value{}, errors.Errorf("unknown comparison op %d", c.Op)
}

func (c *Comparison) Evaluate(t *tuple.Tuple, s *tuple.Schema) (tuple.Value, error) {
	l, err := c.Left.Evaluate(t, s)
	if err != nil {
		return tuple.Value{}, err
	}
	r, err := c.Right.Evaluate(t, s)
	if err != nil {
		return tuple.Value{}, err
	}
	return c.compare(l, r)
}

func (c *Comparison) EvaluateJoin(lt *tuple.Tuple, ls *tuple.Schema, rt *tuple.Tuple, rs *tuple.Schema) (tuple.Value, error) {
	l, err := c.Left.EvaluateJoin(lt, ls, rt, rs)
	if err != nil {
		return tuple.Value{}, err
	}
	r, err := c.Right.EvaluateJoin(lt, ls, rt, rs)
	if err != nil {
		return tuple.Value{}, err
	}
	return c.compare(l, r)
}
