package execution

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/expr"
	"github.com/mkihara/harudb/plan"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/tuple"
)

// sliceExecutor replays fixed rows; used as a join child
type sliceExecutor struct {
	rows []*tuple.Tuple
	pos  int
}

func (s *sliceExecutor) Init() error {
	s.pos = 0
	return nil
}

func (s *sliceExecutor) Next() (*tuple.Tuple, common.RID, error) {
	if s.pos >= len(s.rows) {
		return nil, common.RID{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, row.RID(), nil
}

func pair(id int64, tag string) *tuple.Tuple {
	return tuple.NewTuple(tuple.NewIntValue(id), tuple.NewStringValue(tag))
}

func joinFixturePlan() *plan.HashJoinPlan {
	side := tuple.NewSchema(
		tuple.Column{Name: "id", Kind: tuple.KindInt},
		tuple.Column{Name: "tag", Kind: tuple.KindString},
	)
	return &plan.HashJoinPlan{
		LeftKeyExpr:  expr.NewColumnValue(0),
		RightKeyExpr: expr.NewColumnValue(0),
		LeftSchema:   side,
		RightSchema:  side,
		OutputSchema: tuple.NewSchema(
			tuple.Column{Name: "left_tag", Kind: tuple.KindString},
			tuple.Column{Name: "right_tag", Kind: tuple.KindString},
		),
		OutputExprs: []expr.Expression{
			expr.NewJoinColumnValue(expr.SideLeft, 1),
			expr.NewJoinColumnValue(expr.SideRight, 1),
		},
	}
}

func TestHashJoinMatchesOnEquality(t *testing.T) {
	env := testingNewEnv(t)

	left := &sliceExecutor{rows: []*tuple.Tuple{pair(1, "a"), pair(2, "b"), pair(1, "c")}}
	right := &sliceExecutor{rows: []*tuple.Tuple{pair(1, "x"), pair(3, "y")}}

	join := NewHashJoinExecutor(env.context(nil), joinFixturePlan(), left, right)
	rows := drain(t, join)

	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Value(0).Str())
	assert.Equal(t, "x", rows[0].Value(1).Str())
	assert.Equal(t, "c", rows[1].Value(0).Str())
	assert.Equal(t, "x", rows[1].Value(1).Str())
}

func TestHashJoinOutputIsReproducible(t *testing.T) {
	env := testingNewEnv(t)

	build := func() []*tuple.Tuple {
		left := &sliceExecutor{rows: []*tuple.Tuple{pair(1, "a"), pair(2, "b"), pair(1, "c"), pair(2, "d")}}
		right := &sliceExecutor{rows: []*tuple.Tuple{pair(2, "x"), pair(1, "y"), pair(2, "z")}}
		return drain(t, NewHashJoinExecutor(env.context(nil), joinFixturePlan(), left, right))
	}

	first := build()
	second := build()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Value(0).Equals(second[i].Value(0)))
		assert.True(t, first[i].Value(1).Equals(second[i].Value(1)))
	}
}

func TestHashJoinEmptySides(t *testing.T) {
	env := testingNewEnv(t)

	left := &sliceExecutor{}
	right := &sliceExecutor{rows: []*tuple.Tuple{pair(1, "x")}}
	rows := drain(t, NewHashJoinExecutor(env.context(nil), joinFixturePlan(), left, right))
	assert.Empty(t, rows)
}

func TestHashJoinOverTables(t *testing.T) {
	env := testingNewEnv(t)
	users := env.createUsers(t)
	env.insertRows(t, users.OID, userRow(1, "alice"), userRow(2, "bob"))

	orders, err := env.catalog.CreateTable("orders", usersSchema())
	require.Nil(t, err)
	env.insertRows(t, orders.OID, userRow(1, "book"), userRow(1, "pen"), userRow(3, "ink"))

	tx := env.reg.Begin(transaction.RepeatableRead)
	ctx := env.context(tx)
	join := NewHashJoinExecutor(ctx, joinFixturePlan(),
		NewSeqScanExecutor(ctx, usersScanPlan(users.OID, nil)),
		NewSeqScanExecutor(ctx, usersScanPlan(orders.OID, nil)))
	rows := drain(t, join)

	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].Value(0).Str())
	assert.Equal(t, "book", rows[0].Value(1).Str())
	assert.Equal(t, "alice", rows[1].Value(0).Str())
	assert.Equal(t, "pen", rows[1].Value(1).Str())
	require.Nil(t, env.reg.Commit(tx))
}
