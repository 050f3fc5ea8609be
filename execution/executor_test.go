package execution

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkihara/harudb/catalog"
	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/expr"
	"github.com/mkihara/harudb/plan"
	"github.com/mkihara/harudb/storage/buffer"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/transaction/lock"
	"github.com/mkihara/harudb/tuple"
)

// env is the execution test harness: a catalog over a throwaway pool, a
// transaction registry and a lock manager wired together
type env struct {
	catalog *catalog.Catalog
	reg     *transaction.Registry
	locks   *lock.Manager
}

func testingNewEnv(t *testing.T) *env {
	t.Helper()
	pool, err := buffer.TestingNewPool(t, 2, 64)
	require.Nil(t, err)
	reg := transaction.NewRegistry()
	locks := lock.NewManager(reg)
	reg.BindLockManager(locks)
	return &env{
		catalog: catalog.NewCatalog(pool),
		reg:     reg,
		locks:   locks,
	}
}

func (e *env) context(tx *transaction.Tx) *Context {
	return NewContext(tx, e.catalog, e.locks)
}

// usersSchema is the fixture table: (id int, name string)
func usersSchema() *tuple.Schema {
	return tuple.NewSchema(
		tuple.Column{Name: "id", Kind: tuple.KindInt},
		tuple.Column{Name: "name", Kind: tuple.KindString},
	)
}

func userRow(id int64, name string) *tuple.Tuple {
	return tuple.NewTuple(tuple.NewIntValue(id), tuple.NewStringValue(name))
}

// createUsers registers the fixture table with an index on id
func (e *env) createUsers(t *testing.T) *catalog.TableInfo {
	t.Helper()
	info, err := e.catalog.CreateTable("users", usersSchema())
	require.Nil(t, err)
	_, err = e.catalog.CreateIndex("users", "users_id", 0)
	require.Nil(t, err)
	return info
}

// identity projection of the users table
func usersScanPlan(oid common.TableOID, predicate expr.Expression) *plan.SeqScanPlan {
	return &plan.SeqScanPlan{
		TableOID:     oid,
		OutputSchema: usersSchema(),
		OutputExprs: []expr.Expression{
			expr.NewColumnValue(0),
			expr.NewColumnValue(1),
		},
		Predicate: predicate,
	}
}

// insertRows runs a raw insert of the rows in one committed transaction
func (e *env) insertRows(t *testing.T, oid common.TableOID, rows ...*tuple.Tuple) {
	t.Helper()
	tx := e.reg.Begin(transaction.RepeatableRead)
	ins := NewInsertExecutor(e.context(tx), &plan.InsertPlan{TableOID: oid, RawValues: rows}, nil)
	require.Nil(t, ins.Init())
	_, _, err := ins.Next()
	require.Equal(t, io.EOF, err)
	require.Nil(t, e.reg.Commit(tx))
}

// drain pulls an executor to exhaustion
func drain(t *testing.T, e Executor) []*tuple.Tuple {
	t.Helper()
	require.Nil(t, e.Init())
	var rows []*tuple.Tuple
	for {
		row, _, err := e.Next()
		if err == io.EOF {
			return rows
		}
		require.Nil(t, err)
		rows = append(rows, row)
	}
}
