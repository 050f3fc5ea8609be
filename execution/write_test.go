package execution

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkihara/harudb/plan"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/tuple"
)

func TestInsertMaintainsIndex(t *testing.T) {
	env := testingNewEnv(t)
	users := env.createUsers(t)
	env.insertRows(t, users.OID, userRow(10, "a"), userRow(20, "b"))

	ix := env.catalog.GetTableIndexes("users")[0]
	rids, err := ix.ScanKey(10)
	require.Nil(t, err)
	require.Len(t, rids, 1)

	// the indexed rid resolves to the inserted row
	tx := env.reg.Begin(transaction.RepeatableRead)
	row, err := users.Heap.GetTuple(rids[0], tx)
	require.Nil(t, err)
	assert.Equal(t, "a", row.Value(1).Str())
	require.Nil(t, env.reg.Commit(tx))
}

func TestInsertFromChildExecutor(t *testing.T) {
	env := testingNewEnv(t)
	users := env.createUsers(t)
	env.insertRows(t, users.OID, userRow(1, "a"), userRow(2, "b"))

	archive, err := env.catalog.CreateTable("archive", usersSchema())
	require.Nil(t, err)

	tx := env.reg.Begin(transaction.RepeatableRead)
	ctx := env.context(tx)
	scan := NewSeqScanExecutor(ctx, usersScanPlan(users.OID, nil))
	ins := NewInsertExecutor(ctx, &plan.InsertPlan{TableOID: archive.OID}, scan)
	require.Nil(t, ins.Init())
	_, _, err = ins.Next()
	require.Equal(t, io.EOF, err)
	require.Nil(t, env.reg.Commit(tx))

	tx2 := env.reg.Begin(transaction.RepeatableRead)
	out := drain(t, NewSeqScanExecutor(env.context(tx2), usersScanPlan(archive.OID, nil)))
	assert.Len(t, out, 2)
	require.Nil(t, env.reg.Commit(tx2))
}

func TestAbortUndoesInsertIndexEntries(t *testing.T) {
	env := testingNewEnv(t)
	users := env.createUsers(t)

	tx := env.reg.Begin(transaction.RepeatableRead)
	ins := NewInsertExecutor(env.context(tx),
		&plan.InsertPlan{TableOID: users.OID, RawValues: []*tuple.Tuple{userRow(7, "ghost")}}, nil)
	require.Nil(t, ins.Init())
	_, _, err := ins.Next()
	require.Equal(t, io.EOF, err)

	ix := env.catalog.GetTableIndexes("users")[0]
	rids, err := ix.ScanKey(7)
	require.Nil(t, err)
	require.Len(t, rids, 1)

	require.Nil(t, env.reg.Abort(tx))
	rids, err = ix.ScanKey(7)
	require.Nil(t, err)
	assert.Empty(t, rids)
}

func TestDeleteRemovesRowsAndIndexEntries(t *testing.T) {
	env := testingNewEnv(t)
	users := env.createUsers(t)
	env.insertRows(t, users.OID, userRow(1, "a"), userRow(2, "b"), userRow(3, "c"))

	tx := env.reg.Begin(transaction.RepeatableRead)
	ctx := env.context(tx)
	scan := NewSeqScanExecutor(ctx, usersScanPlan(users.OID, nil))
	del := NewDeleteExecutor(ctx, &plan.DeletePlan{TableOID: users.OID}, scan)
	require.Nil(t, del.Init())
	_, _, err := del.Next()
	require.Equal(t, io.EOF, err)
	require.Nil(t, env.reg.Commit(tx))

	tx2 := env.reg.Begin(transaction.RepeatableRead)
	out := drain(t, NewSeqScanExecutor(env.context(tx2), usersScanPlan(users.OID, nil)))
	assert.Empty(t, out)
	require.Nil(t, env.reg.Commit(tx2))

	ix := env.catalog.GetTableIndexes("users")[0]
	for key := int64(1); key <= 3; key++ {
		rids, err := ix.ScanKey(key)
		require.Nil(t, err)
		assert.Empty(t, rids)
	}
}

func TestUpdateAddAndSet(t *testing.T) {
	env := testingNewEnv(t)
	users := env.createUsers(t)
	env.insertRows(t, users.OID, userRow(1, "a"), userRow(2, "b"))

	// id = id + 10
	tx := env.reg.Begin(transaction.RepeatableRead)
	ctx := env.context(tx)
	scan := NewSeqScanExecutor(ctx, usersScanPlan(users.OID, nil))
	upd := NewUpdateExecutor(ctx, &plan.UpdatePlan{
		TableOID:    users.OID,
		UpdateAttrs: map[int]plan.UpdateInfo{0: {Type: plan.UpdateAdd, Value: 10}},
	}, scan)
	require.Nil(t, upd.Init())
	_, _, err := upd.Next()
	require.Equal(t, io.EOF, err)
	require.Nil(t, env.reg.Commit(tx))

	tx2 := env.reg.Begin(transaction.RepeatableRead)
	out := drain(t, NewSeqScanExecutor(env.context(tx2), usersScanPlan(users.OID, nil)))
	require.Len(t, out, 2)
	assert.Equal(t, int64(11), out[0].Value(0).Int())
	assert.Equal(t, int64(12), out[1].Value(0).Int())
	require.Nil(t, env.reg.Commit(tx2))

	// the index follows the key change
	ix := env.catalog.GetTableIndexes("users")[0]
	rids, err := ix.ScanKey(1)
	require.Nil(t, err)
	assert.Empty(t, rids)
	rids, err = ix.ScanKey(11)
	require.Nil(t, err)
	assert.Len(t, rids, 1)

	// id = 99 for every row
	tx3 := env.reg.Begin(transaction.RepeatableRead)
	ctx3 := env.context(tx3)
	scan3 := NewSeqScanExecutor(ctx3, usersScanPlan(users.OID, nil))
	upd3 := NewUpdateExecutor(ctx3, &plan.UpdatePlan{
		TableOID:    users.OID,
		UpdateAttrs: map[int]plan.UpdateInfo{0: {Type: plan.UpdateSet, Value: 99}},
	}, scan3)
	require.Nil(t, upd3.Init())
	_, _, err = upd3.Next()
	require.Equal(t, io.EOF, err)
	require.Nil(t, env.reg.Commit(tx3))

	rids, err = ix.ScanKey(99)
	require.Nil(t, err)
	assert.Len(t, rids, 2)
}

func TestWriteFailsWhenTransactionAborted(t *testing.T) {
	env := testingNewEnv(t)
	users := env.createUsers(t)

	tx := env.reg.Begin(transaction.RepeatableRead)
	tx.SetState(transaction.StateAborted)
	ins := NewInsertExecutor(env.context(tx),
		&plan.InsertPlan{TableOID: users.OID, RawValues: []*tuple.Tuple{userRow(1, "x")}}, nil)
	require.Nil(t, ins.Init())
	_, _, err := ins.Next()
	assert.Equal(t, ErrTxnAborted, err)
}
