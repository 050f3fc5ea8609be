package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkihara/harudb/common"
)

// recordingIndex remembers the undo calls the registry makes on abort
type recordingIndex struct {
	inserted []int64
	deleted  []int64
}

func (r *recordingIndex) InsertEntry(key int64, rid common.RID, tx *Tx) error {
	r.inserted = append(r.inserted, key)
	return nil
}

func (r *recordingIndex) DeleteEntry(key int64, rid common.RID, tx *Tx) error {
	r.deleted = append(r.deleted, key)
	return nil
}

func TestBeginAllocatesMonotonicIDs(t *testing.T) {
	reg := NewRegistry()
	first := reg.Begin(RepeatableRead)
	second := reg.Begin(RepeatableRead)
	assert.Less(t, first.ID(), second.ID())
	assert.Equal(t, StateGrowing, first.State())

	assert.Same(t, first, reg.Transaction(first.ID()))
}

func TestCommitFinishesTransaction(t *testing.T) {
	reg := NewRegistry()
	tx := reg.Begin(ReadCommitted)

	require.Nil(t, reg.Commit(tx))
	assert.Equal(t, StateCommitted, tx.State())
	assert.Nil(t, reg.Transaction(tx.ID()))
}

func TestCommitRefusedAfterAbort(t *testing.T) {
	reg := NewRegistry()
	tx := reg.Begin(RepeatableRead)
	tx.SetState(StateAborted)

	assert.NotNil(t, reg.Commit(tx))
}

func TestAbortUndoesIndexWritesInReverse(t *testing.T) {
	reg := NewRegistry()
	tx := reg.Begin(RepeatableRead)
	idx := &recordingIndex{}
	rid := common.NewRID(common.PageID(1), 0)

	tx.AppendIndexWrite(IndexWriteRecord{RID: rid, Type: WriteInsert, Index: idx, Key: 10})
	tx.AppendIndexWrite(IndexWriteRecord{RID: rid, Type: WriteDelete, Index: idx, Key: 20})
	tx.AppendIndexWrite(IndexWriteRecord{RID: rid, Type: WriteUpdate, Index: idx, Key: 31, OldKey: 30})

	require.Nil(t, reg.Abort(tx))
	assert.Equal(t, StateAborted, tx.State())

	// newest first: the update unwinds before the delete and the insert
	assert.Equal(t, []int64{31, 10}, idx.deleted)
	assert.Equal(t, []int64{30, 20}, idx.inserted)
	assert.Empty(t, tx.IndexWrites())
}
