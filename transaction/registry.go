/*
The registry issues transactions and finishes them.

Ids are allocated monotonically, so id order is age order, which is what
the lock manager's wound-wait policy keys on. The registry also serves as
the lookup the lock manager uses to reach a queue entry's transaction;
injecting the registry (instead of a process-global table) keeps that
dependency explicit.

Commit releases every lock. Abort first undoes the transaction's index
writes in reverse order, then releases. Heap contents are not rolled back:
without write-ahead logging the only heap guarantee is statement-level
(callers see the aborted error and stop).
*/
package transaction

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
)

// LockReleaser is the slice of the lock manager the registry needs to
// finish transactions
type LockReleaser interface {
	Unlock(tx *Tx, rid common.RID) bool
}

// Registry tracks every live transaction
type Registry struct {
	mu     sync.Mutex
	nextID ID
	txns   map[ID]*Tx
	locks  LockReleaser
}

// NewRegistry initializes an empty registry
func NewRegistry() *Registry {
	return &Registry{
		txns: make(map[ID]*Tx),
	}
}

// BindLockManager wires the lock manager in after construction; the lock
// manager itself is built with a reference to this registry.
func (r *Registry) BindLockManager(locks LockReleaser) {
	r.locks = locks
}

// Begin starts a transaction at the given isolation level
func (r *Registry) Begin(level IsolationLevel) *Tx {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := NewTx(r.nextID, level)
	r.nextID++
	r.txns[tx.ID()] = tx
	return tx
}

// Transaction looks up a live transaction by id; nil when unknown
func (r *Registry) Transaction(id ID) *Tx {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txns[id]
}

// releaseAll drops every lock the transaction still holds, shared first
func (r *Registry) releaseAll(tx *Tx) {
	if r.locks == nil {
		return
	}
	for _, rid := range tx.SharedLockSet() {
		r.locks.Unlock(tx, rid)
	}
	for _, rid := range tx.ExclusiveLockSet() {
		r.locks.Unlock(tx, rid)
	}
}

// Commit finishes the transaction successfully and releases its locks
func (r *Registry) Commit(tx *Tx) error {
	if tx.State() == StateAborted {
		return errors.Errorf("transaction %d is aborted and cannot commit", tx.ID())
	}
	tx.SetState(StateCommitted)
	tx.ClearIndexWrites()
	r.releaseAll(tx)

	r.mu.Lock()
	delete(r.txns, tx.ID())
	r.mu.Unlock()
	return nil
}

// Abort rolls back the transaction's index writes and releases its locks.
// aborting is idempotent and also finishes transactions a wounder already
// marked ABORTED.
func (r *Registry) Abort(tx *Tx) error {
	tx.SetState(StateAborted)

	// undo newest-first so an update's delete/insert pair unwinds cleanly
	writes := tx.IndexWrites()
	var undoErr error
	for i := len(writes) - 1; i >= 0; i-- {
		rec := writes[i]
		switch rec.Type {
		case WriteInsert:
			if err := rec.Index.DeleteEntry(rec.Key, rec.RID, tx); err != nil && undoErr == nil {
				undoErr = errors.Wrap(err, "undo of index insert failed")
			}
		case WriteDelete:
			if err := rec.Index.InsertEntry(rec.Key, rec.RID, tx); err != nil && undoErr == nil {
				undoErr = errors.Wrap(err, "undo of index delete failed")
			}
		case WriteUpdate:
			if err := rec.Index.DeleteEntry(rec.Key, rec.RID, tx); err != nil && undoErr == nil {
				undoErr = errors.Wrap(err, "undo of index update failed")
			}
			if err := rec.Index.InsertEntry(rec.OldKey, rec.RID, tx); err != nil && undoErr == nil {
				undoErr = errors.Wrap(err, "undo of index update failed")
			}
		}
	}
	tx.ClearIndexWrites()
	r.releaseAll(tx)

	r.mu.Lock()
	delete(r.txns, tx.ID())
	r.mu.Unlock()
	return undoErr
}
