/*
Execution follows the iterator (volcano) model: every operator exposes
Init for one-shot setup and Next to pull one output row. Operators own
their children and compose into a tree; io.EOF from Next ends the stream.

Write operators (insert, delete, update) are terminal: they do all their
work across the child stream and always answer io.EOF.

The context carries what every operator needs: the transaction, the
catalog and the lock manager. A nil lock manager disables record locking
entirely, which single-threaded tools use.
*/
package execution

import (
	"github.com/pkg/errors"

	"github.com/mkihara/harudb/catalog"
	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/transaction/lock"
	"github.com/mkihara/harudb/tuple"
)

// ErrTxnAborted is the statement error raised when the transaction was
// refused a lock or wounded by an older transaction
var ErrTxnAborted = errors.New("transaction aborted")

// Executor is one operator of a query plan
type Executor interface {
	// Init prepares the operator; called once before the first Next
	Init() error
	// Next pulls the next row and its rid; io.EOF ends the stream
	Next() (*tuple.Tuple, common.RID, error)
}

// Context is the per-statement execution environment
type Context struct {
	Tx      *transaction.Tx
	Catalog *catalog.Catalog
	// nil disables record locking
	Locks *lock.Manager
}

// NewContext bundles an execution environment
func NewContext(tx *transaction.Tx, cat *catalog.Catalog, locks *lock.Manager) *Context {
	return &Context{Tx: tx, Catalog: cat, Locks: locks}
}

// lockExclusiveOrUpgrade ensures the transaction holds the exclusive lock
// on rid, upgrading a held shared lock or acquiring fresh. every write
// operator funnels through this.
func (ctx *Context) lockExclusiveOrUpgrade(rid common.RID) error {
	if ctx.Locks == nil {
		return nil
	}
	switch {
	case ctx.Tx.IsSharedLocked(rid):
		if !ctx.Locks.LockUpgrade(ctx.Tx, rid) {
			return ErrTxnAborted
		}
	case !ctx.Tx.IsExclusiveLocked(rid):
		if !ctx.Locks.LockExclusive(ctx.Tx, rid) {
			return ErrTxnAborted
		}
	}
	return nil
}

// unlockIfReadCommitted eagerly releases the rid's lock under
// READ_COMMITTED, where write locks do not pin the growing phase
func (ctx *Context) unlockIfReadCommitted(rid common.RID) {
	if ctx.Locks == nil {
		return
	}
	if ctx.Tx.IsolationLevel() == transaction.ReadCommitted {
		ctx.Locks.Unlock(ctx.Tx, rid)
	}
}
