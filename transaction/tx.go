/*
Tx is the transaction handle threaded through the lock manager and the
executors. The registry creates transactions; the lock manager mutates
their state and lock sets.

Transaction age drives deadlock avoidance: ids are allocated monotonically
and a smaller id always means an older transaction. The state can be set to
ABORTED asynchronously by an older transaction wounding this one, so state
and lock sets are guarded: the lock manager mutates them under its own
global mutex, and the owning goroutine reads them through the mutex here.
*/
package transaction

import (
	"sync"
	"sync/atomic"

	"github.com/mkihara/harudb/common"
)

// ID is the transaction id. smaller ids are older transactions.
type ID int32

// InvalidID means no transaction
const InvalidID ID = -1

// Tx is one transaction
type Tx struct {
	id    ID
	level IsolationLevel
	// state is read/written atomically: a wounder may flip it to ABORTED
	// from another goroutine at any time
	state int32

	mu sync.Mutex
	// rids this transaction holds shared locks on
	shared map[common.RID]struct{}
	// rids this transaction holds exclusive locks on
	exclusive map[common.RID]struct{}
	// index mutations to undo when the transaction aborts
	indexWrites []IndexWriteRecord
}

// NewTx initializes a transaction. Use the registry's Begin in normal
// operation; this constructor exists for tests that need fixed ids.
func NewTx(id ID, level IsolationLevel) *Tx {
	return &Tx{
		id:        id,
		level:     level,
		state:     int32(StateGrowing),
		shared:    make(map[common.RID]struct{}),
		exclusive: make(map[common.RID]struct{}),
	}
}

// ID returns the transaction id
func (tx *Tx) ID() ID {
	return tx.id
}

// IsolationLevel returns the locking protocol of this transaction
func (tx *Tx) IsolationLevel() IsolationLevel {
	return tx.level
}

// State returns the current state
func (tx *Tx) State() State {
	return State(atomic.LoadInt32(&tx.state))
}

// SetState transitions the transaction
func (tx *Tx) SetState(s State) {
	atomic.StoreInt32(&tx.state, int32(s))
}

// IsSharedLocked reports whether the transaction holds a shared lock on rid
func (tx *Tx) IsSharedLocked(rid common.RID) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	_, ok := tx.shared[rid]
	return ok
}

// IsExclusiveLocked reports whether the transaction holds an exclusive
// lock on rid
func (tx *Tx) IsExclusiveLocked(rid common.RID) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	_, ok := tx.exclusive[rid]
	return ok
}

// AddSharedLock records rid in the shared lock set
func (tx *Tx) AddSharedLock(rid common.RID) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.shared[rid] = struct{}{}
}

// AddExclusiveLock records rid in the exclusive lock set
func (tx *Tx) AddExclusiveLock(rid common.RID) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.exclusive[rid] = struct{}{}
}

// RemoveSharedLock drops rid from the shared lock set
func (tx *Tx) RemoveSharedLock(rid common.RID) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	delete(tx.shared, rid)
}

// RemoveExclusiveLock drops rid from the exclusive lock set
func (tx *Tx) RemoveExclusiveLock(rid common.RID) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	delete(tx.exclusive, rid)
}

// SharedLockSet snapshots the shared lock set
func (tx *Tx) SharedLockSet() []common.RID {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	rids := make([]common.RID, 0, len(tx.shared))
	for rid := range tx.shared {
		rids = append(rids, rid)
	}
	return rids
}

// ExclusiveLockSet snapshots the exclusive lock set
func (tx *Tx) ExclusiveLockSet() []common.RID {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	rids := make([]common.RID, 0, len(tx.exclusive))
	for rid := range tx.exclusive {
		rids = append(rids, rid)
	}
	return rids
}

// AppendIndexWrite records an index mutation for undo on abort
func (tx *Tx) AppendIndexWrite(rec IndexWriteRecord) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.indexWrites = append(tx.indexWrites, rec)
}

// IndexWrites snapshots the index write set, oldest first
func (tx *Tx) IndexWrites() []IndexWriteRecord {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	writes := make([]IndexWriteRecord, len(tx.indexWrites))
	copy(writes, tx.indexWrites)
	return writes
}

// ClearIndexWrites drops the write set after commit
func (tx *Tx) ClearIndexWrites() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.indexWrites = nil
}
