/*
The lock manager grants record-level shared/exclusive locks under strict
two-phase locking.

Every rid gets a lazily created request queue: an ordered list of
{txn id, mode, granted} plus one condition variable. A single global mutex
protects all queues; the per-queue condition variables are bound to that
mutex, so a waiter atomically releases it and every waker must hold it.

Deadlock avoidance is wound-wait, keyed by transaction id (smaller id =
older transaction):
  - an older requester wounds any younger conflicting holder: the holder's
    entry is erased, its lock sets are purged and it is set ABORTED.
  - a younger requester either waits behind an older shared-blocking holder
    (shared request) or dies immediately (exclusive request).

Because a wounder can abort a transaction at any moment, every wait site
re-validates the whole world after waking: the state check, the queue scan,
everything. Waiters are woken broadcast-style on every release and on every
wound, and simply go back to waiting when the queue still blocks them.
*/
package lock

import (
	"sync"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/transaction"
)

// Mode is the lock mode of a queue entry
type Mode int

const (
	ModeShared Mode = iota
	ModeExclusive
)

// request is one queue entry
type request struct {
	txnID   transaction.ID
	mode    Mode
	granted bool
}

// queue is the per-rid request queue
type queue struct {
	requests []*request
	cond     *sync.Cond
	// set while a shared->exclusive upgrade is draining the queue; a
	// second concurrent upgrade on the same rid is refused
	upgrading bool
}

func (q *queue) find(id transaction.ID) *request {
	for _, r := range q.requests {
		if r.txnID == id {
			return r
		}
	}
	return nil
}

func (q *queue) removeAt(i int) {
	q.requests = append(q.requests[:i], q.requests[i+1:]...)
}

// TxnLookup resolves a queue entry's transaction id to its transaction.
// the registry implements it; tests may inject a stub.
type TxnLookup interface {
	Transaction(id transaction.ID) *transaction.Tx
}

// Manager is the lock manager
type Manager struct {
	mu     sync.Mutex
	queues map[common.RID]*queue
	txns   TxnLookup
}

// NewManager initializes a lock manager resolving transactions through txns
func NewManager(txns TxnLookup) *Manager {
	return &Manager{
		queues: make(map[common.RID]*queue),
		txns:   txns,
	}
}

// queueFor returns the rid's queue, creating it on first reference
func (m *Manager) queueFor(rid common.RID) *queue {
	q, ok := m.queues[rid]
	if !ok {
		q = &queue{cond: sync.NewCond(&m.mu)}
		m.queues[rid] = q
	}
	return q
}

// wound aborts the younger transaction holding or requesting the rid:
// its entry is erased, its lock sets purged, its state set ABORTED. the
// queue is woken so an erased waiter observes its abortion.
func (m *Manager) wound(q *queue, i int, rid common.RID) {
	victim := m.txns.Transaction(q.requests[i].txnID)
	q.removeAt(i)
	if victim != nil {
		victim.RemoveExclusiveLock(rid)
		victim.RemoveSharedLock(rid)
		victim.SetState(transaction.StateAborted)
	}
	q.cond.Broadcast()
}

// LockShared takes a shared lock on rid for tx.
// refused (after aborting tx) when reads never lock at this isolation
// level (READ_UNCOMMITTED) or when tx is already shrinking. an older
// exclusive holder makes tx wait; a younger exclusive holder is wounded.
func (m *Manager) LockShared(tx *transaction.Tx, rid common.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueFor(rid)

	for {
		if tx.State() == transaction.StateAborted {
			return false
		}
		if tx.IsolationLevel() == transaction.ReadUncommitted {
			tx.SetState(transaction.StateAborted)
			return false
		}
		if tx.State() == transaction.StateShrinking {
			tx.SetState(transaction.StateAborted)
			return false
		}
		// "already holds shared" means a granted queue entry. the shared
		// set alone is not enough: a waiter records the rid there before
		// blocking, and waking does not mean the lock was granted.
		if r := q.find(tx.ID()); r != nil && r.granted && r.mode == ModeShared {
			return true
		}

		waited := false
		i := 0
		for i < len(q.requests) {
			r := q.requests[i]
			switch {
			case r.txnID > tx.ID() && r.mode == ModeExclusive:
				// younger exclusive holder: wound it and rescan this slot
				m.wound(q, i, rid)
			case r.txnID < tx.ID() && r.mode == ModeExclusive:
				// older exclusive holder: queue up and wait
				if q.find(tx.ID()) == nil {
					q.requests = append(q.requests, &request{txnID: tx.ID(), mode: ModeShared})
				}
				tx.AddSharedLock(rid)
				q.cond.Wait()
				waited = true
			default:
				i++
			}
			if waited {
				break
			}
		}
		if waited {
			// the world may have changed arbitrarily; re-validate all of it
			continue
		}

		tx.SetState(transaction.StateGrowing)
		if r := q.find(tx.ID()); r != nil {
			r.mode = ModeShared
			r.granted = true
		} else {
			q.requests = append(q.requests, &request{txnID: tx.ID(), mode: ModeShared, granted: true})
		}
		tx.AddSharedLock(rid)
		return true
	}
}

// LockExclusive takes an exclusive lock on rid for tx.
// every younger granted entry is wounded (a younger waiter keeps its
// place); any older entry makes tx die (wound-wait never lets a younger
// transaction wait for an exclusive lock).
func (m *Manager) LockExclusive(tx *transaction.Tx, rid common.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueFor(rid)

	if tx.State() == transaction.StateAborted {
		return false
	}
	if tx.State() == transaction.StateShrinking {
		tx.SetState(transaction.StateAborted)
		return false
	}
	if tx.IsExclusiveLocked(rid) {
		return true
	}

	i := 0
	for i < len(q.requests) {
		r := q.requests[i]
		switch {
		case r.txnID > tx.ID() && r.granted:
			// younger holder, shared or exclusive: wound it. a younger
			// entry still waiting keeps its place and re-validates once
			// our grant is visible.
			m.wound(q, i, rid)
		case r.txnID < tx.ID():
			// die: an older transaction is ahead of us
			if own := q.find(tx.ID()); own != nil {
				for j, r2 := range q.requests {
					if r2 == own {
						q.removeAt(j)
						break
					}
				}
			}
			tx.RemoveExclusiveLock(rid)
			tx.RemoveSharedLock(rid)
			tx.SetState(transaction.StateAborted)
			return false
		default:
			i++
		}
	}

	tx.SetState(transaction.StateGrowing)
	if r := q.find(tx.ID()); r != nil {
		r.mode = ModeExclusive
		r.granted = true
	} else {
		q.requests = append(q.requests, &request{txnID: tx.ID(), mode: ModeExclusive, granted: true})
	}
	tx.AddExclusiveLock(rid)
	return true
}

// LockUpgrade converts tx's shared lock on rid to exclusive.
// only one upgrade may be in flight per rid. younger entries are wounded,
// older entries are waited out; once the queue has drained to exactly tx's
// own shared entry it is flipped to exclusive.
func (m *Manager) LockUpgrade(tx *transaction.Tx, rid common.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.State() == transaction.StateAborted {
		return false
	}
	if tx.State() == transaction.StateShrinking {
		tx.SetState(transaction.StateAborted)
		return false
	}

	q := m.queueFor(rid)
	if q.upgrading {
		tx.SetState(transaction.StateAborted)
		return false
	}
	q.upgrading = true

	for {
		if tx.State() == transaction.StateAborted {
			q.upgrading = false
			return false
		}

		waited := false
		i := 0
		for i < len(q.requests) {
			r := q.requests[i]
			switch {
			case r.txnID > tx.ID():
				m.wound(q, i, rid)
			case r.txnID < tx.ID():
				q.cond.Wait()
				waited = true
			default:
				i++
			}
			if waited {
				break
			}
		}
		if waited {
			continue
		}
		break
	}

	// the queue has settled: exactly our own shared entry may remain
	r := q.find(tx.ID())
	if len(q.requests) != 1 || r == nil || r.mode != ModeShared {
		q.upgrading = false
		tx.SetState(transaction.StateAborted)
		return false
	}

	r.mode = ModeExclusive
	r.granted = true
	tx.SetState(transaction.StateGrowing)
	tx.AddExclusiveLock(rid)
	tx.RemoveSharedLock(rid)
	q.upgrading = false
	return true
}

// Unlock releases tx's lock on rid.
// under REPEATABLE_READ any release starts shrinking; under the weaker
// levels only an exclusive release does (shared locks are released
// eagerly there). waiters are always woken to rescan.
func (m *Manager) Unlock(tx *transaction.Tx, rid common.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[rid]
	if !ok {
		return false
	}

	var mode Mode
	switch {
	case tx.IsSharedLocked(rid):
		mode = ModeShared
	case tx.IsExclusiveLocked(rid):
		mode = ModeExclusive
	default:
		return false
	}

	if tx.State() == transaction.StateGrowing {
		if mode == ModeExclusive {
			tx.SetState(transaction.StateShrinking)
		} else if tx.IsolationLevel() == transaction.RepeatableRead {
			tx.SetState(transaction.StateShrinking)
		}
	}

	for i, r := range q.requests {
		if r.txnID == tx.ID() {
			q.removeAt(i)
			q.cond.Broadcast()
			if mode == ModeShared {
				tx.RemoveSharedLock(rid)
			} else {
				tx.RemoveExclusiveLock(rid)
			}
			return true
		}
	}
	return false
}
