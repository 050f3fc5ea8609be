package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/transaction"
)

// stubLookup is a fixed id -> transaction table for tests that need
// hand-picked transaction ids
type stubLookup struct {
	txns map[transaction.ID]*transaction.Tx
}

func newStubLookup(txns ...*transaction.Tx) *stubLookup {
	l := &stubLookup{txns: make(map[transaction.ID]*transaction.Tx)}
	for _, tx := range txns {
		l.txns[tx.ID()] = tx
	}
	return l
}

func (l *stubLookup) Transaction(id transaction.ID) *transaction.Tx {
	return l.txns[id]
}

var testRID = common.NewRID(common.PageID(1), 0)

func TestLockSharedBasic(t *testing.T) {
	tx := transaction.NewTx(0, transaction.RepeatableRead)
	m := NewManager(newStubLookup(tx))

	assert.True(t, m.LockShared(tx, testRID))
	assert.True(t, tx.IsSharedLocked(testRID))
	assert.Equal(t, transaction.StateGrowing, tx.State())

	// re-acquiring an already held shared lock succeeds
	assert.True(t, m.LockShared(tx, testRID))

	assert.True(t, m.Unlock(tx, testRID))
	assert.False(t, tx.IsSharedLocked(testRID))
	assert.Equal(t, transaction.StateShrinking, tx.State())
}

func TestLockSharedRefusedForReadUncommitted(t *testing.T) {
	tx := transaction.NewTx(0, transaction.ReadUncommitted)
	m := NewManager(newStubLookup(tx))

	assert.False(t, m.LockShared(tx, testRID))
	assert.Equal(t, transaction.StateAborted, tx.State())
}

func TestLockAfterShrinkingAborts(t *testing.T) {
	tx := transaction.NewTx(0, transaction.RepeatableRead)
	other := common.NewRID(common.PageID(2), 0)
	m := NewManager(newStubLookup(tx))

	require.True(t, m.LockShared(tx, testRID))
	require.True(t, m.Unlock(tx, testRID))
	require.Equal(t, transaction.StateShrinking, tx.State())

	// strict 2PL: no lock may be acquired once shrinking
	assert.False(t, m.LockShared(tx, other))
	assert.Equal(t, transaction.StateAborted, tx.State())
}

func TestSharedLockReleasedEagerlyUnderReadCommitted(t *testing.T) {
	tx := transaction.NewTx(0, transaction.ReadCommitted)
	m := NewManager(newStubLookup(tx))

	require.True(t, m.LockShared(tx, testRID))
	require.True(t, m.Unlock(tx, testRID))
	// releasing a shared lock does not end the growing phase here
	assert.Equal(t, transaction.StateGrowing, tx.State())

	assert.True(t, m.LockShared(tx, testRID))
}

func TestLockExclusiveConflictIsExclusive(t *testing.T) {
	t0 := transaction.NewTx(0, transaction.RepeatableRead)
	t1 := transaction.NewTx(1, transaction.RepeatableRead)
	m := NewManager(newStubLookup(t0, t1))

	require.True(t, m.LockExclusive(t0, testRID))
	// the younger exclusive requester dies instead of waiting
	assert.False(t, m.LockExclusive(t1, testRID))
	assert.Equal(t, transaction.StateAborted, t1.State())
	// the older holder is untouched
	assert.True(t, t0.IsExclusiveLocked(testRID))
}

func TestOlderExclusiveWoundsYoungerHolder(t *testing.T) {
	t0 := transaction.NewTx(0, transaction.RepeatableRead)
	t1 := transaction.NewTx(1, transaction.RepeatableRead)
	m := NewManager(newStubLookup(t0, t1))

	require.True(t, m.LockExclusive(t1, testRID))

	// the older transaction wounds the younger holder and takes the lock
	assert.True(t, m.LockExclusive(t0, testRID))
	assert.Equal(t, transaction.StateAborted, t1.State())
	assert.False(t, t1.IsExclusiveLocked(testRID))
	assert.True(t, t0.IsExclusiveLocked(testRID))

	// the wounded transaction's later calls fail
	assert.False(t, m.LockShared(t1, testRID))
	assert.False(t, m.Unlock(t1, testRID))
}

func TestWoundWaitSchedule(t *testing.T) {
	// T1 holds X. T2 requests S and waits. T0 requests X: T1 is wounded,
	// T0 is granted. T2 keeps waiting behind T0 and acquires S only after
	// T0 unlocks.
	t0 := transaction.NewTx(0, transaction.RepeatableRead)
	t1 := transaction.NewTx(1, transaction.RepeatableRead)
	t2 := transaction.NewTx(2, transaction.RepeatableRead)
	m := NewManager(newStubLookup(t0, t1, t2))

	require.True(t, m.LockExclusive(t1, testRID))

	t2Granted := make(chan bool, 1)
	go func() {
		t2Granted <- m.LockShared(t2, testRID)
	}()

	// let T2 reach its wait
	for {
		m.mu.Lock()
		waiting := len(m.queues[testRID].requests) == 2
		m.mu.Unlock()
		if waiting {
			break
		}
		time.Sleep(time.Millisecond)
	}

	assert.True(t, m.LockExclusive(t0, testRID))
	assert.Equal(t, transaction.StateAborted, t1.State())

	// T2 must still be blocked behind T0's exclusive lock
	select {
	case <-t2Granted:
		t.Fatal("T2 acquired the shared lock while T0 held exclusive")
	case <-time.After(20 * time.Millisecond):
	}

	assert.True(t, m.Unlock(t0, testRID))
	assert.True(t, <-t2Granted)
	assert.True(t, t2.IsSharedLocked(testRID))
}

func TestUpgradeWoundsYoungerSharer(t *testing.T) {
	// scenario: T1 and T2 both hold S. T1 upgrades: T2 is wounded and T1
	// gets X. T2's subsequent unlock reports false.
	t1 := transaction.NewTx(1, transaction.RepeatableRead)
	t2 := transaction.NewTx(2, transaction.RepeatableRead)
	m := NewManager(newStubLookup(t1, t2))

	require.True(t, m.LockShared(t1, testRID))
	require.True(t, m.LockShared(t2, testRID))

	assert.True(t, m.LockUpgrade(t1, testRID))
	assert.True(t, t1.IsExclusiveLocked(testRID))
	assert.False(t, t1.IsSharedLocked(testRID))
	assert.Equal(t, transaction.StateAborted, t2.State())

	assert.False(t, m.Unlock(t2, testRID))
	assert.True(t, m.Unlock(t1, testRID))
}

func TestConcurrentUpgradeRefused(t *testing.T) {
	t1 := transaction.NewTx(1, transaction.RepeatableRead)
	m := NewManager(newStubLookup(t1))

	require.True(t, m.LockShared(t1, testRID))

	// simulate an in-flight upgrade on the same rid
	m.mu.Lock()
	m.queues[testRID].upgrading = true
	m.mu.Unlock()

	assert.False(t, m.LockUpgrade(t1, testRID))
	assert.Equal(t, transaction.StateAborted, t1.State())
}

func TestExclusiveGrantIsNeverShared(t *testing.T) {
	// hammer one rid from many transactions while sampling the queue:
	// a granted exclusive entry must always be the only granted entry
	reg := transaction.NewRegistry()
	m := NewManager(reg)
	reg.BindLockManager(m)

	stop := make(chan struct{})
	violations := make(chan string, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			m.mu.Lock()
			if q, ok := m.queues[testRID]; ok {
				granted := 0
				exclusive := 0
				for _, r := range q.requests {
					if r.granted {
						granted++
						if r.mode == ModeExclusive {
							exclusive++
						}
					}
				}
				if exclusive > 1 || (exclusive == 1 && granted > 1) {
					select {
					case violations <- "exclusive grant coexists with another grant":
					default:
					}
				}
			}
			m.mu.Unlock()
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := reg.Begin(transaction.RepeatableRead)
			var ok bool
			if i%2 == 0 {
				ok = m.LockExclusive(tx, testRID)
			} else {
				ok = m.LockShared(tx, testRID)
			}
			if !ok {
				return
			}
			time.Sleep(time.Millisecond)
			m.Unlock(tx, testRID)
		}(i)
	}
	wg.Wait()
	close(stop)

	select {
	case v := <-violations:
		t.Fatal(v)
	default:
	}
}
