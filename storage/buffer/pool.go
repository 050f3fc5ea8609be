/*
The sharded buffer pool owns a fixed number of independent instances and
routes every request by page id. Sharding exists purely to cut latch
contention: each instance has its own mutex, page table and replacer, so
fetches of unrelated pages proceed in parallel.

Routing is pageID % numInstances. Because each instance only allocates page
ids congruent to its own index, a page always routes back to the instance
that created it.
*/
package buffer

import (
	"sync/atomic"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/disk"
	"github.com/mkihara/harudb/storage/page"
)

// Pool is the sharded buffer pool
type Pool struct {
	instances []*Instance
	// rotating start cursor for NewPage round-robin
	startIndex uint32
}

// NewPool initializes numInstances instances of poolSize frames each
func NewPool(numInstances, poolSize int, dm *disk.Manager) *Pool {
	instances := make([]*Instance, numInstances)
	for i := 0; i < numInstances; i++ {
		instances[i] = NewInstance(poolSize, uint32(numInstances), uint32(i), dm)
	}
	return &Pool{instances: instances}
}

// instanceFor returns the instance responsible for the page id
func (p *Pool) instanceFor(pid common.PageID) *Instance {
	return p.instances[uint32(pid)%uint32(len(p.instances))]
}

// FetchPage routes to the owning instance
func (p *Pool) FetchPage(pid common.PageID) (*page.Page, error) {
	return p.instanceFor(pid).FetchPage(pid)
}

// UnpinPage routes to the owning instance
func (p *Pool) UnpinPage(pid common.PageID, isDirty bool) bool {
	return p.instanceFor(pid).UnpinPage(pid, isDirty)
}

// FlushPage routes to the owning instance
func (p *Pool) FlushPage(pid common.PageID) (bool, error) {
	return p.instanceFor(pid).FlushPage(pid)
}

// DeletePage routes to the owning instance
func (p *Pool) DeletePage(pid common.PageID) (bool, error) {
	return p.instanceFor(pid).DeletePage(pid)
}

// NewPage probes the instances round-robin, starting at a cursor that
// rotates on every call, and returns the first success. fails only after a
// full cycle found every instance exhausted.
func (p *Pool) NewPage() (*page.Page, error) {
	n := uint32(len(p.instances))
	start := (atomic.AddUint32(&p.startIndex, 1) - 1) % n
	var lastErr error
	for i := uint32(0); i < n; i++ {
		pg, err := p.instances[(start+i)%n].NewPage()
		if err == nil {
			return pg, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// FlushAllPages flushes every instance
func (p *Pool) FlushAllPages() error {
	for _, in := range p.instances {
		if err := in.FlushAllPages(); err != nil {
			return err
		}
	}
	return nil
}

// PoolSize returns the total number of frames across instances
func (p *Pool) PoolSize() int {
	total := 0
	for _, in := range p.instances {
		total += in.PoolSize()
	}
	return total
}
