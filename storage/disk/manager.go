/*
Disk manager deals with the single data file backing the store.
The file is a flat array of fixed-size pages; the byte offset of a page is
simply pageID * PageSize, so no block map is needed.

Reads of pages that were allocated but never written return a zero-filled
buffer: the file is extended lazily by the first write, and a short read
past the current end of file is not an error.

Deallocated page ids are kept in an in-memory free set and handed out again
by AllocatePage before the file is extended. The file itself is never
truncated; reclaiming physical space is a compaction concern out of scope
here.
*/
package disk

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/page"
)

// Manager manages the data file
type Manager struct {
	mu sync.Mutex
	// the data file
	file *os.File
	// next page id to hand out when the free set is empty
	nextPageID common.PageID
	// deallocated page ids available for reuse
	free map[common.PageID]struct{}
}

// NewManager opens (or creates) the data file at path
func NewManager(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "os.OpenFile failed")
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "f.Stat failed")
	}
	return &Manager{
		file:       f,
		nextPageID: common.PageID(fi.Size() / page.PageSize),
		free:       make(map[common.PageID]struct{}),
	}, nil
}

// ReadPage reads the page into buf.
// a page beyond the current end of file reads back as zeros.
func (m *Manager) ReadPage(pid common.PageID, buf *[page.PageSize]byte) error {
	if !pid.IsValid() {
		return errors.Errorf("invalid page id %d", pid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.file.ReadAt(buf[:], int64(pid)*page.PageSize)
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "file.ReadAt failed")
	}
	// zero-fill the tail of a short read
	for i := n; i < page.PageSize; i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage writes the page content to its offset, extending the file if
// necessary
func (m *Manager) WritePage(pid common.PageID, buf *[page.PageSize]byte) error {
	if !pid.IsValid() {
		return errors.Errorf("invalid page id %d", pid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.file.WriteAt(buf[:], int64(pid)*page.PageSize); err != nil {
		return errors.Wrap(err, "file.WriteAt failed")
	}
	return nil
}

// AllocatePage hands out a fresh page id, reusing a deallocated one when
// available
func (m *Manager) AllocatePage() common.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pid := range m.free {
		delete(m.free, pid)
		return pid
	}
	pid := m.nextPageID
	m.nextPageID++
	return pid
}

// DeallocatePage records the page id for reuse
func (m *Manager) DeallocatePage(pid common.PageID) {
	if !pid.IsValid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free[pid] = struct{}{}
}

// Sync flushes the file to stable storage
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return errors.Wrap(err, "file.Sync failed")
	}
	return nil
}

// Close syncs and closes the data file
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return errors.Wrap(err, "file.Sync failed")
	}
	if err := m.file.Close(); err != nil {
		return errors.Wrap(err, "file.Close failed")
	}
	return nil
}

// NumPages returns the number of page ids handed out so far
func (m *Manager) NumPages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.nextPageID)
}
