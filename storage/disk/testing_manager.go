package disk

import (
	"path/filepath"
	"testing"
)

// TestingNewManager initializes a disk manager backed by a file in a
// test-scoped temporary directory
func TestingNewManager(t *testing.T) (*Manager, error) {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "data.db"))
}
