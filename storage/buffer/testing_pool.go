package buffer

import (
	"testing"

	"github.com/mkihara/harudb/storage/disk"
)

// TestingNewInstance initializes a standalone instance over a throwaway
// data file
func TestingNewInstance(t *testing.T, poolSize int) (*Instance, error) {
	t.Helper()
	dm, err := disk.TestingNewManager(t)
	if err != nil {
		return nil, err
	}
	return NewInstance(poolSize, 1, 0, dm), nil
}

// TestingNewPool initializes a sharded pool over a throwaway data file
func TestingNewPool(t *testing.T, numInstances, poolSize int) (*Pool, error) {
	t.Helper()
	dm, err := disk.TestingNewManager(t)
	if err != nil {
		return nil, err
	}
	return NewPool(numInstances, poolSize, dm), nil
}
