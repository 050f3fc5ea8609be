package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/buffer"
)

// transparentHash exposes the key's own bits to the directory so tests can
// steer bucket placement
func transparentHash(key int64) uint32 {
	return uint32(key)
}

func testingNewTable(t *testing.T, hash HashFunc) *Table {
	t.Helper()
	pool, err := buffer.TestingNewPool(t, 1, 64)
	require.Nil(t, err)
	return NewTable(pool, hash)
}

func TestTableInsertGet(t *testing.T) {
	ht := testingNewTable(t, nil)

	ok, err := ht.Insert(42, rid(1, 0))
	require.Nil(t, err)
	assert.True(t, ok)

	// duplicate pair rejected, same key with another value accepted
	ok, err = ht.Insert(42, rid(1, 0))
	require.Nil(t, err)
	assert.False(t, ok)
	ok, err = ht.Insert(42, rid(1, 1))
	require.Nil(t, err)
	assert.True(t, ok)

	values, err := ht.GetValue(42)
	require.Nil(t, err)
	assert.ElementsMatch(t, []common.RID{rid(1, 0), rid(1, 1)}, values)

	values, err = ht.GetValue(7)
	require.Nil(t, err)
	assert.Empty(t, values)
}

func TestTableInsertRemoveRoundTrip(t *testing.T) {
	ht := testingNewTable(t, nil)

	ok, err := ht.Insert(5, rid(1, 0))
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = ht.Insert(5, rid(1, 1))
	require.Nil(t, err)
	assert.True(t, ok)

	removed, err := ht.Remove(5, rid(1, 1))
	require.Nil(t, err)
	assert.True(t, removed)

	// removing an absent pair reports false
	removed, err = ht.Remove(5, rid(1, 1))
	require.Nil(t, err)
	assert.False(t, removed)

	values, err := ht.GetValue(5)
	require.Nil(t, err)
	assert.Equal(t, []common.RID{rid(1, 0)}, values)
}

func TestTableSplitsUnderPressure(t *testing.T) {
	ht := testingNewTable(t, transparentHash)

	// every key is congruent to 0 mod 4, so the first two split rounds
	// cannot separate them; inserts keep splitting until bit 2 divides
	// the load
	n := BucketCapacity + 1
	for i := 0; i < n; i++ {
		ok, err := ht.Insert(int64(4*i), rid(1, uint32(i)))
		require.Nil(t, err)
		require.True(t, ok)
	}

	depth, err := ht.GlobalDepth()
	require.Nil(t, err)
	assert.Equal(t, uint32(3), depth)
	assert.Nil(t, ht.VerifyIntegrity())

	for i := 0; i < n; i++ {
		values, err := ht.GetValue(int64(4 * i))
		require.Nil(t, err)
		assert.Equal(t, []common.RID{rid(1, uint32(i))}, values)
	}
}

func TestTableMergeShrinksDirectory(t *testing.T) {
	ht := testingNewTable(t, transparentHash)

	n := BucketCapacity + 1
	for i := 0; i < n; i++ {
		ok, err := ht.Insert(int64(4*i), rid(1, uint32(i)))
		require.Nil(t, err)
		require.True(t, ok)
	}

	for i := 0; i < n; i++ {
		removed, err := ht.Remove(int64(4*i), rid(1, uint32(i)))
		require.Nil(t, err)
		require.True(t, removed)
	}

	// a fully drained table collapses back to one bucket
	depth, err := ht.GlobalDepth()
	require.Nil(t, err)
	assert.Equal(t, uint32(0), depth)
	assert.Nil(t, ht.VerifyIntegrity())

	values, err := ht.GetValue(0)
	require.Nil(t, err)
	assert.Empty(t, values)
}

func TestTableDepthExhaustion(t *testing.T) {
	// a constant hash funnels every key into one bucket: splitting never
	// relieves pressure and the insert must fail once the local depth
	// hits the maximum
	ht := testingNewTable(t, func(int64) uint32 { return 0 })

	for i := 0; i < BucketCapacity; i++ {
		ok, err := ht.Insert(int64(i), rid(1, uint32(i)))
		require.Nil(t, err)
		require.True(t, ok)
	}
	_, err := ht.Insert(int64(BucketCapacity), rid(1, uint32(BucketCapacity)))
	assert.Equal(t, ErrDepthExhausted, err)
}

func TestTableConcurrentInserts(t *testing.T) {
	ht := testingNewTable(t, nil)

	const workers = 8
	const perWorker = 64
	done := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perWorker; i++ {
				key := int64(w*perWorker + i)
				if _, err := ht.Insert(key, rid(1, uint32(key))); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	for w := 0; w < workers; w++ {
		<-done
	}

	for key := int64(0); key < workers*perWorker; key++ {
		values, err := ht.GetValue(key)
		require.Nil(t, err)
		assert.Equal(t, []common.RID{rid(1, uint32(key))}, values)
	}
	assert.Nil(t, ht.VerifyIntegrity())
}
