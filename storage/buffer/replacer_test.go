package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkihara/harudb/common"
)

func TestLRUVictimOrder(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	r.Unpin(4)
	assert.Equal(t, 4, r.Size())

	fid, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(1), fid)

	// 5 enters at the front; the victim is still the back of the order
	r.Unpin(5)
	fid, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(2), fid)
}

func TestLRUUnpinWhenFull(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	r.Unpin(4)
	// at capacity: further unpins are ignored
	r.Unpin(5)
	assert.Equal(t, 4, r.Size())

	fid, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(1), fid)
}

func TestLRUUnpinIdempotent(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	// repeated unpin must not refresh frame 1's position
	r.Unpin(1)
	assert.Equal(t, 2, r.Size())

	fid, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(1), fid)
}

func TestLRUPin(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	assert.Equal(t, 1, r.Size())
	// pin of an absent frame is a no-op
	r.Pin(7)
	assert.Equal(t, 1, r.Size())

	fid, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, common.FrameID(2), fid)
}

func TestLRUVictimEmpty(t *testing.T) {
	r := NewLRUReplacer(4)
	_, ok := r.Victim()
	assert.False(t, ok)
}
