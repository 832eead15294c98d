package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamIDAllocator_AcquireRelease(t *testing.T) {
	a := newStreamIDAllocator(4)

	var got []int16
	for i := 0; i < 4; i++ {
		id, ok := a.Acquire()
		require.True(t, ok)
		got = append(got, id)
	}
	assert.Equal(t, 4, a.InUse())

	_, ok := a.Acquire()
	assert.False(t, ok, "exhausted allocator reports no id available")

	a.Release(got[0])
	assert.Equal(t, 3, a.InUse())

	id, ok := a.Acquire()
	require.True(t, ok)
	assert.Equal(t, got[0], id, "a released id is reused before any new one")
}

func TestStreamIDAllocator_NoDuplicateIDsOutstanding(t *testing.T) {
	a := newStreamIDAllocator(32)
	seen := make(map[int16]bool)
	for i := 0; i < 32; i++ {
		id, ok := a.Acquire()
		require.True(t, ok)
		assert.False(t, seen[id], "id %d handed out twice while still outstanding", id)
		seen[id] = true
	}
}

func TestStreamIDAllocator_ReleaseOutOfRangePanics(t *testing.T) {
	a := newStreamIDAllocator(4)
	assert.Panics(t, func() { a.Release(-1) })
	assert.Panics(t, func() { a.Release(4) })
}

func TestStreamIDAllocator_Capacity(t *testing.T) {
	a := newStreamIDAllocator(128)
	assert.EqualValues(t, 128, a.Capacity())
}
