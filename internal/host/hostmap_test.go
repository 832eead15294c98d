package host

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PutGetRemove(t *testing.T) {
	m := NewMap()
	assert.Equal(t, 0, m.Len())

	h := New("id1", "10.0.0.1:9042")
	m.Put(h)

	assert.Equal(t, 1, m.Len())
	assert.Same(t, h, m.Get("id1"))
	assert.Nil(t, m.Get("missing"))

	require.True(t, m.Remove("id1"))
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Remove("id1"), "removing an absent id reports false")
}

func TestMap_All(t *testing.T) {
	m := NewMap()
	m.Put(New("1", "a"))
	m.Put(New("2", "b"))

	all := m.All()
	require.Len(t, all, 2)

	ids := map[string]bool{}
	for _, h := range all {
		ids[h.ID] = true
	}
	assert.True(t, ids["1"])
	assert.True(t, ids["2"])
}

func TestMap_SnapshotIsolation(t *testing.T) {
	m := NewMap()
	m.Put(New("1", "a"))

	snap := m.All()
	m.Put(New("2", "b"))

	assert.Len(t, snap, 1, "a previously taken snapshot is unaffected by a later Put")
	assert.Equal(t, 2, m.Len())
}

func TestMap_ConcurrentPutIsSafe(t *testing.T) {
	m := NewMap()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			m.Put(New(id, id))
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, m.Len(), 26)
}
