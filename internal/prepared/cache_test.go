package prepared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_BindAndLookup(t *testing.T) {
	c := New(DefaultConfig())

	_, ok := c.Lookup("conn1", "select 1")
	assert.False(t, ok)

	c.Bind("conn1", "select 1", "ks", []byte{1, 2, 3})
	id, ok := c.Lookup("conn1", "select 1")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, id)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestCache_BindingsScopedPerConnection(t *testing.T) {
	c := New(DefaultConfig())
	c.Bind("conn1", "select 1", "ks", []byte{9})

	_, ok := c.Lookup("conn2", "select 1")
	assert.False(t, ok, "a binding on one connection is not visible on another")
}

func TestCache_KnownTextsIsGlobal(t *testing.T) {
	c := New(DefaultConfig())
	c.Bind("conn1", "select 1", "ks1", []byte{1})
	c.Bind("conn2", "select 2", "ks2", []byte{2})

	known := c.KnownTexts()
	require.Len(t, known, 2)
	assert.Equal(t, "ks1", known["select 1"])
	assert.Equal(t, "ks2", known["select 2"])
}

func TestCache_Invalidate(t *testing.T) {
	c := New(DefaultConfig())
	c.Bind("conn1", "select 1", "ks", []byte{1})

	c.Invalidate("conn1", "select 1")
	_, ok := c.Lookup("conn1", "select 1")
	assert.False(t, ok)

	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestCache_ForgetConnectionDropsOnlyThatConnsBindings(t *testing.T) {
	c := New(DefaultConfig())
	c.Bind("conn1", "select 1", "ks", []byte{1})
	c.Bind("conn2", "select 1", "ks", []byte{2})

	c.ForgetConnection("conn1")

	_, ok := c.Lookup("conn1", "select 1")
	assert.False(t, ok)

	id, ok := c.Lookup("conn2", "select 1")
	require.True(t, ok)
	assert.Equal(t, []byte{2}, id)

	known := c.KnownTexts()
	assert.Contains(t, known, "select 1", "forgetting a connection does not un-know a text")
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(Config{MaxPerConnection: 2})

	c.Bind("conn1", "a", "ks", []byte{1})
	c.Bind("conn1", "b", "ks", []byte{2})
	c.Bind("conn1", "c", "ks", []byte{3}) // evicts "a", the least recently used

	_, ok := c.Lookup("conn1", "a")
	assert.False(t, ok, "oldest binding evicted once the per-connection limit is exceeded")

	_, ok = c.Lookup("conn1", "b")
	assert.True(t, ok)
	_, ok = c.Lookup("conn1", "c")
	assert.True(t, ok)
}

func TestCache_LRUTouchOnLookupDelaysEviction(t *testing.T) {
	c := New(Config{MaxPerConnection: 2})

	c.Bind("conn1", "a", "ks", []byte{1})
	c.Bind("conn1", "b", "ks", []byte{2})
	c.Lookup("conn1", "a") // touch "a", making "b" the least recently used
	c.Bind("conn1", "c", "ks", []byte{3})

	_, ok := c.Lookup("conn1", "b")
	assert.False(t, ok, "b should have been evicted instead of a")
	_, ok = c.Lookup("conn1", "a")
	assert.True(t, ok)
}

func TestDefaultConfig_UsedWhenZeroValue(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultConfig().MaxPerConnection, c.cfg.MaxPerConnection)
}
