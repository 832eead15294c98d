package host

import "sync/atomic"

// Map is the shared, copy-on-write table of known hosts. Reads never
// block writers and vice versa: every mutation builds a fresh map and
// atomically swaps it in, so a load-balancing policy mid-iteration over
// a snapshot is never disturbed by a concurrent topology update from the
// control connection.
type Map struct {
	v atomic.Value // holds map[string]*Host, keyed by Host.ID
}

// NewMap builds an empty Map.
func NewMap() *Map {
	m := &Map{}
	m.v.Store(map[string]*Host{})
	return m
}

func (m *Map) snapshot() map[string]*Host {
	return m.v.Load().(map[string]*Host)
}

// Get returns the host with the given id, or nil.
func (m *Map) Get(id string) *Host {
	return m.snapshot()[id]
}

// All returns every known host. The returned slice is a point-in-time
// snapshot; callers (load-balancing policies in particular) should treat
// it as immutable.
func (m *Map) All() []*Host {
	snap := m.snapshot()
	out := make([]*Host, 0, len(snap))
	for _, h := range snap {
		out = append(out, h)
	}
	return out
}

// Put adds or replaces a host by id.
func (m *Map) Put(h *Host) {
	for {
		old := m.snapshot()
		next := make(map[string]*Host, len(old)+1)
		for k, v := range old {
			next[k] = v
		}
		next[h.ID] = h
		if m.v.CompareAndSwap(old, next) {
			return
		}
	}
}

// Remove deletes a host by id, reporting whether it was present.
func (m *Map) Remove(id string) bool {
	for {
		old := m.snapshot()
		if _, ok := old[id]; !ok {
			return false
		}
		next := make(map[string]*Host, len(old)-1)
		for k, v := range old {
			if k != id {
				next[k] = v
			}
		}
		if m.v.CompareAndSwap(old, next) {
			return true
		}
	}
}

// Len reports the number of known hosts.
func (m *Map) Len() int { return len(m.snapshot()) }
