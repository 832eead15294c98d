// Package prepared tracks prepared-statement bindings: the server query
// id assigned to a text on a particular connection, and the full set of
// texts ever prepared so a reconnected host can have every statement
// re-PREPAREd on it.
//
// Adapted from the teacher's LRU+TTL query_cache.go: same doubly-linked
// LRU eviction list and hit/miss/eviction statistics shape, repurposed
// from caching query results to caching (connection, text) -> queryID
// bindings, and TTL dropped since a binding doesn't go stale on its own —
// it is only ever invalidated by an UNPREPARED response or a connection
// closing.
package prepared

import (
	"sync"
)

// Config bounds how many bindings are kept per connection before the
// least-recently-used one is evicted; a host re-PREPAREs on rejoin
// regardless, so eviction here only trades memory for an extra
// round-trip on the next use of an evicted text.
type Config struct {
	MaxPerConnection int
}

func DefaultConfig() Config {
	return Config{MaxPerConnection: 1000}
}

type entry struct {
	text    string
	queryID []byte
	prev    *entry
	next    *entry
}

type lruList struct {
	head, tail *entry
	size       int
}

func (l *lruList) addFront(e *entry) {
	if l.head == nil {
		l.head, l.tail = e, e
	} else {
		e.next = l.head
		l.head.prev = e
		l.head = e
	}
	l.size++
}

func (l *lruList) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
	l.size--
}

func (l *lruList) moveToFront(e *entry) {
	l.remove(e)
	l.addFront(e)
}

// connBindings is one connection's text -> queryID cache.
type connBindings struct {
	mu      sync.Mutex
	byText  map[string]*entry
	lru     lruList
	maxSize int
}

func newConnBindings(maxSize int) *connBindings {
	return &connBindings{byText: make(map[string]*entry), maxSize: maxSize}
}

func (b *connBindings) get(text string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.byText[text]
	if !ok {
		return nil, false
	}
	b.lru.moveToFront(e)
	return e.queryID, true
}

func (b *connBindings) put(text string, queryID []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byText[text]; ok {
		e.queryID = queryID
		b.lru.moveToFront(e)
		return
	}
	e := &entry{text: text, queryID: queryID}
	b.byText[text] = e
	b.lru.addFront(e)
	if b.lru.size > b.maxSize && b.lru.tail != nil {
		evicted := b.lru.tail
		b.lru.remove(evicted)
		delete(b.byText, evicted.text)
	}
}

func (b *connBindings) invalidate(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byText[text]; ok {
		b.lru.remove(e)
		delete(b.byText, text)
	}
}

func (b *connBindings) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.byText))
	for t := range b.byText {
		out = append(out, t)
	}
	return out
}

// Stats mirrors the teacher's CacheStats shape, scoped to prepared
// statement bindings rather than cached query results.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	KnownTexts int
}

// Cache is the driver-wide prepared statement registry: per-connection
// bindings plus the global set of every text ever prepared, consulted
// when a host rejoins so all known texts can be re-PREPAREd on it.
type Cache struct {
	cfg Config

	mu        sync.RWMutex
	perConn   map[string]*connBindings // keyed by a caller-chosen connection id
	knownTexts map[string]string       // text -> keyspace it was prepared against

	statsMu sync.Mutex
	stats   Stats
}

func New(cfg Config) *Cache {
	if cfg.MaxPerConnection <= 0 {
		cfg = DefaultConfig()
	}
	return &Cache{
		cfg:        cfg,
		perConn:    make(map[string]*connBindings),
		knownTexts: make(map[string]string),
	}
}

func (c *Cache) bindingsFor(connID string) *connBindings {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.perConn[connID]
	if !ok {
		b = newConnBindings(c.cfg.MaxPerConnection)
		c.perConn[connID] = b
	}
	return b
}

// Lookup returns the queryID bound to text on connID, if any.
func (c *Cache) Lookup(connID, text string) ([]byte, bool) {
	id, ok := c.bindingsFor(connID).get(text)
	c.statsMu.Lock()
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.statsMu.Unlock()
	return id, ok
}

// Bind records a successful PREPARE result for connID and registers the
// text as globally known so future host rejoins re-PREPARE it too.
func (c *Cache) Bind(connID, text, keyspace string, queryID []byte) {
	c.bindingsFor(connID).put(text, queryID)

	c.mu.Lock()
	c.knownTexts[text] = keyspace
	c.mu.Unlock()
}

// Invalidate drops connID's binding for text, used when the server
// responds UNPREPARED so the handler re-PREPAREs before re-EXECUTE.
func (c *Cache) Invalidate(connID, text string) {
	c.bindingsFor(connID).invalidate(text)
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
}

// ForgetConnection drops every binding for a closed or defuncted
// connection; the queryIDs were only ever meaningful on that socket.
func (c *Cache) ForgetConnection(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.perConn, connID)
}

// KnownTexts returns every (text, keyspace) pair ever successfully
// prepared on any connection, for re-PREPAREing on a rejoined host.
func (c *Cache) KnownTexts() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.knownTexts))
	for t, ks := range c.knownTexts {
		out[t] = ks
	}
	return out
}

func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	s := c.stats
	c.statsMu.Unlock()
	c.mu.RLock()
	s.KnownTexts = len(c.knownTexts)
	c.mu.RUnlock()
	return s
}
