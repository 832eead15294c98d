// Package pool manages the set of connections opened to a single host,
// sized by distance classification, with shared-future creation and
// reconnection-on-defunct.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/lirium-labs/cqldriver/internal/clog"
	"github.com/lirium-labs/cqldriver/internal/conn"
	"github.com/lirium-labs/cqldriver/internal/host"
)

// ErrBusyConnection is returned by Borrow when every connection in the
// pool is saturated; the request handler should try the next host.
var ErrBusyConnection = fmt.Errorf("pool: all connections busy")

// ErrPoolEmpty is returned by Borrow when the pool holds no live
// connections at all (host is DOWN or not yet dialed).
var ErrPoolEmpty = fmt.Errorf("pool: no connections")

// SizeConfig holds the (core, max) connection counts configured per
// distance classification. target sizes a pool to the core count;
// ignored hosts get 0.
type SizeConfig struct {
	LocalCore, LocalMax   int
	RemoteCore, RemoteMax int
}

func DefaultSizeConfig() SizeConfig {
	return SizeConfig{LocalCore: 1, LocalMax: 2, RemoteCore: 1, RemoteMax: 1}
}

func (s SizeConfig) target(d host.Distance) int {
	switch d {
	case host.DistanceLocal:
		return s.LocalCore
	case host.DistanceRemote:
		return s.RemoteCore
	default:
		return 0
	}
}

// DialFunc opens one new connection to a host's endpoint; injected so the
// pool doesn't depend on cluster-level config construction.
type DialFunc func(ctx context.Context, endpoint string) (*conn.Connection, error)

// HostConnectionPool owns every Connection opened to one Host.
type HostConnectionPool struct {
	h        *host.Host
	sizes    SizeConfig
	dial     DialFunc
	log      *clog.Logger
	onDefunct func(*host.Host, *conn.Connection, error)

	mu          sync.Mutex
	conns       []*conn.Connection
	creating    bool
	creationGen int
	creationErr error
	waiters     []chan struct{}
}

func New(h *host.Host, sizes SizeConfig, dial DialFunc, log *clog.Logger, onDefunct func(*host.Host, *conn.Connection, error)) *HostConnectionPool {
	return &HostConnectionPool{h: h, sizes: sizes, dial: dial, log: log, onDefunct: onDefunct}
}

// Ensure opens connections up to the target for the host's current
// distance. Concurrent callers collapse onto the same in-flight creation
// via a generation counter functioning as a per-generation sync.Once:
// a caller that arrives mid-creation waits on a channel closed when that
// round finishes, rather than starting a second redundant round.
func (p *HostConnectionPool) Ensure(ctx context.Context) error {
	target := p.sizes.target(p.h.Distance())
	if target == 0 {
		return nil
	}

	p.mu.Lock()
	if len(p.conns) >= target {
		p.mu.Unlock()
		return nil
	}
	if p.creating {
		wait := make(chan struct{})
		p.waiters = append(p.waiters, wait)
		p.mu.Unlock()
		select {
		case <-wait:
			return p.creationErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.creating = true
	gen := p.creationGen
	need := target - len(p.conns)
	p.mu.Unlock()

	var wg sync.WaitGroup
	results := make(chan *conn.Connection, need)
	var errs error
	var errsMu sync.Mutex

	for i := 0; i < need; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.dial(ctx, p.h.Endpoint)
			if err != nil {
				errsMu.Lock()
				errs = multierror.Append(errs, err)
				errsMu.Unlock()
				return
			}
			results <- c
		}()
	}
	wg.Wait()
	close(results)

	var opened []*conn.Connection
	for c := range results {
		opened = append(opened, c)
	}

	p.mu.Lock()
	p.conns = append(p.conns, opened...)
	if len(opened) > 0 {
		p.h.MarkUp()
	} else if len(p.conns) == 0 {
		p.h.MarkDown()
	}
	var retErr error
	if len(opened) == 0 && errs != nil {
		retErr = fmt.Errorf("pool: all %d connection attempts to %s failed: %w", need, p.h.Endpoint, errs)
	}
	p.creating = false
	p.creationGen = gen + 1
	p.creationErr = retErr
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	if p.log != nil && len(opened) > 0 {
		p.log.Infof("pool", "opened %d/%d connections to %s", len(opened), need, p.h.Endpoint)
	}

	return retErr
}

// Borrow returns the connection with the fewest in-flight requests that
// still has a free stream id.
func (p *HostConnectionPool) Borrow() (*conn.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.conns) == 0 {
		return nil, ErrPoolEmpty
	}

	var best *conn.Connection
	bestInFlight := -1
	live := p.conns[:0]
	for _, c := range p.conns {
		if c.IsClosed() {
			continue
		}
		live = append(live, c)
		if !c.HasCapacity() {
			continue
		}
		if in := c.InFlight(); best == nil || in < bestInFlight {
			best, bestInFlight = c, in
		}
	}
	p.conns = live

	if best == nil {
		if len(live) == 0 {
			return nil, ErrPoolEmpty
		}
		return nil, ErrBusyConnection
	}
	return best, nil
}

// Size reports the number of live connections currently held.
func (p *HostConnectionPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// HandleDefunct removes a defunct connection from the pool and notifies
// the caller (the session's reconnection driver) so it can clear prepared
// bindings and, if the host has no connections left, start a
// reconnection schedule.
func (p *HostConnectionPool) HandleDefunct(c *conn.Connection, err error) {
	p.mu.Lock()
	next := p.conns[:0]
	for _, existing := range p.conns {
		if existing != c {
			next = append(next, existing)
		}
	}
	p.conns = next
	empty := len(p.conns) == 0
	p.mu.Unlock()

	if empty {
		p.h.MarkDown()
	}
	if p.onDefunct != nil {
		p.onDefunct(p.h, c, err)
	}
}

// CloseAll shuts every connection down without a drain grace window, used
// during session Shutdown.
func (p *HostConnectionPool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
