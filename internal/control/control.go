// Package control owns the single privileged connection used for
// topology and schema discovery and for the server-pushed event stream,
// and drives its own reconnection independent of the request-serving
// host pools.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lirium-labs/cqldriver/internal/clog"
	"github.com/lirium-labs/cqldriver/internal/conn"
	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/lirium-labs/cqldriver/internal/protocol"
	"github.com/lirium-labs/cqldriver/policies/addresstranslator"
	"github.com/lirium-labs/cqldriver/policies/reconnection"
)

// Config bundles the knobs Connection's own Dial/auth config can't carry
// (the control layer's policies and optional contact-points file).
type Config struct {
	ContactPoints       []string
	DialConn            func(ctx context.Context, endpoint string, onEvent func(*protocol.Event)) (*conn.Connection, error)
	Translator           addresstranslator.Translator
	ReconnectionPolicy   reconnection.Policy
	ContactPointsFile    string // optional, watched via fsnotify
	Logger               *clog.Logger
}

// Control owns exactly one Connection at a time, preferentially to the
// initial contact points, then to any UP host.
type Control struct {
	cfg   Config
	hosts *host.Map
	log   *clog.Logger

	mu          sync.Mutex
	current     *conn.Connection
	currentHost string
	lastLiveAny bool // whether any attach has succeeded; later attaches try UP hosts instead of contact points

	coalesce *eventCoalescer
	watcher  *fsnotify.Watcher

	stopped bool
	stopCh  chan struct{}
}

func New(cfg Config, hosts *host.Map) *Control {
	if cfg.Translator == nil {
		cfg.Translator = addresstranslator.Identity{}
	}
	if cfg.ReconnectionPolicy == nil {
		cfg.ReconnectionPolicy = reconnection.NewExponentialPolicy(time.Second, 2*time.Minute, false)
	}
	c := &Control{cfg: cfg, hosts: hosts, log: cfg.Logger, stopCh: make(chan struct{})}
	c.coalesce = newEventCoalescer(c.refreshTopology)
	return c
}

// Start dials the first reachable contact point, performs the initial
// discovery, and (if configured) begins watching the contact-points
// file, so that a change to it schedules a topology refresh.
func (c *Control) Start(ctx context.Context) error {
	if err := c.attach(ctx); err != nil {
		return err
	}
	if c.cfg.ContactPointsFile != "" {
		if err := c.watchContactPointsFile(); err != nil {
			c.log.Warnf("control", "contact points file watch disabled: %v", err)
		}
	}
	return nil
}

func (c *Control) attach(ctx context.Context) error {
	candidates := c.cfg.ContactPoints
	if c.lastLiveAny {
		live := c.hosts.All()
		if len(live) > 0 {
			candidates = nil
			for _, h := range live {
				if h.IsUp() {
					candidates = append(candidates, h.Endpoint)
				}
			}
		}
	}

	var lastErr error
	for _, endpoint := range candidates {
		cn, err := c.cfg.DialConn(ctx, endpoint, c.onEvent)
		if err != nil {
			lastErr = err
			continue
		}
		c.mu.Lock()
		c.current = cn
		c.currentHost = endpoint
		c.mu.Unlock()

		if err := c.refreshTopologySync(ctx, endpoint); err != nil {
			c.log.Warnf("control", "initial discovery against %s failed: %v", endpoint, err)
			lastErr = err
			cn.Close()
			continue
		}
		c.lastLiveAny = true
		c.log.Infof("control", "control connection attached to %s", endpoint)
		return nil
	}
	return fmt.Errorf("control: no contact point reachable: %w", lastErr)
}

func (c *Control) onEvent(ev *protocol.Event) {
	applyEvent(ev, c.hosts, c.coalesce, c.log)
}

// refreshTopology is the debounced entry point invoked by eventCoalescer;
// it re-runs discovery against the current connection in the background.
func (c *Control) refreshTopology() {
	c.mu.Lock()
	endpoint := c.currentHost
	c.mu.Unlock()
	if endpoint == "" {
		return
	}
	if err := c.refreshTopologySync(context.Background(), endpoint); err != nil {
		c.log.Warnf("control", "topology refresh failed: %v", err)
	}
}

func (c *Control) refreshTopologySync(ctx context.Context, contactEndpoint string) error {
	c.mu.Lock()
	cn := c.current
	c.mu.Unlock()
	if cn == nil {
		return fmt.Errorf("control: no active connection")
	}

	discovered, err := discover(ctx, cn, contactEndpoint, c.cfg.Translator)
	if err != nil {
		return err
	}
	for _, h := range discovered {
		h.MarkUp()
		c.hosts.Put(h)
	}
	return nil
}

// watchContactPointsFile schedules a debounced topology refresh against
// the current control connection whenever the contact-points file is
// written or created. The file's contents are not read; no hosts are
// added from it.
func (c *Control) watchContactPointsFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("control: create fsnotify watcher: %w", err)
	}
	if err := w.Add(c.cfg.ContactPointsFile); err != nil {
		w.Close()
		return fmt.Errorf("control: watch %s: %w", c.cfg.ContactPointsFile, err)
	}
	c.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					c.log.Infof("control", "contact points file changed, scheduling refresh")
					c.coalesce.notify()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				c.log.Warnf("control", "contact points watcher error: %v", err)
			case <-c.stopCh:
				return
			}
		}
	}()
	return nil
}

// Reconnect runs the configured reconnection policy against the full
// host list until one attach succeeds, excluding contact-only entries
// once any live host exists. Once reattached, it never fails back to an
// earlier host on its own.
func (c *Control) Reconnect(ctx context.Context) {
	schedule := c.cfg.ReconnectionPolicy.NewSchedule()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(schedule.NextDelay()):
		}
		if err := c.attach(ctx); err == nil {
			return
		}
	}
}

// Stop closes the control connection and any contact-points watcher.
func (c *Control) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cur := c.current
	c.mu.Unlock()

	close(c.stopCh)
	if c.watcher != nil {
		c.watcher.Close()
	}
	if cur != nil {
		cur.Close()
	}
}
