// Package cqldriver is the public surface of a CQL native-protocol
// client driver: Connect to a cluster, obtain a Session, and
// Execute/Prepare/Batch/Stream queries against it. Everything under
// internal/ and policies/ is the request-execution substrate this
// package wires together.
package cqldriver

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lirium-labs/cqldriver/internal/clog"
	"github.com/lirium-labs/cqldriver/internal/conn"
	"github.com/lirium-labs/cqldriver/internal/control"
	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/lirium-labs/cqldriver/internal/pool"
	"github.com/lirium-labs/cqldriver/internal/prepared"
	"github.com/lirium-labs/cqldriver/internal/protocol"
	"github.com/lirium-labs/cqldriver/policies/addresstranslator"
	"github.com/lirium-labs/cqldriver/policies/loadbalancing"
	"github.com/lirium-labs/cqldriver/policies/reconnection"
	"github.com/lirium-labs/cqldriver/policies/retry"
	"github.com/lirium-labs/cqldriver/policies/speculativeexecution"
	"github.com/lirium-labs/cqldriver/policies/timestamp"
)

// poolSyncInterval is how often the cluster rescans its HostMap for hosts
// that don't have a pool yet (e.g. a NEW_NODE the control connection
// applied between ticks). Topology events that carry UP/DOWN apply
// directly to the Host without waiting for a tick; this is the backstop
// for brand-new hosts needing a pool created at all.
const poolSyncInterval = 5 * time.Second

// ClusterConfig is the cluster-wide configuration layer, shaped after the
// pack's gocql-style ClusterConfig (contact hosts, PoolSizes for
// NumConns-style pool sizing, ConnectTimeout/ReadTimeout) per
// SPEC_FULL.md §2.1. It has no Events sub-struct.
type ClusterConfig struct {
	ContactPoints   []string
	Port            int
	Keyspace        string
	Username        string
	Password        string
	LocalDatacenter string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	TLS *tls.Config

	CompressionPreference    string
	MaxRequestsPerConnection int16
	HeartbeatInterval        time.Duration
	HeartbeatTimeout         time.Duration

	PoolSizes pool.SizeConfig

	LoadBalancingPolicy        loadbalancing.Policy
	ReconnectionPolicy         reconnection.Policy
	RetryPolicy                retry.Policy
	SpeculativeExecutionPolicy speculativeexecution.Policy
	AddressTranslator          addresstranslator.Translator
	TimestampGenerator         timestamp.Generator

	MaxConcurrentSpeculativeExecutions int64

	PreparedCache prepared.Config

	// ExecutionProfiles lets callers pre-register named policy/consistency
	// bundles, resolved at Execute time via ExecutionOptions.ExecutionProfile
	// (spec §6, supplemented per SPEC_FULL.md §3.1).
	ExecutionProfiles map[string]ExecutionProfile

	ContactPointsFile string // optional, watched; a change schedules a topology refresh (contents not read)

	Debug bool

	ApplicationName    string
	ApplicationVersion string
	ClientID           string
}

// ExecutionProfile bundles the policies and defaults SPEC_FULL.md §3.1
// names: load balancing, retry, speculative execution, consistency, and
// read timeout, resolved per call instead of cluster-wide.
type ExecutionProfile struct {
	LoadBalancingPolicy        loadbalancing.Policy
	RetryPolicy                retry.Policy
	SpeculativeExecutionPolicy speculativeexecution.Policy
	Consistency                protocol.Consistency
	ReadTimeout                time.Duration
}

// DefaultClusterConfig returns a ClusterConfig with the same defaults the
// teacher's Default*Config constructors establish (client/driver.go),
// adapted to this driver's policy surface: round-robin load balancing if
// no local datacenter is given (DC-aware otherwise), exponential
// reconnection with jitter, the default idempotence-blind retry policy,
// and no speculative execution.
func DefaultClusterConfig(contactPoints ...string) ClusterConfig {
	return ClusterConfig{
		ContactPoints:            contactPoints,
		Port:                     9042,
		ConnectTimeout:           5 * time.Second,
		ReadTimeout:              10 * time.Second,
		MaxRequestsPerConnection: 32768,
		HeartbeatInterval:        30 * time.Second,
		HeartbeatTimeout:         10 * time.Second,
		PoolSizes:                pool.DefaultSizeConfig(),
		ReconnectionPolicy:       reconnection.NewExponentialPolicy(time.Second, 2*time.Minute, false),
		RetryPolicy:              retry.DefaultPolicy{},
		SpeculativeExecutionPolicy: speculativeexecution.NonePolicy{},
		AddressTranslator:          addresstranslator.Identity{},
		TimestampGenerator:         timestamp.NewMonotonicGenerator(),
		PreparedCache:              prepared.DefaultConfig(),
		ApplicationVersion:         "1.0",
		ClientID:                  "cqldriver",
	}
}

func (cfg ClusterConfig) withDefaults() ClusterConfig {
	def := DefaultClusterConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.MaxRequestsPerConnection == 0 {
		cfg.MaxRequestsPerConnection = def.MaxRequestsPerConnection
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.PoolSizes == (pool.SizeConfig{}) {
		cfg.PoolSizes = def.PoolSizes
	}
	if cfg.ReconnectionPolicy == nil {
		cfg.ReconnectionPolicy = def.ReconnectionPolicy
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = def.RetryPolicy
	}
	if cfg.SpeculativeExecutionPolicy == nil {
		cfg.SpeculativeExecutionPolicy = def.SpeculativeExecutionPolicy
	}
	if cfg.AddressTranslator == nil {
		cfg.AddressTranslator = def.AddressTranslator
	}
	if cfg.TimestampGenerator == nil {
		cfg.TimestampGenerator = def.TimestampGenerator
	}
	if cfg.PreparedCache == (prepared.Config{}) {
		cfg.PreparedCache = def.PreparedCache
	}
	if cfg.LoadBalancingPolicy == nil {
		if cfg.LocalDatacenter != "" {
			cfg.LoadBalancingPolicy = loadbalancing.NewDCAwarePolicy(cfg.LocalDatacenter)
		} else {
			cfg.LoadBalancingPolicy = loadbalancing.NewRoundRobinPolicy()
		}
	}
	if cfg.ApplicationVersion == "" {
		cfg.ApplicationVersion = def.ApplicationVersion
	}
	if cfg.ClientID == "" {
		cfg.ClientID = def.ClientID
	}
	return cfg
}

func (cfg ClusterConfig) contactEndpoints() []string {
	out := make([]string, len(cfg.ContactPoints))
	for i, h := range cfg.ContactPoints {
		if strings.Contains(h, ":") {
			out[i] = h
		} else {
			out[i] = fmt.Sprintf("%s:%d", h, cfg.Port)
		}
	}
	return out
}

func (cfg ClusterConfig) authenticator() conn.Authenticator {
	if cfg.Username == "" && cfg.Password == "" {
		return nil
	}
	return conn.NewPlainTextAuthenticator(cfg.Username, cfg.Password)
}

func (cfg ClusterConfig) events() []protocol.RegisterEventType {
	return []protocol.RegisterEventType{
		protocol.EventTopologyChange,
		protocol.EventStatusChange,
		protocol.EventSchemaChange,
	}
}

// Cluster owns the driver-wide shared state: the HostMap, one connection
// pool per host, the control connection, and the prepared-statement
// cache every Session built from it shares. It is not exported as a
// separate constructor beyond Connect — a cluster always comes attached
// to the Session it serves (spec §6 names only Connect/Session, this
// split exists internally to keep pool/host bookkeeping out of Session).
type Cluster struct {
	cfg ClusterConfig
	log *clog.Logger

	hosts    *host.Map
	control  *control.Control
	prepared *prepared.Cache

	poolsMu sync.Mutex
	pools   map[string]*pool.HostConnectionPool

	specGate *semaphore.Weighted

	controlDefunct chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Connect dials the control connection against the configured contact
// points, performs initial topology discovery, opens connection pools to
// every discovered host, and returns a ready-to-use Session.
func Connect(ctx context.Context, cfg ClusterConfig) (*Session, error) {
	cfg = cfg.withDefaults()
	if len(cfg.ContactPoints) == 0 {
		return nil, &ArgumentError{Reason: "ClusterConfig.ContactPoints must not be empty"}
	}

	log := clog.New(cfg.Debug)

	cl := &Cluster{
		cfg:            cfg,
		log:            log,
		hosts:          host.NewMap(),
		prepared:       prepared.New(cfg.PreparedCache),
		pools:          make(map[string]*pool.HostConnectionPool),
		controlDefunct: make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
	if cfg.MaxConcurrentSpeculativeExecutions > 0 {
		cl.specGate = semaphore.NewWeighted(cfg.MaxConcurrentSpeculativeExecutions)
	}

	cl.control = control.New(control.Config{
		ContactPoints:      cfg.contactEndpoints(),
		DialConn:           cl.dialControlConn,
		Translator:         cfg.AddressTranslator,
		ReconnectionPolicy: cfg.ReconnectionPolicy,
		ContactPointsFile:  cfg.ContactPointsFile,
		Logger:             log,
	}, cl.hosts)

	if err := cl.control.Start(ctx); err != nil {
		return nil, fmt.Errorf("cqldriver: connect: %w", err)
	}

	cl.syncPools(ctx)
	go cl.monitorLoop(ctx)

	sess := &Session{
		cluster:        cl,
		defaultProfile: cfg.defaultProfile(),
		logSub:         make(chan clog.Entry, 256),
	}
	log.Subscribe(sess.logSub)
	return sess, nil
}

func (cfg ClusterConfig) defaultProfile() ExecutionProfile {
	return ExecutionProfile{
		LoadBalancingPolicy:        cfg.LoadBalancingPolicy,
		RetryPolicy:                cfg.RetryPolicy,
		SpeculativeExecutionPolicy: cfg.SpeculativeExecutionPolicy,
		Consistency:                protocol.ConsistencyQuorum,
		ReadTimeout:                cfg.ReadTimeout,
	}
}

func (cl *Cluster) dialControlConn(ctx context.Context, endpoint string, onEvent func(*protocol.Event)) (*conn.Connection, error) {
	return conn.Dial(ctx, endpoint, conn.Config{
		TLS:                   cl.cfg.TLS,
		ConnectTimeout:        cl.cfg.ConnectTimeout,
		Authenticator:         cl.cfg.authenticator(),
		CompressionPreference: cl.cfg.CompressionPreference,
		MaxRequestsPerConn:    cl.cfg.MaxRequestsPerConnection,
		HeartbeatInterval:     cl.cfg.HeartbeatInterval,
		HeartbeatTimeout:      cl.cfg.HeartbeatTimeout,
		Events:                cl.cfg.events(),
		OnEvent:               onEvent,
		OnDefunct: func(*conn.Connection, error) {
			select {
			case cl.controlDefunct <- struct{}{}:
			default:
			}
		},
		Logger: cl.log,
	})
}

// monitorLoop drives two background duties for the lifetime of the
// cluster: reattaching the control connection after it defuncts, and
// periodically scanning the HostMap for hosts that don't have a pool
// yet.
func (cl *Cluster) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(poolSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cl.stopCh:
			return
		case <-ctx.Done():
			return
		case <-cl.controlDefunct:
			cl.log.Warnf("cluster", "control connection lost, reconnecting")
			cl.control.Reconnect(ctx)
		case <-ticker.C:
			cl.syncPools(ctx)
		}
	}
}

// syncPools creates a HostConnectionPool (and kicks off its initial
// Ensure) for every host the control connection knows about that doesn't
// have one yet, and drops pools for hosts no longer present — the
// steady-state enforcement of "for every ignored host, pool size is 0"
// and "exactly one pool object per host".
func (cl *Cluster) syncPools(ctx context.Context) {
	known := cl.hosts.All()
	present := make(map[string]bool, len(known))

	for _, h := range known {
		present[h.ID] = true
		cl.poolsMu.Lock()
		_, exists := cl.pools[h.ID]
		cl.poolsMu.Unlock()
		if exists {
			continue
		}

		d := cl.cfg.LoadBalancingPolicy.Distance(h)
		h.SetDistance(d)
		p := cl.newPoolFor(h)
		cl.poolsMu.Lock()
		cl.pools[h.ID] = p
		cl.poolsMu.Unlock()

		if d == host.DistanceIgnored {
			continue
		}
		go func(h *host.Host, p *pool.HostConnectionPool) {
			if err := p.Ensure(ctx); err != nil {
				cl.log.Warnf("cluster", "initial connect to %s failed: %v", h.Endpoint, err)
				return
			}
			cl.reprepareHost(ctx, h, p)
		}(h, p)
	}

	cl.poolsMu.Lock()
	for id, p := range cl.pools {
		if !present[id] {
			p.CloseAll()
			delete(cl.pools, id)
		}
	}
	cl.poolsMu.Unlock()
}

// newPoolFor builds the pool for h, wiring its dial function to route
// defunct connections back to the very pool that opened them (the dial
// closure captures p by reference before p is assigned, which is safe
// since dial is only ever invoked from inside p.Ensure after New
// returns).
func (cl *Cluster) newPoolFor(h *host.Host) *pool.HostConnectionPool {
	var p *pool.HostConnectionPool
	dial := func(ctx context.Context, endpoint string) (*conn.Connection, error) {
		return conn.Dial(ctx, endpoint, conn.Config{
			TLS:                   cl.cfg.TLS,
			ConnectTimeout:        cl.cfg.ConnectTimeout,
			Authenticator:         cl.cfg.authenticator(),
			Keyspace:              cl.cfg.Keyspace,
			CompressionPreference: cl.cfg.CompressionPreference,
			MaxRequestsPerConn:    cl.cfg.MaxRequestsPerConnection,
			HeartbeatInterval:     cl.cfg.HeartbeatInterval,
			HeartbeatTimeout:      cl.cfg.HeartbeatTimeout,
			OnDefunct: func(c *conn.Connection, err error) {
				p.HandleDefunct(c, err)
			},
			Logger: cl.log,
		})
	}
	p = pool.New(h, cl.cfg.PoolSizes, dial, cl.log, cl.onHostDefunct)
	return p
}

// onHostDefunct is pool.HostConnectionPool's onDefunct hook: it drops
// every prepared binding recorded for the host (bindings are keyed by
// host endpoint, not by socket) and, if the host has gone fully DOWN,
// starts a reconnection schedule for it.
func (cl *Cluster) onHostDefunct(h *host.Host, c *conn.Connection, err error) {
	cl.prepared.ForgetConnection(h.Endpoint)
	if h.State() == host.StateDown {
		go cl.reconnectHost(h)
	}
}

// reconnectHost runs h's reconnection schedule until a fresh connection
// succeeds, then re-PREPAREs every known statement on it. p.Ensure has
// already marked h UP by then, so requests can be routed to h while the
// re-PREPAREs are still running.
func (cl *Cluster) reconnectHost(h *host.Host) {
	cl.poolsMu.Lock()
	p := cl.pools[h.ID]
	cl.poolsMu.Unlock()
	if p == nil {
		return
	}

	schedule := cl.cfg.ReconnectionPolicy.NewSchedule()
	for {
		select {
		case <-cl.stopCh:
			return
		case <-time.After(schedule.NextDelay()):
		}
		if h.State() == host.StateUp {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), cl.cfg.ConnectTimeout)
		err := p.Ensure(ctx)
		cancel()
		if err == nil {
			cl.log.Infof("cluster", "reconnected to %s", h.Endpoint)
			cl.reprepareHost(context.Background(), h, p)
			return
		}
	}
}

// reprepareHost issues PREPARE for every text ever successfully prepared
// on any connection, against a connection borrowed from h's pool; h is
// already UP and available for ordinary request routing meanwhile.
func (cl *Cluster) reprepareHost(ctx context.Context, h *host.Host, p *pool.HostConnectionPool) {
	texts := cl.prepared.KnownTexts()
	if len(texts) == 0 {
		return
	}
	c, err := p.Borrow()
	if err != nil {
		return
	}
	cl.log.Infof("prepared", "re-preparing all queries on host %s", h.Endpoint)
	for text, keyspace := range texts {
		resp, err := c.Send(ctx, protocol.OpPrepare, protocol.EncodePrepare(text, keyspace), 0)
		if err != nil {
			cl.log.Warnf("prepared", "re-PREPARE on %s failed for %q: %v", h.Endpoint, text, err)
			continue
		}
		prep, err := protocol.DecodePrepared(resp.Body)
		if err != nil {
			continue
		}
		cl.prepared.Bind(h.Endpoint, text, keyspace, prep.QueryID)
	}
}

// clusterPoolSource adapts Cluster to internal/request.PoolSource.
type clusterPoolSource struct{ cl *Cluster }

func (s clusterPoolSource) Borrow(h *host.Host) (*conn.Connection, error) {
	s.cl.poolsMu.Lock()
	p := s.cl.pools[h.ID]
	s.cl.poolsMu.Unlock()
	if p == nil {
		return nil, pool.ErrPoolEmpty
	}
	c, err := p.Borrow()
	if err != nil {
		return nil, err
	}
	h.IncInFlight()
	return c, nil
}

// shutdown tears the cluster down: stops the control connection and its
// background monitor, and closes every host's connections. Idempotent.
func (cl *Cluster) shutdown() {
	cl.stopOnce.Do(func() {
		close(cl.stopCh)
		cl.control.Stop()
		cl.poolsMu.Lock()
		pools := cl.pools
		cl.pools = nil
		cl.poolsMu.Unlock()
		for _, p := range pools {
			p.CloseAll()
		}
	})
}

