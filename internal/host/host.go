// Package host models cluster topology: individual hosts and the
// copy-on-write map of them shared across the session.
package host

import (
	"sync"
	"sync/atomic"
	"time"
)

// Distance is the load-balancing policy's classification of a host,
// authoritative for connection pool sizing.
type Distance int

const (
	DistanceLocal Distance = iota
	DistanceRemote
	DistanceIgnored
)

func (d Distance) String() string {
	switch d {
	case DistanceLocal:
		return "LOCAL"
	case DistanceRemote:
		return "REMOTE"
	default:
		return "IGNORED"
	}
}

// State is the host's liveness as observed by its connection pool.
type State int

const (
	StateUp State = iota
	StateDown
	StateUnknown // contact point never yet dialed
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "UP"
	case StateDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// Host is one cluster node: its identity, topology metadata, and the
// liveness/pool-facing counters the load-balancing and retry policies
// read. Host itself never holds a *pool.HostConnectionPool directly —
// the pool layer keys its own map by host ID — to keep this package free
// of an import cycle with internal/pool.
type Host struct {
	ID               string // host_id from system.local/system.peers
	Endpoint         string // translated rpc_address:port
	RawEndpoint      string // pre-translation address, kept for diagnostics
	Datacenter       string
	Rack             string
	ReleaseVersion   string
	Partitioner      string
	Tokens           []string
	IsContactPoint   bool

	mu          sync.RWMutex
	state       State
	distance    Distance
	unhealthyAt time.Time

	inFlight     int64 // atomic
	responseRate int64 // atomic, rolling count for latency-aware policies
}

// New constructs a Host in StateUnknown, the state a contact point starts
// in before its first successful connection.
func New(id, endpoint string) *Host {
	return &Host{ID: id, Endpoint: endpoint, state: StateUnknown}
}

func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Host) Distance() Distance {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.distance
}

func (h *Host) SetDistance(d Distance) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.distance = d
}

// MarkUp transitions the host to UP, clearing any unhealthy timestamp.
func (h *Host) MarkUp() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateUp
	h.unhealthyAt = time.Time{}
}

// MarkDown transitions the host to DOWN and records when, so the
// reconnection schedule and control-connection failover logic can reason
// about how long a host has been unreachable.
func (h *Host) MarkDown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateDown
	h.unhealthyAt = time.Now()
}

func (h *Host) UnhealthyAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.unhealthyAt
}

func (h *Host) IsUp() bool { return h.State() == StateUp }

// InFlight is a rough count of outstanding requests across this host's
// pool, approximated by the handler incrementing/decrementing around
// each borrow for policies that want per-host load rather than
// per-connection load.
func (h *Host) InFlight() int64 { return atomic.LoadInt64(&h.inFlight) }

func (h *Host) IncInFlight() { atomic.AddInt64(&h.inFlight, 1) }
func (h *Host) DecInFlight() { atomic.AddInt64(&h.inFlight, -1) }

func (h *Host) RecordResponse() { atomic.AddInt64(&h.responseRate, 1) }
func (h *Host) ResponseRate() int64 { return atomic.LoadInt64(&h.responseRate) }
