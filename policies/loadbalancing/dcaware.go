package loadbalancing

import (
	"sync/atomic"

	"github.com/lirium-labs/cqldriver/internal/host"
)

// DCAwarePolicy prefers hosts in the local datacenter, round-robining
// among them; remote hosts are classified ignored unless
// AllowRemoteHosts is set, in which case they're appended to the plan
// (but still sized smaller, via DistanceRemote, by the connection pool).
type DCAwarePolicy struct {
	LocalDC          string
	AllowRemoteHosts bool

	offset int64 // atomic
}

func NewDCAwarePolicy(localDC string) *DCAwarePolicy {
	return &DCAwarePolicy{LocalDC: localDC}
}

func (p *DCAwarePolicy) Distance(h *host.Host) host.Distance {
	if h.Datacenter == p.LocalDC {
		return host.DistanceLocal
	}
	if p.AllowRemoteHosts {
		return host.DistanceRemote
	}
	return host.DistanceIgnored
}

func (p *DCAwarePolicy) NewQueryPlan(info QueryInfo, hosts []*host.Host) Plan {
	var local, remote []*host.Host
	for _, h := range hosts {
		if !h.IsUp() {
			continue
		}
		if h.Datacenter == p.LocalDC {
			local = append(local, h)
		} else if p.AllowRemoteHosts {
			remote = append(remote, h)
		}
	}

	if len(local) == 0 && len(remote) == 0 {
		return &slicePlan{}
	}

	start := 0
	if len(local) > 0 {
		start = int(atomic.AddInt64(&p.offset, 1)) % len(local)
	}
	ordered := make([]*host.Host, 0, len(local)+len(remote))
	for i := range local {
		ordered = append(ordered, local[(start+i)%len(local)])
	}
	ordered = append(ordered, remote...)
	return &slicePlan{hosts: ordered}
}
