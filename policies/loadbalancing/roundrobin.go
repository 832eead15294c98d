package loadbalancing

import (
	"sync/atomic"

	"github.com/lirium-labs/cqldriver/internal/host"
)

// RoundRobinPolicy treats every UP host as local and cycles the starting
// offset across calls so concurrent plans fan out evenly.
type RoundRobinPolicy struct {
	offset int64 // atomic
}

func NewRoundRobinPolicy() *RoundRobinPolicy { return &RoundRobinPolicy{} }

func (p *RoundRobinPolicy) Distance(h *host.Host) host.Distance {
	return host.DistanceLocal
}

func (p *RoundRobinPolicy) NewQueryPlan(info QueryInfo, hosts []*host.Host) Plan {
	up := upHosts(hosts)
	if len(up) == 0 {
		return &slicePlan{}
	}
	start := int(atomic.AddInt64(&p.offset, 1)) % len(up)
	ordered := make([]*host.Host, len(up))
	for i := range up {
		ordered[i] = up[(start+i)%len(up)]
	}
	return &slicePlan{hosts: ordered}
}

func upHosts(hosts []*host.Host) []*host.Host {
	out := make([]*host.Host, 0, len(hosts))
	for _, h := range hosts {
		if h.IsUp() {
			out = append(out, h)
		}
	}
	return out
}
