// Package loadbalancing provides the pluggable host-ordering and
// distance-classification policies consulted when building a query plan
// and when sizing connection pools.
package loadbalancing

import "github.com/lirium-labs/cqldriver/internal/host"

// QueryInfo carries whatever a policy needs to personalize a plan: the
// target keyspace and, for token-aware routing, a routing key/token.
type QueryInfo struct {
	Keyspace   string
	RoutingKey []byte
	Token      string // precomputed if the caller already knows it
}

// Plan is a lazy, single-pass sequence of candidate hosts for one
// request.
type Plan interface {
	Next() (*host.Host, bool)
}

// Policy classifies host distance and builds query plans.
type Policy interface {
	Distance(h *host.Host) host.Distance
	NewQueryPlan(info QueryInfo, hosts []*host.Host) Plan
}

type slicePlan struct {
	hosts []*host.Host
	i     int
}

func (p *slicePlan) Next() (*host.Host, bool) {
	for p.i < len(p.hosts) {
		h := p.hosts[p.i]
		p.i++
		return h, true
	}
	return nil, false
}
