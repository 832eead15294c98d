package loadbalancing

import "github.com/lirium-labs/cqldriver/internal/host"

// AllowListPolicy restricts Child to a fixed set of allowed endpoints;
// hosts outside the set are always DistanceIgnored and never appear in a
// plan.
type AllowListPolicy struct {
	Child   Policy
	Allowed map[string]bool // keyed by Host.Endpoint
}

func NewAllowListPolicy(child Policy, allowed []string) *AllowListPolicy {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return &AllowListPolicy{Child: child, Allowed: set}
}

func (p *AllowListPolicy) Distance(h *host.Host) host.Distance {
	if !p.Allowed[h.Endpoint] {
		return host.DistanceIgnored
	}
	return p.Child.Distance(h)
}

func (p *AllowListPolicy) NewQueryPlan(info QueryInfo, hosts []*host.Host) Plan {
	filtered := make([]*host.Host, 0, len(hosts))
	for _, h := range hosts {
		if p.Allowed[h.Endpoint] {
			filtered = append(filtered, h)
		}
	}
	return p.Child.NewQueryPlan(info, filtered)
}
