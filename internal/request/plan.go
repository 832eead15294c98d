package request

import (
	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/lirium-labs/cqldriver/policies/loadbalancing"
)

// buildPlan is a thin convenience wrapper so the handler doesn't need to
// know the load-balancing package's QueryInfo shape directly; it mirrors
// whatever the active policy returns.
func buildPlan(lbp loadbalancing.Policy, hosts []*host.Host, info loadbalancing.QueryInfo) loadbalancing.Plan {
	return lbp.NewQueryPlan(info, hosts)
}
