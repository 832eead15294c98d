package loadbalancing

import (
	"testing"

	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowListPolicy_DistanceIgnoresUnlisted(t *testing.T) {
	p := NewAllowListPolicy(NewRoundRobinPolicy(), []string{"10.0.0.1"})
	allowed := upHost("1", "10.0.0.1")
	blocked := upHost("2", "10.0.0.2")

	assert.Equal(t, host.DistanceLocal, p.Distance(allowed))
	assert.Equal(t, host.DistanceIgnored, p.Distance(blocked))
}

func TestAllowListPolicy_PlanExcludesUnlisted(t *testing.T) {
	p := NewAllowListPolicy(NewRoundRobinPolicy(), []string{"10.0.0.1", "10.0.0.3"})
	h1 := upHost("1", "10.0.0.1")
	h2 := upHost("2", "10.0.0.2")
	h3 := upHost("3", "10.0.0.3")

	got := planHosts(t, p.NewQueryPlan(QueryInfo{}, []*host.Host{h1, h2, h3}))
	require.Len(t, got, 2)
	for _, h := range got {
		assert.NotEqual(t, "2", h.ID)
	}
}
