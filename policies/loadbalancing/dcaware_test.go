package loadbalancing

import (
	"testing"

	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dcHost(id, dc string) *host.Host {
	h := upHost(id, id+".endpoint")
	h.Datacenter = dc
	return h
}

func TestDCAwarePolicy_Distance(t *testing.T) {
	p := NewDCAwarePolicy("dc1")
	assert.Equal(t, host.DistanceLocal, p.Distance(dcHost("1", "dc1")))
	assert.Equal(t, host.DistanceIgnored, p.Distance(dcHost("2", "dc2")))

	p.AllowRemoteHosts = true
	assert.Equal(t, host.DistanceRemote, p.Distance(dcHost("3", "dc2")))
}

func TestDCAwarePolicy_PlanPrefersLocal(t *testing.T) {
	p := NewDCAwarePolicy("dc1")
	local1 := dcHost("1", "dc1")
	local2 := dcHost("2", "dc1")
	remote := dcHost("3", "dc2")

	got := planHosts(t, p.NewQueryPlan(QueryInfo{}, []*host.Host{local1, remote, local2}))
	require.Len(t, got, 2, "remote host excluded when AllowRemoteHosts is false")
	for _, h := range got {
		assert.Equal(t, "dc1", h.Datacenter)
	}
}

func TestDCAwarePolicy_PlanAppendsRemoteWhenAllowed(t *testing.T) {
	p := NewDCAwarePolicy("dc1")
	p.AllowRemoteHosts = true
	local := dcHost("1", "dc1")
	remote := dcHost("2", "dc2")

	got := planHosts(t, p.NewQueryPlan(QueryInfo{}, []*host.Host{local, remote}))
	require.Len(t, got, 2)
	assert.Equal(t, "dc1", got[0].Datacenter, "local hosts always ordered before remote")
	assert.Equal(t, "dc2", got[1].Datacenter)
}

func TestDCAwarePolicy_SkipsDownHosts(t *testing.T) {
	p := NewDCAwarePolicy("dc1")
	down := host.New("1", "a")
	down.Datacenter = "dc1"

	got := planHosts(t, p.NewQueryPlan(QueryInfo{}, []*host.Host{down}))
	assert.Empty(t, got)
}
