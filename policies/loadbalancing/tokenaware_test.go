package loadbalancing

import (
	"testing"

	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenAwarePolicy_ReplicasFirst(t *testing.T) {
	replica := upHost("replica", "r")
	other1 := upHost("other1", "o1")
	other2 := upHost("other2", "o2")
	hosts := []*host.Host{other1, replica, other2}

	lookup := func(keyspace, token string) []string {
		require.Equal(t, "ks", keyspace)
		require.Equal(t, "tok", token)
		return []string{"replica"}
	}

	p := NewTokenAwarePolicy(NewRoundRobinPolicy(), lookup)
	got := planHosts(t, p.NewQueryPlan(QueryInfo{Keyspace: "ks", Token: "tok"}, hosts))

	require.Len(t, got, 3)
	assert.Equal(t, "replica", got[0].ID, "replica yielded before the fallback plan")

	rest := map[string]bool{got[1].ID: true, got[2].ID: true}
	assert.True(t, rest["other1"])
	assert.True(t, rest["other2"])
}

func TestTokenAwarePolicy_FallsBackWithoutToken(t *testing.T) {
	h1 := upHost("1", "a")
	h2 := upHost("2", "b")

	called := false
	lookup := func(string, string) []string {
		called = true
		return nil
	}

	p := NewTokenAwarePolicy(NewRoundRobinPolicy(), lookup)
	got := planHosts(t, p.NewQueryPlan(QueryInfo{}, []*host.Host{h1, h2}))

	assert.False(t, called, "lookup is never consulted when the query has no token")
	assert.Len(t, got, 2)
}

func TestTokenAwarePolicy_IgnoresDownOrMissingReplicas(t *testing.T) {
	down := host.New("down", "d")
	up := upHost("up", "u")

	lookup := func(string, string) []string { return []string{"down", "up", "missing"} }
	p := NewTokenAwarePolicy(NewRoundRobinPolicy(), lookup)

	got := planHosts(t, p.NewQueryPlan(QueryInfo{Token: "t"}, []*host.Host{down, up}))
	require.Len(t, got, 1)
	assert.Equal(t, "up", got[0].ID)
}

func TestTokenAwarePolicy_DelegatesDistance(t *testing.T) {
	p := NewTokenAwarePolicy(NewDCAwarePolicy("dc1"), nil)
	assert.Equal(t, host.DistanceLocal, p.Distance(dcHost("1", "dc1")))
	assert.Equal(t, host.DistanceIgnored, p.Distance(dcHost("2", "dc2")))
}
