package loadbalancing

import (
	"testing"

	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upHost(id, endpoint string) *host.Host {
	h := host.New(id, endpoint)
	h.MarkUp()
	return h
}

func planHosts(t *testing.T, p Plan) []*host.Host {
	t.Helper()
	var out []*host.Host
	for {
		h, ok := p.Next()
		if !ok {
			break
		}
		out = append(out, h)
	}
	return out
}

func TestRoundRobinPolicy_SkipsDownHosts(t *testing.T) {
	p := NewRoundRobinPolicy()
	up1 := upHost("1", "10.0.0.1")
	up2 := upHost("2", "10.0.0.2")
	down := host.New("3", "10.0.0.3")

	got := planHosts(t, p.NewQueryPlan(QueryInfo{}, []*host.Host{up1, down, up2}))
	require.Len(t, got, 2)
	for _, h := range got {
		assert.NotEqual(t, "3", h.ID)
	}
}

func TestRoundRobinPolicy_RotatesStartOffset(t *testing.T) {
	p := NewRoundRobinPolicy()
	hosts := []*host.Host{upHost("1", "a"), upHost("2", "b"), upHost("3", "c")}

	first := planHosts(t, p.NewQueryPlan(QueryInfo{}, hosts))
	second := planHosts(t, p.NewQueryPlan(QueryInfo{}, hosts))

	require.Len(t, first, 3)
	require.Len(t, second, 3)
	assert.NotEqual(t, first[0].ID, second[0].ID, "successive plans should start at a different offset")
}

func TestRoundRobinPolicy_EmptyWhenNoHostsUp(t *testing.T) {
	p := NewRoundRobinPolicy()
	down := host.New("1", "a")
	got := planHosts(t, p.NewQueryPlan(QueryInfo{}, []*host.Host{down}))
	assert.Empty(t, got)
}

func TestRoundRobinPolicy_DistanceAlwaysLocal(t *testing.T) {
	p := NewRoundRobinPolicy()
	assert.Equal(t, host.DistanceLocal, p.Distance(upHost("1", "a")))
}
