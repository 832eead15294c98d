package loadbalancing

import (
	"math/rand"

	"github.com/lirium-labs/cqldriver/internal/host"
)

// ReplicaLookup resolves a token to its replica host ids, ordered by
// ring position; supplied by the control connection's schema/topology
// metadata.
type ReplicaLookup func(keyspace, token string) []string

// TokenAwarePolicy yields a request's replicas first (shuffled among
// hosts of equal distance, so repeated queries to the same token don't
// always hit the same replica first), then falls back to Child for
// everything else. Distance classification is fully delegated to Child.
type TokenAwarePolicy struct {
	Child    Policy
	Replicas ReplicaLookup
}

func NewTokenAwarePolicy(child Policy, replicas ReplicaLookup) *TokenAwarePolicy {
	return &TokenAwarePolicy{Child: child, Replicas: replicas}
}

func (p *TokenAwarePolicy) Distance(h *host.Host) host.Distance {
	return p.Child.Distance(h)
}

func (p *TokenAwarePolicy) NewQueryPlan(info QueryInfo, hosts []*host.Host) Plan {
	childPlan := p.Child.NewQueryPlan(info, hosts)
	if info.Token == "" || p.Replicas == nil {
		return childPlan
	}

	replicaIDs := p.Replicas(info.Keyspace, info.Token)
	if len(replicaIDs) == 0 {
		return childPlan
	}

	byID := make(map[string]*host.Host, len(hosts))
	for _, h := range hosts {
		byID[h.ID] = h
	}

	var local, remote []*host.Host
	seen := make(map[string]bool, len(replicaIDs))
	for _, id := range replicaIDs {
		h, ok := byID[id]
		if !ok || !h.IsUp() {
			continue
		}
		switch p.Distance(h) {
		case host.DistanceLocal:
			local = append(local, h)
			seen[id] = true
		case host.DistanceRemote:
			remote = append(remote, h)
			seen[id] = true
		} // DistanceIgnored: excluded
	}
	// Shuffle within each distance group so repeated queries for the same
	// token don't always hit the same replica first, but never let a
	// remote replica jump ahead of a local one (spec §4.6).
	rand.Shuffle(len(local), func(i, j int) { local[i], local[j] = local[j], local[i] })
	rand.Shuffle(len(remote), func(i, j int) { remote[i], remote[j] = remote[j], remote[i] })

	replicas := make([]*host.Host, 0, len(local)+len(remote))
	replicas = append(replicas, local...)
	replicas = append(replicas, remote...)

	return &tokenAwarePlan{replicas: replicas, fallback: childPlan, seen: seen}
}

type tokenAwarePlan struct {
	replicas []*host.Host
	i        int
	fallback Plan
	seen     map[string]bool
}

func (p *tokenAwarePlan) Next() (*host.Host, bool) {
	if p.i < len(p.replicas) {
		h := p.replicas[p.i]
		p.i++
		return h, true
	}
	for {
		h, ok := p.fallback.Next()
		if !ok {
			return nil, false
		}
		if p.seen[h.ID] {
			continue // already yielded as a replica
		}
		return h, true
	}
}
