// Package speculativeexecution provides the schedules that let the
// request handler fire extra parallel attempts against alternate hosts
// while the original is still outstanding.
package speculativeexecution

// Plan yields the delay, in milliseconds, before the next speculative
// execution should fire, or -1 when no more are scheduled.
type Plan interface {
	NextExecution() int64
}

// Policy constructs a new Plan per request. Requests that aren't
// idempotent never get a Plan from the handler regardless of policy —
// that check lives in the handler, not here, since idempotence is a
// property of the request, not the policy.
type Policy interface {
	NewPlan(keyspace string) Plan
}

// NonePolicy never schedules a speculative execution.
type NonePolicy struct{}

func (NonePolicy) NewPlan(keyspace string) Plan { return noPlan{} }

type noPlan struct{}

func (noPlan) NextExecution() int64 { return -1 }

// ConstantPolicy fires up to MaxExecutions speculative attempts, each
// Delay milliseconds after the previous.
type ConstantPolicy struct {
	DelayMillis   int64
	MaxExecutions int
}

func NewConstantPolicy(delayMillis int64, maxExecutions int) *ConstantPolicy {
	return &ConstantPolicy{DelayMillis: delayMillis, MaxExecutions: maxExecutions}
}

func (p *ConstantPolicy) NewPlan(keyspace string) Plan {
	return &constantPlan{delay: p.DelayMillis, remaining: p.MaxExecutions}
}

type constantPlan struct {
	delay     int64
	remaining int
}

func (p *constantPlan) NextExecution() int64 {
	if p.remaining <= 0 {
		return -1
	}
	p.remaining--
	return p.delay
}
