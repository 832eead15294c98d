package reconnection

import "time"

// ConstantPolicy yields the same delay forever.
type ConstantPolicy struct {
	Delay time.Duration
}

func NewConstantPolicy(delay time.Duration) *ConstantPolicy {
	return &ConstantPolicy{Delay: delay}
}

func (p *ConstantPolicy) NewSchedule() Schedule {
	return constantSchedule{delay: p.Delay}
}

type constantSchedule struct {
	delay time.Duration
}

func (s constantSchedule) NextDelay() time.Duration { return s.delay }
