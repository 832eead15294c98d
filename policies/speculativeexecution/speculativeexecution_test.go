package speculativeexecution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNonePolicy_NeverSchedules(t *testing.T) {
	p := NonePolicy{}
	plan := p.NewPlan("ks")
	assert.EqualValues(t, -1, plan.NextExecution())
	assert.EqualValues(t, -1, plan.NextExecution(), "still -1 on repeated calls")
}

func TestConstantPolicy_FiresUpToMax(t *testing.T) {
	p := NewConstantPolicy(100, 3)
	plan := p.NewPlan("ks")

	for i := 0; i < 3; i++ {
		assert.EqualValues(t, 100, plan.NextExecution())
	}
	assert.EqualValues(t, -1, plan.NextExecution(), "exhausted after MaxExecutions")
}

func TestConstantPolicy_NewPlanPerRequest(t *testing.T) {
	p := NewConstantPolicy(50, 1)
	first := p.NewPlan("ks")
	second := p.NewPlan("ks")

	assert.EqualValues(t, 50, first.NextExecution())
	assert.EqualValues(t, -1, first.NextExecution())

	assert.EqualValues(t, 50, second.NextExecution(), "a fresh plan has its own counter")
}

func TestConstantPolicy_ZeroExecutions(t *testing.T) {
	p := NewConstantPolicy(100, 0)
	plan := p.NewPlan("ks")
	assert.EqualValues(t, -1, plan.NextExecution())
}
