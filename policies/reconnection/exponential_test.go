package reconnection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExponentialPolicy_JitterBounds checks the ±15% jitter envelope the
// spec mandates: base=1000ms, max=256000ms, the first 10 schedule values
// across many trials must each fall within the bound implied by their
// nominal (un-jittered) value. The first delay (nominal == base) only
// ever jitters upward and the capped delay (nominal == max) only ever
// jitters downward, per jitter()'s own branches, so those two indexes use
// a tighter one-sided bound instead of the general ±15%.
func TestExponentialPolicy_JitterBounds(t *testing.T) {
	const base = 1000 * time.Millisecond
	const max = 256000 * time.Millisecond

	nominal := make([]time.Duration, 10)
	raw := float64(base)
	for i := range nominal {
		v := raw
		if i > 0 {
			v = float64(base) * pow2(i)
		}
		if v > float64(max) {
			v = float64(max)
		}
		nominal[i] = time.Duration(v)
	}

	p := NewExponentialPolicy(base, max, false)

	for trial := 0; trial < 1000; trial++ {
		s := p.NewSchedule()
		for i := 0; i < 10; i++ {
			got := s.NextDelay()
			want := nominal[i]

			var lo, hi time.Duration
			switch want {
			case base:
				lo, hi = want, time.Duration(float64(want)*1.15)
			case max:
				lo, hi = time.Duration(float64(want)*0.85), want
			default:
				lo, hi = time.Duration(float64(want)*0.85), time.Duration(float64(want)*1.15)
			}

			assert.GreaterOrEqualf(t, got, lo, "trial %d index %d: %v < lower bound %v (nominal %v)", trial, i, got, lo, want)
			assert.LessOrEqualf(t, got, hi, "trial %d index %d: %v > upper bound %v (nominal %v)", trial, i, got, hi, want)
		}
	}
}

func TestExponentialPolicy_StartWithNoDelay(t *testing.T) {
	p := NewExponentialPolicy(1*time.Second, 1*time.Minute, true)
	s := p.NewSchedule()
	require.Equal(t, time.Duration(0), s.NextDelay())
	second := s.NextDelay()
	assert.Greater(t, second, time.Duration(0))
}

func TestExponentialPolicy_CapsAtMax(t *testing.T) {
	p := NewExponentialPolicy(1*time.Second, 5*time.Second, false)
	s := p.NewSchedule()
	var last time.Duration
	for i := 0; i < 20; i++ {
		last = s.NextDelay()
		assert.LessOrEqual(t, last, time.Duration(float64(5*time.Second)*1.0))
	}
}

func TestConstantPolicy_NeverChanges(t *testing.T) {
	p := NewConstantPolicy(250 * time.Millisecond)
	s := p.NewSchedule()
	for i := 0; i < 5; i++ {
		assert.Equal(t, 250*time.Millisecond, s.NextDelay())
	}
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}
