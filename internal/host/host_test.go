package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHost_StartsUnknown(t *testing.T) {
	h := New("id1", "10.0.0.1:9042")
	assert.Equal(t, StateUnknown, h.State())
	assert.False(t, h.IsUp())
}

func TestHost_MarkUpAndDown(t *testing.T) {
	h := New("id1", "10.0.0.1:9042")

	h.MarkDown()
	assert.Equal(t, StateDown, h.State())
	assert.False(t, h.UnhealthyAt().IsZero())

	h.MarkUp()
	assert.True(t, h.IsUp())
	assert.True(t, h.UnhealthyAt().IsZero(), "MarkUp clears the unhealthy timestamp")
}

func TestHost_InFlightCounters(t *testing.T) {
	h := New("id1", "a")
	h.IncInFlight()
	h.IncInFlight()
	h.DecInFlight()
	assert.EqualValues(t, 1, h.InFlight())
}

func TestHost_DistanceDefaultsToLocal(t *testing.T) {
	h := New("id1", "a")
	assert.Equal(t, DistanceLocal, h.Distance())
	h.SetDistance(DistanceRemote)
	assert.Equal(t, DistanceRemote, h.Distance())
}

func TestDistance_String(t *testing.T) {
	assert.Equal(t, "LOCAL", DistanceLocal.String())
	assert.Equal(t, "REMOTE", DistanceRemote.String())
	assert.Equal(t, "IGNORED", DistanceIgnored.String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "UP", StateUp.String())
	assert.Equal(t, "DOWN", StateDown.String())
	assert.Equal(t, "UNKNOWN", StateUnknown.String())
}
