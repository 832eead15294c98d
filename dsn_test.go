package cqldriver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN_Defaults(t *testing.T) {
	cfg, err := ParseDSN("10.0.0.1,10.0.0.2")
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1:9042", "10.0.0.2:9042"}, cfg.ContactPoints)
	assert.Equal(t, 9042, cfg.DefaultPort)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "quorum", cfg.Consistency)
	assert.False(t, cfg.Debug)
}

func TestParseDSN_AllOptions(t *testing.T) {
	cfg, err := ParseDSN("10.0.0.1:9043,10.0.0.2?keyspace=ks&username=u&password=p&datacenter=dc1&timeout=3s&read_timeout=7s&debug=true&consistency=local_quorum&port=9999")
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1:9043", "10.0.0.2:9999"}, cfg.ContactPoints, "a host with an explicit port keeps it; bare hosts get the DSN's port option")
	assert.Equal(t, "ks", cfg.Keyspace)
	assert.Equal(t, "u", cfg.Username)
	assert.Equal(t, "p", cfg.Password)
	assert.Equal(t, "dc1", cfg.Datacenter)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 7*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "local_quorum", cfg.Consistency)
}

func TestParseDSN_MissingHostsErrors(t *testing.T) {
	_, err := ParseDSN("?keyspace=ks")
	assert.Error(t, err)
}

func TestParseDSN_InvalidPortErrors(t *testing.T) {
	_, err := ParseDSN("host?port=notanumber")
	assert.Error(t, err)
}

func TestParseDSN_InvalidTimeoutErrors(t *testing.T) {
	_, err := ParseDSN("host?timeout=notaduration")
	assert.Error(t, err)
}

func TestParseConsistency_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, ConsistencyLocalQuorum, ParseConsistency("local_quorum"))
	assert.Equal(t, ConsistencyLocalQuorum, ParseConsistency("LOCAL_QUORUM"))
	assert.Equal(t, ConsistencyOne, ParseConsistency("one"))
	assert.Equal(t, ConsistencyQuorum, ParseConsistency("not-a-real-level"))
}
