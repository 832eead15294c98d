package retry

import (
	"errors"
	"testing"

	"github.com/lirium-labs/cqldriver/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy_OnUnavailable(t *testing.T) {
	p := DefaultPolicy{}

	d := p.OnUnavailable(protocol.ConsistencyQuorum, 3, 1, 0)
	assert.Equal(t, ActionRetry, d.Action)
	assert.False(t, d.UseCurrentHost)

	d = p.OnUnavailable(protocol.ConsistencyQuorum, 3, 1, 1)
	assert.Equal(t, ActionRethrow, d.Action)
}

func TestDefaultPolicy_OnReadTimeout(t *testing.T) {
	p := DefaultPolicy{}

	d := p.OnReadTimeout(protocol.ConsistencyQuorum, 2, 2, false, 0)
	assert.Equal(t, ActionRetry, d.Action)
	assert.True(t, d.UseCurrentHost)

	d = p.OnReadTimeout(protocol.ConsistencyQuorum, 2, 2, true, 0)
	assert.Equal(t, ActionRethrow, d.Action, "data already present, retrying wouldn't help")

	d = p.OnReadTimeout(protocol.ConsistencyQuorum, 1, 2, false, 0)
	assert.Equal(t, ActionRethrow, d.Action, "not enough replicas responded")

	d = p.OnReadTimeout(protocol.ConsistencyQuorum, 2, 2, false, 1)
	assert.Equal(t, ActionRethrow, d.Action, "already retried once")
}

func TestDefaultPolicy_OnWriteTimeout(t *testing.T) {
	p := DefaultPolicy{}

	d := p.OnWriteTimeout(protocol.ConsistencyQuorum, protocol.WriteTypeBatchLog, 1, 2, 0)
	assert.Equal(t, ActionRetry, d.Action)
	assert.True(t, d.UseCurrentHost)

	d = p.OnWriteTimeout(protocol.ConsistencyQuorum, protocol.WriteTypeSimple, 1, 2, 0)
	assert.Equal(t, ActionRethrow, d.Action)
}

func TestDefaultPolicy_OnRequestError_AlwaysRetries(t *testing.T) {
	p := DefaultPolicy{}
	d := p.OnRequestError(errors.New("boom"), 0)
	assert.Equal(t, ActionRetry, d.Action)
}

func TestIdempotenceAwarePolicy_BlocksNonIdempotentWriteRetry(t *testing.T) {
	p := IdempotenceAwarePolicy{Child: DefaultPolicy{}, IsIdempotent: false}

	d := p.OnWriteTimeout(protocol.ConsistencyQuorum, protocol.WriteTypeBatchLog, 1, 2, 0)
	assert.Equal(t, ActionRethrow, d.Action)

	d = p.OnRequestError(errors.New("boom"), 0)
	assert.Equal(t, ActionRethrow, d.Action)
}

func TestIdempotenceAwarePolicy_AllowsIdempotentRetry(t *testing.T) {
	p := IdempotenceAwarePolicy{Child: DefaultPolicy{}, IsIdempotent: true}

	d := p.OnWriteTimeout(protocol.ConsistencyQuorum, protocol.WriteTypeBatchLog, 1, 2, 0)
	assert.Equal(t, ActionRetry, d.Action)

	d = p.OnRequestError(errors.New("boom"), 0)
	assert.Equal(t, ActionRetry, d.Action)
}

func TestIdempotenceAwarePolicy_DelegatesReadPaths(t *testing.T) {
	p := IdempotenceAwarePolicy{Child: DefaultPolicy{}, IsIdempotent: false}

	d := p.OnUnavailable(protocol.ConsistencyQuorum, 3, 1, 0)
	assert.Equal(t, ActionRetry, d.Action, "reads are always safe to retry regardless of idempotence")

	d = p.OnReadTimeout(protocol.ConsistencyQuorum, 2, 2, false, 0)
	assert.Equal(t, ActionRetry, d.Action)
}

func TestFallthroughPolicy_AlwaysRethrows(t *testing.T) {
	p := FallthroughPolicy{}
	assert.Equal(t, ActionRethrow, p.OnUnavailable(protocol.ConsistencyQuorum, 3, 1, 0).Action)
	assert.Equal(t, ActionRethrow, p.OnReadTimeout(protocol.ConsistencyQuorum, 2, 2, false, 0).Action)
	assert.Equal(t, ActionRethrow, p.OnWriteTimeout(protocol.ConsistencyQuorum, protocol.WriteTypeBatchLog, 1, 2, 0).Action)
	assert.Equal(t, ActionRethrow, p.OnRequestError(errors.New("boom"), 0).Action)
}
