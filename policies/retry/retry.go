// Package retry implements the request handler's per-error retry
// decisions.
package retry

import "github.com/lirium-labs/cqldriver/internal/protocol"

// Action is what the handler should do after a Decision.
type Action int

const (
	ActionRetry Action = iota
	ActionRethrow
	ActionIgnore
)

// Decision is the retry policy's verdict for one failed attempt.
type Decision struct {
	Action         Action
	Consistency    protocol.Consistency // only meaningful when set; zero value means "keep current"
	UseCurrentHost bool
}

var rethrow = Decision{Action: ActionRethrow}

// Policy is consulted by the request handler on every recoverable error.
// nbRetry is the number of retries already taken for this request (not
// counting the original attempt).
type Policy interface {
	OnUnavailable(consistency protocol.Consistency, required, alive int32, nbRetry int) Decision
	OnReadTimeout(consistency protocol.Consistency, received, blockFor int32, dataPresent bool, nbRetry int) Decision
	OnWriteTimeout(consistency protocol.Consistency, writeType protocol.WriteType, received, blockFor int32, nbRetry int) Decision
	OnRequestError(err error, nbRetry int) Decision
}

// DefaultPolicy implements the contract named in the spec: retry once on
// the obvious recoverable shapes, rethrow otherwise.
type DefaultPolicy struct{}

func (DefaultPolicy) OnUnavailable(consistency protocol.Consistency, required, alive int32, nbRetry int) Decision {
	if nbRetry == 0 {
		return Decision{Action: ActionRetry, UseCurrentHost: false}
	}
	return rethrow
}

// OnReadTimeout retries on the same host only when enough replicas
// actually answered but the data-bearing one hadn't, which means the
// coordinator can resolve it by re-asking. dataPresent is always the
// method parameter from the triggering error, never a cached field —
// a stateless policy value has nowhere to stash one across calls anyway.
func (DefaultPolicy) OnReadTimeout(consistency protocol.Consistency, received, blockFor int32, dataPresent bool, nbRetry int) Decision {
	if nbRetry == 0 && received >= blockFor && !dataPresent {
		return Decision{Action: ActionRetry, UseCurrentHost: true}
	}
	return rethrow
}

func (DefaultPolicy) OnWriteTimeout(consistency protocol.Consistency, writeType protocol.WriteType, received, blockFor int32, nbRetry int) Decision {
	if nbRetry == 0 && writeType == protocol.WriteTypeBatchLog {
		return Decision{Action: ActionRetry, UseCurrentHost: true}
	}
	return rethrow
}

func (DefaultPolicy) OnRequestError(err error, nbRetry int) Decision {
	return Decision{Action: ActionRetry, UseCurrentHost: false}
}

// IdempotenceAwarePolicy wraps a child policy, only allowing retries of
// onWriteTimeout and onRequestError when the request is marked
// idempotent — a non-idempotent write might otherwise be applied twice.
type IdempotenceAwarePolicy struct {
	Child       Policy
	IsIdempotent bool
}

func (p IdempotenceAwarePolicy) OnUnavailable(consistency protocol.Consistency, required, alive int32, nbRetry int) Decision {
	return p.Child.OnUnavailable(consistency, required, alive, nbRetry)
}

func (p IdempotenceAwarePolicy) OnReadTimeout(consistency protocol.Consistency, received, blockFor int32, dataPresent bool, nbRetry int) Decision {
	return p.Child.OnReadTimeout(consistency, received, blockFor, dataPresent, nbRetry)
}

func (p IdempotenceAwarePolicy) OnWriteTimeout(consistency protocol.Consistency, writeType protocol.WriteType, received, blockFor int32, nbRetry int) Decision {
	if !p.IsIdempotent {
		return rethrow
	}
	return p.Child.OnWriteTimeout(consistency, writeType, received, blockFor, nbRetry)
}

func (p IdempotenceAwarePolicy) OnRequestError(err error, nbRetry int) Decision {
	if !p.IsIdempotent {
		return rethrow
	}
	return p.Child.OnRequestError(err, nbRetry)
}

// FallthroughPolicy rethrows every error unconditionally, for callers
// that want to disable retries entirely.
type FallthroughPolicy struct{}

func (FallthroughPolicy) OnUnavailable(protocol.Consistency, int32, int32, int) Decision { return rethrow }
func (FallthroughPolicy) OnReadTimeout(protocol.Consistency, int32, int32, bool, int) Decision {
	return rethrow
}
func (FallthroughPolicy) OnWriteTimeout(protocol.Consistency, protocol.WriteType, int32, int32, int) Decision {
	return rethrow
}
func (FallthroughPolicy) OnRequestError(error, int) Decision { return rethrow }
