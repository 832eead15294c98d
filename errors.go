package cqldriver

import (
	"fmt"

	"github.com/lirium-labs/cqldriver/internal/conn"
	"github.com/lirium-labs/cqldriver/internal/pool"
	"github.com/lirium-labs/cqldriver/internal/request"
)

// NoHostAvailableError is returned when a query plan exhausted every
// candidate host without a successful attempt; Errors maps each tried
// host's endpoint to the reason it was skipped.
type NoHostAvailableError = request.NoHostAvailableError

// OperationTimedOutError reports that readTimeout elapsed before a
// response arrived for one attempt.
type OperationTimedOutError = conn.OperationTimedOutError

// ErrConnectionBusy is surfaced when a host's pool has no connection
// with a free stream id; the handler sheds the request to the next host.
var ErrConnectionBusy = pool.ErrBusyConnection

// ErrShuttingDown is returned by any call made after Session.Shutdown.
var ErrShuttingDown = fmt.Errorf("cqldriver: session is shutting down")

// ArgumentError reports an invalid caller-supplied parameter (e.g. an
// unknown execution profile name) detected before any request is sent.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string { return fmt.Sprintf("cqldriver: %s", e.Reason) }
