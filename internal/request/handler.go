// Package request implements the per-query execution state machine:
// plan construction, attempt dispatch, retry-policy consultation,
// prepared-statement re-preparation on UNPREPARED, and speculative
// execution fan-out.
//
// The state shape (Planning -> Sending -> AwaitingResponse -> Retrying |
// SpeculatingParallel -> Completed | Failed) generalizes the teacher's
// client/tx.go transaction state machine (BEGIN -> ACTIVE -> COMMITTING |
// ROLLING_BACK -> COMMITTED | ROLLED_BACK) to per-request execution
// instead of multi-statement transactions, which this domain drops in
// favor of logged BATCH (see Session.Batch).
package request

import (
	"context"
	"fmt"
	"time"

	"github.com/lirium-labs/cqldriver/internal/clog"
	"github.com/lirium-labs/cqldriver/internal/conn"
	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/lirium-labs/cqldriver/internal/prepared"
	"github.com/lirium-labs/cqldriver/internal/protocol"
	"github.com/lirium-labs/cqldriver/policies/loadbalancing"
	"github.com/lirium-labs/cqldriver/policies/retry"
	"github.com/lirium-labs/cqldriver/policies/speculativeexecution"
)

// State is one position in the per-request execution state machine.
type State int

const (
	StatePlanning State = iota
	StateSending
	StateAwaitingResponse
	StateRetrying
	StateSpeculatingParallel
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "Planning"
	case StateSending:
		return "Sending"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateRetrying:
		return "Retrying"
	case StateSpeculatingParallel:
		return "SpeculatingParallel"
	case StateCompleted:
		return "Completed"
	default:
		return "Failed"
	}
}

// Request is the internal, protocol-agnostic view of one query or
// execute attempt the handler dispatches; the public Session API
// translates ExecutionOptions into this shape.
type Request struct {
	Query       string // empty when QueryID is set
	QueryID     []byte // set for EXECUTE of a previously prepared statement
	Keyspace    string
	Values      [][]byte
	ValueNames  []string

	Consistency       protocol.Consistency
	SerialConsistency protocol.Consistency
	PageSize          int32
	PagingState       []byte
	Timestamp         *int64

	Idempotent   bool
	RoutingToken string

	CustomPayload map[string][]byte // forwarded ahead of the opcode body as FlagCustomPayload
}

// PoolSource resolves a host to the connection pool that owns its
// sockets; injected so this package never imports internal/pool
// directly.
type PoolSource interface {
	Borrow(h *host.Host) (*conn.Connection, error)
}

// Deps bundles everything a Handler needs that isn't request-specific.
type Deps struct {
	Hosts         *host.Map
	LBP           loadbalancing.Policy
	RetryPolicy   retry.Policy
	SpecPolicy    speculativeexecution.Policy
	Pools         PoolSource
	Prepared      *prepared.Cache
	ReadTimeout   time.Duration
	Log           *clog.Logger
	SpecSemaphore speculativeGate // bounds total concurrent speculative executions across the session
}

// speculativeGate is satisfied by *semaphore.Weighted; narrowed to the
// one method this package needs so tests can fake it without pulling in
// golang.org/x/sync/semaphore.
type speculativeGate interface {
	TryAcquire(n int64) bool
	Release(n int64)
}

// Handler drives one request through the full execution state machine.
type Handler struct {
	deps Deps
	req  Request
	state State
}

func New(deps Deps, req Request) *Handler {
	// Every request is classified through an idempotence-aware retry
	// policy, not just ones a caller happened to wrap explicitly: the
	// spec's composable-wrapper shape (TokenAware wraps child, AllowList
	// wraps child, IdempotenceAware wraps child) names this as the
	// default composition, and idempotence is a per-call fact (req.
	// Idempotent) a cluster-wide or per-profile policy value can't carry
	// on its own.
	if deps.RetryPolicy != nil {
		deps.RetryPolicy = retry.IdempotenceAwarePolicy{Child: deps.RetryPolicy, IsIdempotent: req.Idempotent}
	}
	return &Handler{deps: deps, req: req, state: StatePlanning}
}

// Result is a successful attempt's decoded outcome.
type Result struct {
	Frame *protocol.Frame
	Host  *host.Host
}

// Execute drives the state machine to completion, returning the winning
// frame or the accumulated NoHostAvailableError / fatal error.
func (h *Handler) Execute(ctx context.Context) (*Result, error) {
	info := loadbalancing.QueryInfo{Keyspace: h.req.Keyspace, Token: h.req.RoutingToken}
	plan := buildPlan(h.deps.LBP, h.deps.Hosts.All(), info)

	tried := make(map[string]error)
	nbRetry := 0

	var specPlan speculativeexecution.Plan
	if h.req.Idempotent && h.deps.SpecPolicy != nil {
		specPlan = h.deps.SpecPolicy.NewPlan(h.req.Keyspace)
	}

	type attemptOutcome struct {
		result       *Result
		err          error
		host         *host.Host
		specAcquired bool
	}
	outcomes := make(chan attemptOutcome, 1)
	attemptCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	active := 0
	launch := func(h2 *host.Host, specAcquired bool) {
		active++
		go func() {
			r, err := h.attempt(attemptCtx, h2, &nbRetry)
			select {
			case outcomes <- attemptOutcome{result: r, err: err, host: h2, specAcquired: specAcquired}:
			case <-attemptCtx.Done():
				if specAcquired && h.deps.SpecSemaphore != nil {
					h.deps.SpecSemaphore.Release(1)
				}
			}
		}()
	}

	firstHost, ok := plan.Next()
	if !ok {
		return nil, &NoHostAvailableError{Errors: tried}
	}
	h.state = StateSending
	launch(firstHost, false)

	var specTimer *time.Timer
	var specCh <-chan time.Time
	armSpeculative := func() {
		if specPlan == nil {
			return
		}
		delay := specPlan.NextExecution()
		if delay < 0 {
			specCh = nil
			return
		}
		specTimer = time.NewTimer(time.Duration(delay) * time.Millisecond)
		specCh = specTimer.C
	}
	armSpeculative()

	releaseSpec := func(acquired bool) {
		if acquired && h.deps.SpecSemaphore != nil {
			h.deps.SpecSemaphore.Release(1)
		}
	}

	for active > 0 {
		select {
		case out := <-outcomes:
			active--
			if out.err == nil {
				h.state = StateCompleted
				cancelAll()
				releaseSpec(out.specAcquired)
				return out.result, nil
			}
			releaseSpec(out.specAcquired)
			if out.host != nil {
				tried[out.host.Endpoint] = out.err
			}

			decision, fatal := h.classify(out.err, nbRetry)
			if fatal {
				h.state = StateFailed
				return nil, out.err
			}

			switch decision.Action {
			case retry.ActionRethrow:
				h.state = StateFailed
				if active == 0 {
					return nil, out.err
				}
			case retry.ActionRetry:
				nbRetry++
				h.state = StateRetrying
				if decision.UseCurrentHost {
					launch(out.host, false)
					continue
				}
				nextHost, ok := plan.Next()
				if !ok {
					if active == 0 {
						return nil, &NoHostAvailableError{Errors: tried, Cause: aggregate(tried)}
					}
					continue
				}
				launch(nextHost, false)
			default: // ActionIgnore
				if active == 0 {
					return nil, &NoHostAvailableError{Errors: tried, Cause: aggregate(tried)}
				}
			}

		case <-specCh:
			h.state = StateSpeculatingParallel
			acquired := h.deps.SpecSemaphore == nil || h.deps.SpecSemaphore.TryAcquire(1)
			if !acquired {
				armSpeculative()
				continue
			}
			nextHost, ok := plan.Next()
			if !ok {
				releaseSpec(h.deps.SpecSemaphore != nil)
				armSpeculative()
				continue
			}
			launch(nextHost, h.deps.SpecSemaphore != nil)
			armSpeculative()

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, &NoHostAvailableError{Errors: tried, Cause: aggregate(tried)}
}

// attempt borrows a connection from host, sends the request, and on
// UNPREPARED transparently re-PREPAREs and re-EXECUTEs once before
// surfacing any further error.
func (h *Handler) attempt(ctx context.Context, hst *host.Host, nbRetry *int) (*Result, error) {
	c, err := h.deps.Pools.Borrow(hst)
	if err != nil {
		return nil, err
	}

	frame, err := h.send(ctx, c)
	if se, ok := err.(*protocol.ServerError); ok && se.Code == protocol.ErrUnprepared {
		if repErr := h.reprepare(ctx, c); repErr != nil {
			return nil, repErr
		}
		frame, err = h.send(ctx, c)
	}
	if err != nil {
		return nil, err
	}
	hst.RecordResponse()
	return &Result{Frame: frame, Host: hst}, nil
}

func (h *Handler) send(ctx context.Context, c *conn.Connection) (*protocol.Frame, error) {
	deadline := h.deps.ReadTimeout
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	attemptCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	params := protocol.QueryParameters{
		Consistency:       h.req.Consistency,
		Values:            h.req.Values,
		ValueNames:        h.req.ValueNames,
		PageSize:          h.req.PageSize,
		PagingState:       h.req.PagingState,
		SerialConsistency: h.req.SerialConsistency,
		Timestamp:         h.req.Timestamp,
	}

	var body []byte
	if h.req.QueryID != nil {
		body = protocol.EncodeExecute(h.req.QueryID, params)
	} else {
		body = protocol.EncodeQuery(h.req.Query, params)
	}

	var flags protocol.Flags
	if len(h.req.CustomPayload) > 0 {
		flags |= protocol.FlagCustomPayload
		body = append(protocol.EncodeBytesMap(h.req.CustomPayload), body...)
	}

	op := protocol.OpQuery
	if h.req.QueryID != nil {
		op = protocol.OpExecute
	}
	return c.Send(attemptCtx, op, body, flags)
}

func (h *Handler) reprepare(ctx context.Context, c *conn.Connection) error {
	resp, err := c.Send(ctx, protocol.OpPrepare, protocol.EncodePrepare(h.req.Query, h.req.Keyspace), 0)
	if err != nil {
		return fmt.Errorf("request: re-PREPARE after unprepared: %w", err)
	}
	prep, err := protocol.DecodePrepared(resp.Body)
	if err != nil {
		return fmt.Errorf("request: decode re-PREPARE result: %w", err)
	}
	h.req.QueryID = prep.QueryID
	if h.deps.Prepared != nil {
		h.deps.Prepared.Bind(c.Endpoint, h.req.Query, h.req.Keyspace, prep.QueryID)
	}
	return nil
}

// classify maps an attempt error onto a retry Decision, short-circuiting
// fatal kinds (syntax, authentication, unauthorized) per the spec.
func (h *Handler) classify(err error, nbRetry int) (retry.Decision, bool) {
	se, ok := err.(*protocol.ServerError)
	if !ok {
		return h.deps.RetryPolicy.OnRequestError(err, nbRetry), false
	}
	if se.IsFatal() {
		return retry.Decision{}, true
	}

	switch se.Code {
	case protocol.ErrUnavailable:
		return h.deps.RetryPolicy.OnUnavailable(se.Consistency, se.Required, se.Alive, nbRetry), false
	case protocol.ErrReadTimeout:
		return h.deps.RetryPolicy.OnReadTimeout(se.Consistency, se.Received, se.BlockFor, se.DataPresent, nbRetry), false
	case protocol.ErrWriteTimeout:
		return h.deps.RetryPolicy.OnWriteTimeout(se.Consistency, se.WriteType, se.Received, se.BlockFor, nbRetry), false
	default:
		// Overloaded/bootstrapping/truncate are host-level "advance the
		// plan" conditions (spec §4.9) and read/write failures carry no
		// received/blockFor/dataPresent semantics worth reusing from the
		// timeout callbacks (spec §7 treats them as request-level) — all
		// of these, like any other unrecognized request error, go through
		// onRequestError so the idempotence filter actually sees them.
		return h.deps.RetryPolicy.OnRequestError(err, nbRetry), false
	}
}

// State reports the handler's current position in the execution state
// machine, mainly for tests and diagnostics.
func (h *Handler) State() State { return h.state }
