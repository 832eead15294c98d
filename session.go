package cqldriver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lirium-labs/cqldriver/internal/clog"
	"github.com/lirium-labs/cqldriver/internal/conn"
	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/lirium-labs/cqldriver/internal/protocol"
	"github.com/lirium-labs/cqldriver/internal/request"
	"github.com/lirium-labs/cqldriver/policies/loadbalancing"
)

// LogEntry is one structured log line a Session forwards on its Logs
// channel; it's a plain alias so callers never need to import
// internal/clog themselves.
type LogEntry = clog.Entry

// Session is the handle returned by Connect: every Execute/Prepare/
// Batch/Stream call routes through the Cluster it wraps.
type Session struct {
	cluster        *Cluster
	defaultProfile ExecutionProfile
	logSub         chan clog.Entry

	closed int32
}

func (s *Session) isClosed() bool { return atomic.LoadInt32(&s.closed) != 0 }

// Execute runs query (no bind values — value encoding is an external
// concern) against the cluster and returns its first page of results.
func (s *Session) Execute(ctx context.Context, query string, opts ExecutionOptions) (*ResultSet, error) {
	return s.execute(ctx, query, nil, opts)
}

// execute is the shared implementation behind Execute, Stream's first
// page, and RowIterator.Next's follow-up pages; prepID selects EXECUTE
// over QUERY when non-nil.
func (s *Session) execute(ctx context.Context, query string, prepID []byte, opts ExecutionOptions) (*ResultSet, error) {
	if s.isClosed() {
		return nil, ErrShuttingDown
	}

	profile, err := s.resolveProfile(opts)
	if err != nil {
		return nil, err
	}

	if opts.Prepare && prepID == nil {
		stmt, err := s.Prepare(ctx, query)
		if err != nil {
			return nil, err
		}
		prepID = stmt.id
	}

	deps := s.buildDeps(profile, opts)
	req := request.Request{
		Query:             query,
		QueryID:           prepID,
		Keyspace:          opts.Keyspace,
		Consistency:       consistencyOf(opts, profile),
		SerialConsistency: opts.SerialConsistency,
		PageSize:          opts.FetchSize,
		PagingState:       opts.PageState,
		Timestamp:         opts.Timestamp,
		Idempotent:        opts.IsIdempotent,
		RoutingToken:      opts.RoutingToken,
		CustomPayload:     opts.payload(),
	}

	h := request.New(deps, req)
	res, err := h.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return resultSetFromFrame(res.Frame, res.Host.Endpoint)
}

// Prepare issues PREPARE against one cluster host and caches the
// resulting query id for that host. Batch looks the binding up per host
// and reuses it; Execute with opts.Prepare set calls Prepare again on
// every call.
func (s *Session) Prepare(ctx context.Context, query string) (*PreparedStatement, error) {
	if s.isClosed() {
		return nil, ErrShuttingDown
	}

	keyspace := s.cluster.cfg.Keyspace
	h, c, err := s.borrowAny(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.Send(ctx, protocol.OpPrepare, protocol.EncodePrepare(query, keyspace), 0)
	if err != nil {
		return nil, err
	}
	prep, err := protocol.DecodePrepared(resp.Body)
	if err != nil {
		return nil, err
	}
	s.cluster.prepared.Bind(h.Endpoint, query, keyspace, prep.QueryID)

	return &PreparedStatement{Query: query, Keyspace: keyspace, Metadata: prep.Columns, id: prep.QueryID}, nil
}

// Batch sends a LOGGED, UNLOGGED, or COUNTER batch of statements — raw
// text or previously prepared, each with its own bound values.
func (s *Session) Batch(ctx context.Context, statements []BatchableStatement, opts ExecutionOptions) (*ResultSet, error) {
	if s.isClosed() {
		return nil, ErrShuttingDown
	}
	profile, err := s.resolveProfile(opts)
	if err != nil {
		return nil, err
	}

	batchType := protocol.BatchType(opts.BatchKind)
	consistency := consistencyOf(opts, profile)
	readTimeout := profile.ReadTimeout
	if opts.ReadTimeout > 0 {
		readTimeout = opts.ReadTimeout
	}

	info := loadbalancing.QueryInfo{Keyspace: opts.Keyspace, Token: opts.RoutingToken}
	lbp := profile.LoadBalancingPolicy
	if opts.LoadBalancing != nil {
		lbp = opts.LoadBalancing
	}
	if opts.Host != "" {
		lbp = fixedHostPolicy{endpoint: opts.Host, child: lbp}
	}
	plan := lbp.NewQueryPlan(info, s.cluster.hosts.All())

	tried := map[string]error{}
	for {
		hst, ok := plan.Next()
		if !ok {
			return nil, &NoHostAvailableError{Errors: tried}
		}
		c, err := (clusterPoolSource{cl: s.cluster}).Borrow(hst)
		if err != nil {
			tried[hst.Endpoint] = err
			continue
		}

		body, err := s.bindBatchStatements(ctx, c, statements)
		if err != nil {
			tried[hst.Endpoint] = err
			continue
		}

		batchBody := protocol.EncodeBatch(batchType, body, consistency, opts.SerialConsistency, opts.Timestamp)
		var flags protocol.Flags
		if payload := opts.payload(); len(payload) > 0 {
			flags |= protocol.FlagCustomPayload
			batchBody = append(protocol.EncodeBytesMap(payload), batchBody...)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, orDefault(readTimeout, 10*time.Second))
		frame, err := c.Send(attemptCtx, protocol.OpBatch, batchBody, flags)
		cancel()
		if err != nil {
			tried[hst.Endpoint] = err
			continue
		}
		return resultSetFromFrame(frame, hst.Endpoint)
	}
}

// bindBatchStatements resolves each BatchableStatement's query id on c,
// re-PREPAREing on c directly (rather than through Session.Prepare, which
// may pick a different connection) when the binding isn't cached yet.
func (s *Session) bindBatchStatements(ctx context.Context, c *conn.Connection, statements []BatchableStatement) ([]protocol.BatchStatement, error) {
	body := make([]protocol.BatchStatement, len(statements))
	for i, st := range statements {
		bs := protocol.BatchStatement{Values: st.Values, ValueNames: st.Names}
		if st.Prepared != nil {
			queryID, ok := s.cluster.prepared.Lookup(c.Endpoint, st.Prepared.Query)
			if !ok {
				resp, err := c.Send(ctx, protocol.OpPrepare, protocol.EncodePrepare(st.Prepared.Query, st.Prepared.Keyspace), 0)
				if err != nil {
					return nil, err
				}
				prep, err := protocol.DecodePrepared(resp.Body)
				if err != nil {
					return nil, err
				}
				s.cluster.prepared.Bind(c.Endpoint, st.Prepared.Query, st.Prepared.Keyspace, prep.QueryID)
				queryID = prep.QueryID
			}
			bs.QueryID = queryID
		} else {
			bs.Query = st.Query
		}
		body[i] = bs
	}
	return body, nil
}

// Stream prepares a RowIterator that fetches query one page at a time,
// fetching the first page eagerly so any immediate failure is returned
// by Stream itself, before the caller's first Next() call.
func (s *Session) Stream(ctx context.Context, query string, opts ExecutionOptions) (*RowIterator, error) {
	if s.isClosed() {
		return nil, ErrShuttingDown
	}
	it := &RowIterator{session: s, query: query, opts: opts, ctx: ctx}
	rs, err := s.execute(ctx, query, nil, opts)
	if err != nil {
		return nil, err
	}
	it.current = rs
	return it, nil
}

// Shutdown tears down every pool and the control connection; the Logs
// channel is left open. Idempotent; safe to call more than once.
func (s *Session) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	s.cluster.shutdown()
	return nil
}

// Logs returns the channel structured log entries are forwarded to for
// the lifetime of the Session.
func (s *Session) Logs() <-chan LogEntry { return s.logSub }

func (s *Session) resolveProfile(opts ExecutionOptions) (ExecutionProfile, error) {
	if opts.ExecutionProfile == "" {
		return s.defaultProfile, nil
	}
	p, ok := s.cluster.cfg.ExecutionProfiles[opts.ExecutionProfile]
	if !ok {
		return ExecutionProfile{}, &ArgumentError{Reason: "unknown execution profile \"" + opts.ExecutionProfile + "\""}
	}
	if p.LoadBalancingPolicy == nil {
		p.LoadBalancingPolicy = s.defaultProfile.LoadBalancingPolicy
	}
	if p.RetryPolicy == nil {
		p.RetryPolicy = s.defaultProfile.RetryPolicy
	}
	if p.SpeculativeExecutionPolicy == nil {
		p.SpeculativeExecutionPolicy = s.defaultProfile.SpeculativeExecutionPolicy
	}
	if p.Consistency == 0 {
		p.Consistency = s.defaultProfile.Consistency
	}
	if p.ReadTimeout == 0 {
		p.ReadTimeout = s.defaultProfile.ReadTimeout
	}
	return p, nil
}

func (s *Session) buildDeps(profile ExecutionProfile, opts ExecutionOptions) request.Deps {
	lbp := profile.LoadBalancingPolicy
	if opts.LoadBalancing != nil {
		lbp = opts.LoadBalancing
	}
	if opts.Host != "" {
		lbp = fixedHostPolicy{endpoint: opts.Host, child: lbp}
	}
	retryPolicy := profile.RetryPolicy
	if opts.Retry != nil {
		retryPolicy = opts.Retry
	}
	specPolicy := profile.SpeculativeExecutionPolicy
	if opts.Speculative != nil {
		specPolicy = opts.Speculative
	}
	readTimeout := profile.ReadTimeout
	if opts.ReadTimeout > 0 {
		readTimeout = opts.ReadTimeout
	}

	deps := request.Deps{
		Hosts:       s.cluster.hosts,
		LBP:         lbp,
		RetryPolicy: retryPolicy,
		SpecPolicy:  specPolicy,
		Pools:       clusterPoolSource{cl: s.cluster},
		Prepared:    s.cluster.prepared,
		ReadTimeout: readTimeout,
		Log:         s.cluster.log,
	}
	if s.cluster.specGate != nil {
		deps.SpecSemaphore = s.cluster.specGate
	}
	return deps
}

// borrowAny returns a connection from the first reachable host in the
// default profile's query plan, for calls (Prepare) that aren't tied to
// a specific request's routing info.
func (s *Session) borrowAny(ctx context.Context) (*host.Host, *conn.Connection, error) {
	lbp := s.defaultProfile.LoadBalancingPolicy
	plan := lbp.NewQueryPlan(loadbalancing.QueryInfo{Keyspace: s.cluster.cfg.Keyspace}, s.cluster.hosts.All())
	tried := map[string]error{}
	for {
		hst, ok := plan.Next()
		if !ok {
			return nil, nil, &NoHostAvailableError{Errors: tried}
		}
		c, err := (clusterPoolSource{cl: s.cluster}).Borrow(hst)
		if err != nil {
			tried[hst.Endpoint] = err
			continue
		}
		return hst, c, nil
	}
}

func consistencyOf(opts ExecutionOptions, profile ExecutionProfile) protocol.Consistency {
	if opts.Consistency != 0 {
		return opts.Consistency
	}
	if profile.Consistency != 0 {
		return profile.Consistency
	}
	return protocol.ConsistencyQuorum
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// fixedHostPolicy restricts a query plan to exactly one endpoint — the
// `host` execution option's "bypasses the load-balancing plan" behavior
// — while still delegating distance classification to the wrapped
// policy so pool sizing stays correct.
type fixedHostPolicy struct {
	endpoint string
	child    loadbalancing.Policy
}

func (p fixedHostPolicy) Distance(h *host.Host) host.Distance { return p.child.Distance(h) }

func (p fixedHostPolicy) NewQueryPlan(info loadbalancing.QueryInfo, hosts []*host.Host) loadbalancing.Plan {
	for _, h := range hosts {
		if h.Endpoint == p.endpoint {
			return &singleHostPlan{h: h}
		}
	}
	return &singleHostPlan{}
}

type singleHostPlan struct {
	h    *host.Host
	done bool
}

func (p *singleHostPlan) Next() (*host.Host, bool) {
	if p.done || p.h == nil {
		return nil, false
	}
	p.done = true
	return p.h, true
}
