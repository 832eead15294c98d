package cqldriver

import (
	"strings"
	"time"

	"github.com/lirium-labs/cqldriver/internal/protocol"
	"github.com/lirium-labs/cqldriver/policies/loadbalancing"
	"github.com/lirium-labs/cqldriver/policies/retry"
	"github.com/lirium-labs/cqldriver/policies/speculativeexecution"
)

// Consistency is the CQL consistency level for a request; re-exported so
// callers never need to import the internal protocol package directly.
type Consistency = protocol.Consistency

const (
	ConsistencyAny         = protocol.ConsistencyAny
	ConsistencyOne         = protocol.ConsistencyOne
	ConsistencyTwo         = protocol.ConsistencyTwo
	ConsistencyThree       = protocol.ConsistencyThree
	ConsistencyQuorum      = protocol.ConsistencyQuorum
	ConsistencyAll         = protocol.ConsistencyAll
	ConsistencyLocalQuorum = protocol.ConsistencyLocalQuorum
	ConsistencyEachQuorum  = protocol.ConsistencyEachQuorum
	ConsistencySerial      = protocol.ConsistencySerial
	ConsistencyLocalSerial = protocol.ConsistencyLocalSerial
	ConsistencyLocalOne    = protocol.ConsistencyLocalOne
)

// ParseConsistency maps a DSN/CLI-style consistency name (case
// insensitive, "quorum", "local_quorum", ...) to its wire value; unknown
// names fall back to QUORUM, the same default ParseDSN assumes.
func ParseConsistency(name string) Consistency {
	switch strings.ToUpper(name) {
	case "ANY":
		return ConsistencyAny
	case "ONE":
		return ConsistencyOne
	case "TWO":
		return ConsistencyTwo
	case "THREE":
		return ConsistencyThree
	case "ALL":
		return ConsistencyAll
	case "LOCAL_QUORUM":
		return ConsistencyLocalQuorum
	case "EACH_QUORUM":
		return ConsistencyEachQuorum
	case "SERIAL":
		return ConsistencySerial
	case "LOCAL_SERIAL":
		return ConsistencyLocalSerial
	case "LOCAL_ONE":
		return ConsistencyLocalOne
	default:
		return ConsistencyQuorum
	}
}

// ExecutionOptions carries every per-call knob named in spec §6:
// consistency, paging, routing, idempotence, custom payload, proxy
// execution, a fixed target host, and per-call policy/profile overrides.
type ExecutionOptions struct {
	Consistency       protocol.Consistency
	SerialConsistency protocol.Consistency
	FetchSize         int32  // 0 means "server default"
	PageState         []byte // opaque paging cursor from a previous ResultSet
	Prepare           bool   // force PREPARE+EXECUTE instead of a plain QUERY

	IsIdempotent bool
	Hints        []string // CQL type hints for untyped bind values

	RoutingKey     []byte
	RoutingIndexes []int
	RoutingNames   []string
	RoutingToken   string // precomputed token, bypasses key->token hashing

	CustomPayload map[string][]byte
	ExecuteAs     string // proxy user; becomes a "ProxyExecute" custom-payload entry

	Host string // fixed target endpoint, bypasses the load-balancing plan

	ReadTimeout time.Duration
	Retry       retry.Policy
	Speculative speculativeexecution.Policy
	LoadBalancing loadbalancing.Policy

	ExecutionProfile string // named profile to resolve policies/consistency/timeout from
	Keyspace         string
	TraceQuery       bool
	Timestamp        *int64
	AutoPage         bool

	BatchKind BatchKind // logged|counter (batch only, ignored by Execute/Stream)
}

// BatchKind distinguishes LOGGED, UNLOGGED, and COUNTER batches (the
// `logged|counter` batch-only execution option named in §6).
type BatchKind int

const (
	BatchLogged BatchKind = iota
	BatchUnlogged
	BatchCounter
)

// BatchableStatement is one statement inside a Session.Batch call: either
// a raw query string or a previously prepared statement, with its bound
// values.
type BatchableStatement struct {
	Query    string
	Prepared *PreparedStatement
	Values   [][]byte
	Names    []string
}

const proxyExecuteKey = "ProxyExecute"

// payload folds ExecuteAs into the custom payload the way a real
// DSE proxy-execute request carries it, without mutating the caller's map.
func (o ExecutionOptions) payload() map[string][]byte {
	if o.ExecuteAs == "" {
		return o.CustomPayload
	}
	out := make(map[string][]byte, len(o.CustomPayload)+1)
	for k, v := range o.CustomPayload {
		out[k] = v
	}
	out[proxyExecuteKey] = []byte(o.ExecuteAs)
	return out
}
