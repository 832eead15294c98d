package protocol

import "fmt"

// EncodeStartup builds a STARTUP message body from the given options.
// The connection handshake passes CQL_VERSION and, when negotiated,
// COMPRESSION; no client-identification options (client id, application
// name/version, driver version) are sent.
func EncodeStartup(options map[string]string) []byte {
	w := &PrimitiveWriter{}
	w.WriteStringMap(options)
	return w.Bytes()
}

// EncodeOptions returns the (empty) OPTIONS message body.
func EncodeOptions() []byte { return nil }

// DecodeSupported parses a SUPPORTED message body into its string
// multimap (e.g. CQL_VERSION, COMPRESSION options the server offers).
func DecodeSupported(body []byte) (map[string][]string, error) {
	return NewPrimitiveReader(body).ReadStringMultiMap()
}

// QueryParameters is the common parameter block shared by QUERY and
// EXECUTE bodies.
type QueryParameters struct {
	Consistency       Consistency
	Values            [][]byte
	ValueNames        []string // set iff named values were bound
	SkipMetadata      bool
	PageSize          int32 // 0 means "not set"
	PagingState       []byte
	SerialConsistency Consistency // 0 (ANY) means "not set"
	Timestamp         *int64
	Keyspace          string // protocol v5 per-request keyspace override
}

const (
	flagValues            uint32 = 0x0001
	flagSkipMetadata      uint32 = 0x0002
	flagPageSize          uint32 = 0x0004
	flagPagingState       uint32 = 0x0008
	flagSerialConsistency uint32 = 0x0010
	flagDefaultTimestamp  uint32 = 0x0020
	flagNamesForValues    uint32 = 0x0040
	flagWithKeyspace      uint32 = 0x0080
)

func writeQueryParameters(w *PrimitiveWriter, p QueryParameters) {
	w.WriteShort(uint16(p.Consistency))

	var flags uint32
	if len(p.Values) > 0 {
		flags |= flagValues
	}
	if p.SkipMetadata {
		flags |= flagSkipMetadata
	}
	if p.PageSize > 0 {
		flags |= flagPageSize
	}
	if len(p.PagingState) > 0 {
		flags |= flagPagingState
	}
	if p.SerialConsistency != 0 {
		flags |= flagSerialConsistency
	}
	if p.Timestamp != nil {
		flags |= flagDefaultTimestamp
	}
	if len(p.ValueNames) > 0 {
		flags |= flagNamesForValues
	}
	if p.Keyspace != "" {
		flags |= flagWithKeyspace
	}
	w.WriteInt(int32(flags))

	if flags&flagValues != 0 {
		w.WriteShort(uint16(len(p.Values)))
		for i, v := range p.Values {
			if flags&flagNamesForValues != 0 {
				w.WriteString(p.ValueNames[i])
			}
			w.WriteBytes(v)
		}
	}
	if flags&flagPageSize != 0 {
		w.WriteInt(p.PageSize)
	}
	if flags&flagPagingState != 0 {
		w.WriteBytes(p.PagingState)
	}
	if flags&flagSerialConsistency != 0 {
		w.WriteShort(uint16(p.SerialConsistency))
	}
	if flags&flagDefaultTimestamp != 0 {
		w.WriteLong(*p.Timestamp)
	}
	if flags&flagWithKeyspace != 0 {
		w.WriteString(p.Keyspace)
	}
}

// EncodeQuery builds a QUERY message body.
func EncodeQuery(query string, p QueryParameters) []byte {
	w := &PrimitiveWriter{}
	w.WriteLongString(query)
	writeQueryParameters(w, p)
	return w.Bytes()
}

// EncodePrepare builds a PREPARE message body.
func EncodePrepare(query string, keyspace string) []byte {
	w := &PrimitiveWriter{}
	w.WriteLongString(query)
	if keyspace != "" {
		w.WriteInt(int32(flagWithKeyspace))
		w.WriteString(keyspace)
	} else {
		w.WriteInt(0)
	}
	return w.Bytes()
}

// EncodeExecute builds an EXECUTE message body for a previously prepared
// statement, identified by its server-assigned query id.
func EncodeExecute(queryID []byte, p QueryParameters) []byte {
	w := &PrimitiveWriter{}
	w.WriteShortBytes(queryID)
	writeQueryParameters(w, p)
	return w.Bytes()
}

// BatchType distinguishes LOGGED, UNLOGGED, and COUNTER batches (spec §6
// `logged|counter` execution option).
type BatchType byte

const (
	BatchLogged   BatchType = 0
	BatchUnlogged BatchType = 1
	BatchCounter  BatchType = 2
)

// BatchStatement is one statement within a BATCH message: either a raw
// query string or a prepared statement id, with its bound values.
type BatchStatement struct {
	QueryID    []byte // nil means Query is a raw string statement
	Query      string
	Values     [][]byte
	ValueNames []string
}

// EncodeBatch builds a BATCH message body.
func EncodeBatch(batchType BatchType, statements []BatchStatement, consistency Consistency, serialConsistency Consistency, timestamp *int64) []byte {
	w := &PrimitiveWriter{}
	w.WriteByte(byte(batchType))
	w.WriteShort(uint16(len(statements)))
	for _, s := range statements {
		named := len(s.ValueNames) > 0
		if s.QueryID != nil {
			w.WriteByte(1)
			w.WriteShortBytes(s.QueryID)
		} else {
			w.WriteByte(0)
			w.WriteLongString(s.Query)
		}
		w.WriteShort(uint16(len(s.Values)))
		for i, v := range s.Values {
			if named {
				w.WriteString(s.ValueNames[i])
			}
			w.WriteBytes(v)
		}
	}
	w.WriteShort(uint16(consistency))

	var flags uint32
	if serialConsistency != 0 {
		flags |= flagSerialConsistency
	}
	if timestamp != nil {
		flags |= flagDefaultTimestamp
	}
	w.WriteInt(int32(flags))
	if flags&flagSerialConsistency != 0 {
		w.WriteShort(uint16(serialConsistency))
	}
	if flags&flagDefaultTimestamp != 0 {
		w.WriteLong(*timestamp)
	}
	return w.Bytes()
}

// RegisterEventType names one of the three event categories the control
// connection subscribes to (spec §4.4).
type RegisterEventType string

const (
	EventTopologyChange RegisterEventType = "TOPOLOGY_CHANGE"
	EventStatusChange   RegisterEventType = "STATUS_CHANGE"
	EventSchemaChange   RegisterEventType = "SCHEMA_CHANGE"
)

// EncodeRegister builds a REGISTER message body.
func EncodeRegister(events []RegisterEventType) []byte {
	w := &PrimitiveWriter{}
	list := make([]string, len(events))
	for i, e := range events {
		list[i] = string(e)
	}
	w.WriteStringList(list)
	return w.Bytes()
}

// ResultKind is the first 4-byte field of a RESULT body.
type ResultKind int32

const (
	ResultVoid         ResultKind = 0x0001
	ResultRows         ResultKind = 0x0002
	ResultSetKeyspace  ResultKind = 0x0003
	ResultPrepared     ResultKind = 0x0004
	ResultSchemaChange ResultKind = 0x0005
)

// ColumnSpec describes one column in a Rows result's metadata.
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	Type     uint16 // CQL type id; full type-option decoding is an external value-codec concern
}

// RowsResult is a decoded RESULT/Rows body.
type RowsResult struct {
	Columns         []ColumnSpec
	Rows            [][][]byte
	PagingState     []byte
	HasMorePages    bool
}

// PreparedResult is a decoded RESULT/Prepared body.
type PreparedResult struct {
	QueryID           []byte
	ResultMetadataID  []byte
	Columns           []ColumnSpec
	PKIndexes         []uint16
	ResultColumns     []ColumnSpec
}

// DecodeResultKind peeks the leading result kind without consuming the
// rest of the body, so the connection can dispatch to the right decoder.
func DecodeResultKind(body []byte) (ResultKind, error) {
	r := NewPrimitiveReader(body)
	k, err := r.ReadInt()
	if err != nil {
		return 0, err
	}
	return ResultKind(k), nil
}

func decodeRowsMetadata(r *PrimitiveReader) ([]ColumnSpec, []byte, bool, error) {
	flags, err := r.ReadInt()
	if err != nil {
		return nil, nil, false, err
	}
	columnCount, err := r.ReadInt()
	if err != nil {
		return nil, nil, false, err
	}

	const (
		rowsFlagGlobalTablesSpec = 0x0001
		rowsFlagHasMorePages     = 0x0002
		rowsFlagNoMetadata       = 0x0004
	)

	var pagingState []byte
	if flags&rowsFlagHasMorePages != 0 {
		pagingState, err = r.ReadBytes()
		if err != nil {
			return nil, nil, false, err
		}
	}
	if flags&rowsFlagNoMetadata != 0 {
		return nil, pagingState, flags&rowsFlagHasMorePages != 0, nil
	}

	var globalKeyspace, globalTable string
	if flags&rowsFlagGlobalTablesSpec != 0 {
		globalKeyspace, err = r.ReadString()
		if err != nil {
			return nil, nil, false, err
		}
		globalTable, err = r.ReadString()
		if err != nil {
			return nil, nil, false, err
		}
	}

	cols := make([]ColumnSpec, columnCount)
	for i := range cols {
		ks, tbl := globalKeyspace, globalTable
		if flags&rowsFlagGlobalTablesSpec == 0 {
			if ks, err = r.ReadString(); err != nil {
				return nil, nil, false, err
			}
			if tbl, err = r.ReadString(); err != nil {
				return nil, nil, false, err
			}
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, nil, false, err
		}
		typ, err := r.ReadShort()
		if err != nil {
			return nil, nil, false, err
		}
		cols[i] = ColumnSpec{Keyspace: ks, Table: tbl, Name: name, Type: typ}
	}
	return cols, pagingState, flags&rowsFlagHasMorePages != 0, nil
}

// DecodeRows decodes a RESULT/Rows body (the kind field must already be
// known to be ResultRows).
func DecodeRows(body []byte) (*RowsResult, error) {
	r := NewPrimitiveReader(body)
	if _, err := r.ReadInt(); err != nil { // kind, already known
		return nil, err
	}
	cols, pagingState, hasMore, err := decodeRowsMetadata(r)
	if err != nil {
		return nil, err
	}
	rowCount, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	rows := make([][][]byte, rowCount)
	for i := range rows {
		row := make([][]byte, len(cols))
		for c := range row {
			v, err := r.ReadBytes()
			if err != nil {
				return nil, err
			}
			row[c] = v
		}
		rows[i] = row
	}
	return &RowsResult{Columns: cols, Rows: rows, PagingState: pagingState, HasMorePages: hasMore}, nil
}

// DecodePrepared decodes a RESULT/Prepared body.
func DecodePrepared(body []byte) (*PreparedResult, error) {
	r := NewPrimitiveReader(body)
	if _, err := r.ReadInt(); err != nil {
		return nil, err
	}
	queryID, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	// protocol v5 carries a result metadata id here; earlier versions don't.
	// Callers on v4 and below never see this field populated; best-effort
	// peek and fall back gracefully isn't attempted here since the caller
	// always knows its negotiated version.
	resultMetadataID, _ := r.ReadBytes()

	pkCount, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	pkIndexes := make([]uint16, pkCount)
	for i := range pkIndexes {
		if pkIndexes[i], err = r.ReadShort(); err != nil {
			return nil, err
		}
	}
	cols, _, _, err := decodeRowsMetadata(r)
	if err != nil {
		return nil, err
	}
	var resultCols []ColumnSpec
	if r.Remaining() > 0 {
		resultCols, _, _, err = decodeRowsMetadata(r)
		if err != nil {
			return nil, err
		}
	}
	return &PreparedResult{
		QueryID:          queryID,
		ResultMetadataID: resultMetadataID,
		Columns:          cols,
		PKIndexes:        pkIndexes,
		ResultColumns:    resultCols,
	}, nil
}

// DecodeSetKeyspace decodes a RESULT/SetKeyspace body into the new
// keyspace name.
func DecodeSetKeyspace(body []byte) (string, error) {
	r := NewPrimitiveReader(body)
	if _, err := r.ReadInt(); err != nil {
		return "", err
	}
	return r.ReadString()
}

// SchemaChangeKind is the SCHEMA_CHANGE event/result change type.
type SchemaChangeKind string

const (
	SchemaChangeCreated SchemaChangeKind = "CREATED"
	SchemaChangeUpdated SchemaChangeKind = "UPDATED"
	SchemaChangeDropped SchemaChangeKind = "DROPPED"
)

// SchemaChangeEvent is the decoded body of either a SCHEMA_CHANGE EVENT
// message or a RESULT/SchemaChange body (the wire shape is identical).
type SchemaChangeEvent struct {
	Kind     SchemaChangeKind
	Target   string // KEYSPACE, TABLE, TYPE, FUNCTION, AGGREGATE
	Keyspace string
	Name     string
	Arguments []string
}

func decodeSchemaChangeBody(r *PrimitiveReader) (*SchemaChangeEvent, error) {
	kind, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	target, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	ev := &SchemaChangeEvent{Kind: SchemaChangeKind(kind), Target: target}
	ev.Keyspace, err = r.ReadString()
	if err != nil {
		return nil, err
	}
	switch target {
	case "TABLE", "TYPE":
		ev.Name, err = r.ReadString()
		if err != nil {
			return nil, err
		}
	case "FUNCTION", "AGGREGATE":
		ev.Name, err = r.ReadString()
		if err != nil {
			return nil, err
		}
		ev.Arguments, err = r.ReadStringList()
		if err != nil {
			return nil, err
		}
	}
	return ev, nil
}

// DecodeSchemaChangeResult decodes a RESULT/SchemaChange body.
func DecodeSchemaChangeResult(body []byte) (*SchemaChangeEvent, error) {
	r := NewPrimitiveReader(body)
	if _, err := r.ReadInt(); err != nil {
		return nil, err
	}
	return decodeSchemaChangeBody(r)
}

// StatusChangeEvent is the decoded body of a STATUS_CHANGE EVENT message
// (node UP/DOWN).
type StatusChangeEvent struct {
	Up   bool
	Addr string
	Port int32
}

// TopologyChangeEvent is the decoded body of a TOPOLOGY_CHANGE EVENT
// message (node added/removed/moved).
type TopologyChangeEvent struct {
	Change string // NEW_NODE, REMOVED_NODE, MOVED_NODE
	Addr   string
	Port   int32
}

// Event is a discriminated union over the three EVENT body shapes the
// control connection registers for.
type Event struct {
	Type     RegisterEventType
	Status   *StatusChangeEvent
	Topology *TopologyChangeEvent
	Schema   *SchemaChangeEvent
}

func readInetAddr(r *PrimitiveReader) (string, int32, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", 0, err
	}
	addrBytes := make([]byte, n)
	for i := range addrBytes {
		b, err := r.ReadByte()
		if err != nil {
			return "", 0, err
		}
		addrBytes[i] = b
	}
	port, err := r.ReadInt()
	if err != nil {
		return "", 0, err
	}
	addr := fmt.Sprintf("%v", addrBytes)
	if n == 4 {
		addr = fmt.Sprintf("%d.%d.%d.%d", addrBytes[0], addrBytes[1], addrBytes[2], addrBytes[3])
	}
	return addr, port, nil
}

// DecodeEvent decodes an EVENT message body.
func DecodeEvent(body []byte) (*Event, error) {
	r := NewPrimitiveReader(body)
	eventType, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	ev := &Event{Type: RegisterEventType(eventType)}
	switch ev.Type {
	case EventStatusChange:
		state, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		addr, port, err := readInetAddr(r)
		if err != nil {
			return nil, err
		}
		ev.Status = &StatusChangeEvent{Up: state == "UP", Addr: addr, Port: port}
	case EventTopologyChange:
		change, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		addr, port, err := readInetAddr(r)
		if err != nil {
			return nil, err
		}
		ev.Topology = &TopologyChangeEvent{Change: change, Addr: addr, Port: port}
	case EventSchemaChange:
		sc, err := decodeSchemaChangeBody(r)
		if err != nil {
			return nil, err
		}
		ev.Schema = sc
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	return ev, nil
}

// EncodeAuthResponse builds an AUTH_RESPONSE body carrying the SASL
// response token.
func EncodeAuthResponse(token []byte) []byte {
	w := &PrimitiveWriter{}
	w.WriteBytes(token)
	return w.Bytes()
}

// DecodeAuthChallenge extracts the SASL challenge token from an
// AUTH_CHALLENGE body.
func DecodeAuthChallenge(body []byte) ([]byte, error) {
	return NewPrimitiveReader(body).ReadBytes()
}

// DecodeAuthenticate extracts the authenticator class name from an
// AUTHENTICATE body.
func DecodeAuthenticate(body []byte) (string, error) {
	return NewPrimitiveReader(body).ReadString()
}

// EncodeBytesMap builds a `[bytes map]` as used by the custom payload
// frame component (a short followed by string/bytes pairs), written
// ahead of the opcode body when FlagCustomPayload is set.
func EncodeBytesMap(m map[string][]byte) []byte {
	w := &PrimitiveWriter{}
	w.WriteShort(uint16(len(m)))
	for k, v := range m {
		w.WriteString(k)
		w.WriteBytes(v)
	}
	return w.Bytes()
}
