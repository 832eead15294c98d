package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeQuery_DecodesBackToParameters(t *testing.T) {
	ts := int64(1234)
	body := EncodeQuery("select * from t", QueryParameters{
		Consistency: ConsistencyQuorum,
		Values:      [][]byte{{1, 2}, {3}},
		PageSize:    100,
		Timestamp:   &ts,
	})

	r := NewPrimitiveReader(body)
	query, err := r.ReadLongString()
	require.NoError(t, err)
	assert.Equal(t, "select * from t", query)

	consistency, err := r.ReadShort()
	require.NoError(t, err)
	assert.EqualValues(t, ConsistencyQuorum, consistency)

	flags, err := r.ReadInt()
	require.NoError(t, err)
	assert.NotZero(t, flags&int32(flagValues))
	assert.NotZero(t, flags&int32(flagPageSize))
	assert.NotZero(t, flags&int32(flagDefaultTimestamp))
	assert.Zero(t, flags&int32(flagSkipMetadata))

	count, err := r.ReadShort()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	v1, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, v1)

	v2, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, v2)

	pageSize, err := r.ReadInt()
	require.NoError(t, err)
	assert.EqualValues(t, 100, pageSize)

	readTS, err := r.ReadLong()
	require.NoError(t, err)
	assert.EqualValues(t, 1234, readTS)
}

func TestEncodePrepare_WithAndWithoutKeyspace(t *testing.T) {
	body := EncodePrepare("select 1", "myks")
	r := NewPrimitiveReader(body)
	q, err := r.ReadLongString()
	require.NoError(t, err)
	assert.Equal(t, "select 1", q)
	flags, err := r.ReadInt()
	require.NoError(t, err)
	assert.EqualValues(t, flagWithKeyspace, flags)
	ks, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "myks", ks)

	body = EncodePrepare("select 1", "")
	r = NewPrimitiveReader(body)
	_, err = r.ReadLongString()
	require.NoError(t, err)
	flags, err = r.ReadInt()
	require.NoError(t, err)
	assert.Zero(t, flags)
}

func TestDecodePrepared_RoundTripShape(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteInt(int32(ResultPrepared))
	w.WriteBytes([]byte{1, 2, 3, 4}) // query id
	w.WriteBytes(nil)                // no v5 result metadata id
	w.WriteShort(1)                  // pk count
	w.WriteShort(0)                  // pk index 0
	// metadata: flags=noMetadata, columnCount=0
	w.WriteInt(0x0004)
	w.WriteInt(0)

	prep, err := DecodePrepared(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, prep.QueryID)
	assert.Equal(t, []uint16{0}, prep.PKIndexes)
	assert.Empty(t, prep.Columns)
}

func TestDecodeRows_RoundTrip(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteInt(int32(ResultRows))
	w.WriteInt(0x0001) // global tables spec
	w.WriteInt(2)       // column count
	w.WriteString("ks")
	w.WriteString("tbl")
	w.WriteString("id")
	w.WriteShort(9) // type
	w.WriteString("name")
	w.WriteShort(13)
	w.WriteInt(1) // row count
	w.WriteBytes([]byte("1"))
	w.WriteBytes([]byte("alice"))

	res, err := DecodeRows(w.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Columns, 2)
	assert.Equal(t, "id", res.Columns[0].Name)
	assert.Equal(t, "ks", res.Columns[0].Keyspace)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []byte("1"), res.Rows[0][0])
	assert.Equal(t, []byte("alice"), res.Rows[0][1])
	assert.False(t, res.HasMorePages)
}

func TestDecodeRows_HasMorePagesCarriesPagingState(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteInt(int32(ResultRows))
	w.WriteInt(0x0002 | 0x0004) // hasMorePages | noMetadata
	w.WriteInt(0)
	w.WriteBytes([]byte("cursor"))
	w.WriteInt(0)

	res, err := DecodeRows(w.Bytes())
	require.NoError(t, err)
	assert.True(t, res.HasMorePages)
	assert.Equal(t, []byte("cursor"), res.PagingState)
}

func TestDecodeSetKeyspace(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteInt(int32(ResultSetKeyspace))
	w.WriteString("newks")

	ks, err := DecodeSetKeyspace(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "newks", ks)
}

func TestDecodeEvent_StatusChange(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteString(string(EventStatusChange))
	w.WriteString("UP")
	w.WriteByte(4)
	w.WriteByte(10)
	w.WriteByte(0)
	w.WriteByte(0)
	w.WriteByte(1)
	w.WriteInt(9042)

	ev, err := DecodeEvent(w.Bytes())
	require.NoError(t, err)
	require.NotNil(t, ev.Status)
	assert.True(t, ev.Status.Up)
	assert.Equal(t, "10.0.0.1", ev.Status.Addr)
	assert.EqualValues(t, 9042, ev.Status.Port)
}

func TestDecodeEvent_SchemaChange(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteString(string(EventSchemaChange))
	w.WriteString(string(SchemaChangeCreated))
	w.WriteString("TABLE")
	w.WriteString("myks")
	w.WriteString("mytbl")

	ev, err := DecodeEvent(w.Bytes())
	require.NoError(t, err)
	require.NotNil(t, ev.Schema)
	assert.Equal(t, SchemaChangeCreated, ev.Schema.Kind)
	assert.Equal(t, "myks", ev.Schema.Keyspace)
	assert.Equal(t, "mytbl", ev.Schema.Name)
}

func TestEncodeBytesMap_RoundTrip(t *testing.T) {
	body := EncodeBytesMap(map[string][]byte{"ProxyExecute": []byte("alice")})

	r := NewPrimitiveReader(body)
	n, err := r.ReadShort()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	key, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ProxyExecute", key)

	val, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), val)
}

func TestEncodeBatch_StatementCount(t *testing.T) {
	body := EncodeBatch(BatchLogged, []BatchStatement{
		{Query: "insert into t values (1)"},
		{QueryID: []byte{1, 2}},
	}, ConsistencyQuorum, 0, nil)

	r := NewPrimitiveReader(body)
	kind, err := r.ReadByte()
	require.NoError(t, err)
	assert.EqualValues(t, BatchLogged, kind)

	count, err := r.ReadShort()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
