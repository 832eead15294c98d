package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitives_ScalarRoundTrip(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteByte(0x42)
	w.WriteShort(1234)
	w.WriteInt(-5000)
	w.WriteLong(9_000_000_000)
	w.WriteString("hello")
	w.WriteLongString("a longer string body")
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteBytes(nil)

	r := NewPrimitiveReader(w.Bytes())

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.EqualValues(t, 0x42, b)

	sh, err := r.ReadShort()
	require.NoError(t, err)
	assert.EqualValues(t, 1234, sh)

	i, err := r.ReadInt()
	require.NoError(t, err)
	assert.EqualValues(t, -5000, i)

	l, err := r.ReadLong()
	require.NoError(t, err)
	assert.EqualValues(t, 9_000_000_000, l)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	ls, err := r.ReadLongString()
	require.NoError(t, err)
	assert.Equal(t, "a longer string body", ls)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, bs)

	nullBytes, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Nil(t, nullBytes)

	assert.Zero(t, r.Remaining())
}

func TestPrimitives_StringMapAndList(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteStringMap(map[string]string{"CQL_VERSION": "3.0.0"})
	w.WriteStringList([]string{"TOPOLOGY_CHANGE", "STATUS_CHANGE"})

	r := NewPrimitiveReader(w.Bytes())

	m, err := r.ReadStringMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"CQL_VERSION": "3.0.0"}, m)

	list, err := r.ReadStringList()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"TOPOLOGY_CHANGE", "STATUS_CHANGE"}, list)
}

func TestPrimitives_StringMultiMap(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteShort(1)
	w.WriteString("COMPRESSION")
	w.WriteStringList([]string{"lz4", "snappy"})

	r := NewPrimitiveReader(w.Bytes())
	mm, err := r.ReadStringMultiMap()
	require.NoError(t, err)
	assert.Equal(t, []string{"lz4", "snappy"}, mm["COMPRESSION"])
}

func TestPrimitives_ReadPastEndErrors(t *testing.T) {
	r := NewPrimitiveReader([]byte{0x01})
	_, err := r.ReadShort()
	assert.Error(t, err)
}

func TestPrimitives_NegativeLongStringLengthErrors(t *testing.T) {
	w := &PrimitiveWriter{}
	w.WriteInt(-1)
	r := NewPrimitiveReader(w.Bytes())
	_, err := r.ReadLongString()
	assert.Error(t, err)
}

func TestFloat32Vector_RoundTrip(t *testing.T) {
	values := []float32{1.5, -2.25, 0, 3.125}
	encoded := EncodeFloat32Vector(values)

	decoded, err := DecodeFloat32Vector(encoded)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestFloat32Vector_InvalidLength(t *testing.T) {
	_, err := DecodeFloat32Vector([]byte{1, 2, 3})
	assert.Error(t, err)
}
