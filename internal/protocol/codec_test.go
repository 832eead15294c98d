package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	body := []byte("hello frame body")

	require.NoError(t, w.WriteFrame(ProtocolV4, FlagTracing, 7, OpQuery, body))

	r := NewReader(&buf, nil)
	frame, err := r.ReadFrame()
	require.NoError(t, err)

	assert.Equal(t, ProtocolV4, frame.Header.Version)
	assert.False(t, frame.Header.Response)
	assert.Equal(t, FlagTracing, frame.Header.Flags)
	assert.EqualValues(t, 7, frame.Header.Stream)
	assert.Equal(t, OpQuery, frame.Header.Opcode)
	assert.Equal(t, body, frame.Body)
}

func TestWriterReader_MultipleFramesBackToBack(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	require.NoError(t, w.WriteFrame(ProtocolV4, 0, 1, OpOptions, nil))
	require.NoError(t, w.WriteFrame(ProtocolV4, 0, 2, OpStartup, []byte("x")))

	r := NewReader(&buf, nil)

	f1, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, OpOptions, f1.Header.Opcode)
	assert.Empty(t, f1.Body)

	f2, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, OpStartup, f2.Header.Opcode)
	assert.Equal(t, []byte("x"), f2.Body)
}

func TestReader_ResponseDirectionBit(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(ProtocolV4) | directionMask)
	buf.WriteByte(0)
	buf.Write([]byte{0, 5}) // stream
	buf.WriteByte(byte(OpResult))
	buf.Write([]byte{0, 0, 0, 0}) // length 0

	r := NewReader(&buf, nil)
	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.True(t, frame.Header.Response)
	assert.EqualValues(t, 5, frame.Header.Stream)
}

func TestReader_RejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(ProtocolV4))
	buf.WriteByte(0)
	buf.Write([]byte{0, 0})
	buf.WriteByte(byte(OpQuery))
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // huge length, no body follows

	r := NewReader(&buf, nil)
	_, err := r.ReadFrame()
	require.Error(t, err)
	var malformed *ErrMalformedFrame
	assert.ErrorAs(t, err, &malformed)
}

func TestReader_CompressedFrameWithoutNegotiationErrors(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	// WriteFrame clears FlagCompression when no compressor is set, so
	// build the bytes by hand to simulate a peer that claims compression.
	body := []byte("not actually compressed")
	require.NoError(t, w.WriteFrame(ProtocolV4, 0, 1, OpQuery, body))
	raw := buf.Bytes()
	raw[1] = byte(FlagCompression)

	r := NewReader(bytes.NewReader(raw), nil)
	_, err := r.ReadFrame()
	require.Error(t, err)
	var malformed *ErrMalformedFrame
	assert.ErrorAs(t, err, &malformed)
}
