package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PrimitiveWriter accumulates the CQL primitive-typed fields (`[int]`,
// `[short]`, `[string]`, `[string map]`, `[bytes]`, ...) that every
// opcode-specific message body is composed of.
type PrimitiveWriter struct {
	buf []byte
}

func (w *PrimitiveWriter) Bytes() []byte { return w.buf }

func (w *PrimitiveWriter) WriteByte(b byte) { w.buf = append(w.buf, b) }

func (w *PrimitiveWriter) WriteShort(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *PrimitiveWriter) WriteInt(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *PrimitiveWriter) WriteLong(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteString writes a `[string]`: a 2-byte length followed by UTF-8 bytes.
func (w *PrimitiveWriter) WriteString(s string) {
	w.WriteShort(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteLongString writes a `[long string]`: a 4-byte length followed by
// UTF-8 bytes, used for QUERY bodies since query text is unbounded.
func (w *PrimitiveWriter) WriteLongString(s string) {
	w.WriteInt(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes writes a `[bytes]`: a 4-byte length (negative meaning null)
// followed by raw bytes.
func (w *PrimitiveWriter) WriteBytes(b []byte) {
	if b == nil {
		w.WriteInt(-1)
		return
	}
	w.WriteInt(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteShortBytes writes a `[short bytes]`: a 2-byte length followed by
// raw bytes, used for the prepared query id in EXECUTE and BATCH bodies.
func (w *PrimitiveWriter) WriteShortBytes(b []byte) {
	w.WriteShort(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteStringMap writes a `[string map]`: a 2-byte count followed by
// key/value `[string]` pairs, used by STARTUP options.
func (w *PrimitiveWriter) WriteStringMap(m map[string]string) {
	w.WriteShort(uint16(len(m)))
	for k, v := range m {
		w.WriteString(k)
		w.WriteString(v)
	}
}

// WriteStringList writes a `[string list]`, used by REGISTER's event
// type list.
func (w *PrimitiveWriter) WriteStringList(list []string) {
	w.WriteShort(uint16(len(list)))
	for _, s := range list {
		w.WriteString(s)
	}
}

// PrimitiveReader decodes CQL primitives from a message body, tracking its
// own cursor. Reads past the end of the body return an error rather than
// panicking, so a truncated/corrupt RESULT body surfaces as a protocol
// error instead of crashing the reader goroutine.
type PrimitiveReader struct {
	buf []byte
	pos int
}

func NewPrimitiveReader(buf []byte) *PrimitiveReader {
	return &PrimitiveReader{buf: buf}
}

func (r *PrimitiveReader) Remaining() int { return len(r.buf) - r.pos }

func (r *PrimitiveReader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("primitive read: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

func (r *PrimitiveReader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *PrimitiveReader) ReadShort() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *PrimitiveReader) ReadInt() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4]))
	r.pos += 4
	return v, nil
}

func (r *PrimitiveReader) ReadLong() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8]))
	r.pos += 8
	return v, nil
}

func (r *PrimitiveReader) ReadString() (string, error) {
	n, err := r.ReadShort()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *PrimitiveReader) ReadLongString() (string, error) {
	n, err := r.ReadInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("primitive read: negative long string length")
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *PrimitiveReader) ReadBytes() ([]byte, error) {
	n, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *PrimitiveReader) ReadStringList() ([]string, error) {
	n, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i], err = r.ReadString()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadStringMap reads a `[string map]`, the inverse of WriteStringMap.
func (r *PrimitiveReader) ReadStringMap() (map[string]string, error) {
	n, err := r.ReadShort()
	out := make(map[string]string, n)
	for i := 0; err == nil && i < int(n); i++ {
		var k string
		if k, err = r.ReadString(); err == nil {
			out[k], err = r.ReadString()
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PrimitiveReader) ReadStringMultiMap() (map[string][]string, error) {
	n, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, n)
	for i := 0; i < int(n); i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := r.ReadStringList()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// EncodeFloat32Vector is the specialized fast path named in spec §9 for
// CQL vectors of 32-bit floats, avoiding a boxed []interface{} round trip.
func EncodeFloat32Vector(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeFloat32Vector reverses EncodeFloat32Vector.
func DecodeFloat32Vector(body []byte) ([]float32, error) {
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("vector decode: body length %d not a multiple of 4", len(body))
	}
	out := make([]float32, len(body)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(body[i*4:]))
	}
	return out, nil
}
