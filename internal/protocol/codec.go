package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// ErrMalformedFrame is returned by the streaming reader when the header or
// body cannot be decoded. Per spec §4.1 this is always connection-fatal.
type ErrMalformedFrame struct {
	Reason string
}

func (e *ErrMalformedFrame) Error() string {
	return fmt.Sprintf("protocol error: malformed frame: %s", e.Reason)
}

// Reader is a streaming frame decoder over a net.Conn (or any io.Reader).
// It buffers partial frames internally and yields complete frames one at a
// time; it is not safe for concurrent use by more than one goroutine (the
// connection owns exactly one reader goroutine, per spec §5).
type Reader struct {
	br          *bufio.Reader
	compression BodyDecompressor
}

// NewReader wraps r with frame-boundary buffering. compression may be nil
// if no compression was negotiated during STARTUP.
func NewReader(r io.Reader, compression BodyDecompressor) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024), compression: compression}
}

// ReadFrame blocks until one complete frame is available, decoding and
// (if negotiated) decompressing its body. A read error from the
// underlying connection is surfaced unwrapped so the caller can
// distinguish it from a malformed frame.
func (r *Reader) ReadFrame() (*Frame, error) {
	var hdr [HeaderLength]byte
	if _, err := io.ReadFull(r.br, hdr[:]); err != nil {
		return nil, err
	}

	versionByte := hdr[0]
	h := Header{
		Version:  Version(versionByte &^ directionMask),
		Response: versionByte&directionMask != 0,
		Flags:    Flags(hdr[1]),
		Stream:   int16(binary.BigEndian.Uint16(hdr[2:4])),
		Opcode:   Opcode(hdr[4]),
		Length:   binary.BigEndian.Uint32(hdr[5:9]),
	}

	const maxFrameLength = 256 * 1024 * 1024
	if h.Length > maxFrameLength {
		return nil, &ErrMalformedFrame{Reason: fmt.Sprintf("body length %d exceeds maximum", h.Length)}
	}

	body := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r.br, body); err != nil {
			return nil, err
		}
	}

	if h.Flags.Has(FlagCompression) && len(body) > 0 {
		if r.compression == nil {
			return nil, &ErrMalformedFrame{Reason: "compressed frame but no compression negotiated"}
		}
		decompressed, err := r.compression.Decompress(body)
		if err != nil {
			return nil, &ErrMalformedFrame{Reason: "decompression failed: " + err.Error()}
		}
		body = decompressed
	}

	return &Frame{Header: h, Body: body}, nil
}

// Writer emits whole frames atomically — each WriteFrame call holds the
// lock for the full write so concurrent senders on the same connection
// never interleave bytes on the wire (spec §4.1 contract (b)).
type Writer struct {
	mu          sync.Mutex
	w           io.Writer
	compression BodyCompressor
}

func NewWriter(w io.Writer, compression BodyCompressor) *Writer {
	return &Writer{w: w, compression: compression}
}

// WriteFrame encodes and writes one frame. version is always the request
// direction (the response bit is never set by a client).
func (w *Writer) WriteFrame(version Version, flags Flags, stream int16, opcode Opcode, body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.compression != nil && flags.Has(FlagCompression) && len(body) > 0 {
		compressed, err := w.compression.Compress(body)
		if err != nil {
			return fmt.Errorf("compress frame body: %w", err)
		}
		body = compressed
	} else {
		flags &^= FlagCompression
	}

	buf := make([]byte, HeaderLength+len(body))
	buf[0] = byte(version)
	buf[1] = byte(flags)
	binary.BigEndian.PutUint16(buf[2:4], uint16(stream))
	buf[4] = byte(opcode)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(body)))
	copy(buf[HeaderLength:], body)

	_, err := w.w.Write(buf)
	return err
}
