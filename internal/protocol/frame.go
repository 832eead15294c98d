// Package protocol implements the CQL native binary protocol: frame
// headers, streaming encode/decode, compression negotiation, and the
// opcode-specific message bodies used by the connection and control
// connection layers.
package protocol

import "fmt"

// Version is the CQL native protocol version byte (without the response
// direction bit).
type Version uint8

const (
	ProtocolV3 Version = 0x03
	ProtocolV4 Version = 0x04
	ProtocolV5 Version = 0x05

	// directionMask marks a frame as a server response when set on the
	// wire version byte.
	directionMask = 0x80
)

// SupportedVersions is the set of protocol versions this driver can speak,
// in descending preference order. Connections are opened with the first
// entry (ProtocolV5); no fallback to a lower version is attempted when a
// server rejects it.
var SupportedVersions = []Version{ProtocolV5, ProtocolV4, ProtocolV3}

// Opcode identifies the kind of message carried by a frame body.
type Opcode uint8

const (
	OpError        Opcode = 0x00
	OpStartup      Opcode = 0x01
	OpReady        Opcode = 0x02
	OpAuthenticate Opcode = 0x03
	OpOptions      Opcode = 0x05
	OpSupported    Opcode = 0x06
	OpQuery        Opcode = 0x07
	OpResult       Opcode = 0x08
	OpPrepare      Opcode = 0x09
	OpExecute      Opcode = 0x0A
	OpRegister     Opcode = 0x0B
	OpEvent        Opcode = 0x0C
	OpBatch        Opcode = 0x0D
	OpAuthChallenge Opcode = 0x0E
	OpAuthResponse Opcode = 0x0F
	OpAuthSuccess  Opcode = 0x10
)

func (o Opcode) String() string {
	switch o {
	case OpError:
		return "ERROR"
	case OpStartup:
		return "STARTUP"
	case OpReady:
		return "READY"
	case OpAuthenticate:
		return "AUTHENTICATE"
	case OpOptions:
		return "OPTIONS"
	case OpSupported:
		return "SUPPORTED"
	case OpQuery:
		return "QUERY"
	case OpResult:
		return "RESULT"
	case OpPrepare:
		return "PREPARE"
	case OpExecute:
		return "EXECUTE"
	case OpRegister:
		return "REGISTER"
	case OpEvent:
		return "EVENT"
	case OpBatch:
		return "BATCH"
	case OpAuthChallenge:
		return "AUTH_CHALLENGE"
	case OpAuthResponse:
		return "AUTH_RESPONSE"
	case OpAuthSuccess:
		return "AUTH_SUCCESS"
	default:
		return fmt.Sprintf("OPCODE(%#x)", uint8(o))
	}
}

// Flags is the frame header flag bitmask.
type Flags uint8

const (
	FlagCompression  Flags = 0x01
	FlagTracing      Flags = 0x02
	FlagCustomPayload Flags = 0x04
	FlagWarning      Flags = 0x08
	FlagUseBeta      Flags = 0x10
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// HeaderLength is the fixed size, in bytes, of a v3+ frame header.
const HeaderLength = 9

// Header is the 9-byte frame header common to every CQL frame.
type Header struct {
	Version  Version
	Response bool // set when this is a server response frame
	Flags    Flags
	Stream   int16
	Opcode   Opcode
	Length   uint32
}

// Frame is a fully decoded header plus its body bytes; Reader.ReadFrame
// decompresses the body before building a Frame (see codec.go).
type Frame struct {
	Header Header
	Body   []byte
}

func (h Header) String() string {
	dir := "REQ"
	if h.Response {
		dir = "RESP"
	}
	return fmt.Sprintf("v%d %s stream=%d op=%s len=%d", h.Version, dir, h.Stream, h.Opcode, h.Length)
}
