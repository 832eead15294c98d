package protocol

import "fmt"

// ErrorCode is the 4-byte code at the start of an ERROR message body.
type ErrorCode int32

const (
	ErrServerError      ErrorCode = 0x0000
	ErrProtocolError    ErrorCode = 0x000A
	ErrAuthError        ErrorCode = 0x0100
	ErrUnavailable      ErrorCode = 0x1000
	ErrOverloaded       ErrorCode = 0x1001
	ErrIsBootstrapping  ErrorCode = 0x1002
	ErrTruncateError    ErrorCode = 0x1003
	ErrWriteTimeout     ErrorCode = 0x1100
	ErrReadTimeout      ErrorCode = 0x1200
	ErrReadFailure      ErrorCode = 0x1300
	ErrFunctionFailure  ErrorCode = 0x1400
	ErrWriteFailure     ErrorCode = 0x1500
	ErrSyntaxError      ErrorCode = 0x2000
	ErrUnauthorized     ErrorCode = 0x2100
	ErrInvalid          ErrorCode = 0x2200
	ErrConfigError      ErrorCode = 0x2300
	ErrAlreadyExists    ErrorCode = 0x2400
	ErrUnprepared       ErrorCode = 0x2500
)

// ServerError is the decoded ERROR message body, with the fields that
// onUnavailable/onReadTimeout/onWriteTimeout (spec §4.7) need to make a
// retry decision.
type ServerError struct {
	Code    ErrorCode
	Message string

	// Populated only for the error codes that carry them.
	Consistency      Consistency
	Required         int32
	Alive            int32 // UNAVAILABLE
	Received         int32 // READ_TIMEOUT / WRITE_TIMEOUT
	BlockFor         int32 // READ_TIMEOUT / WRITE_TIMEOUT
	DataPresent      bool  // READ_TIMEOUT
	WriteType        WriteType
	Keyspace         string // UNPREPARED carries no keyspace; ALREADY_EXISTS does
	Table            string
	UnpreparedID     []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("cql server error %#x: %s", int32(e.Code), e.Message)
}

// IsFatal reports whether this error kind is non-retryable and must
// short-circuit the query plan per spec §7 ("Fatal kinds (syntax,
// authentication, unauthorized) short-circuit the plan").
func (e *ServerError) IsFatal() bool {
	switch e.Code {
	case ErrSyntaxError, ErrInvalid, ErrUnauthorized, ErrAuthError, ErrConfigError, ErrAlreadyExists:
		return true
	default:
		return false
	}
}

// DecodeServerError parses an ERROR message body.
func DecodeServerError(body []byte) (*ServerError, error) {
	r := NewPrimitiveReader(body)
	code, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	msg, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	se := &ServerError{Code: ErrorCode(code), Message: msg}

	switch se.Code {
	case ErrUnavailable:
		cl, err := r.ReadShort()
		if err != nil {
			return nil, err
		}
		se.Consistency = Consistency(cl)
		if se.Required, err = r.ReadInt(); err != nil {
			return nil, err
		}
		if se.Alive, err = r.ReadInt(); err != nil {
			return nil, err
		}
	case ErrReadTimeout, ErrReadFailure:
		cl, err := r.ReadShort()
		if err != nil {
			return nil, err
		}
		se.Consistency = Consistency(cl)
		if se.Received, err = r.ReadInt(); err != nil {
			return nil, err
		}
		if se.BlockFor, err = r.ReadInt(); err != nil {
			return nil, err
		}
		if se.Code == ErrReadTimeout {
			present, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			se.DataPresent = present != 0
		}
	case ErrWriteTimeout, ErrWriteFailure:
		cl, err := r.ReadShort()
		if err != nil {
			return nil, err
		}
		se.Consistency = Consistency(cl)
		if se.Received, err = r.ReadInt(); err != nil {
			return nil, err
		}
		if se.BlockFor, err = r.ReadInt(); err != nil {
			return nil, err
		}
		wt, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		se.WriteType = WriteType(wt)
	case ErrUnprepared:
		id, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		se.UnpreparedID = id
	case ErrAlreadyExists:
		ks, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		tbl, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		se.Keyspace, se.Table = ks, tbl
	}

	return se, nil
}
