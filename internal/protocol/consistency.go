package protocol

import "fmt"

// Consistency is the CQL consistency level, encoded as a [short] in QUERY
// and EXECUTE message bodies.
type Consistency uint16

const (
	ConsistencyAny         Consistency = 0x0000
	ConsistencyOne         Consistency = 0x0001
	ConsistencyTwo         Consistency = 0x0002
	ConsistencyThree       Consistency = 0x0003
	ConsistencyQuorum      Consistency = 0x0004
	ConsistencyAll         Consistency = 0x0005
	ConsistencyLocalQuorum Consistency = 0x0006
	ConsistencyEachQuorum  Consistency = 0x0007
	ConsistencySerial      Consistency = 0x0008
	ConsistencyLocalSerial Consistency = 0x0009
	ConsistencyLocalOne    Consistency = 0x000A
)

func (c Consistency) String() string {
	switch c {
	case ConsistencyAny:
		return "ANY"
	case ConsistencyOne:
		return "ONE"
	case ConsistencyTwo:
		return "TWO"
	case ConsistencyThree:
		return "THREE"
	case ConsistencyQuorum:
		return "QUORUM"
	case ConsistencyAll:
		return "ALL"
	case ConsistencyLocalQuorum:
		return "LOCAL_QUORUM"
	case ConsistencyEachQuorum:
		return "EACH_QUORUM"
	case ConsistencySerial:
		return "SERIAL"
	case ConsistencyLocalSerial:
		return "LOCAL_SERIAL"
	case ConsistencyLocalOne:
		return "LOCAL_ONE"
	default:
		return fmt.Sprintf("CONSISTENCY(%#x)", uint16(c))
	}
}

// WriteType identifies the kind of write a WRITE_TIMEOUT error occurred
// during; it drives the onWriteTimeout retry decision in spec §4.7.
type WriteType string

const (
	WriteTypeSimple      WriteType = "SIMPLE"
	WriteTypeBatch       WriteType = "BATCH"
	WriteTypeUnloggedBatch WriteType = "UNLOGGED_BATCH"
	WriteTypeCounter     WriteType = "COUNTER"
	WriteTypeBatchLog    WriteType = "BATCH_LOG"
	WriteTypeCAS         WriteType = "CAS"
	WriteTypeView        WriteType = "VIEW"
	WriteTypeCDC         WriteType = "CDC"
)
