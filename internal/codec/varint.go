package codec

import "encoding/binary"

const (
	varintU16 = 0xFD
	varintU32 = 0xFE
	varintU64 = 0xFF
)

// VarUintSize returns the number of bytes v occupies in the variable-length
// integer encoding.
func VarUintSize(v uint64) int {
	switch {
	case v < varintU16:
		return 1
	case v <= 0xFFFF:
		return 3
	case v <= 0xFFFFFFFF:
		return 5
	default:
		return 9
	}
}

// VarBytesSize returns the encoded size of a var-bytes value of length n.
func VarBytesSize(n int) int {
	return VarUintSize(uint64(n)) + n
}

// PutVarUint encodes v into buf and returns the number of bytes written.
// buf must be at least 9 bytes long. Unlike neo-go's io.PutVarUint, 0xFFFF
// and 0xFFFFFFFF keep the shorter prefix.
func PutVarUint(buf []byte, v uint64) int {
	switch {
	case v < varintU16:
		buf[0] = byte(v)
		return 1
	case v <= 0xFFFF:
		buf[0] = varintU16
		binary.LittleEndian.PutUint16(buf[1:], uint16(v))
		return 3
	case v <= 0xFFFFFFFF:
		buf[0] = varintU32
		binary.LittleEndian.PutUint32(buf[1:], uint32(v))
		return 5
	default:
		buf[0] = varintU64
		binary.LittleEndian.PutUint64(buf[1:], v)
		return 9
	}
}
