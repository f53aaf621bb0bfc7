package record

import (
	"encoding/binary"
	"fmt"
)

// DecodeTime48 decodes a 48-bit big-endian millisecond timestamp, the wire
// representation used for creationTime, expireTime and
// transientStorageTime (spec §3).
func DecodeTime48(b []byte) (int64, error) {
	if len(b) != 6 {
		return 0, fmt.Errorf("%w: expected a 48-bit millisecond timestamp, got %d bytes", ErrValidation, len(b))
	}
	var buf [8]byte
	copy(buf[2:], b)
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// EncodeTime48 encodes t (milliseconds) as a 48-bit big-endian value.
func EncodeTime48(t int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t))
	return buf[2:]
}
