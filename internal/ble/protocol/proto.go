// Package protocol implements the byte layouts of the sensor alarm services'
// GATT characteristics.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// TimestampLen is the size of the device time snapshot.
	TimestampLen = 7
	// AlarmRecordLen is the size of the alarm-with-timestamp characteristic.
	AlarmRecordLen = 1 + TimestampLen
)

// ErrShortRecord is returned when an alarm record payload is not 8 bytes.
var ErrShortRecord = errors.New("protocol: alarm record must be 8 bytes")

// EncodeField encodes a threshold or sample value for a characteristic of the
// given width. Width 1 keeps the low byte; width 2 is big-endian.
//
//	width 1: [v]
//	width 2: [v>>8, v&0xff]
func EncodeField(width int, v uint16) []byte {
	switch width {
	case 1:
		return []byte{byte(v)}
	case 2:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, v)
		return buf
	default:
		panic(fmt.Sprintf("protocol: unsupported field width %d", width))
	}
}

// DecodeField decodes a written characteristic value. ok is false when the
// payload length does not match width exactly.
func DecodeField(width int, p []byte) (v uint16, ok bool) {
	if len(p) != width {
		return 0, false
	}
	switch width {
	case 1:
		return uint16(p[0]), true
	case 2:
		return binary.BigEndian.Uint16(p), true
	default:
		return 0, false
	}
}

// DecodeBool decodes a 1-byte enable flag: 0 is false, anything else true.
func DecodeBool(p []byte) (v bool, ok bool) {
	if len(p) != 1 {
		return false, false
	}
	return p[0] != 0, true
}

// EncodeBool encodes an enable flag as 0 or 1.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// MarshalAlarm encodes an alarm-with-timestamp record.
//
//	[0]   alarm code
//	[1:8] device timestamp
func MarshalAlarm(code byte, ts [TimestampLen]byte) []byte {
	buf := make([]byte, AlarmRecordLen)
	buf[0] = code
	copy(buf[1:], ts[:])
	return buf
}

// UnmarshalAlarm decodes an alarm-with-timestamp record.
func UnmarshalAlarm(p []byte) (code byte, ts [TimestampLen]byte, err error) {
	if len(p) != AlarmRecordLen {
		return 0, ts, fmt.Errorf("%w, got %d", ErrShortRecord, len(p))
	}
	copy(ts[:], p[1:])
	return p[0], ts, nil
}
