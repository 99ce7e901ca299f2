package alarm

import (
	"fmt"

	"github.com/chaz8081/gatt-sentry/internal/ble/protocol"
	"github.com/chaz8081/gatt-sentry/internal/clock"
)

// Record is the alarm-with-timestamp value produced by each evaluation.
// Timestamp is zero whenever Code is CodeNone.
type Record struct {
	Code      Code
	Timestamp clock.Timestamp
}

// Bytes encodes the record in its 8-byte wire form.
func (r Record) Bytes() []byte {
	return protocol.MarshalAlarm(byte(r.Code), r.Timestamp)
}

// ParseRecord decodes an 8-byte alarm-with-timestamp payload.
func ParseRecord(p []byte) (Record, error) {
	code, ts, err := protocol.UnmarshalAlarm(p)
	if err != nil {
		return Record{}, fmt.Errorf("alarm: parse record: %w", err)
	}
	return Record{Code: Code(code), Timestamp: ts}, nil
}
