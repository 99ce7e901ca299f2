// Package clock provides the device timestamp shared by every alarm service.
// Timestamps use the 7-byte Bluetooth Date Time layout:
//
//	[0:2] year (little-endian), [2] month, [3] day, [4] hours, [5] minutes, [6] seconds
package clock

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Len is the encoded size of a Timestamp.
const Len = 7

// Timestamp is an opaque 7-byte device time snapshot. The zero value means
// "no time" and is what cleared alarms carry.
type Timestamp [Len]byte

// FromTime encodes t (in its own location) as a Timestamp.
func FromTime(t time.Time) Timestamp {
	var ts Timestamp
	binary.LittleEndian.PutUint16(ts[0:2], uint16(t.Year()))
	ts[2] = byte(t.Month())
	ts[3] = byte(t.Day())
	ts[4] = byte(t.Hour())
	ts[5] = byte(t.Minute())
	ts[6] = byte(t.Second())
	return ts
}

// Parse copies a 7-byte payload into a Timestamp and checks that it encodes
// a real calendar time.
func Parse(p []byte) (Timestamp, error) {
	var ts Timestamp
	if len(p) != Len {
		return ts, fmt.Errorf("clock: timestamp must be %d bytes, got %d", Len, len(p))
	}
	copy(ts[:], p)
	if _, ok := ts.Time(); !ok {
		return Timestamp{}, fmt.Errorf("clock: invalid date time % x", p)
	}
	return ts, nil
}

// IsZero reports whether every byte is zero.
func (ts Timestamp) IsZero() bool {
	return ts == Timestamp{}
}

// Time decodes the timestamp as UTC. ok is false for the zero timestamp and
// for out-of-range fields.
func (ts Timestamp) Time() (t time.Time, ok bool) {
	year := int(binary.LittleEndian.Uint16(ts[0:2]))
	month, day := int(ts[2]), int(ts[3])
	hour, minute, sec := int(ts[4]), int(ts[5]), int(ts[6])
	if year < 1582 || year > 9999 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}
	t = time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	// time.Date normalizes Feb 30 into March; reject that.
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func (ts Timestamp) String() string {
	t, ok := ts.Time()
	if !ok {
		if ts.IsZero() {
			return "unset"
		}
		return fmt.Sprintf("invalid(% x)", ts[:])
	}
	return t.Format("2006-01-02 15:04:05")
}

// Clock is the shared TimestampSource. It is set externally (a peer write or
// a host sync on connect) and advances on the monotonic clock afterwards.
type Clock struct {
	mu    sync.Mutex
	base  time.Time
	setAt time.Time
	set   bool

	now func() time.Time
}

// New returns an unset Clock. Until Set is called, Now returns the zero Timestamp.
func New() *Clock {
	return &Clock{now: time.Now}
}

// Set anchors the clock at ts. Invalid timestamps are rejected.
func (c *Clock) Set(ts Timestamp) error {
	t, ok := ts.Time()
	if !ok {
		return fmt.Errorf("clock: cannot set invalid timestamp %s", ts)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = t
	c.setAt = c.now()
	c.set = true
	return nil
}

// SetTime anchors the clock at t.
func (c *Clock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = t.UTC().Truncate(time.Second)
	c.setAt = c.now()
	c.set = true
}

// IsSet reports whether the clock has been anchored.
func (c *Clock) IsSet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set
}

// Now returns the current snapshot.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return Timestamp{}
	}
	return FromTime(c.base.Add(c.now().Sub(c.setAt)))
}
