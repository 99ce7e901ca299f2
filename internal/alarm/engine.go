package alarm

import (
	"github.com/chaz8081/gatt-sentry/internal/ble/protocol"
	"github.com/chaz8081/gatt-sentry/internal/clock"
)

// Action tells the driver whether to deliver the record from Evaluate.
type Action int

const (
	// ActionNone means nothing is sent this evaluation.
	ActionNone Action = iota
	// ActionSendOnce means send until Delivered is called for this record.
	ActionSendOnce
	// ActionAlways means send on every evaluation that returns it.
	ActionAlways
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSendOnce:
		return "send_once"
	case ActionAlways:
		return "always"
	default:
		return "unknown"
	}
}

// Field identifies a writable configuration characteristic.
type Field int

const (
	FieldLowThreshold Field = iota
	FieldHighThreshold
	FieldAlarmEnable
)

func (f Field) String() string {
	switch f {
	case FieldLowThreshold:
		return "low_threshold"
	case FieldHighThreshold:
		return "high_threshold"
	case FieldAlarmEnable:
		return "alarm_enable"
	default:
		return "unknown"
	}
}

// Config is the per-service threshold configuration. Low <= High is expected
// but not enforced; when violated the low comparison wins.
type Config struct {
	Low          uint16
	High         uint16
	AlarmEnabled bool
}

// Engine is the threshold alarm state machine for one service. It is not safe
// for concurrent use; the service event loop serializes all calls.
type Engine struct {
	policy Policy
	cfg    Config

	lastCode Code
	// sent is the last LOW/HIGH code handed to the peer on the indication path.
	sent Code
	// disarmed is set when alarms go from enabled to disabled and cleared once
	// the NONE record announcing it has been delivered.
	disarmed bool
	recheck  bool
}

// NewEngine returns an Engine for policy configured with defaults.
func NewEngine(policy Policy, defaults Config) *Engine {
	e := &Engine{policy: policy}
	e.Configure(defaults)
	return e
}

// Configure replaces the configuration and clears all alarm state.
func (e *Engine) Configure(defaults Config) {
	e.cfg = defaults
	e.lastCode = CodeNone
	e.sent = CodeNone
	e.disarmed = false
	e.recheck = false
}

// Policy returns the engine's sensor policy.
func (e *Engine) Policy() Policy { return e.policy }

// Config returns the current configuration.
func (e *Engine) Config() Config { return e.cfg }

// LastCode returns the code of the most recent evaluation.
func (e *Engine) LastCode() Code { return e.lastCode }

// ApplyWrite applies a peer write to a configuration field. A payload whose
// length does not match the field width is ignored and false is returned.
func (e *Engine) ApplyWrite(f Field, payload []byte) bool {
	switch f {
	case FieldLowThreshold, FieldHighThreshold:
		v, ok := protocol.DecodeField(e.policy.Width, payload)
		if !ok {
			return false
		}
		if f == FieldLowThreshold {
			e.cfg.Low = v
		} else {
			e.cfg.High = v
		}
	case FieldAlarmEnable:
		enabled, ok := protocol.DecodeBool(payload)
		if !ok {
			return false
		}
		switch {
		case e.cfg.AlarmEnabled && !enabled:
			e.disarmed = true
		case !e.cfg.AlarmEnabled && enabled:
			// Report the current condition afresh; a disable that was never
			// delivered no longer needs announcing.
			e.disarmed = false
			e.sent = CodeNone
		}
		e.cfg.AlarmEnabled = enabled
	default:
		return false
	}
	e.recheck = true
	return true
}

// TakeRecheck reports and clears the "re-evaluate now" signal raised by
// ApplyWrite.
func (e *Engine) TakeRecheck() bool {
	r := e.recheck
	e.recheck = false
	return r
}

// Evaluate classifies sample against the thresholds and decides delivery.
// now is the timestamp attached to LOW/HIGH records.
func (e *Engine) Evaluate(sample uint16, now clock.Timestamp) (Record, Action) {
	if !e.cfg.AlarmEnabled {
		return e.evaluateDisabled()
	}

	rec := Record{Code: e.classify(sample)}
	if rec.Code != CodeNone {
		rec.Timestamp = now
	}
	e.lastCode = rec.Code

	if rec.Code == CodeNone {
		e.sent = CodeNone
		if e.policy.DeliverNone {
			return rec, ActionAlways
		}
		return rec, ActionNone
	}
	if e.policy.UsesIndication() {
		if rec.Code == e.sent {
			return rec, ActionNone
		}
		return rec, ActionSendOnce
	}
	return rec, ActionAlways
}

func (e *Engine) evaluateDisabled() (Record, Action) {
	if e.disarmed {
		e.lastCode = CodeNone
		return Record{}, ActionSendOnce
	}
	return Record{}, ActionNone
}

func (e *Engine) classify(sample uint16) Code {
	switch {
	case e.policy.LowCode != CodeNone && sample < e.cfg.Low:
		return e.policy.LowCode
	case sample > e.cfg.High:
		return e.policy.HighCode
	default:
		return CodeNone
	}
}

// Delivered records that rec reached the transport. It must be called after
// a successful send of a record returned with ActionSendOnce.
func (e *Engine) Delivered(rec Record) {
	if rec.Code == CodeNone {
		e.disarmed = false
		e.sent = CodeNone
		return
	}
	e.sent = rec.Code
}

// ResetDelivery forgets which alarm the peer has seen. Called on disconnect so
// an active alarm is reported again to the next peer.
func (e *Engine) ResetDelivery() {
	e.sent = CodeNone
}
