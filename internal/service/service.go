// Package service binds alarm engines to sensors and GATT characteristics and
// drives them from a single event loop.
package service

import (
	"fmt"
	"log/slog"

	"github.com/chaz8081/gatt-sentry/internal/alarm"
	"github.com/chaz8081/gatt-sentry/internal/ble"
	"github.com/chaz8081/gatt-sentry/internal/ble/protocol"
	"github.com/chaz8081/gatt-sentry/internal/clock"
	"github.com/chaz8081/gatt-sentry/internal/metrics"
	"github.com/chaz8081/gatt-sentry/internal/sensor"
)

// Base UUIDs of the vendor service families. Characteristic UUIDs replace the
// 16-bit alias field with the characteristic's alias below.
const (
	HumidityBase      = "a5e10000-3c1b-4f2a-9d11-0c6b5e2f8a10"
	SoilMoistureBase  = "a5e20000-3c1b-4f2a-9d11-0c6b5e2f8a10"
	WaterLevelBase    = "a5e30000-3c1b-4f2a-9d11-0c6b5e2f8a10"
	WaterPresenceBase = "a5e40000-3c1b-4f2a-9d11-0c6b5e2f8a10"
	TimeBase          = "a5e50000-3c1b-4f2a-9d11-0c6b5e2f8a10"
)

// Characteristic aliases within an alarm service family.
const (
	aliasValue uint16 = iota + 1
	aliasLow
	aliasHigh
	aliasEnable
	aliasAlarm
)

// BaseUUID returns the base UUID of the named alarm service.
func BaseUUID(name string) (string, bool) {
	switch name {
	case alarm.Humidity.Name:
		return HumidityBase, true
	case alarm.SoilMoisture.Name:
		return SoilMoistureBase, true
	case alarm.WaterLevel.Name:
		return WaterLevelBase, true
	case alarm.WaterPresence.Name:
		return WaterPresenceBase, true
	default:
		return "", false
	}
}

// UUIDs lists the service and characteristic UUIDs of one alarm service.
type UUIDs struct {
	Service string
	Value   string
	Low     string
	High    string
	Enable  string
	Alarm   string
}

// DeriveUUIDs builds the UUID set of an alarm service from its base.
func DeriveUUIDs(base string) (UUIDs, error) {
	var u UUIDs
	var err error
	targets := []struct {
		dst   *string
		alias uint16
	}{
		{&u.Service, 0},
		{&u.Value, aliasValue},
		{&u.Low, aliasLow},
		{&u.High, aliasHigh},
		{&u.Enable, aliasEnable},
		{&u.Alarm, aliasAlarm},
	}
	for _, t := range targets {
		if *t.dst, err = ble.DeriveUUID(base, t.alias); err != nil {
			return UUIDs{}, err
		}
	}
	return u, nil
}

// Options configures a Service.
type Options struct {
	Policy   alarm.Policy
	Defaults alarm.Config
	BaseUUID string
	Reader   sensor.Reader
	Clock    *clock.Clock
	Arbiter  *alarm.Arbiter
}

// Service is one alarm service: a sensor, its threshold engine, and the
// GATT characteristics exposing both. It is driven by a Runner and is not
// safe for concurrent use.
type Service struct {
	policy  alarm.Policy
	engine  *alarm.Engine
	reader  sensor.Reader
	clock   *clock.Clock
	arbiter *alarm.Arbiter
	uuids   UUIDs

	periph     ble.Peripheral
	registered bool
	value      ble.CharHandle
	low        ble.CharHandle
	high       ble.CharHandle
	enable     ble.CharHandle
	alarmChar  ble.CharHandle

	conn       ble.ConnHandle
	connected  bool
	subscribed map[ble.CharHandle]bool

	lastSample  uint16
	broadcasted bool
}

// New creates a Service. Register must be called before it handles events.
func New(opts Options) (*Service, error) {
	if opts.Reader == nil {
		return nil, fmt.Errorf("service: %s: reader is required", opts.Policy.Name)
	}
	if opts.Clock == nil || opts.Arbiter == nil {
		return nil, fmt.Errorf("service: %s: clock and arbiter are required", opts.Policy.Name)
	}
	uuids, err := DeriveUUIDs(opts.BaseUUID)
	if err != nil {
		return nil, fmt.Errorf("service: %s: %w", opts.Policy.Name, err)
	}
	return &Service{
		policy:     opts.Policy,
		engine:     alarm.NewEngine(opts.Policy, opts.Defaults),
		reader:     opts.Reader,
		clock:      opts.Clock,
		arbiter:    opts.Arbiter,
		uuids:      uuids,
		conn:       ble.InvalidConn,
		subscribed: make(map[ble.CharHandle]bool),
	}, nil
}

// Name returns the policy name.
func (s *Service) Name() string { return s.policy.Name }

// UUIDs returns the service's UUID set.
func (s *Service) UUIDs() UUIDs { return s.uuids }

// Config returns the current threshold configuration.
func (s *Service) Config() alarm.Config { return s.engine.Config() }

// LastCode returns the alarm code of the latest evaluation.
func (s *Service) LastCode() alarm.Code { return s.engine.LastCode() }

// Connected reports whether a central is connected.
func (s *Service) Connected() bool { return s.connected }

// Register adds the service's characteristics to p.
func (s *Service) Register(p ble.Peripheral) error {
	cfg := s.engine.Config()
	width := s.policy.Width

	alarmProps := ble.PropRead | ble.PropNotify
	if s.policy.UsesIndication() {
		alarmProps = ble.PropRead | ble.PropIndicate
	}

	handles, err := p.AddService(ble.ServiceDef{
		UUID: s.uuids.Service,
		Characteristics: []ble.CharacteristicDef{
			{UUID: s.uuids.Value, Props: ble.PropRead | ble.PropNotify, Value: protocol.EncodeField(width, 0)},
			{UUID: s.uuids.Low, Props: ble.PropRead | ble.PropWrite, Value: protocol.EncodeField(width, cfg.Low)},
			{UUID: s.uuids.High, Props: ble.PropRead | ble.PropWrite, Value: protocol.EncodeField(width, cfg.High)},
			{UUID: s.uuids.Enable, Props: ble.PropRead | ble.PropWrite, Value: protocol.EncodeBool(cfg.AlarmEnabled)},
			{UUID: s.uuids.Alarm, Props: alarmProps, Value: alarm.Record{}.Bytes()},
		},
	})
	if err != nil {
		return fmt.Errorf("service: register %s: %w", s.policy.Name, err)
	}
	if len(handles) != 5 {
		return fmt.Errorf("service: register %s: got %d handles, want 5", s.policy.Name, len(handles))
	}

	s.periph = p
	s.value, s.low, s.high, s.enable, s.alarmChar = handles[0], handles[1], handles[2], handles[3], handles[4]
	s.registered = true
	slog.Info("[SERVICE] registered",
		"service", s.policy.Name,
		"uuid", s.uuids.Service,
		"path", s.policy.Path,
		"low", cfg.Low,
		"high", cfg.High,
		"alarm_enabled", cfg.AlarmEnabled,
	)
	return nil
}

// HandleEvent applies a transport event. Connection events apply to every
// service; write, confirmation and subscription events are ignored unless they
// address one of this service's characteristics.
func (s *Service) HandleEvent(ev ble.Event) {
	if !s.registered {
		return
	}
	switch ev.Type {
	case ble.EventConnect:
		if s.connected && ev.Conn != s.conn {
			// A new central replaces the link; nothing sent on the old one counts.
			slog.Info("[SERVICE] central replaced", "service", s.policy.Name, "old", s.conn, "new", ev.Conn)
			s.releaseLink()
		}
		s.conn = ev.Conn
		s.connected = true
		s.subscribed[s.value] = true
		s.subscribed[s.alarmChar] = true
	case ble.EventDisconnect:
		if !s.connected || ev.Conn != s.conn {
			return
		}
		s.releaseLink()
	case ble.EventWrite:
		s.applyWrite(ev)
	case ble.EventIndicationConfirmed:
		if ev.Char == s.alarmChar {
			s.arbiter.Confirm(s.policy.Name)
		}
	case ble.EventSubscribe:
		if ev.Char == s.value || ev.Char == s.alarmChar {
			s.subscribed[ev.Char] = ev.Enabled
			slog.Debug("[SERVICE] subscription changed", "service", s.policy.Name, "char", ev.Char, "enabled", ev.Enabled)
		}
	}
}

// releaseLink forgets the current central. Configuration is kept.
func (s *Service) releaseLink() {
	s.conn = ble.InvalidConn
	s.connected = false
	s.broadcasted = false
	clear(s.subscribed)
	s.arbiter.OnDisconnect(s.policy.Name)
	s.engine.ResetDelivery()
}

func (s *Service) applyWrite(ev ble.Event) {
	var f alarm.Field
	switch ev.Char {
	case s.low:
		f = alarm.FieldLowThreshold
	case s.high:
		f = alarm.FieldHighThreshold
	case s.enable:
		f = alarm.FieldAlarmEnable
	default:
		return
	}

	if !s.engine.ApplyWrite(f, ev.Data) {
		slog.Debug("[SERVICE] dropping malformed write",
			"service", s.policy.Name, "field", f, "len", len(ev.Data))
		metrics.IncWriteDropped(s.policy.Name, f.String())
		// The stack has already stored the rejected bytes; put back the value in effect.
		if err := s.periph.SetValue(ev.Char, s.fieldValue(f)); err != nil {
			slog.Debug("[SERVICE] restoring characteristic value failed",
				"service", s.policy.Name, "field", f, "error", err)
		}
		return
	}
	cfg := s.engine.Config()
	slog.Info("[SERVICE] configuration updated",
		"service", s.policy.Name,
		"field", f,
		"low", cfg.Low,
		"high", cfg.High,
		"alarm_enabled", cfg.AlarmEnabled,
	)
}

// fieldValue encodes the configured value of f.
func (s *Service) fieldValue(f alarm.Field) []byte {
	cfg := s.engine.Config()
	switch f {
	case alarm.FieldLowThreshold:
		return protocol.EncodeField(s.policy.Width, cfg.Low)
	case alarm.FieldHighThreshold:
		return protocol.EncodeField(s.policy.Width, cfg.High)
	default:
		return protocol.EncodeBool(cfg.AlarmEnabled)
	}
}

// TakeRecheck reports whether a configuration write requires an immediate
// Poll, clearing the signal.
func (s *Service) TakeRecheck() bool {
	return s.engine.TakeRecheck()
}

// Poll reads the sensor, broadcasts a changed sample, evaluates thresholds
// and delivers the resulting alarm record when the engine asks for it.
func (s *Service) Poll() {
	if !s.registered {
		return
	}
	sample, err := s.reader.Read()
	if err != nil {
		slog.Warn("[SERVICE] sensor read failed", "service", s.policy.Name, "error", err)
		metrics.ObserveDelivery(s.policy.Name, "sensor", metrics.ResultReadError)
		return
	}
	if limit := s.policy.MaxValue(); sample > limit {
		sample = limit
	}
	metrics.SetSample(s.policy.Name, sample)

	s.publishValue(sample)

	rec, action := s.engine.Evaluate(sample, s.clock.Now())
	metrics.ObserveEvaluation(s.policy.Name, s.policy.CodeName(rec.Code))
	slog.Debug("[SERVICE] evaluated",
		"service", s.policy.Name,
		"sample", sample,
		"code", s.policy.CodeName(rec.Code),
		"action", action,
	)
	s.deliver(rec, action)
}

// publishValue notifies the current-value characteristic when sample differs
// from the last sample the peer received.
func (s *Service) publishValue(sample uint16) {
	if s.broadcasted && sample == s.lastSample {
		return
	}
	if !s.connected || !s.subscribed[s.value] {
		return
	}
	if err := s.periph.Notify(s.conn, s.value, protocol.EncodeField(s.policy.Width, sample)); err != nil {
		slog.Debug("[SERVICE] value notify failed", "service", s.policy.Name, "error", err)
		metrics.ObserveDelivery(s.policy.Name, "value", metrics.ResultError)
		return
	}
	s.lastSample = sample
	s.broadcasted = true
	metrics.ObserveDelivery(s.policy.Name, "value", metrics.ResultSent)
}

func (s *Service) deliver(rec alarm.Record, action alarm.Action) {
	if action == alarm.ActionNone {
		return
	}
	name := s.policy.Name
	path := s.policy.Path.String()

	if !s.connected {
		metrics.ObserveDelivery(name, path, metrics.ResultNotReady)
		return
	}
	if !s.subscribed[s.alarmChar] {
		metrics.ObserveDelivery(name, path, metrics.ResultSuppressed)
		return
	}

	data := rec.Bytes()
	if !s.policy.UsesIndication() {
		if err := s.periph.Notify(s.conn, s.alarmChar, data); err != nil {
			slog.Debug("[SERVICE] alarm notify failed", "service", name, "error", err)
			metrics.ObserveDelivery(name, path, metrics.ResultError)
			return
		}
		s.engine.Delivered(rec)
		metrics.ObserveDelivery(name, path, metrics.ResultSent)
		return
	}

	if !s.arbiter.TrySend(name) {
		holder, _ := s.arbiter.InFlight()
		slog.Debug("[SERVICE] indication deferred", "service", name, "in_flight", holder)
		metrics.IncIndicationDenied(name)
		metrics.ObserveDelivery(name, path, metrics.ResultDenied)
		return
	}
	if err := s.periph.Indicate(s.conn, s.alarmChar, data); err != nil {
		slog.Debug("[SERVICE] alarm indicate failed", "service", name, "error", err)
		metrics.ObserveDelivery(name, path, metrics.ResultError)
		return
	}
	s.arbiter.MarkPending(name)
	s.engine.Delivered(rec)
	metrics.ObserveDelivery(name, path, metrics.ResultSent)
	slog.Info("[SERVICE] alarm indicated", "service", name, "code", s.policy.CodeName(rec.Code), "timestamp", rec.Timestamp)
}
