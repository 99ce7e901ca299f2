package alarm

import (
	"testing"

	"github.com/chaz8081/gatt-sentry/internal/clock"
)

var (
	ts1 = clock.Timestamp{0xe8, 0x07, 10, 16, 9, 30, 5}
	ts2 = clock.Timestamp{0xe8, 0x07, 10, 16, 9, 30, 6}
)

func humidityEngine() *Engine {
	return NewEngine(Humidity, Config{Low: 500, High: 900, AlarmEnabled: true})
}

func soilEngine() *Engine {
	return NewEngine(SoilMoisture, Config{Low: 20, High: 80, AlarmEnabled: true})
}

func TestEvaluateClassifies(t *testing.T) {
	tests := []struct {
		name     string
		sample   uint16
		wantCode Code
	}{
		{"below low", 499, CodeLow},
		{"at low", 500, CodeNone},
		{"in range", 700, CodeNone},
		{"at high", 900, CodeNone},
		{"above high", 901, CodeHigh},
		{"zero", 0, CodeLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := humidityEngine()
			rec, _ := e.Evaluate(tt.sample, ts1)
			if rec.Code != tt.wantCode {
				t.Errorf("Evaluate(%d).Code = %d, want %d", tt.sample, rec.Code, tt.wantCode)
			}
			if tt.wantCode == CodeNone && !rec.Timestamp.IsZero() {
				t.Errorf("NONE record carries timestamp %v", rec.Timestamp)
			}
			if tt.wantCode != CodeNone && rec.Timestamp != ts1 {
				t.Errorf("alarm timestamp = %v, want %v", rec.Timestamp, ts1)
			}
			if e.LastCode() != tt.wantCode {
				t.Errorf("LastCode() = %d, want %d", e.LastCode(), tt.wantCode)
			}
		})
	}
}

func TestEvaluateInRangeExhaustive(t *testing.T) {
	e := soilEngine()
	for s := uint16(20); s <= 80; s++ {
		if rec, _ := e.Evaluate(s, ts1); rec.Code != CodeNone {
			t.Fatalf("Evaluate(%d).Code = %d, want none", s, rec.Code)
		}
	}
	for s := uint16(0); s < 20; s++ {
		if rec, _ := e.Evaluate(s, ts1); rec.Code != CodeLow || rec.Timestamp != ts1 {
			t.Fatalf("Evaluate(%d) = %+v, want LOW at ts1", s, rec)
		}
	}
	for s := uint16(81); s <= 255; s++ {
		if rec, _ := e.Evaluate(s, ts2); rec.Code != CodeHigh || rec.Timestamp != ts2 {
			t.Fatalf("Evaluate(%d) = %+v, want HIGH at ts2", s, rec)
		}
	}
}

func TestLowWinsWhenThresholdsInverted(t *testing.T) {
	e := NewEngine(SoilMoisture, Config{Low: 80, High: 20, AlarmEnabled: true})
	rec, _ := e.Evaluate(50, ts1)
	if rec.Code != CodeLow {
		t.Errorf("Code = %d, want LOW when low > high", rec.Code)
	}
}

func TestIndicationPathSendsOncePerCrossing(t *testing.T) {
	e := humidityEngine()

	rec, action := e.Evaluate(450, ts1)
	if rec.Code != CodeLow || action != ActionSendOnce {
		t.Fatalf("first LOW = (%d, %v), want (LOW, send_once)", rec.Code, action)
	}

	// Not yet delivered (e.g. arbiter denied): still wants sending.
	rec, action = e.Evaluate(450, ts2)
	if action != ActionSendOnce {
		t.Fatalf("undelivered LOW action = %v, want send_once", action)
	}
	if rec.Timestamp != ts2 {
		t.Errorf("re-evaluated LOW timestamp = %v, want fresh %v", rec.Timestamp, ts2)
	}
	e.Delivered(rec)

	if _, action = e.Evaluate(450, ts2); action != ActionNone {
		t.Errorf("delivered LOW action = %v, want none", action)
	}

	// LOW -> HIGH is a new crossing.
	rec, action = e.Evaluate(950, ts2)
	if rec.Code != CodeHigh || action != ActionSendOnce {
		t.Errorf("HIGH after LOW = (%d, %v), want (HIGH, send_once)", rec.Code, action)
	}
}

func TestIndicationPathDoesNotDeliverNone(t *testing.T) {
	e := humidityEngine()
	rec, _ := e.Evaluate(450, ts1)
	e.Delivered(rec)

	rec, action := e.Evaluate(700, ts1)
	if rec.Code != CodeNone || action != ActionNone {
		t.Errorf("in range = (%d, %v), want (none, none)", rec.Code, action)
	}

	// Returning to LOW is a fresh crossing.
	if _, action = e.Evaluate(450, ts2); action != ActionSendOnce {
		t.Errorf("LOW again action = %v, want send_once", action)
	}
}

func TestNotifyPathAlwaysDelivers(t *testing.T) {
	e := soilEngine()

	rec, action := e.Evaluate(10, ts1)
	if rec.Code != CodeLow || action != ActionAlways {
		t.Fatalf("LOW = (%d, %v), want (LOW, always)", rec.Code, action)
	}
	e.Delivered(rec)

	rec, action = e.Evaluate(10, ts2)
	if rec.Code != CodeLow || action != ActionAlways {
		t.Errorf("repeated LOW = (%d, %v), want (LOW, always)", rec.Code, action)
	}

	for i := 0; i < 3; i++ {
		rec, action = e.Evaluate(50, ts2)
		if rec.Code != CodeNone || action != ActionAlways {
			t.Errorf("in range #%d = (%d, %v), want (none, always)", i, rec.Code, action)
		}
		if !rec.Timestamp.IsZero() {
			t.Errorf("in range #%d timestamp = %v, want zero", i, rec.Timestamp)
		}
	}
}

func TestIdempotentCode(t *testing.T) {
	for _, p := range Policies() {
		t.Run(p.Name, func(t *testing.T) {
			e := NewEngine(p, Config{Low: 5, High: 10, AlarmEnabled: true})
			for _, s := range []uint16{0, 7, 200} {
				a, _ := e.Evaluate(s, ts1)
				b, _ := e.Evaluate(s, ts2)
				if a.Code != b.Code {
					t.Errorf("sample %d: codes %d then %d", s, a.Code, b.Code)
				}
			}
		})
	}
}

func TestDisableDeliversOneClear(t *testing.T) {
	for _, p := range []Policy{Humidity, SoilMoisture} {
		t.Run(p.Name, func(t *testing.T) {
			e := NewEngine(p, Config{Low: 20, High: 80, AlarmEnabled: true})
			rec, _ := e.Evaluate(10, ts1)
			e.Delivered(rec)

			if !e.ApplyWrite(FieldAlarmEnable, []byte{0}) {
				t.Fatal("ApplyWrite(enable=0) rejected")
			}

			rec, action := e.Evaluate(10, ts2)
			if rec != (Record{}) || action != ActionSendOnce {
				t.Fatalf("after disable = (%+v, %v), want (zero record, send_once)", rec, action)
			}
			e.Delivered(rec)

			for i := 0; i < 3; i++ {
				if _, action = e.Evaluate(10, ts2); action != ActionNone {
					t.Errorf("disabled #%d action = %v, want none", i, action)
				}
			}
			if e.LastCode() != CodeNone {
				t.Errorf("LastCode() = %d, want none", e.LastCode())
			}
		})
	}
}

func TestDisableClearRetriedUntilDelivered(t *testing.T) {
	e := humidityEngine()
	e.ApplyWrite(FieldAlarmEnable, []byte{0})

	for i := 0; i < 2; i++ {
		if _, action := e.Evaluate(450, ts1); action != ActionSendOnce {
			t.Fatalf("undelivered clear #%d action = %v, want send_once", i, action)
		}
	}
	e.Delivered(Record{})
	if _, action := e.Evaluate(450, ts1); action != ActionNone {
		t.Errorf("after delivery action = %v, want none", action)
	}
}

func TestDisabledFromStartSendsNothing(t *testing.T) {
	e := NewEngine(Humidity, Config{Low: 500, High: 900})
	if _, action := e.Evaluate(10, ts1); action != ActionNone {
		t.Errorf("action = %v, want none", action)
	}
	// Writing the same value is not a transition.
	e.ApplyWrite(FieldAlarmEnable, []byte{0})
	if _, action := e.Evaluate(10, ts1); action != ActionNone {
		t.Errorf("action after 0->0 write = %v, want none", action)
	}
}

func TestReenableReportsCurrentCondition(t *testing.T) {
	e := humidityEngine()
	rec, _ := e.Evaluate(450, ts1)
	e.Delivered(rec)

	e.ApplyWrite(FieldAlarmEnable, []byte{0})
	e.ApplyWrite(FieldAlarmEnable, []byte{1})

	rec, action := e.Evaluate(450, ts2)
	if rec.Code != CodeLow || action != ActionSendOnce {
		t.Errorf("after re-enable = (%d, %v), want (LOW, send_once)", rec.Code, action)
	}
}

func TestApplyWrite(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		field   Field
		payload []byte
		wantOK  bool
		want    Config
	}{
		{"humidity low", Humidity, FieldLowThreshold, []byte{0x01, 0xf4}, true, Config{Low: 500, High: 900, AlarmEnabled: true}},
		{"humidity high", Humidity, FieldHighThreshold, []byte{0x03, 0xe8}, true, Config{Low: 100, High: 1000, AlarmEnabled: true}},
		{"humidity low one byte", Humidity, FieldLowThreshold, []byte{0x05}, false, Config{Low: 100, High: 900, AlarmEnabled: true}},
		{"soil low", SoilMoisture, FieldLowThreshold, []byte{30}, true, Config{Low: 30, High: 900, AlarmEnabled: true}},
		{"soil high two bytes", SoilMoisture, FieldHighThreshold, []byte{0, 30}, false, Config{Low: 100, High: 900, AlarmEnabled: true}},
		{"enable off", Humidity, FieldAlarmEnable, []byte{0}, true, Config{Low: 100, High: 900}},
		{"enable empty", Humidity, FieldAlarmEnable, nil, false, Config{Low: 100, High: 900, AlarmEnabled: true}},
		{"unknown field", Humidity, Field(42), []byte{1}, false, Config{Low: 100, High: 900, AlarmEnabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.policy, Config{Low: 100, High: 900, AlarmEnabled: true})
			if ok := e.ApplyWrite(tt.field, tt.payload); ok != tt.wantOK {
				t.Errorf("ApplyWrite() = %v, want %v", ok, tt.wantOK)
			}
			if got := e.Config(); got != tt.want {
				t.Errorf("Config() = %+v, want %+v", got, tt.want)
			}
			if got := e.TakeRecheck(); got != tt.wantOK {
				t.Errorf("TakeRecheck() = %v, want %v", got, tt.wantOK)
			}
			if e.TakeRecheck() {
				t.Error("TakeRecheck() should clear the signal")
			}
		})
	}
}

func TestWaterPresence(t *testing.T) {
	e := NewEngine(WaterPresence, Config{AlarmEnabled: true})

	rec, action := e.Evaluate(0, ts1)
	if rec.Code != CodeNone || action != ActionNone {
		t.Errorf("dry = (%d, %v), want (none, none)", rec.Code, action)
	}
	rec, action = e.Evaluate(1, ts1)
	if rec.Code != CodePresent || action != ActionSendOnce {
		t.Errorf("wet = (%d, %v), want (present, send_once)", rec.Code, action)
	}
	if rec.Timestamp != ts1 {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, ts1)
	}
}

func TestResetDelivery(t *testing.T) {
	e := humidityEngine()
	rec, _ := e.Evaluate(450, ts1)
	e.Delivered(rec)
	e.ResetDelivery()
	if _, action := e.Evaluate(450, ts1); action != ActionSendOnce {
		t.Errorf("after ResetDelivery action = %v, want send_once", action)
	}
}

func TestRecordBytes(t *testing.T) {
	rec := Record{Code: CodeHigh, Timestamp: ts1}
	b := rec.Bytes()
	if len(b) != 8 || b[0] != 2 {
		t.Fatalf("Bytes() = % x", b)
	}
	got, err := ParseRecord(b)
	if err != nil {
		t.Fatalf("ParseRecord() error = %v", err)
	}
	if got != rec {
		t.Errorf("ParseRecord() = %+v, want %+v", got, rec)
	}
	if _, err := ParseRecord(b[:7]); err == nil {
		t.Error("ParseRecord() of 7 bytes should fail")
	}
}
