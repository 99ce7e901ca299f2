package sensor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeADC struct {
	v   uint16
	err error
}

func (a fakeADC) Get() (uint16, error) { return a.v, a.err }

type fakePin struct {
	level bool
	err   error
}

func (p fakePin) Get() (bool, error) { return p.level, p.err }

func TestHumidityTenths(t *testing.T) {
	tests := []struct {
		centi int32
		want  uint16
	}{
		{4500, 450},
		{4509, 450},
		{0, 0},
		{-20, 0},
		{10000, 1000},
		{10500, 1000},
	}
	for _, tt := range tests {
		if got := humidityTenths(tt.centi); got != tt.want {
			t.Errorf("humidityTenths(%d) = %d, want %d", tt.centi, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name   string
		raw    uint16
		max    uint16
		invert bool
		want   uint16
	}{
		{"zero", 0, 4095, false, 0},
		{"full", 4095, 4095, false, 100},
		{"half", 2048, 4095, false, 50},
		{"over full clamps", 5000, 4095, false, 100},
		{"inverted dry", 4095, 4095, true, 0},
		{"inverted wet", 410, 4095, true, 90},
		{"default max", 0xffff, 0, false, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPercent(fakeADC{v: tt.raw}, tt.max, tt.invert).Read()
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Read() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPercentError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewPercent(fakeADC{err: boom}, 100, false).Read()
	if !errors.Is(err, boom) {
		t.Errorf("Read() error = %v, want wrapped boom", err)
	}
}

func TestPresence(t *testing.T) {
	tests := []struct {
		level     bool
		activeLow bool
		want      uint16
	}{
		{true, false, 1},
		{false, false, 0},
		{true, true, 0},
		{false, true, 1},
	}
	for _, tt := range tests {
		got, err := NewPresence(fakePin{level: tt.level}, tt.activeLow).Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("Presence(level=%v, activeLow=%v) = %d, want %d", tt.level, tt.activeLow, got, tt.want)
		}
	}
}

func TestSysfsReaders(t *testing.T) {
	dir := t.TempDir()
	adcPath := filepath.Join(dir, "in_voltage0_raw")
	pinPath := filepath.Join(dir, "value")
	if err := os.WriteFile(adcPath, []byte("2048\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pinPath, []byte("1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	v, err := IIOChannel{Path: adcPath}.Get()
	if err != nil || v != 2048 {
		t.Errorf("IIOChannel.Get() = (%d, %v), want (2048, nil)", v, err)
	}
	level, err := SysfsPin{Path: pinPath}.Get()
	if err != nil || !level {
		t.Errorf("SysfsPin.Get() = (%v, %v), want (true, nil)", level, err)
	}

	if _, err := (IIOChannel{Path: filepath.Join(dir, "missing")}).Get(); err == nil {
		t.Error("IIOChannel.Get() on missing file should fail")
	}
	if err := os.WriteFile(adcPath, []byte("70000"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := (IIOChannel{Path: adcPath}).Get(); err == nil {
		t.Error("IIOChannel.Get() out of range should fail")
	}
}

func TestSimStaysInBounds(t *testing.T) {
	s := NewSim(1, 50, 40, 60, 5)
	first, _ := s.Read()
	if first != 50 {
		t.Errorf("first Read() = %d, want start value 50", first)
	}
	for i := 0; i < 1000; i++ {
		v, err := s.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if v < 40 || v > 60 {
			t.Fatalf("Read() = %d outside [40, 60]", v)
		}
	}
}

func TestSimFixed(t *testing.T) {
	s := NewSim(1, 7, 0, 10, 0)
	for i := 0; i < 3; i++ {
		if v, _ := s.Read(); v != 7 {
			t.Errorf("Read() = %d, want 7 with step 0", v)
		}
	}
}

func TestReaderFunc(t *testing.T) {
	var r Reader = ReaderFunc(func() (uint16, error) { return 42, nil })
	if v, _ := r.Read(); v != 42 {
		t.Errorf("Read() = %d, want 42", v)
	}
}
