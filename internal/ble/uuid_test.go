package ble

import "testing"

func TestDeriveUUID(t *testing.T) {
	tests := []struct {
		base  string
		alias uint16
		want  string
	}{
		{"a5e10000-3c1b-4f2a-9d11-0c6b5e2f8a10", 0x0000, "a5e10000-3c1b-4f2a-9d11-0c6b5e2f8a10"},
		{"a5e10000-3c1b-4f2a-9d11-0c6b5e2f8a10", 0x0003, "a5e10003-3c1b-4f2a-9d11-0c6b5e2f8a10"},
		{"A5E20000-3C1B-4F2A-9D11-0C6B5E2F8A10", 0x1234, "a5e21234-3c1b-4f2a-9d11-0c6b5e2f8a10"},
	}
	for _, tt := range tests {
		got, err := DeriveUUID(tt.base, tt.alias)
		if err != nil {
			t.Fatalf("DeriveUUID(%q, %#x) error = %v", tt.base, tt.alias, err)
		}
		if got != tt.want {
			t.Errorf("DeriveUUID(%q, %#x) = %q, want %q", tt.base, tt.alias, got, tt.want)
		}
	}
}

func TestDeriveUUIDInvalid(t *testing.T) {
	if _, err := DeriveUUID("not-a-uuid", 1); err == nil {
		t.Error("DeriveUUID() with invalid base should fail")
	}
}

func TestPropertyHas(t *testing.T) {
	p := PropRead | PropIndicate
	if !p.Has(PropRead) || !p.Has(PropIndicate) {
		t.Error("Has() missing set bit")
	}
	if p.Has(PropNotify) || p.Has(PropRead|PropWrite) {
		t.Error("Has() reported unset bit")
	}
}

func TestEventTypeString(t *testing.T) {
	if EventIndicationConfirmed.String() != "indication_confirmed" {
		t.Errorf("String() = %q", EventIndicationConfirmed.String())
	}
	if EventType(99).String() != "event(99)" {
		t.Errorf("String() = %q", EventType(99).String())
	}
}
