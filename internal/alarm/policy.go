// Package alarm implements the threshold alarm state machine shared by every
// sensor service, and the arbiter that keeps at most one GATT indication
// awaiting confirmation across all indicating services.
package alarm

import "fmt"

// Code is the first byte of an alarm-with-timestamp record.
type Code uint8

const (
	CodeNone    Code = 0
	CodeLow     Code = 1
	CodeHigh    Code = 2
	CodePresent Code = 1 // water presence reuses 1
)

// Path selects how alarm records reach the peer.
type Path int

const (
	// PathNotify sends unacknowledged notifications, not arbitrated.
	PathNotify Path = iota
	// PathIndicate sends indications, gated by the Arbiter.
	PathIndicate
)

func (p Path) String() string {
	switch p {
	case PathNotify:
		return "notify"
	case PathIndicate:
		return "indicate"
	default:
		return fmt.Sprintf("path(%d)", int(p))
	}
}

// Policy specializes the Engine for one sensor kind.
type Policy struct {
	Name     string
	Width    int  // sample and threshold width in bytes: 1 or 2
	LowCode  Code // CodeNone disables the low comparison
	HighCode Code
	// DeliverNone sends every in-range (NONE) result, on every evaluation.
	DeliverNone bool
	Path        Path
}

var (
	Humidity = Policy{
		Name:     "humidity",
		Width:    2,
		LowCode:  CodeLow,
		HighCode: CodeHigh,
		Path:     PathIndicate,
	}
	SoilMoisture = Policy{
		Name:        "soil_moisture",
		Width:       1,
		LowCode:     CodeLow,
		HighCode:    CodeHigh,
		DeliverNone: true,
		Path:        PathNotify,
	}
	WaterLevel = Policy{
		Name:        "water_level",
		Width:       1,
		LowCode:     CodeLow,
		HighCode:    CodeHigh,
		DeliverNone: true,
		Path:        PathNotify,
	}
	// WaterPresence raises PRESENT when the 0/1 sample exceeds High (normally 0).
	WaterPresence = Policy{
		Name:     "water_presence",
		Width:    1,
		LowCode:  CodeNone,
		HighCode: CodePresent,
		Path:     PathIndicate,
	}
)

// Policies lists the built-in sensor policies.
func Policies() []Policy {
	return []Policy{Humidity, SoilMoisture, WaterLevel, WaterPresence}
}

// PolicyByName finds a built-in policy.
func PolicyByName(name string) (Policy, bool) {
	for _, p := range Policies() {
		if p.Name == name {
			return p, true
		}
	}
	return Policy{}, false
}

// UsesIndication reports whether records go through the Arbiter.
func (p Policy) UsesIndication() bool {
	return p.Path == PathIndicate
}

// MaxValue is the largest sample or threshold representable at p.Width.
func (p Policy) MaxValue() uint16 {
	if p.Width == 1 {
		return 0xff
	}
	return 0xffff
}

// CodeName names c in this policy's vocabulary.
func (p Policy) CodeName(c Code) string {
	switch {
	case c == CodeNone:
		return "none"
	case p.LowCode != CodeNone && c == p.LowCode:
		return "low"
	case c == p.HighCode && p.HighCode == CodePresent && p.LowCode == CodeNone:
		return "present"
	case c == p.HighCode:
		return "high"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}
