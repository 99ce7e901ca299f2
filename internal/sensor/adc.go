package sensor

import "fmt"

// ADC is one analog channel.
type ADC interface {
	Get() (uint16, error)
}

// Percent scales an ADC reading to 0..100. It backs the soil moisture and
// water level services.
type Percent struct {
	adc    ADC
	max    uint16
	invert bool
}

// NewPercent returns a Percent reader where full scale max reads 100. With
// invert, full scale reads 0 (capacitive soil probes read high when dry).
func NewPercent(adc ADC, max uint16, invert bool) *Percent {
	if max == 0 {
		max = 0xffff
	}
	return &Percent{adc: adc, max: max, invert: invert}
}

func (p *Percent) Read() (uint16, error) {
	raw, err := p.adc.Get()
	if err != nil {
		return 0, fmt.Errorf("sensor: read adc: %w", err)
	}
	if raw > p.max {
		raw = p.max
	}
	pct := uint16(uint32(raw) * 100 / uint32(p.max))
	if p.invert {
		pct = 100 - pct
	}
	return pct, nil
}

// Pin is one digital input.
type Pin interface {
	Get() (bool, error)
}

// Presence reports a digital water-presence probe as 1 (wet) or 0 (dry).
type Presence struct {
	pin       Pin
	activeLow bool
}

// NewPresence returns a Presence reader. With activeLow, a low level means wet.
func NewPresence(pin Pin, activeLow bool) *Presence {
	return &Presence{pin: pin, activeLow: activeLow}
}

func (p *Presence) Read() (uint16, error) {
	level, err := p.pin.Get()
	if err != nil {
		return 0, fmt.Errorf("sensor: read presence pin: %w", err)
	}
	if level != p.activeLow {
		return 1, nil
	}
	return 0, nil
}
