package sensor

import (
	"fmt"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bme280"
)

// maxHumidity is 100.0 %RH in tenths.
const maxHumidity = 1000

// Humidity reads relative humidity from a BME280 in tenths of a percent
// (45.0 %RH reads as 450).
type Humidity struct {
	dev *bme280.Device
}

// NewHumidity configures a BME280 at addr on bus. An addr of 0 keeps the
// driver default.
func NewHumidity(bus drivers.I2C, addr uint16) (*Humidity, error) {
	dev := bme280.New(bus)
	if addr != 0 {
		dev.Address = addr
	}
	if !dev.Connected() {
		return nil, fmt.Errorf("%w: bme280 at %#x", ErrNotPresent, dev.Address)
	}
	dev.Configure()
	return &Humidity{dev: &dev}, nil
}

func (h *Humidity) Read() (uint16, error) {
	centi, err := h.dev.ReadHumidity()
	if err != nil {
		return 0, fmt.Errorf("sensor: read bme280 humidity: %w", err)
	}
	return humidityTenths(centi), nil
}

// humidityTenths converts the driver's hundredths of %RH to tenths, clamped
// to 0..100 %RH.
func humidityTenths(centi int32) uint16 {
	tenths := centi / 10
	switch {
	case tenths < 0:
		return 0
	case tenths > maxHumidity:
		return maxHumidity
	default:
		return uint16(tenths)
	}
}
