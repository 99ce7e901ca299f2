//go:build !linux

package sensor

import "errors"

// I2CBus is only available on Linux.
type I2CBus struct{}

// OpenI2C reports that i2c-dev is unavailable on this platform.
func OpenI2C(path string) (*I2CBus, error) {
	return nil, errors.New("sensor: i2c-dev is only supported on linux")
}

func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	return errors.New("sensor: i2c-dev is only supported on linux")
}

func (b *I2CBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

func (b *I2CBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func (b *I2CBus) Close() error { return nil }
