//go:build linux

package sensor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl that selects the target address.
const i2cSlave = 0x0703

// I2CBus is a Linux i2c-dev bus usable as tinygo.org/x/drivers.I2C.
type I2CBus struct {
	mu   sync.Mutex
	fd   int
	addr uint16
}

// OpenI2C opens an i2c-dev node such as /dev/i2c-1.
func OpenI2C(path string) (*I2CBus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("sensor: open %s: %w", path, err)
	}
	return &I2CBus{fd: fd, addr: 0xffff}, nil
}

// Tx writes w to addr, then reads len(r) bytes back.
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if addr != b.addr {
		if err := unix.IoctlSetInt(b.fd, i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("sensor: select i2c address %#x: %w", addr, err)
		}
		b.addr = addr
	}
	if len(w) > 0 {
		if _, err := unix.Write(b.fd, w); err != nil {
			return fmt.Errorf("sensor: i2c write to %#x: %w", addr, err)
		}
	}
	if len(r) > 0 {
		if _, err := unix.Read(b.fd, r); err != nil {
			return fmt.Errorf("sensor: i2c read from %#x: %w", addr, err)
		}
	}
	return nil
}

// ReadRegister reads len(buf) bytes starting at register reg.
func (b *I2CBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

// WriteRegister writes buf starting at register reg.
func (b *I2CBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

// Close releases the device node.
func (b *I2CBus) Close() error {
	return unix.Close(b.fd)
}
