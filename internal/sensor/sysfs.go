package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// IIOChannel reads a Linux industrial-I/O raw value file such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type IIOChannel struct {
	Path string
}

func (c IIOChannel) Get() (uint16, error) {
	v, err := readSysfsInt(c.Path)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 0xffff {
		return 0, fmt.Errorf("sensor: %s: raw value %d out of range", c.Path, v)
	}
	return uint16(v), nil
}

// SysfsPin reads a GPIO value file such as /sys/class/gpio/gpio17/value.
type SysfsPin struct {
	Path string
}

func (p SysfsPin) Get() (bool, error) {
	v, err := readSysfsInt(p.Path)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func readSysfsInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("sensor: read %s: %w", path, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sensor: parse %s: %w", path, err)
	}
	return v, nil
}
