// Package sensor reads the physical quantities behind each alarm service.
// Every reader returns a fixed-width unsigned sample in the unit its service
// compares against thresholds.
package sensor

import "errors"

// ErrNotPresent is returned when a sensor does not answer at startup.
var ErrNotPresent = errors.New("sensor: device not present")

// Reader performs one synchronous read.
type Reader interface {
	Read() (uint16, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func() (uint16, error)

func (f ReaderFunc) Read() (uint16, error) { return f() }
