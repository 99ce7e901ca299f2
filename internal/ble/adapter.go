// Package ble is the GATT transport for the sensor alarm services. It defines
// the small peripheral surface the services need (register characteristics,
// notify, indicate, receive events) and implements it on tinygo-org/bluetooth.
package ble

import (
	"errors"
	"fmt"
)

// ConnHandle identifies a connected central.
type ConnHandle uint16

// InvalidConn is the handle of "no connection".
const InvalidConn ConnHandle = 0xFFFF

// CharHandle identifies a registered characteristic value. Handles are unique
// across all services of one Peripheral.
type CharHandle uint16

// Property is a bit set of characteristic capabilities.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropNotify
	PropIndicate
)

// Has reports whether all bits of q are set in p.
func (p Property) Has(q Property) bool { return p&q == q }

// CharacteristicDef declares one characteristic of a service.
type CharacteristicDef struct {
	UUID  string
	Props Property
	Value []byte // initial value
}

// ServiceDef declares a primary service.
type ServiceDef struct {
	UUID            string
	Characteristics []CharacteristicDef
}

// EventType tags an Event.
type EventType int

const (
	EventConnect EventType = iota
	EventDisconnect
	// EventWrite carries a peer write to Char in Data.
	EventWrite
	// EventIndicationConfirmed reports the peer's confirmation for Char.
	EventIndicationConfirmed
	// EventSubscribe reports a CCCD change for Char in Enabled.
	EventSubscribe
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventWrite:
		return "write"
	case EventIndicationConfirmed:
		return "indication_confirmed"
	case EventSubscribe:
		return "subscribe"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is delivered by a Peripheral on its Events channel.
type Event struct {
	Type    EventType
	Conn    ConnHandle
	Char    CharHandle
	Data    []byte
	Enabled bool
}

var (
	// ErrNotConnected is returned by Notify/Indicate with no central connected.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrUnsupported is returned when a characteristic lacks the needed property.
	ErrUnsupported = errors.New("ble: operation not supported by characteristic")
	// ErrUnknownCharacteristic is returned for a handle that was never registered.
	ErrUnknownCharacteristic = errors.New("ble: unknown characteristic")
)

// Peripheral abstracts the GATT server side of the BLE stack for testing.
type Peripheral interface {
	// Enable powers on the BLE stack.
	Enable() error
	// AddService registers a service and returns one handle per
	// characteristic, in declaration order.
	AddService(def ServiceDef) ([]CharHandle, error)
	// Advertise starts connectable advertising.
	Advertise(name string, serviceUUIDs []string) error
	// Notify pushes data to the peer without acknowledgement.
	Notify(conn ConnHandle, char CharHandle, data []byte) error
	// Indicate pushes data to the peer; an EventIndicationConfirmed follows
	// once the peer acknowledges it.
	Indicate(conn ConnHandle, char CharHandle, data []byte) error
	// SetValue replaces the stored value of a characteristic that neither
	// notifies nor indicates. The peer sees it on its next read.
	SetValue(char CharHandle, data []byte) error
	// Events returns the channel of connection, write, confirmation and
	// subscription events.
	Events() <-chan Event
}
