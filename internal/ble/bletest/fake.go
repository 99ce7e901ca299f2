// Package bletest provides an in-memory ble.Peripheral for tests.
package bletest

import (
	"fmt"
	"sync"

	"github.com/chaz8081/gatt-sentry/internal/ble"
)

// Sent records one Notify or Indicate call.
type Sent struct {
	Conn ble.ConnHandle
	Char ble.CharHandle
	Data []byte
}

// Fake is a ble.Peripheral that records registrations and sends. Indications
// are not confirmed automatically; tests call Confirm.
type Fake struct {
	mu          sync.Mutex
	enabled     bool
	services    []ble.ServiceDef
	chars       []ble.CharacteristicDef
	byUUID      map[string]ble.CharHandle
	conn        ble.ConnHandle
	connected   bool
	notifies    []Sent
	indications []Sent
	advName     string
	advUUIDs    []string

	failNext error

	events chan ble.Event
}

// New returns a disconnected Fake.
func New() *Fake {
	return &Fake{
		byUUID: make(map[string]ble.CharHandle),
		conn:   ble.InvalidConn,
		events: make(chan ble.Event, 64),
	}
}

func (f *Fake) Enable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
	return nil
}

func (f *Fake) AddService(def ble.ServiceDef) ([]ble.CharHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enabled {
		return nil, fmt.Errorf("bletest: AddService before Enable")
	}
	f.services = append(f.services, def)
	handles := make([]ble.CharHandle, len(def.Characteristics))
	for i, c := range def.Characteristics {
		h := ble.CharHandle(len(f.chars))
		f.chars = append(f.chars, c)
		f.byUUID[c.UUID] = h
		handles[i] = h
	}
	return handles, nil
}

func (f *Fake) Advertise(name string, serviceUUIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advName = name
	f.advUUIDs = append([]string(nil), serviceUUIDs...)
	return nil
}

func (f *Fake) Notify(conn ble.ConnHandle, char ble.CharHandle, data []byte) error {
	return f.send(conn, char, data, ble.PropNotify, &f.notifies)
}

func (f *Fake) Indicate(conn ble.ConnHandle, char ble.CharHandle, data []byte) error {
	return f.send(conn, char, data, ble.PropIndicate, &f.indications)
}

func (f *Fake) send(conn ble.ConnHandle, char ble.CharHandle, data []byte, need ble.Property, log *[]Sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	if !f.connected || conn != f.conn {
		return ble.ErrNotConnected
	}
	if int(char) >= len(f.chars) {
		return ble.ErrUnknownCharacteristic
	}
	if !f.chars[char].Props.Has(need) {
		return ble.ErrUnsupported
	}
	*log = append(*log, Sent{Conn: conn, Char: char, Data: append([]byte(nil), data...)})
	return nil
}

func (f *Fake) SetValue(char ble.CharHandle, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if int(char) >= len(f.chars) {
		return ble.ErrUnknownCharacteristic
	}
	if f.chars[char].Props&(ble.PropNotify|ble.PropIndicate) != 0 {
		return ble.ErrUnsupported
	}
	f.chars[char].Value = append([]byte(nil), data...)
	return nil
}

func (f *Fake) Events() <-chan ble.Event {
	return f.events
}

// FailNext makes the next Notify or Indicate return err.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

// Connect marks conn connected and returns the matching event.
func (f *Fake) Connect(conn ble.ConnHandle) ble.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = conn
	f.connected = true
	return ble.Event{Type: ble.EventConnect, Conn: conn}
}

// Disconnect marks the fake disconnected and returns the matching event.
func (f *Fake) Disconnect() ble.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn := f.conn
	f.conn = ble.InvalidConn
	f.connected = false
	return ble.Event{Type: ble.EventDisconnect, Conn: conn}
}

// Write stores data as the value of the characteristic with uuid, as the
// stack does before reporting a write, and returns the write event.
func (f *Fake) Write(uuid string, data []byte) ble.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.byUUID[uuid]
	if int(h) < len(f.chars) {
		f.chars[h].Value = append([]byte(nil), data...)
	}
	return ble.Event{Type: ble.EventWrite, Conn: f.conn, Char: h, Data: data}
}

// Confirm returns the confirmation event for an indication on char.
func (f *Fake) Confirm(char ble.CharHandle) ble.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ble.Event{Type: ble.EventIndicationConfirmed, Conn: f.conn, Char: char}
}

// Push queues ev on the Events channel.
func (f *Fake) Push(ev ble.Event) {
	f.events <- ev
}

// Close closes the Events channel.
func (f *Fake) Close() {
	close(f.events)
}

// Handle returns the handle registered for uuid.
func (f *Fake) Handle(uuid string) (ble.CharHandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.byUUID[uuid]
	return h, ok
}

// Characteristic returns the definition registered at h with its current value.
func (f *Fake) Characteristic(h ble.CharHandle) ble.CharacteristicDef {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.chars[h]
	c.Value = append([]byte(nil), c.Value...)
	return c
}

// Services returns the registered service definitions.
func (f *Fake) Services() []ble.ServiceDef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ble.ServiceDef(nil), f.services...)
}

// Notifications returns notifications sent on char.
func (f *Fake) Notifications(char ble.CharHandle) []Sent {
	return f.filter(func() []Sent { return f.notifies }, char)
}

// Indications returns indications sent on char.
func (f *Fake) Indications(char ble.CharHandle) []Sent {
	return f.filter(func() []Sent { return f.indications }, char)
}

// AllIndications returns every indication in send order.
func (f *Fake) AllIndications() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.indications...)
}

// Advertised returns the last Advertise arguments.
func (f *Fake) Advertised() (string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advName, append([]string(nil), f.advUUIDs...)
}

func (f *Fake) filter(list func() []Sent, char ble.CharHandle) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range list() {
		if s.Char == char {
			out = append(out, s)
		}
	}
	return out
}

// Compile-time check that Fake implements ble.Peripheral.
var _ ble.Peripheral = (*Fake)(nil)
