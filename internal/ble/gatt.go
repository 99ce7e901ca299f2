package ble

import (
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

const (
	// eventBuffer is the capacity of the channel returned by Events.
	eventBuffer = 64
	// writeBacklog bounds peer writes waiting behind a full channel. Connection
	// and confirmation events are never dropped.
	writeBacklog = 256
)

// GATTPeripheral implements Peripheral on tinygo-org/bluetooth (BlueZ on
// Linux, CoreBluetooth on macOS, SoftDevice/HCI on TinyGo targets).
//
// The stack completes an indication's confirmation handshake inside
// Characteristic.Write, so GATTPeripheral emits EventIndicationConfirmed as
// soon as an indicating Write returns. CCCD writes are not surfaced by the
// stack; centrals are treated as subscribed.
type GATTPeripheral struct {
	adapter *bluetooth.Adapter
	events  chan Event

	// qmu protects backlog; pump moves it into events in order.
	qmu      sync.Mutex
	backlog  []Event
	wake     chan struct{}
	pumpOnce sync.Once

	// mu protects the fields below.
	mu       sync.Mutex
	chars    []*bluetooth.Characteristic
	props    []Property
	conns    map[string]ConnHandle
	nextConn ConnHandle
	adv      *bluetooth.Advertisement
}

// NewGATTPeripheral creates a Peripheral on the default BLE adapter.
func NewGATTPeripheral() *GATTPeripheral {
	return &GATTPeripheral{
		adapter: bluetooth.DefaultAdapter,
		events:  make(chan Event, eventBuffer),
		wake:    make(chan struct{}, 1),
		conns:   make(map[string]ConnHandle),
	}
}

func (p *GATTPeripheral) Enable() error {
	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addr := device.Address.String()
		p.mu.Lock()
		handle, known := p.conns[addr]
		if connected && !known {
			handle = p.nextConn
			p.nextConn++
			if p.nextConn == InvalidConn {
				p.nextConn = 0
			}
			p.conns[addr] = handle
		}
		if !connected {
			delete(p.conns, addr)
		}
		adv := p.adv
		p.mu.Unlock()

		if connected {
			slog.Info("[GATT] central connected", "addr", addr, "conn", handle)
			p.emit(Event{Type: EventConnect, Conn: handle})
			return
		}
		if !known {
			return
		}
		slog.Info("[GATT] central disconnected", "addr", addr, "conn", handle)
		p.emit(Event{Type: EventDisconnect, Conn: handle})
		if adv != nil {
			if err := adv.Start(); err != nil {
				slog.Debug("[GATT] restart advertising", "error", err)
			}
		}
	})
	return nil
}

func (p *GATTPeripheral) AddService(def ServiceDef) ([]CharHandle, error) {
	svcUUID, err := bluetooth.ParseUUID(def.UUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID %q: %w", def.UUID, err)
	}

	p.mu.Lock()
	first := len(p.chars)
	p.mu.Unlock()

	handles := make([]CharHandle, len(def.Characteristics))
	configs := make([]bluetooth.CharacteristicConfig, len(def.Characteristics))
	chars := make([]*bluetooth.Characteristic, len(def.Characteristics))
	props := make([]Property, len(def.Characteristics))
	for i, cd := range def.Characteristics {
		charUUID, err := bluetooth.ParseUUID(cd.UUID)
		if err != nil {
			return nil, fmt.Errorf("ble: parse characteristic UUID %q: %w", cd.UUID, err)
		}
		handle := CharHandle(first + i)
		handles[i] = handle
		chars[i] = new(bluetooth.Characteristic)
		props[i] = cd.Props

		configs[i] = bluetooth.CharacteristicConfig{
			Handle: chars[i],
			UUID:   charUUID,
			Value:  append([]byte(nil), cd.Value...),
			Flags:  permissions(cd.Props),
		}
		if cd.Props.Has(PropWrite) {
			configs[i].WriteEvent = func(_ bluetooth.Connection, offset int, value []byte) {
				if offset != 0 {
					slog.Debug("[GATT] ignoring offset write", "char", handle, "offset", offset)
					return
				}
				p.emit(Event{
					Type: EventWrite,
					Conn: p.currentConn(),
					Char: handle,
					Data: append([]byte(nil), value...),
				})
			}
		}
	}

	if err := p.adapter.AddService(&bluetooth.Service{
		UUID:            svcUUID,
		Characteristics: configs,
	}); err != nil {
		return nil, fmt.Errorf("ble: add service %s: %w", def.UUID, err)
	}

	p.mu.Lock()
	p.chars = append(p.chars, chars...)
	p.props = append(p.props, props...)
	p.mu.Unlock()
	return handles, nil
}

func (p *GATTPeripheral) Advertise(name string, serviceUUIDs []string) error {
	uuids := make([]bluetooth.UUID, 0, len(serviceUUIDs))
	for _, s := range serviceUUIDs {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return fmt.Errorf("ble: parse advertised UUID %q: %w", s, err)
		}
		uuids = append(uuids, u)
	}

	adv := p.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    name,
		ServiceUUIDs: uuids,
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertisement: %w", err)
	}

	p.mu.Lock()
	p.adv = adv
	p.mu.Unlock()
	return nil
}

func (p *GATTPeripheral) Notify(conn ConnHandle, char CharHandle, data []byte) error {
	c, err := p.lookup(conn, char, PropNotify)
	if err != nil {
		return err
	}
	if _, err := c.Write(data); err != nil {
		return fmt.Errorf("ble: notify char %d: %w", char, err)
	}
	return nil
}

func (p *GATTPeripheral) Indicate(conn ConnHandle, char CharHandle, data []byte) error {
	c, err := p.lookup(conn, char, PropIndicate)
	if err != nil {
		return err
	}
	if _, err := c.Write(data); err != nil {
		return fmt.Errorf("ble: indicate char %d: %w", char, err)
	}
	p.emit(Event{Type: EventIndicationConfirmed, Conn: conn, Char: char})
	return nil
}

func (p *GATTPeripheral) SetValue(char CharHandle, data []byte) error {
	p.mu.Lock()
	if int(char) >= len(p.chars) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownCharacteristic, char)
	}
	if p.props[char]&(PropNotify|PropIndicate) != 0 {
		p.mu.Unlock()
		return ErrUnsupported
	}
	c := p.chars[char]
	p.mu.Unlock()

	// Without notify or indicate permission the stack only stores the value.
	if _, err := c.Write(data); err != nil {
		return fmt.Errorf("ble: set value char %d: %w", char, err)
	}
	return nil
}

func (p *GATTPeripheral) Events() <-chan Event {
	return p.events
}

func (p *GATTPeripheral) lookup(conn ConnHandle, char CharHandle, need Property) (*bluetooth.Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn == InvalidConn || len(p.conns) == 0 {
		return nil, ErrNotConnected
	}
	if int(char) >= len(p.chars) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCharacteristic, char)
	}
	if !p.props[char].Has(need) {
		return nil, ErrUnsupported
	}
	return p.chars[char], nil
}

// currentConn returns the handle of a connected central, or InvalidConn.
func (p *GATTPeripheral) currentConn() ConnHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.conns {
		return h
	}
	return InvalidConn
}

// emit queues ev without blocking the caller. Indicate runs on the service
// loop itself, so blocking on a full channel here would deadlock.
func (p *GATTPeripheral) emit(ev Event) {
	p.pumpOnce.Do(func() { go p.pump() })

	p.qmu.Lock()
	if ev.Type == EventWrite && len(p.backlog) >= writeBacklog {
		p.qmu.Unlock()
		slog.Warn("[GATT] event backlog full, dropping write", "char", ev.Char)
		return
	}
	p.backlog = append(p.backlog, ev)
	p.qmu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// pump forwards the backlog to the events channel, blocking on the reader.
func (p *GATTPeripheral) pump() {
	for range p.wake {
		for {
			p.qmu.Lock()
			if len(p.backlog) == 0 {
				p.qmu.Unlock()
				break
			}
			ev := p.backlog[0]
			p.backlog[0] = Event{}
			p.backlog = p.backlog[1:]
			p.qmu.Unlock()

			p.events <- ev
		}
	}
}

func permissions(props Property) bluetooth.CharacteristicPermissions {
	var flags bluetooth.CharacteristicPermissions
	if props.Has(PropRead) {
		flags |= bluetooth.CharacteristicReadPermission
	}
	if props.Has(PropWrite) {
		flags |= bluetooth.CharacteristicWritePermission
	}
	if props.Has(PropNotify) {
		flags |= bluetooth.CharacteristicNotifyPermission
	}
	if props.Has(PropIndicate) {
		flags |= bluetooth.CharacteristicIndicatePermission
	}
	return flags
}

// Compile-time check that GATTPeripheral implements Peripheral.
var _ Peripheral = (*GATTPeripheral)(nil)
