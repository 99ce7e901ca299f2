package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/gatt-sentry/internal/ble"
	"github.com/chaz8081/gatt-sentry/internal/clock"
	"github.com/chaz8081/gatt-sentry/internal/metrics"
)

// ErrEventsClosed is returned by Run when the peripheral closes its event channel.
var ErrEventsClosed = errors.New("service: peripheral event channel closed")

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	DeviceName    string
	PollInterval  time.Duration
	SyncOnConnect bool // set the clock from the host wall clock on connect
}

// Runner owns the peripheral and serializes every event and poll of its
// services on one goroutine.
type Runner struct {
	periph   ble.Peripheral
	clock    *clock.Clock
	services []*Service
	opts     RunnerOptions

	timeUUID    string
	timeChar    ble.CharHandle
	timeEnabled bool

	now func() time.Time
}

// NewRunner creates a Runner for services. Start must be called before Run.
func NewRunner(p ble.Peripheral, c *clock.Clock, services []*Service, opts RunnerOptions) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Runner{
		periph:   p,
		clock:    c,
		services: services,
		opts:     opts,
		now:      time.Now,
	}
}

// Services returns the driven services.
func (r *Runner) Services() []*Service { return r.services }

// Start enables the stack, registers the time service and every alarm
// service, and starts advertising.
func (r *Runner) Start() error {
	if err := r.periph.Enable(); err != nil {
		return fmt.Errorf("service: enable peripheral: %w", err)
	}
	if err := r.registerTime(); err != nil {
		return err
	}
	for _, s := range r.services {
		if err := s.Register(r.periph); err != nil {
			return err
		}
	}
	return r.advertise()
}

// advertise announces the device name and the first alarm service. A legacy
// advertising payload holds a single 128-bit UUID next to a short name.
func (r *Runner) advertise() error {
	var uuids []string
	if len(r.services) > 0 {
		uuids = []string{r.services[0].UUIDs().Service}
	}
	if err := r.periph.Advertise(r.opts.DeviceName, uuids); err != nil {
		return fmt.Errorf("service: advertise: %w", err)
	}
	slog.Info("[SERVICE] advertising", "name", r.opts.DeviceName, "services", len(r.services))
	return nil
}

func (r *Runner) registerTime() error {
	svcUUID, err := ble.DeriveUUID(TimeBase, 0)
	if err != nil {
		return fmt.Errorf("service: time service: %w", err)
	}
	charUUID, err := ble.DeriveUUID(TimeBase, 1)
	if err != nil {
		return fmt.Errorf("service: time service: %w", err)
	}
	now := r.clock.Now()
	handles, err := r.periph.AddService(ble.ServiceDef{
		UUID: svcUUID,
		Characteristics: []ble.CharacteristicDef{
			{UUID: charUUID, Props: ble.PropRead | ble.PropWrite, Value: now[:]},
		},
	})
	if err != nil {
		return fmt.Errorf("service: register time service: %w", err)
	}
	if len(handles) != 1 {
		return fmt.Errorf("service: register time service: got %d handles, want 1", len(handles))
	}
	r.timeUUID = charUUID
	r.timeChar = handles[0]
	r.timeEnabled = true
	return nil
}

// TimeUUID returns the UUID of the device time characteristic.
func (r *Runner) TimeUUID() string { return r.timeUUID }

// Run polls every service on each tick and dispatches peripheral events
// between ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	events := r.periph.Events()
	r.PollAll()
	for {
		select {
		case <-ctx.Done():
			slog.Info("[SERVICE] stopping")
			return nil
		case ev, ok := <-events:
			if !ok {
				return ErrEventsClosed
			}
			r.Dispatch(ev)
		case <-ticker.C:
			r.PollAll()
		}
	}
}

// PollAll polls every service once.
func (r *Runner) PollAll() {
	for _, s := range r.services {
		s.Poll()
	}
}

// Dispatch applies ev to the runner and every service, then polls any service
// whose configuration changed.
func (r *Runner) Dispatch(ev ble.Event) {
	switch ev.Type {
	case ble.EventConnect:
		metrics.IncConnectionEvent("connect")
		if r.opts.SyncOnConnect {
			r.clock.SetTime(r.now())
			slog.Debug("[SERVICE] clock synced from host", "timestamp", r.clock.Now())
		}
	case ble.EventDisconnect:
		metrics.IncConnectionEvent("disconnect")
	case ble.EventWrite:
		if r.timeEnabled && ev.Char == r.timeChar {
			r.setTime(ev.Data)
			return
		}
	}

	for _, s := range r.services {
		s.HandleEvent(ev)
		if s.TakeRecheck() {
			s.Poll()
		}
	}
}

func (r *Runner) setTime(data []byte) {
	ts, err := clock.Parse(data)
	if err == nil {
		err = r.clock.Set(ts)
	}
	if err != nil {
		slog.Debug("[SERVICE] dropping time write", "len", len(data), "error", err)
		metrics.IncWriteDropped("time", "date_time")
		return
	}
	slog.Info("[SERVICE] clock set by peer", "timestamp", ts)
}
