package alarm

import "sync"

// Arbiter enforces that at most one indication awaits confirmation across
// every indicating service sharing a link. One Arbiter is shared by all
// services of a peripheral.
type Arbiter struct {
	mu      sync.Mutex
	pending map[string]bool
}

// NewArbiter returns an Arbiter with nothing in flight.
func NewArbiter() *Arbiter {
	return &Arbiter{pending: make(map[string]bool)}
}

// TrySend reports whether service may send an indication now. It does not
// mark anything pending; call MarkPending once the send has succeeded.
func (a *Arbiter) TrySend(service string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pending {
		if p {
			return false
		}
	}
	return true
}

// MarkPending records a successful indication send by service.
func (a *Arbiter) MarkPending(service string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[service] = true
}

// Confirm clears service's flag when the peer confirms its indication.
func (a *Arbiter) Confirm(service string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, service)
}

// OnDisconnect clears service's flag; no confirmation arrives after a disconnect.
func (a *Arbiter) OnDisconnect(service string) {
	a.Confirm(service)
}

// Pending reports whether service has an unconfirmed indication.
func (a *Arbiter) Pending(service string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending[service]
}

// InFlight returns the service holding the gate, if any.
func (a *Arbiter) InFlight() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for s, p := range a.pending {
		if p {
			return s, true
		}
	}
	return "", false
}
