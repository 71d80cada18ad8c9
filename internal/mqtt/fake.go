package mqtt

import (
	"sync"

	"github.com/sweeney/tempo-deck/internal/protocol"
)

// FakeBus records sent messages for test assertions.
// It is safe for concurrent use so tests can inspect it while an agent
// loop is running.
type FakeBus struct {
	mu sync.Mutex

	sent         []protocol.Outbound
	systemEvents []SystemEvent

	sendErr error

	closed    bool
	connected bool
}

// NewFakeBus creates a FakeBus for testing.
func NewFakeBus() *FakeBus {
	return &FakeBus{}
}

// Send records the message. The message is also encoded so that encoding
// failures surface in tests.
func (f *FakeBus) Send(msg protocol.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if _, err := protocol.Encode(msg); err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// PublishSystem records the system event.
func (f *FakeBus) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := FormatSystemPayload(event); err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	return nil
}

// Close marks the bus as closed.
func (f *FakeBus) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake bus is "connected".
func (f *FakeBus) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetConnected controls the return value of IsConnected.
func (f *FakeBus) SetConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// Sent returns a copy of every message sent so far.
func (f *FakeBus) Sent() []protocol.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Outbound(nil), f.sent...)
}

// SentTo returns the messages addressed to one surface, in order.
func (f *FakeBus) SentTo(id string) []protocol.Outbound {
	var out []protocol.Outbound
	for _, m := range f.Sent() {
		if m.SurfaceID() == id {
			out = append(out, m)
		}
	}
	return out
}

// SystemEvents returns a copy of every system event published so far.
func (f *FakeBus) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// Closed reports whether Close was called.
func (f *FakeBus) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded messages.
func (f *FakeBus) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.systemEvents = nil
	f.closed = false
	f.sendErr = nil
}

// SetSendError makes every following Send fail with err (nil restores).
func (f *FakeBus) SetSendError(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}
