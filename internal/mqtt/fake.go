package mqtt

import (
	"sync"

	"github.com/sweeney/tec-monitor/internal/session"
)

// FakePublisher records published samples and events for test assertions.
// It is safe for concurrent use; a Forwarder publishes from its own
// goroutine.
type FakePublisher struct {
	mu sync.Mutex

	// Samples contains all samples that were published.
	Samples []session.Sample

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// Handler is the last handler passed to SubscribeCommands.
	Handler CommandHandler
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the sample.
func (f *FakePublisher) Publish(s session.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(s)
	if err != nil {
		return err
	}
	f.Samples = append(f.Samples, s)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// SubscribeCommands records handler so tests can deliver commands.
func (f *FakePublisher) SubscribeCommands(handler CommandHandler) error {
	f.mu.Lock()
	f.Handler = handler
	f.mu.Unlock()
	return nil
}

// Deliver parses payload as a command message and passes it to the
// subscribed handler, as the broker would.
func (f *FakePublisher) Deliver(payload []byte) error {
	cmds, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	h := f.Handler
	f.mu.Unlock()
	if h != nil {
		h(cmds)
	}
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// PublishedSamples returns a copy of the recorded samples.
func (f *FakePublisher) PublishedSamples() []session.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Sample(nil), f.Samples...)
}

// PublishedSystemEvents returns a copy of the recorded system events.
func (f *FakePublisher) PublishedSystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
