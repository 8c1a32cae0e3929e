package mqtt

import (
	"github.com/sweeney/parking-barrier/internal/logic"
)

// FakePublisher records what would have been sent to the broker. Both the
// decoded event and its wire payload are kept so tests can assert either.
// Not safe for concurrent use; read the fields only after the publishing
// goroutine has finished.
type FakePublisher struct {
	Events   []logic.Event
	Payloads [][]byte

	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// PublishError and PublishSystemError fail the matching call without
	// recording anything.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool // returned by IsConnected
}

// NewFakePublisher returns an empty, disconnected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records a barrier event.
func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records a lifecycle event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
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

// EventTypes lists the types of the recorded barrier events in order.
func (f *FakePublisher) EventTypes() []logic.EventType {
	types := make([]logic.EventType, 0, len(f.Events))
	for _, e := range f.Events {
		types = append(types, e.Type)
	}
	return types
}

// Retained returns the recorded system events the broker would keep.
func (f *FakePublisher) Retained() []SystemEvent {
	var kept []SystemEvent
	for _, e := range f.SystemEvents {
		if e.Retained {
			kept = append(kept, e)
		}
	}
	return kept
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset returns the publisher to its initial state.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
