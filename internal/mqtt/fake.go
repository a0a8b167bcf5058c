package mqtt

import (
	"github.com/sweeney/am2120-sensor/internal/logic"
)

// Sent is one message as it would have gone on the wire.
type Sent struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakePublisher records what would have been sent to the broker.
// Events and SystemEvents keep the typed values for assertions; Sent keeps
// every message in publish order with its topic and QoS.
type FakePublisher struct {
	Events       []logic.Event
	Payloads     [][]byte
	SystemEvents []SystemEvent
	// SystemPayloads holds the formatted system payloads, RawPayload if set.
	SystemPayloads [][]byte
	Sent           []Sent

	// Injected failures. A failed publish records nothing.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish formats and records a reading event on Topic.
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
	f.Sent = append(f.Sent, Sent{Topic: Topic, Payload: payload})
	return nil
}

// PublishSystem formats and records a lifecycle event on TopicSystem.
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
	f.Sent = append(f.Sent, Sent{Topic: TopicSystem, QoS: 1, Retained: event.Retained, Payload: payload})
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected returns the Connected field.
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset returns the fake to its initial state.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
