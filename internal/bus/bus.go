// Package bus defines the message bus transport abstraction consumed
// by the Command Router and Watchdog, and published to by the Scene
// Scheduler and Device Driver (spec.md §4.3, §6). Grounded on the
// teacher's internal/v3/bus package: the same Publish/Subscribe shape,
// generalized from an in-process event bus to a real MQTT transport.
package bus

import "context"

// Message is an inbound payload delivered to a subscriber, carrying
// the topic it arrived on so one subscription can fan out by prefix.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscriber is a read-only handle to a subscription.
type Subscriber interface {
	C() <-chan Message
	Close() error
}

// Bus is the transport abstraction. The real implementation is backed
// by an MQTT broker (internal/bus/mqtt.go); MemoryBus backs tests and
// Mock-only deployments.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topicFilter string) (Subscriber, error)
	Close() error
}
