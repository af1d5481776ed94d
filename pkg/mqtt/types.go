package mqtt

import (
	"context"
)

// MessageHandler processes one received message. It runs on its own goroutine.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the broker connection used by the agent for telemetry and operator input.
type Client interface {
	// Start begins connecting in the background and returns immediately.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT and stops reconnecting.
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for a filter; the subscription survives reconnects.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, topic string) error

	// AwaitConnection blocks until connected or ctx is done.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
