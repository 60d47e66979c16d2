package mqtt

import (
	"context"
)

// MessageHandler receives the payload of one inbound publish.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the broker connection used by the device status mirror.
type Client interface {
	// Start connects in the background and returns immediately.
	Start(ctx context.Context) error

	// Disconnect closes the connection. The will message is not sent.
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe routes topic to handler. Subscriptions are restored after a reconnect.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// AwaitConnection blocks until the first connection is up or ctx is done.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
