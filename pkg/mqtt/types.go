package mqtt

import (
	"context"

	"github.com/pkg/errors"
)

// QoS levels used by the upgrade exchange.
const (
	AtMostOnce  = 0
	AtLeastOnce = 1
)

var (
	// ErrNotStarted is returned by every operation issued before Start.
	ErrNotStarted = errors.New("mqtt client not started")

	// ErrSubscriptionRefused is returned when the broker answers a SUBSCRIBE
	// with a failure reason code.
	ErrSubscriptionRefused = errors.New("subscription refused by broker")
)

// MessageHandler processes one received message. ctx lives as long as the
// client and is canceled when the client is disconnected.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the broker connection used to exchange upgrade messages with agents.
type Client interface {
	// Start connects in the background. The connection lives until ctx is
	// canceled or Disconnect is called. Use AwaitConnection to block.
	Start(ctx context.Context) error

	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for a topic filter ('+' and '#' wildcards
	// and $share groups are supported). Filters are restored after a reconnect.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, topic string) error

	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
