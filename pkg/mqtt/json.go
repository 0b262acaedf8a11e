package mqtt

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// PublishJSON encodes v as JSON and publishes it without the retain flag.
func PublishJSON(ctx context.Context, c Client, topic string, qos int, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode message for %s", topic)
	}
	if err := c.Publish(ctx, topic, qos, false, payload); err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}

// JSONHandler adapts a typed callback to a MessageHandler. Payloads that do
// not decode into T are passed to onError and never reach fn.
func JSONHandler[T any](fn func(ctx context.Context, topic string, msg T), onError func(topic string, err error)) MessageHandler {
	return func(ctx context.Context, topic string, payload []byte) {
		var msg T
		if err := json.Unmarshal(payload, &msg); err != nil {
			if onError != nil {
				onError(topic, err)
			}
			return
		}
		fn(ctx, topic, msg)
	}
}
