package mqtt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	Client
	topic   string
	qos     int
	retain  bool
	payload []byte
	err     error
}

func (r *recordingClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	r.topic, r.qos, r.retain, r.payload = topic, qos, retain, payload
	return r.err
}

type ack struct {
	RequestID string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
}

func TestPublishJSON(t *testing.T) {
	r := &recordingClient{}
	err := PublishJSON(context.Background(), r, "wpk/v1/upgrade/ack/001", AtLeastOnce, ack{RequestID: "r1", Accepted: true})
	require.NoError(t, err)

	assert.Equal(t, "wpk/v1/upgrade/ack/001", r.topic)
	assert.Equal(t, AtLeastOnce, r.qos)
	assert.False(t, r.retain)
	assert.JSONEq(t, `{"request_id":"r1","accepted":true}`, string(r.payload))
}

func TestPublishJSONErrors(t *testing.T) {
	r := &recordingClient{err: ErrNotStarted}
	err := PublishJSON(context.Background(), r, "t", AtLeastOnce, ack{})
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Contains(t, err.Error(), "publish to t")

	err = PublishJSON(context.Background(), &recordingClient{}, "t", AtLeastOnce, func() {})
	assert.ErrorContains(t, err, "encode message for t")
}

func TestJSONHandler(t *testing.T) {
	var (
		got      []ack
		badTopic string
		badErr   error
	)
	h := JSONHandler(func(ctx context.Context, topic string, msg ack) {
		got = append(got, msg)
	}, func(topic string, err error) {
		badTopic, badErr = topic, err
	})

	h(context.Background(), "a", []byte(`{"request_id":"r1","accepted":true}`))
	h(context.Background(), "b", []byte(`not json`))

	assert.Equal(t, []ack{{RequestID: "r1", Accepted: true}}, got)
	assert.Equal(t, "b", badTopic)
	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, badErr, &syntaxErr)

	// A nil error callback drops malformed payloads silently.
	JSONHandler(func(context.Context, string, ack) { t.Fatal("unexpected call") }, nil)(context.Background(), "c", []byte("{"))
}
