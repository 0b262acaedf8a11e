package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/agentupgrade/pkg/log"
)

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"wpk/v1/upgrade/ack/001", "wpk/v1/upgrade/ack/001", true},
		{"wpk/v1/upgrade/ack/+", "wpk/v1/upgrade/ack/001", true},
		{"wpk/v1/upgrade/+/001", "wpk/v1/upgrade/result/001", true},
		{"wpk/v1/#", "wpk/v1/upgrade/progress/001", true},
		{"wpk/v1/upgrade/ack/+", "wpk/v1/upgrade/ack/001/extra", false},
		{"wpk/v1/upgrade/ack/002", "wpk/v1/upgrade/ack/001", false},
		{"wpk/v1/upgrade/ack/+/x", "wpk/v1/upgrade/ack/001", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"~"+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, topicsMatch(tt.filter, tt.topic))
		})
	}
}

func TestTopicFilterStripsSharedPrefix(t *testing.T) {
	assert.Equal(t, "wpk/v1/upgrade/ack/+", topicFilter("$share/upgraders/wpk/v1/upgrade/ack/+"))
	assert.Equal(t, "wpk/v1/upgrade/ack/+", topicFilter("wpk/v1/upgrade/ack/+"))
	assert.Equal(t, "$share/upgraders", topicFilter("$share/upgraders"))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{})
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{BrokerURL: "http://broker:1883"})
	require.Error(t, err)

	cfg := &ClientConfig{BrokerURL: "tcp://broker:1883"}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, uint16(60), cfg.KeepAlive)
	assert.False(t, c.IsConnected())
}

func TestClientRequiresStart(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://broker:1883"})
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, c.Publish(ctx, "wpk/v1/upgrade/001", AtLeastOnce, false, nil), ErrNotStarted)
	assert.ErrorIs(t, c.Subscribe(ctx, "wpk/v1/upgrade/ack/001", AtLeastOnce, func(context.Context, string, []byte) {}), ErrNotStarted)
	assert.ErrorIs(t, c.Unsubscribe(ctx, "wpk/v1/upgrade/ack/001"), ErrNotStarted)
	assert.ErrorIs(t, c.AwaitConnection(ctx), ErrNotStarted)
	c.Disconnect(ctx)
}

func TestRouteDeliversToMatchingHandlers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type delivery struct {
		name, topic string
		ctx         context.Context
	}
	got := make(chan delivery, 4)
	handler := func(name string) MessageHandler {
		return func(ctx context.Context, topic string, payload []byte) {
			got <- delivery{name: name, topic: topic, ctx: ctx}
		}
	}

	c := &pahoClient{
		logger:        log.NewNopLogger(),
		ctx:           ctx,
		subscriptions: make(map[string]subscription),
	}
	for name, filter := range map[string]string{
		"acks":    "wpk/v1/upgrade/ack/+",
		"shared":  "$share/upgraders/wpk/v1/upgrade/#",
		"results": "wpk/v1/upgrade/result/001",
	} {
		c.subscriptions[filter] = subscription{qos: AtLeastOnce, match: topicFilter(filter), handler: handler(name)}
	}

	ok, err := c.route(paho.PublishReceived{Packet: &paho.Publish{Topic: "wpk/v1/upgrade/ack/001", Payload: []byte("{}")}})
	require.NoError(t, err)
	assert.True(t, ok)

	names := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case d := <-got:
			names[d.name] = true
			assert.Equal(t, "wpk/v1/upgrade/ack/001", d.topic)
			assert.Equal(t, ctx, d.ctx)
		case <-time.After(time.Second):
			t.Fatal("handler not called")
		}
	}
	assert.Equal(t, map[string]bool{"acks": true, "shared": true}, names)

	select {
	case d := <-got:
		t.Fatalf("unexpected delivery to %s", d.name)
	case <-time.After(50 * time.Millisecond):
	}
}
