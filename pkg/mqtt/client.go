package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"github.com/autopeer-io/agentupgrade/pkg/log"
)

const reconnectBackoff = 3 * time.Second

type pahoClient struct {
	cfg    *ClientConfig
	cm     *autopaho.ConnectionManager
	logger log.Logger

	// ctx is handed to message handlers; cancel fires on Disconnect.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex
	subscriptions map[string]subscription

	connected atomic.Bool
}

type subscription struct {
	qos     int
	match   string // filter without the $share/<group>/ prefix
	handler MessageHandler
}

// NewClient validates cfg, applies defaults and returns a client that is not
// yet connected.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, errors.New("mqtt config is required")
	}

	setDefaultConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid mqtt config")
	}

	return &pahoClient{
		cfg:           cfg,
		logger:        log.WithName("mqtt").WithValues("clientID", cfg.ClientID),
		subscriptions: make(map[string]subscription),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // validated in NewClient

	c.ctx, c.cancel = context.WithCancel(ctx)

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(reconnectBackoff),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg: &tls.Config{
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		},
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.route,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	c.logger.Debug("Connecting to broker", "broker", c.cfg.BrokerURL)

	cm, err := autopaho.NewConnection(c.ctx, pahoCfg)
	if err != nil {
		c.cancel()
		return errors.Wrap(err, "start mqtt connection")
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.logger.Debug("Disconnect did not complete cleanly", "error", err)
	}
	c.cancel()
	c.connected.Store(false)
	c.logger.Debug("Disconnected from broker")
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	// Registered before SUBSCRIBE so a message racing the SUBACK is routed.
	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, match: topicFilter(topic), handler: handler}
	c.mu.Unlock()

	if err := c.subscribe(ctx, c.cm, topic, qos); err != nil {
		c.mu.Lock()
		delete(c.subscriptions, topic)
		c.mu.Unlock()
		return err
	}

	c.logger.Debug("Subscribed", "topic", topic, "qos", qos)
	return nil
}

func (c *pahoClient) subscribe(ctx context.Context, cm *autopaho.ConnectionManager, topic string, qos int) error {
	suback, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: byte(qos)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "subscribe to %s", topic)
	}
	if suback != nil {
		for _, code := range suback.Reasons {
			if code >= 0x80 {
				return errors.Wrapf(ErrSubscriptionRefused, "%s (reason code 0x%02x)", topic, code)
			}
		}
	}
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, topic string) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()

	if _, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{topic}}); err != nil {
		return errors.Wrapf(err, "unsubscribe from %s", topic)
	}
	return nil
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

// onConnectionUp restores every registered filter after a (re)connect.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)
	c.logger.Debug("Connection established")

	c.mu.RLock()
	restore := make(map[string]int, len(c.subscriptions))
	for topic, sub := range c.subscriptions {
		restore[topic] = sub.qos
	}
	c.mu.RUnlock()

	for topic, qos := range restore {
		if err := c.subscribe(c.ctx, cm, topic, qos); err != nil {
			c.logger.Error(err, "Failed to restore subscription", "topic", topic)
		}
	}
}

func (c *pahoClient) onConnectError(err error) {
	c.connected.Store(false)
	c.logger.Warn("Connection attempt failed, retrying", "error", err, "backoff", reconnectBackoff)
}

func (c *pahoClient) onClientError(err error) {
	c.logger.Error(err, "Client error")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	if d.Properties != nil && d.Properties.ReasonString != "" {
		c.logger.Warn("Broker closed the connection", "reason", d.Properties.ReasonString)
		return
	}
	c.logger.Warn("Broker closed the connection", "reasonCode", fmt.Sprintf("0x%02x", d.ReasonCode))
}

// route hands a received message to every matching handler. Handlers run on
// their own goroutine so the paho reader loop never blocks.
func (c *pahoClient) route(p paho.PublishReceived) (bool, error) {
	topic, payload := p.Packet.Topic, p.Packet.Payload

	c.mu.RLock()
	var handlers []MessageHandler
	for _, sub := range c.subscriptions {
		if topicsMatch(sub.match, topic) {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("No handler for topic", "topic", topic)
	}
	for _, h := range handlers {
		go h(c.ctx, topic, payload)
	}

	return true, nil
}

// topicsMatch reports whether topic matches filter, honoring '+' and '#'.
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(filterParts) == len(topicParts)
}

// topicFilter strips the $share/<group>/ prefix of a shared subscription.
func topicFilter(filter string) string {
	if rest, ok := strings.CutPrefix(filter, "$share/"); ok {
		if _, f, ok := strings.Cut(rest, "/"); ok {
			return f
		}
	}
	return filter
}
