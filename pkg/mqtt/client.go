package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/seatlink/pkg/log"
)

var errNotStarted = errors.New("mqtt: client not started")

type subscription struct {
	filter  string
	qos     byte
	handler MessageHandler
}

type pahoClient struct {
	cfg *ClientConfig
	log log.Logger

	cm        *autopaho.ConnectionManager
	connected atomic.Bool

	mu   sync.RWMutex
	subs map[string]subscription // by filter as subscribed, $share prefix included
}

// NewClient validates cfg and returns an unstarted client.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, errors.New("mqtt: config is required")
	}
	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mqtt: invalid config: %w", err)
	}

	return &pahoClient{
		cfg:  cfg,
		log:  cfg.Logger.WithName("mqtt"),
		subs: make(map[string]subscription),
	}, nil
}

func (c *pahoClient) connectionConfig() autopaho.ClientConfig {
	broker, _ := url.Parse(c.cfg.BrokerURL) // checked by Validate

	cc := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{broker},
		KeepAlive:                     c.cfg.KeepAlive,
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectBackoff),
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg:                        &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify},
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError:                c.onConnectError,
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnPublishReceived:  []func(paho.PublishReceived) (bool, error){c.router},
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
		},
	}
	if c.cfg.WillTopic != "" {
		cc.WillMessage = &paho.WillMessage{
			Topic:   c.cfg.WillTopic,
			Payload: c.cfg.WillPayload,
			QoS:     c.cfg.WillQoS,
			Retain:  c.cfg.WillRetain,
		}
	}
	return cc
}

func (c *pahoClient) Start(ctx context.Context) error {
	c.log.Info("Connecting to broker", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)

	cm, err := autopaho.NewConnection(ctx, c.connectionConfig())
	if err != nil {
		return fmt.Errorf("mqtt: start connection: %w", err)
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.log.Debug("Disconnect did not complete cleanly", "error", err)
	}
	c.connected.Store(false)
	c.log.Info("Disconnected from broker")
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return errNotStarted
	}
	if _, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe records the subscription before sending SUBSCRIBE, so it is
// restored on the next connection even if this attempt fails.
func (c *pahoClient) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return errNotStarted
	}
	c.addSubscription(subscription{filter: filter, qos: byte(qos), handler: handler})

	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: byte(qos)}},
	}); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", filter, err)
	}
	c.log.Info("Subscribed", "filter", filter, "qos", qos)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, filter string) error {
	if c.cm == nil {
		return errNotStarted
	}
	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool { return c.connected.Load() }

func (c *pahoClient) addSubscription(s subscription) {
	c.mu.Lock()
	c.subs[s.filter] = s
	c.mu.Unlock()
}

// matching returns the subscriptions whose filter matches topic, ordered by
// filter so delivery to several handlers is deterministic.
func (c *pahoClient) matching(topic string) []subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []subscription
	for _, s := range c.subs {
		if topicsMatch(topicFilter(s.filter), topic) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].filter < out[j].filter })
	return out
}

// onConnectionUp restores every subscription in one SUBSCRIBE packet.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)
	c.log.Info("Connected to broker")

	c.mu.RLock()
	opts := make([]paho.SubscribeOptions, 0, len(c.subs))
	for _, s := range c.subs {
		opts = append(opts, paho.SubscribeOptions{Topic: s.filter, QoS: s.qos})
	}
	c.mu.RUnlock()
	if len(opts) == 0 {
		return
	}

	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{Subscriptions: opts}); err != nil {
		c.log.Error(err, "Restoring subscriptions failed", "count", len(opts))
	}
}

func (c *pahoClient) onConnectError(err error) {
	c.connected.Store(false)
	c.log.Warn("Broker connection attempt failed", "error", err)
}

// onClientError fires when an established connection breaks; autopaho reconnects.
func (c *pahoClient) onClientError(err error) {
	c.connected.Store(false)
	c.log.Error(err, "Broker connection lost")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	var reason string
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.log.Warn("Broker sent DISCONNECT", "code", d.ReasonCode, "reason", reason)
}

func (c *pahoClient) router(p paho.PublishReceived) (bool, error) {
	subs := c.matching(p.Packet.Topic)
	if len(subs) == 0 {
		c.log.Debug("No handler for topic", "topic", p.Packet.Topic)
		return true, nil
	}

	for _, s := range subs {
		if c.cfg.OrderedHandlers {
			s.handler(context.Background(), p.Packet.Topic, p.Packet.Payload)
		} else {
			go s.handler(context.Background(), p.Packet.Topic, p.Packet.Payload)
		}
	}
	return true, nil
}

// topicsMatch reports whether topic matches filter under MQTT wildcard rules.
func topicsMatch(filter, topic string) bool {
	if !strings.ContainsAny(filter, "+#") {
		return filter == topic
	}

	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		switch {
		case part == "#":
			return true
		case i >= len(tp):
			return false
		case part != "+" && part != tp[i]:
			return false
		}
	}
	return len(fp) == len(tp)
}

// topicFilter drops the "$share/<group>/" prefix of a shared subscription.
func topicFilter(filter string) string {
	rest, ok := strings.CutPrefix(filter, "$share/")
	if !ok {
		return filter
	}
	if _, f, ok := strings.Cut(rest, "/"); ok {
		return f
	}
	return filter
}
