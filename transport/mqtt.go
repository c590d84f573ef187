// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/indimr/indimr/internal/deque"
)

// MQTTOptions configures an MQTT adapter. SubscribeTopics are resubscribed
// with QoS 2 on every (re)connect; Send publishes to PublishTopic with
// QoS 2 and waits for the broker.
type MQTTOptions struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string // default "indimr-" plus a random UUID
	Username string
	Password string

	SubscribeTopics []string
	PublishTopic    string

	Logger *zap.Logger
}

// An MQTTConn is a connection to an MQTT broker. Inbound messages land in
// a bounded drop-oldest queue; while the broker is unreachable outbound
// messages are dropped rather than queued, stale instrument state being
// worse than missing state.
type MQTTConn struct {
	client    mqtt.Client
	inbound   *deque.Deque
	connected atomic.Bool
	publish   string
	log       *zap.Logger
}

var _ Duplex = (*MQTTConn)(nil)

// DialMQTT connects and subscribes. The paho client reconnects on its
// own; subscriptions are renewed by the on-connect handler.
func DialMQTT(ctx context.Context, o MQTTOptions) (*MQTTConn, error) {
	if o.ClientID == "" {
		o.ClientID = "indimr-" + uuid.NewString()
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &MQTTConn{
		inbound: deque.New(deque.DefaultCap),
		publish: o.PublishTopic,
		log:     log.With(zap.String("broker", o.Broker)),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(client mqtt.Client) {
			// Fresh session: anything queued during the outage is stale.
			c.inbound.Clear()
			for _, topic := range o.SubscribeTopics {
				token := client.Subscribe(topic, 2, func(_ mqtt.Client, m mqtt.Message) {
					c.inbound.Append(m.Payload())
				})
				token.Wait()
				if err := token.Error(); err != nil {
					c.log.Warn("mqtt subscribe failed", zap.String("topic", topic), zap.Error(err))
				}
			}
			c.connected.Store(true)
			c.log.Info("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.connected.Store(false)
			c.inbound.Clear()
			c.log.Warn("mqtt connection lost", zap.Error(err))
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "transport: dial mqtt %s", o.Broker)
	}
	return c, nil
}

// Connected reports whether the broker link is up.
func (c *MQTTConn) Connected() bool { return c.connected.Load() }

// Recv returns the next inbound payload. MQTT preserves message
// boundaries, so each payload is a complete frame group.
func (c *MQTTConn) Recv(ctx context.Context) ([]byte, error) {
	for {
		if data := c.inbound.Pop(); data != nil {
			return data, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.inbound.Wait():
		}
	}
}

// Send publishes to the configured topic and waits for the broker. With
// the broker unreachable the payload is dropped.
func (c *MQTTConn) Send(ctx context.Context, data []byte) error {
	return c.SendTo(ctx, c.publish, data)
}

// SendTo publishes to an explicit topic; the snoop bridge uses it for
// the control topic.
func (c *MQTTConn) SendTo(ctx context.Context, topic string, data []byte) error {
	if !c.connected.Load() {
		c.log.Debug("mqtt down, payload dropped", zap.String("topic", topic))
		return nil
	}
	token := c.client.Publish(topic, 2, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return errors.Wrapf(token.Error(), "transport: mqtt publish %s", topic)
}

func (c *MQTTConn) Close() error {
	c.client.Disconnect(250)
	return nil
}
