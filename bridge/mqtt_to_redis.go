// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/internal/deque"
	"github.com/indimr/indimr/store"
	"github.com/indimr/indimr/transport"
)

// MQTTTopics names the four topics a gateway pair communicates over.
type MQTTTopics struct {
	ToIndi       string // commands toward the instruments
	FromIndi     string // instrument data toward the clients
	SnoopControl string // getProperties relayed between remote sites
	SnoopData    string // device data relayed between remote sites
}

// DefaultMQTTTopics returns the conventional topic names.
func DefaultMQTTTopics() MQTTTopics {
	return MQTTTopics{
		ToIndi:       "to_indi",
		FromIndi:     "from_indi",
		SnoopControl: "snoop_control",
		SnoopData:    "snoop_data",
	}
}

// MqttToRedis runs at the client site: instrument data arriving on the
// from-indi topic is ingested into the store, and commands published on
// the to-indi channel go out on the to-indi topic. The paho client
// reconnects on its own; while the broker is down outbound commands are
// dropped.
//
// Blocks until the context is done.
func MqttToRedis(ctx context.Context, o transport.MQTTOptions, topics MQTTTopics, s *store.Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	o.SubscribeTopics = []string{topics.FromIndi}
	o.PublishTopic = topics.ToIndi
	o.Logger = logger

	conn, err := transport.DialMQTT(ctx, o)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	senderErr := make(chan error, 1)
	go func() {
		senderErr <- RunSender(ctx, s, logger, func(data []byte) {
			if err := conn.Send(ctx, data); err != nil && ctx.Err() == nil {
				logger.Warn("mqtt publish failed", zap.Error(err))
			}
		})
	}()

	inq := deque.New(deque.DefaultCap)
	go work(ctx, inq, func(data []byte) {
		ingest(ctx, s, data, logger)
	})

	recvErr := make(chan error, 1)
	go func() {
		// MQTT payloads are complete frame groups; the framer splits a
		// group into its individual frames.
		recvErr <- receive(ctx, conn, frame.ServerTags(), inq.Append)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-senderErr:
		return err
	case err := <-recvErr:
		return err
	}
}
