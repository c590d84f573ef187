// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package bridge

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/internal/deque"
	"github.com/indimr/indimr/transport"
)

// IndiToMqtt runs at the instrument site: it connects an INDI server to
// the broker without any store. Commands arriving on the to-indi topic
// (and remote device data on the snoop data topic) are written to the
// server; frames from the server are published on the from-indi topic.
// A getProperties arriving from the broker is additionally forwarded on
// the snoop control topic so other sites can answer for their devices.
//
// Blocks until the context is done.
func IndiToMqtt(ctx context.Context, indiAddr string, o transport.MQTTOptions, topics MQTTTopics, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("indi", indiAddr))

	o.SubscribeTopics = []string{topics.ToIndi, topics.SnoopData}
	o.PublishTopic = topics.FromIndi
	o.Logger = logger

	mq, err := transport.DialMQTT(ctx, o)
	if err != nil {
		return err
	}
	defer mq.Close()

	// Inbound commands outlive any single INDI session.
	outq := deque.New(deque.DefaultCap)
	mqttErr := make(chan error, 1)
	go func() {
		mqttErr <- pumpMQTTCommands(ctx, mq, topics, outq)
	}()

	for {
		if err := runIndiMqttSession(ctx, indiAddr, mq, outq, log); err != nil && ctx.Err() == nil {
			log.Warn("indi session ended", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-mqttErr:
			return err
		case <-time.After(reconnectDelay):
		}
	}
}

// pumpMQTTCommands moves broker payloads into the INDI send queue,
// echoing getProperties on the snoop control topic.
func pumpMQTTCommands(ctx context.Context, mq *transport.MQTTConn, topics MQTTTopics, outq *deque.Deque) error {
	for {
		payload, err := mq.Recv(ctx)
		if err != nil {
			return err
		}
		if bytes.Contains(payload, []byte("<getProperties")) {
			if err := mq.SendTo(ctx, topics.SnoopControl, payload); err != nil && ctx.Err() == nil {
				return err
			}
		}
		outq.Append(payload)
	}
}

func runIndiMqttSession(ctx context.Context, addr string, mq *transport.MQTTConn, outq *deque.Deque, log *zap.Logger) error {
	conn, err := transport.DialINDI(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("indi connected")

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go work(sctx, outq, func(data []byte) {
		if err := conn.Send(sctx, data); err != nil {
			cancel()
		}
	})

	if err := conn.Send(sctx, getProperties()); err != nil {
		return err
	}

	// Publish one complete frame per MQTT message; subscribers rely on
	// message boundaries instead of running their own delimiter scan.
	return receive(sctx, conn, frame.ServerTags(), func(f []byte) {
		if err := mq.Send(sctx, f); err != nil && sctx.Err() == nil {
			log.Warn("mqtt publish failed", zap.Error(err))
		}
	})
}
