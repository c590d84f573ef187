// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/indimr/indimr/transport"
)

// MqttToPort serves raw INDI clients on a local TCP port, speaking to
// the instruments over the broker: instrument data arriving on the
// from-indi topic is copied to every connected client, and each client's
// frames are published on the to-indi topic. Slow clients lose the
// oldest queued data rather than stalling the rest.
//
// Blocks until the context is done.
func MqttToPort(ctx context.Context, listenAddr string, o transport.MQTTOptions, topics MQTTTopics, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	l, err := transport.Listen(listenAddr, logger)
	if err != nil {
		return err
	}
	defer l.Close()

	o.SubscribeTopics = []string{topics.FromIndi}
	o.PublishTopic = topics.ToIndi
	o.Logger = logger

	mq, err := transport.DialMQTT(ctx, o)
	if err != nil {
		return err
	}
	defer mq.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mqttErr := make(chan error, 1)
	go func() {
		for {
			payload, err := mq.Recv(ctx)
			if err != nil {
				mqttErr <- err
				return
			}
			l.Broadcast(payload)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- l.Serve(ctx, func(f []byte) {
			if err := mq.Send(ctx, f); err != nil && ctx.Err() == nil {
				logger.Warn("mqtt publish failed", zap.Error(err))
			}
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-mqttErr:
		return err
	case err := <-serveErr:
		return err
	}
}
