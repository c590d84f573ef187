// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/internal/deque"
	"github.com/indimr/indimr/store"
	"github.com/indimr/indimr/transport"
)

// IndiToRedis bridges a TCP INDI server and the store: received frames
// are ingested, commands published on the to-indi channel are written to
// the socket. A lost connection is re-dialed after two seconds and a
// getProperties is re-issued so the server resends its definitions.
//
// Blocks until the context is done.
func IndiToRedis(ctx context.Context, addr string, s *store.Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("indi", addr))

	outq := deque.New(deque.DefaultCap)
	senderErr := make(chan error, 1)
	go func() {
		senderErr <- RunSender(ctx, s, log, outq.Append)
	}()

	for {
		if err := runIndiSession(ctx, addr, s, outq, log); err != nil && ctx.Err() == nil {
			log.Warn("indi session ended", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-senderErr:
			return err
		case <-time.After(reconnectDelay):
		}
	}
}

func runIndiSession(ctx context.Context, addr string, s *store.Store, outq *deque.Deque, log *zap.Logger) error {
	conn, err := transport.DialINDI(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("indi connected")

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Writer half: drain the command queue into the socket.
	go work(sctx, outq, func(data []byte) {
		if err := conn.Send(sctx, data); err != nil {
			cancel()
		}
	})

	if err := conn.Send(sctx, getProperties()); err != nil {
		return err
	}

	// Reader half: frame, then parse and ingest off the read loop.
	inq := deque.New(deque.DefaultCap)
	go work(sctx, inq, func(data []byte) {
		ingest(sctx, s, data, log)
	})
	return receive(sctx, conn, frame.ServerTags(), inq.Append)
}

// ingest parses one framed element and applies it. Parse failures drop
// the frame only; the stream carries on.
func ingest(ctx context.Context, s *store.Store, data []byte, log *zap.Logger) {
	f, err := frame.Parse(data)
	if err != nil {
		log.Warn("frame dropped", zap.Error(err))
		return
	}
	if err := s.Apply(ctx, f); err != nil && ctx.Err() == nil {
		log.Error("ingest failed", zap.String("tag", string(f.FrameTag())), zap.Error(err))
	}
}
