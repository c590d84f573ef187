// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package bridge wires transports, the frame codec and the store into
// the gateway topologies: INDI server to redis, driver subprocesses to
// redis, MQTT to redis, INDI server to MQTT and MQTT to a listening
// port.
//
// Every topology is one blocking function that runs until its context is
// done. Each direction is a pipeline: a bounded drop-oldest queue on the
// sending side, a framer on the receiving side, and a worker that parses
// and ingests off the socket-reading goroutine.
package bridge

import (
	"context"
	"time"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/internal/deque"
	"github.com/indimr/indimr/transport"
)

// reconnectDelay is the pause before re-dialing a lost connection.
const reconnectDelay = 2 * time.Second

// receive pumps chunks from t through a framer recognising tags and
// hands every complete frame to emit. It returns when the transport
// fails or the context is done.
func receive(ctx context.Context, t transport.Duplex, tags []frame.Tag, emit func([]byte)) error {
	f := frame.NewFramer(tags)
	for {
		chunk, err := t.Recv(ctx)
		if err != nil {
			return err
		}
		for _, fr := range f.Feed(chunk) {
			emit(fr)
		}
	}
}

// work drains q with handle until the context is done. It is the worker
// half of a pipeline; producers call q.Append.
func work(ctx context.Context, q *deque.Deque, handle func([]byte)) {
	for {
		if data := q.Pop(); data != nil {
			handle(data)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-q.Wait():
		}
	}
}

// getProperties is the frame re-issued after every (re)connect so the
// remote resends its definitions.
func getProperties() []byte {
	b, _ := frame.Render(frame.Get{Version: frame.Version})
	return b
}
