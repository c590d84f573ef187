// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package transport adapts the gateway's four endpoints to one duplex
// byte-stream interface: the INDI TCP server, locally spawned driver
// subprocesses, an MQTT broker and a listening port for raw INDI
// clients. Framing and parsing stay out of this package; adapters move
// opaque chunks.
package transport

import (
	"context"
	"time"
)

// A Duplex is one endpoint the gateway exchanges raw bytes with.
//
// Recv blocks until data arrives, the context is done, or the transport
// fails; a failed transport returns a non-nil error and the caller
// decides whether to reconnect. Send transmits one payload; transports
// without a live connection may drop it.
type Duplex interface {
	Recv(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, data []byte) error
	Close() error
}

// ioTimeout bounds a single socket read or write. Reads use it as a poll
// interval so that cancellation is noticed on an idle stream.
const ioTimeout = 5 * time.Second
