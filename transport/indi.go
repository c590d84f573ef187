// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// DefaultINDIPort is the conventional INDI server port.
const DefaultINDIPort = 7624

// An INDIConn is a TCP connection to an INDI server.
type INDIConn struct {
	conn net.Conn
}

var _ Duplex = (*INDIConn)(nil)

// DialINDI connects to the INDI server at addr ("host:port").
func DialINDI(ctx context.Context, addr string) (*INDIConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dial indi %s", addr)
	}
	return &INDIConn{conn: conn}, nil
}

// Recv returns the next chunk from the server in whatever size the
// socket delivers. It polls with short read deadlines so that a done
// context is noticed on an idle stream.
func (c *INDIConn) Recv(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.conn.SetReadDeadline(deadline(ctx)); err != nil {
			return nil, err
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return nil, errors.Wrap(err, "transport: indi read")
		}
	}
}

// Send writes one pre-serialized frame to the server.
func (c *INDIConn) Send(ctx context.Context, data []byte) error {
	if err := c.conn.SetWriteDeadline(deadline(ctx)); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return errors.Wrap(err, "transport: indi write")
}

func (c *INDIConn) Close() error {
	return c.conn.Close()
}

// deadline caps an operation at ioTimeout, or sooner when the context
// expires first.
func deadline(ctx context.Context) time.Time {
	d := time.Now().Add(ioTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}
