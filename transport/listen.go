// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/internal/deque"
)

// A Listener accepts raw INDI clients on a TCP port. Every connection
// gets its own bounded outbound queue fed by Broadcast; inbound bytes
// are framed with the client tag set and handed to a forward callback.
type Listener struct {
	ln  net.Listener
	log *zap.Logger

	mu    sync.Mutex
	conns map[net.Conn]*deque.Deque
}

// Listen opens the port.
func Listen(addr string, logger *zap.Logger) (*Listener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: listen %s", addr)
	}
	return &Listener{
		ln:    ln,
		log:   logger.With(zap.String("listen", addr)),
		conns: make(map[net.Conn]*deque.Deque),
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Broadcast copies data into every connection's outbound queue. Slow
// clients lose the oldest entries, never block the rest.
func (l *Listener) Broadcast(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, q := range l.conns {
		q.Append(data)
	}
}

// Serve accepts connections until the context is done, calling forward
// for each complete client frame received. It always returns a non-nil
// error; after cancellation the error is ctx.Err().
func (l *Listener) Serve(ctx context.Context, forward func(frame []byte)) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "transport: accept")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.serveConn(ctx, conn, forward)
		}()
	}
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn, forward func([]byte)) {
	log := l.log.With(zap.String("remote", conn.RemoteAddr().String()))
	log.Info("client connected")

	q := deque.New(deque.DefaultCap)
	l.mu.Lock()
	l.conns[conn] = q
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		_ = conn.Close()
		log.Info("client disconnected")
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Writer: outbound queue to socket.
	go func() {
		defer cancel()
		for {
			data := q.Pop()
			if data == nil {
				select {
				case <-ctx.Done():
					return
				case <-q.Wait():
					continue
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
			if _, err := conn.Write(data); err != nil {
				return
			}
		}
	}()

	// Reader: socket to framer to forward.
	framer := frame.NewFramer(frame.ClientTags())
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(ioTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			for _, f := range framer.Feed(buf[:n]) {
				forward(f)
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return
		}
	}
}

// Close stops accepting and closes the port.
func (l *Listener) Close() error {
	return l.ln.Close()
}
