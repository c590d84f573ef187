// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/transport"
)

func TestINDIConnRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if _, err := conn.Write(buf[:n]); err != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	ctx := context.Background()
	c, err := transport.DialINDI(ctx, ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	payload := []byte(`<getProperties version="1.7" />`)
	if err := c.Send(ctx, payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := c.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("want=%q, got=%q", payload, got)
	}
}

func TestINDIConnRecvHonorsContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Hold the connection open without sending anything.
		defer conn.Close()
		time.Sleep(time.Second)
	}()

	c, err := transport.DialINDI(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Recv(ctx); err == nil {
		t.Error("expected error from idle stream with expired context")
	}
}

func TestDriverEcho(t *testing.T) {
	ctx := context.Background()
	d, err := transport.StartDriver(ctx, "/bin/cat", nil, nil)
	if err != nil {
		t.Skipf("cannot start /bin/cat: %v", err)
	}
	defer d.Close()

	// cat echoes the startup getProperties back first.
	got, err := d.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	want := `<getProperties version="1.7" />`
	if string(got) != want {
		t.Errorf("want=%q, got=%q", want, got)
	}

	payload := []byte(`<enableBLOB device="CCD">Also</enableBLOB>`)
	if err := d.Send(ctx, payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err = d.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("want=%q, got=%q", payload, got)
	}
}

func TestDriverBLOBPolicy(t *testing.T) {
	d, err := transport.StartDriver(context.Background(), "/bin/cat", nil, nil)
	if err != nil {
		t.Skipf("cannot start /bin/cat: %v", err)
	}
	defer d.Close()

	if got := d.BLOBPolicy(); got != frame.BLOBNever {
		t.Errorf("default policy: want=%q, got=%q", frame.BLOBNever, got)
	}
	d.SetBLOBPolicy(frame.BLOBOnly)
	if got := d.BLOBPolicy(); got != frame.BLOBOnly {
		t.Errorf("want=%q, got=%q", frame.BLOBOnly, got)
	}
}

func TestListener(t *testing.T) {
	l, err := transport.Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan []byte, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Serve(ctx, func(f []byte) { frames <- f })
	}()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Inbound client bytes are framed and forwarded.
	payload := `<getProperties version="1.7" />`
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	select {
	case f := <-frames:
		if string(f) != payload {
			t.Errorf("want=%q, got=%q", payload, f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not forwarded")
	}

	// Broadcast lands on the client socket. The connection may not be
	// registered the instant Dial returns, so retry briefly.
	reply := []byte(`<message device="Scope" message="hello"/>`)
	got := make([]byte, len(reply))
	deadline := time.Now().Add(2 * time.Second)
	for {
		l.Broadcast(reply)
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if _, err := conn.Read(got); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("broadcast never delivered")
		}
	}
	if !bytes.Equal(got, reply) {
		t.Errorf("want=%q, got=%q", reply, got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop on cancellation")
	}
}
