// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/indimr/indimr/bridge"
	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/property"
	"github.com/indimr/indimr/store"
)

func startSender(t *testing.T) (*store.Store, chan []byte) {
	t.Helper()
	s := store.New(store.NewMemConn(), store.Options{Prefix: "test_"})
	out := make(chan []byte, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bridge.RunSender(ctx, s, nil, func(data []byte) { out <- data })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = s.Close()
	})
	// The subscription inside RunSender must be live before any publish.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, s.PublishCommand(ctx, "<ping/>"))
		select {
		case <-out:
			return s, out
		case <-time.After(10 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("sender never started")
		}
	}
}

func transmitted(t *testing.T, out chan []byte) []byte {
	t.Helper()
	select {
	case data := <-out:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("nothing transmitted")
		return nil
	}
}

func TestSenderDirect(t *testing.T) {
	ctx := context.Background()
	s, out := startSender(t)

	def := frame.DefText{TextVector: property.TextVector{
		Header: property.Header{
			Device: "Scope", Name: "PORT", Label: "Port",
			State: property.Ok, Perm: property.ReadWrite,
			Timeout: "0", Timestamp: "T0",
		},
		Elements: []property.TextElement{{Name: "v", Label: "Port", Value: "a"}},
	}}
	require.NoError(t, s.Apply(ctx, def))

	payload := `<newTextVector device="Scope" name="PORT" timestamp="T1"><oneText name="v">b</oneText></newTextVector>`
	require.NoError(t, s.PublishCommand(ctx, payload))

	require.Equal(t, payload, string(transmitted(t, out)))

	// The Busy rule ran before transmission.
	attrs, err := s.Attributes(ctx, "Scope", "PORT")
	require.NoError(t, err)
	require.Equal(t, "Busy", attrs["state"])
}

func TestSenderIndirect(t *testing.T) {
	ctx := context.Background()
	s, out := startSender(t)
	conn := s.Conn()

	require.NoError(t, conn.RPush(ctx, "test_cmd1", "Scope", "PORT", "T1", "cmd1:e1"))
	require.NoError(t, conn.HSet(ctx, "test_cmd1:e1", map[string]string{"name": "v", "value": "b"}))
	require.NoError(t, s.PublishCommand(ctx, "newTextVector:cmd1"))

	f, err := frame.Parse(transmitted(t, out))
	require.NoError(t, err)
	want := frame.NewText{
		Device: "Scope", Name: "PORT", Timestamp: "T1",
		Elements: []property.TextElement{{Name: "v", Value: "b"}},
	}
	require.Equal(t, want, f)

	// The argument keys are consumed.
	args, err := conn.LRange(ctx, "test_cmd1", 0, -1)
	require.NoError(t, err)
	require.Empty(t, args)
	fields, err := conn.HGetAll(ctx, "test_cmd1:e1")
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestSenderIndirectSwitch(t *testing.T) {
	ctx := context.Background()
	s, out := startSender(t)
	conn := s.Conn()

	require.NoError(t, conn.RPush(ctx, "test_cmd2", "Scope", "CONNECTION", "T2", "cmd2:e1"))
	require.NoError(t, conn.HSet(ctx, "test_cmd2:e1", map[string]string{"name": "CONNECT", "value": "On"}))
	require.NoError(t, s.PublishCommand(ctx, "newSwitchVector:cmd2"))

	f, err := frame.Parse(transmitted(t, out))
	require.NoError(t, err)
	require.Equal(t, "On", f.(frame.NewSwitch).Elements[0].Value)
}

func TestSenderDropsMalformed(t *testing.T) {
	ctx := context.Background()
	s, out := startSender(t)

	require.NoError(t, s.PublishCommand(ctx, "bogus payload with no colon or bracket"))
	require.NoError(t, s.PublishCommand(ctx, "frobnicate:args"))
	// A later valid command still flows: the loop survived both drops.
	require.NoError(t, s.PublishCommand(ctx, `<getProperties version="1.7" />`))

	require.Equal(t, `<getProperties version="1.7" />`, string(transmitted(t, out)))
	select {
	case extra := <-out:
		t.Fatalf("dropped payload transmitted: %q", extra)
	default:
	}
}
