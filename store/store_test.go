// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indimr/indimr/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.NewMemConn(), store.Options{Prefix: "test_"})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddDevice(ctx, "Scope"))
	require.NoError(t, s.AddDevice(ctx, "CCD"))
	require.NoError(t, s.AddProperty(ctx, "Scope", "PORT"))
	require.NoError(t, s.AddProperty(ctx, "Scope", "CONNECTION"))

	devices, err := s.Devices(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"CCD", "Scope"}, devices)

	ok, err := s.HasDevice(ctx, "Scope")
	require.NoError(t, err)
	require.True(t, ok)

	names, err := s.Properties(ctx, "Scope")
	require.NoError(t, err)
	require.Equal(t, []string{"CONNECTION", "PORT"}, names)

	ok, err = s.HasProperty(ctx, "Scope", "PORT")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.RemoveProperty(ctx, "Scope", "PORT"))
	ok, err = s.HasProperty(ctx, "Scope", "PORT")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestElementFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddElement(ctx, "Scope", "PORT", "v"))
	require.NoError(t, s.SetElement(ctx, "Scope", "PORT", "v", map[string]string{
		"name": "v", "label": "Port", "value": "/dev/ttyUSB0",
	}))

	fields, err := s.Element(ctx, "Scope", "PORT", "v")
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", fields["value"])

	// A later partial write merges rather than replaces.
	require.NoError(t, s.SetElement(ctx, "Scope", "PORT", "v", map[string]string{"value": "/dev/ttyUSB1"}))
	fields, err = s.Element(ctx, "Scope", "PORT", "v")
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB1", fields["value"])
	require.Equal(t, "Port", fields["label"])

	require.NoError(t, s.RemoveElement(ctx, "Scope", "PORT", "v"))
	names, err := s.Elements(ctx, "Scope", "PORT")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetMessage(ctx, "", "2025-01-01T00:00:00", "observatory open"))
	require.NoError(t, s.SetMessage(ctx, "Scope", "2025-01-01T00:00:01", "telescope parked"))

	msg, err := s.Message(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "2025-01-01T00:00:00 observatory open", msg)

	msg, err = s.Message(ctx, "Scope")
	require.NoError(t, err)
	require.Equal(t, "2025-01-01T00:00:01 telescope parked", msg)

	msg, err = s.Message(ctx, "CCD")
	require.NoError(t, err)
	require.Empty(t, msg)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	conn := store.NewMemConn()
	s := store.New(conn, store.Options{Prefix: "test_"})
	other := store.New(conn, store.Options{Prefix: "other_"})

	require.NoError(t, s.AddDevice(ctx, "Scope"))
	require.NoError(t, s.SetMessage(ctx, "", "2025-01-01T00:00:00", "hello"))
	require.NoError(t, other.AddDevice(ctx, "Keep"))

	require.NoError(t, s.Clear(ctx))

	devices, err := s.Devices(ctx)
	require.NoError(t, err)
	require.Empty(t, devices)

	// Clear is scoped to the prefix.
	devices, err = other.Devices(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Keep"}, devices)
}

func TestPubSub(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sub, err := s.SubscribeCommands(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.PublishCommand(ctx, `<getProperties version="1.7" />`))
	select {
	case got := <-sub.Messages():
		require.Equal(t, `<getProperties version="1.7" />`, got)
	default:
		t.Fatal("no command delivered")
	}
}
