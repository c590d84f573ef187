// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indimr/indimr/client"
	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/property"
	"github.com/indimr/indimr/store"
)

func newFixture(t *testing.T) (*store.Store, *client.Client, store.Subscription) {
	t.Helper()
	s := store.New(store.NewMemConn(), store.Options{Prefix: "test_"})
	sub, err := s.SubscribeCommands(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sub.Close()
		_ = s.Close()
	})
	return s, client.New(s, nil), sub
}

func definePort(t *testing.T, s *store.Store) {
	t.Helper()
	def := frame.DefText{TextVector: property.TextVector{
		Header: property.Header{
			Device: "Scope", Name: "PORT", Label: "Port",
			State: property.Ok, Perm: property.ReadWrite,
			Timeout: "0", Timestamp: "2025-01-01T00:00:00",
		},
		Elements: []property.TextElement{{Name: "v", Label: "Port", Value: "/dev/ttyUSB0"}},
	}}
	require.NoError(t, s.Apply(context.Background(), def))
}

func recv(t *testing.T, sub store.Subscription) string {
	t.Helper()
	select {
	case payload := <-sub.Messages():
		return payload
	default:
		t.Fatal("no command published")
		return ""
	}
}

func TestGetProperties(t *testing.T) {
	_, c, sub := newFixture(t)
	require.NoError(t, c.GetProperties(context.Background(), "", ""))

	f, err := frame.Parse([]byte(recv(t, sub)))
	require.NoError(t, err)
	require.Equal(t, frame.Get{Version: "1.7"}, f)
}

func TestNewTextVectorMarksBusy(t *testing.T) {
	ctx := context.Background()
	s, c, sub := newFixture(t)
	definePort(t, s)

	err := c.NewTextVector(ctx, "Scope", "PORT", map[string]string{"v": "/dev/ttyS0"}, "2025-01-01T00:00:01")
	require.NoError(t, err)

	// Busy lands before the command is published, and without an alert.
	attrs, err := s.Attributes(ctx, "Scope", "PORT")
	require.NoError(t, err)
	require.Equal(t, "Busy", attrs["state"])

	f, err := frame.Parse([]byte(recv(t, sub)))
	require.NoError(t, err)
	want := frame.NewText{
		Device: "Scope", Name: "PORT", Timestamp: "2025-01-01T00:00:01",
		Elements: []property.TextElement{{Name: "v", Value: "/dev/ttyS0"}},
	}
	require.Equal(t, want, f)
}

func TestNewVectorUnknownPropertyStillPublishes(t *testing.T) {
	ctx := context.Background()
	s, c, sub := newFixture(t)

	err := c.NewTextVector(ctx, "Nope", "PORT", map[string]string{"v": "x"}, "T")
	require.NoError(t, err)

	// No Busy write for an unknown property, but the command still goes
	// out; the remote may know devices the mirror has not seen yet.
	attrs, err := s.Attributes(ctx, "Nope", "PORT")
	require.NoError(t, err)
	require.Empty(t, attrs)
	require.NotEmpty(t, recv(t, sub))
}

func TestNewSwitchVectorValidates(t *testing.T) {
	ctx := context.Background()
	s, c, sub := newFixture(t)
	_ = s

	err := c.NewSwitchVector(ctx, "Scope", "CONNECTION", map[string]string{"CONNECT": "maybe"}, "")
	require.ErrorIs(t, err, client.ErrBadSwitch)
	select {
	case payload := <-sub.Messages():
		t.Fatalf("unexpected publish %q", payload)
	default:
	}

	err = c.NewSwitchVector(ctx, "Scope", "CONNECTION", map[string]string{"CONNECT": "On"}, "T")
	require.NoError(t, err)
	f, err := frame.Parse([]byte(recv(t, sub)))
	require.NoError(t, err)
	require.Equal(t, "On", f.(frame.NewSwitch).Elements[0].Value)
}

func TestNewBLOBVectorEncodes(t *testing.T) {
	ctx := context.Background()
	_, c, sub := newFixture(t)

	payloads := map[string]client.BLOBPayload{
		"image": {Format: ".fits", Data: []byte{1, 2, 3, 4}},
	}
	require.NoError(t, c.NewBLOBVector(ctx, "CCD", "CCD1", payloads, "T"))

	f, err := frame.Parse([]byte(recv(t, sub)))
	require.NoError(t, err)
	e := f.(frame.NewBLOB).Elements[0]
	require.Equal(t, []byte{1, 2, 3, 4}, e.Value)
	require.Equal(t, "4", e.Size)
	require.Equal(t, ".fits", e.Format)
}

func TestEnableBLOB(t *testing.T) {
	_, c, sub := newFixture(t)
	require.NoError(t, c.EnableBLOB(context.Background(), "CCD", "", frame.BLOBOnly))

	f, err := frame.Parse([]byte(recv(t, sub)))
	require.NoError(t, err)
	require.Equal(t, frame.Enable{Device: "CCD", State: frame.BLOBOnly}, f)
}

func TestPropertyElementsOrderedByLabel(t *testing.T) {
	ctx := context.Background()
	s, c, _ := newFixture(t)

	def := frame.DefSwitch{SwitchVector: property.SwitchVector{
		Header: property.Header{
			Device: "Wheel", Name: "SLOTS", Label: "Slots",
			State: property.Ok, Perm: property.ReadWrite,
			Timeout: "0", Timestamp: "T0",
		},
		Rule: property.OneOfMany,
		Elements: []property.SwitchElement{
			{Name: "s10", Label: "Slot 10", Value: "Off"},
			{Name: "s2", Label: "Slot 2", Value: "On"},
			{Name: "s1", Label: "Slot 1", Value: "Off"},
		},
	}}
	require.NoError(t, s.Apply(ctx, def))

	elements, err := c.PropertyElements(ctx, "Wheel", "SLOTS")
	require.NoError(t, err)
	require.Len(t, elements, 3)
	require.Equal(t, "Slot 1", elements[0]["label"])
	require.Equal(t, "Slot 2", elements[1]["label"])
	require.Equal(t, "Slot 10", elements[2]["label"])
}

func TestPropertyReconstructsTypedVector(t *testing.T) {
	ctx := context.Background()
	s, c, _ := newFixture(t)

	def := frame.DefSwitch{SwitchVector: property.SwitchVector{
		Header: property.Header{
			Device: "Wheel", Name: "SLOTS", Label: "Slots", Group: "Main",
			State: property.Ok, Perm: property.ReadWrite,
			Timeout: "0", Timestamp: "T0",
		},
		Rule: property.OneOfMany,
		Elements: []property.SwitchElement{
			{Name: "s10", Label: "Slot 10", Value: "Off"},
			{Name: "s2", Label: "Slot 2", Value: "On"},
			{Name: "s1", Label: "Slot 1", Value: "Off"},
		},
	}}
	require.NoError(t, s.Apply(ctx, def))

	v, err := c.Property(ctx, "Wheel", "SLOTS")
	require.NoError(t, err)
	require.Equal(t, property.Switch, v.VectorKind())
	require.Equal(t, "Slots", v.Common().Label)
	require.Equal(t, property.Ok, v.Common().State)

	sw := v.(*property.SwitchVector)
	require.Equal(t, property.OneOfMany, sw.Rule)
	require.Equal(t, 1, sw.On())
	// Elements come back in display order.
	require.Equal(t, []property.SwitchElement{
		{Name: "s1", Label: "Slot 1", Value: "Off"},
		{Name: "s2", Label: "Slot 2", Value: "On"},
		{Name: "s10", Label: "Slot 10", Value: "Off"},
	}, sw.Elements)
}

func TestPropertyNumberAndUnknown(t *testing.T) {
	ctx := context.Background()
	s, c, _ := newFixture(t)

	def := frame.DefNumber{NumberVector: property.NumberVector{
		Header: property.Header{
			Device: "Scope", Name: "RA", Label: "RA",
			State: property.Idle, Perm: property.ReadOnly,
			Timeout: "0", Timestamp: "T0",
		},
		Elements: []property.NumberElement{
			{Name: "h", Label: "Hours", Format: "%9.6m", Min: "0", Max: "24", Step: "0", Value: "0"},
		},
	}}
	require.NoError(t, s.Apply(ctx, def))

	v, err := c.Property(ctx, "Scope", "RA")
	require.NoError(t, err)
	num := v.(*property.NumberVector)
	require.Equal(t, "%9.6m", num.Elements[0].Format)
	require.Equal(t, "24", num.Elements[0].Max)

	_, err = c.Property(ctx, "Scope", "NOPE")
	require.ErrorIs(t, err, client.ErrUnknownProperty)
}
