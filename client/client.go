// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package client issues INDI commands by publishing frames on the
// to-indi channel of a Store, and reads the mirrored state back for
// display. It runs in the same process as the store connection; the
// gateway's sender loop carries the published frames to the instruments.
package client

import (
	"context"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/property"
	"github.com/indimr/indimr/store"
)

// ErrBadSwitch is returned for switch values other than "On" and "Off".
var ErrBadSwitch = errors.New("client: switch values must be On or Off")

// A Client issues commands against one Store.
type Client struct {
	store *store.Store
	log   *zap.Logger
}

// New returns a Client publishing through s.
func New(s *store.Store, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{store: s, log: logger}
}

// GetProperties asks the instruments to (re)send definitions, narrowed to
// a device or a single property when the arguments are non-empty.
func (c *Client) GetProperties(ctx context.Context, device, name string) error {
	return c.publish(ctx, frame.Get{Device: device, Name: name, Version: frame.Version})
}

// EnableBLOB sets the BLOB policy for a device, or one property of it.
func (c *Client) EnableBLOB(ctx context.Context, device, name string, state frame.BLOBEnable) error {
	return c.publish(ctx, frame.Enable{Device: device, Name: name, State: state})
}

// NewTextVector requests new values for the named text elements.
func (c *Client) NewTextVector(ctx context.Context, device, name string, values map[string]string, timestamp string) error {
	els := make([]property.TextElement, 0, len(values))
	for _, n := range sortedKeys(values) {
		els = append(els, property.TextElement{Name: n, Value: values[n]})
	}
	return c.send(ctx, device, name, frame.NewText{
		Device: device, Name: name, Timestamp: stamp(timestamp), Elements: els,
	})
}

// NewNumberVector requests new values for the named number elements.
// Values may be plain decimal or sexagesimal strings.
func (c *Client) NewNumberVector(ctx context.Context, device, name string, values map[string]string, timestamp string) error {
	els := make([]property.NumberElement, 0, len(values))
	for _, n := range sortedKeys(values) {
		els = append(els, property.NumberElement{Name: n, Value: values[n]})
	}
	return c.send(ctx, device, name, frame.NewNumber{
		Device: device, Name: name, Timestamp: stamp(timestamp), Elements: els,
	})
}

// NewSwitchVector requests new switch positions. Every value must be the
// literal "On" or "Off".
func (c *Client) NewSwitchVector(ctx context.Context, device, name string, values map[string]string, timestamp string) error {
	els := make([]property.SwitchElement, 0, len(values))
	for _, n := range sortedKeys(values) {
		v := values[n]
		if v != "On" && v != "Off" {
			return errors.Wrapf(ErrBadSwitch, "%s=%q", n, v)
		}
		els = append(els, property.SwitchElement{Name: n, Value: v})
	}
	return c.send(ctx, device, name, frame.NewSwitch{
		Device: device, Name: name, Timestamp: stamp(timestamp), Elements: els,
	})
}

// A BLOBPayload is one outbound BLOB element value.
type BLOBPayload struct {
	Format string // file suffix, e.g. ".fits"
	Data   []byte // raw payload, base64-encoded on the wire
}

// NewBLOBVector uploads payloads for the named BLOB elements.
func (c *Client) NewBLOBVector(ctx context.Context, device, name string, payloads map[string]BLOBPayload, timestamp string) error {
	names := make([]string, 0, len(payloads))
	for n := range payloads {
		names = append(names, n)
	}
	sort.Strings(names)
	els := make([]property.BLOBElement, 0, len(payloads))
	for _, n := range names {
		p := payloads[n]
		els = append(els, property.BLOBElement{
			Name:   n,
			Size:   strconv.Itoa(len(p.Data)),
			Format: p.Format,
			Value:  p.Data,
		})
	}
	return c.send(ctx, device, name, frame.NewBLOB{
		Device: device, Name: name, Timestamp: stamp(timestamp), Elements: els,
	})
}

// send marks the property Busy, then publishes. The order matters: a
// reader woken by the transmission must already see Busy.
func (c *Client) send(ctx context.Context, device, name string, f frame.Frame) error {
	if err := c.store.MarkBusy(ctx, device, name); err != nil {
		return err
	}
	return c.publish(ctx, f)
}

func (c *Client) publish(ctx context.Context, f frame.Frame) error {
	b, err := frame.Render(f)
	if err != nil {
		return err
	}
	c.log.Debug("command published", zap.String("tag", string(f.FrameTag())))
	return c.store.PublishCommand(ctx, string(b))
}

func stamp(timestamp string) string {
	if timestamp == "" {
		return property.Now()
	}
	return timestamp
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
