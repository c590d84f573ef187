// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package store keeps the mirrored instrument state: devices, properties,
// elements and messages written by ingesting INDI frames, plus the
// pub/sub channels the gateway and its clients coordinate on.
//
// Keys are namespaced by a caller-supplied prefix so several gateways can
// share one redis database.
package store

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/property"
)

// Default channel names and key prefix.
const (
	DefaultPrefix      = "indi_"
	DefaultToChannel   = "to_indi"
	DefaultFromChannel = "from_indi"
)

// Options configures a Store. The zero value is usable; empty fields take
// the defaults above.
type Options struct {
	Prefix      string
	ToChannel   string // channel carrying commands toward the instruments
	FromChannel string // channel carrying change alerts away from them

	// LogLengths overrides the bounded log lengths per category, e.g.
	// {"numbervector": 200}. See DefaultLogLengths.
	LogLengths map[string]int

	// BLOBs receives accepted setBLOBVector payloads. When nil the
	// payloads are dropped and only size and format are recorded.
	BLOBs *BLOBSink

	Logger *zap.Logger
}

// A Store reads and writes instrument state through a Conn.
type Store struct {
	conn    Conn
	prefix  string
	to      string
	from    string
	lengths map[string]int
	sink    *BLOBSink
	log     *zap.Logger
}

// New wraps conn. The connection is not closed by the Store; callers that
// own it call Store.Close.
func New(conn Conn, o Options) *Store {
	s := &Store{
		conn:   conn,
		prefix: o.Prefix,
		to:     o.ToChannel,
		from:   o.FromChannel,
		sink:   o.BLOBs,
		log:    o.Logger,
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if s.to == "" {
		s.to = DefaultToChannel
	}
	if s.from == "" {
		s.from = DefaultFromChannel
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.lengths = make(map[string]int, len(DefaultLogLengths))
	for k, v := range DefaultLogLengths {
		s.lengths[k] = v
	}
	for k, v := range o.LogLengths {
		s.lengths[k] = v
	}
	return s
}

// Key joins parts under the store's prefix, matching the layout consumed
// by external collaborators: prefix + "part:part:…".
func (s *Store) Key(parts ...string) string {
	return s.prefix + strings.Join(parts, ":")
}

// ToChannel is the pub/sub channel commands are published on.
func (s *Store) ToChannel() string { return s.to }

// FromChannel is the pub/sub channel alerts are published on.
func (s *Store) FromChannel() string { return s.from }

// Prefix returns the configured key prefix.
func (s *Store) Prefix() string { return s.prefix }

// Conn exposes the underlying connection for collaborators that need raw
// access, such as the indirect command sender.
func (s *Store) Conn() Conn { return s.conn }

func (s *Store) AddDevice(ctx context.Context, device string) error {
	return s.conn.SAdd(ctx, s.Key("devices"), device)
}

// Devices returns the known device names, sorted.
func (s *Store) Devices(ctx context.Context) ([]string, error) {
	devices, err := s.conn.SMembers(ctx, s.Key("devices"))
	if err != nil {
		return nil, err
	}
	sort.Strings(devices)
	return devices, nil
}

func (s *Store) HasDevice(ctx context.Context, device string) (bool, error) {
	return s.conn.SIsMember(ctx, s.Key("devices"), device)
}

func (s *Store) AddProperty(ctx context.Context, device, name string) error {
	return s.conn.SAdd(ctx, s.Key("properties", device), name)
}

// Properties returns the property names of device, sorted.
func (s *Store) Properties(ctx context.Context, device string) ([]string, error) {
	names, err := s.conn.SMembers(ctx, s.Key("properties", device))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) HasProperty(ctx context.Context, device, name string) (bool, error) {
	return s.conn.SIsMember(ctx, s.Key("properties", device), name)
}

func (s *Store) RemoveProperty(ctx context.Context, device, name string) error {
	return s.conn.SRem(ctx, s.Key("properties", device), name)
}

func (s *Store) SetAttributes(ctx context.Context, device, name string, attrs map[string]string) error {
	return s.conn.HSet(ctx, s.Key("attributes", name, device), attrs)
}

func (s *Store) Attributes(ctx context.Context, device, name string) (map[string]string, error) {
	return s.conn.HGetAll(ctx, s.Key("attributes", name, device))
}

func (s *Store) AddElement(ctx context.Context, device, name, element string) error {
	return s.conn.SAdd(ctx, s.Key("elements", name, device), element)
}

// Elements returns the element names of (device, name), sorted.
func (s *Store) Elements(ctx context.Context, device, name string) ([]string, error) {
	names, err := s.conn.SMembers(ctx, s.Key("elements", name, device))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) SetElement(ctx context.Context, device, name, element string, fields map[string]string) error {
	return s.conn.HSet(ctx, s.Key("elementattributes", element, name, device), fields)
}

func (s *Store) Element(ctx context.Context, device, name, element string) (map[string]string, error) {
	return s.conn.HGetAll(ctx, s.Key("elementattributes", element, name, device))
}

func (s *Store) RemoveElement(ctx context.Context, device, name, element string) error {
	if err := s.conn.SRem(ctx, s.Key("elements", name, device), element); err != nil {
		return err
	}
	return s.conn.Del(ctx, s.Key("elementattributes", element, name, device))
}

// SetMessage records "<timestamp> <text>" as the last message, site-wide
// when device is empty, and snapshots the message log.
func (s *Store) SetMessage(ctx context.Context, device, timestamp, text string) error {
	entry := timestamp + " " + text
	key := s.Key("messages")
	suffix := "messages"
	if device != "" {
		key = s.Key("devicemessages", device)
		suffix = "devicemessages:" + device
	}
	if err := s.conn.Set(ctx, key, entry); err != nil {
		return err
	}
	return s.LogSnapshot(ctx, "messages", suffix, timestamp, entry)
}

// Message returns the last recorded message, site-wide when device is
// empty, or "" when none was recorded.
func (s *Store) Message(ctx context.Context, device string) (string, error) {
	if device == "" {
		return s.conn.Get(ctx, s.Key("messages"))
	}
	return s.conn.Get(ctx, s.Key("devicemessages", device))
}

// MarkBusy sets the property state to Busy without publishing an alert:
// a client that has sent a change command considers the property Busy,
// but that is local intent, not server confirmation. Unknown devices and
// properties are ignored.
func (s *Store) MarkBusy(ctx context.Context, device, name string) error {
	known, err := s.HasProperty(ctx, device, name)
	if err != nil || !known {
		return err
	}
	return s.conn.HSet(ctx, s.Key("attributes", name, device), map[string]string{"state": string(property.Busy)})
}

// PublishCommand puts a payload on the to-indi channel.
func (s *Store) PublishCommand(ctx context.Context, payload string) error {
	return s.conn.Publish(ctx, s.to, payload)
}

// SubscribeCommands delivers the to-indi channel, for sender loops.
func (s *Store) SubscribeCommands(ctx context.Context) (Subscription, error) {
	return s.conn.Subscribe(ctx, s.to)
}

// SubscribeAlerts delivers the from-indi channel, for clients using
// alerts as a cache-invalidation hint.
func (s *Store) SubscribeAlerts(ctx context.Context) (Subscription, error) {
	return s.conn.Subscribe(ctx, s.from)
}

// Clear deletes every key under the prefix. Run at startup so state from
// a previous session cannot masquerade as live.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.conn.Keys(ctx, s.prefix+"*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.conn.Del(ctx, keys...)
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.conn.Close() }

// vectorCategory maps a frame tag to the log length category of its
// element snapshots.
func vectorCategory(t frame.Tag) string {
	switch t {
	case frame.DefTextVector, frame.SetTextVector:
		return "textvector"
	case frame.DefNumberVector, frame.SetNumberVector:
		return "numbervector"
	case frame.DefSwitchVector, frame.SetSwitchVector:
		return "switchvector"
	case frame.DefLightVector, frame.SetLightVector:
		return "lightvector"
	case frame.DefBLOBVector, frame.SetBLOBVector:
		return "blobvector"
	}
	return "elements"
}
