// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// DefaultLogLengths bounds the change-detected logs per category. Number
// vectors stream continuously so their buffer is longer.
var DefaultLogLengths = map[string]int{
	"devices":      50,
	"properties":   5,
	"attributes":   5,
	"elements":     5,
	"messages":     5,
	"textvector":   5,
	"numbervector": 50,
	"switchvector": 5,
	"lightvector":  5,
	"blobvector":   5,
}

// alertLogLength bounds the list of received-frame alerts at P"logdata".
const alertLogLength = 100

// A LogEntry is one snapshot from a bounded log: the timestamp it was
// taken at and the JSON-encoded value.
type LogEntry struct {
	Timestamp string
	Data      json.RawMessage
}

func (s *Store) logLength(category string) int {
	if n, ok := s.lengths[category]; ok {
		return n
	}
	return 5
}

// LogSnapshot appends `"<timestamp> <json(value)>"` to the bounded log at
// P"logdata:"suffix, unless the value is unchanged from the head entry.
// The category selects the bound.
func (s *Store) LogSnapshot(ctx context.Context, category, suffix, timestamp string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "store: snapshot %s", suffix)
	}
	key := s.Key("logdata", suffix)
	head, err := s.conn.LRange(ctx, key, 0, 0)
	if err != nil {
		return err
	}
	if len(head) > 0 {
		if _, prev, ok := splitEntry(head[0]); ok && prev == string(encoded) {
			return nil
		}
	}
	if err := s.conn.LPush(ctx, key, timestamp+" "+string(encoded)); err != nil {
		return err
	}
	return s.conn.LTrim(ctx, key, 0, int64(s.logLength(category))-1)
}

// Logs returns the bounded log at P"logdata:"suffix, newest first.
func (s *Store) Logs(ctx context.Context, suffix string) ([]LogEntry, error) {
	raw, err := s.conn.LRange(ctx, s.Key("logdata", suffix), 0, -1)
	if err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, len(raw))
	for _, r := range raw {
		ts, data, ok := splitEntry(r)
		if !ok {
			continue
		}
		entries = append(entries, LogEntry{Timestamp: ts, Data: json.RawMessage(data)})
	}
	return entries, nil
}

// logAlert records a received-frame alert at P"logdata" and publishes it
// on the from-indi channel, in that order.
func (s *Store) logAlert(ctx context.Context, timestamp, alert string) error {
	if alert == "" {
		return nil
	}
	key := s.Key("logdata")
	if err := s.conn.LPush(ctx, key, timestamp+" "+alert); err != nil {
		return err
	}
	if err := s.conn.LTrim(ctx, key, 0, alertLogLength-1); err != nil {
		return err
	}
	return s.conn.Publish(ctx, s.from, alert)
}

// Alerts returns the received-frame alert log, newest first, as
// (timestamp, alert) pairs.
func (s *Store) Alerts(ctx context.Context) ([][2]string, error) {
	raw, err := s.conn.LRange(ctx, s.Key("logdata"), 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([][2]string, 0, len(raw))
	for _, r := range raw {
		ts, alert, ok := splitEntry(r)
		if !ok {
			continue
		}
		out = append(out, [2]string{ts, alert})
	}
	return out, nil
}

func splitEntry(entry string) (timestamp, rest string, ok bool) {
	i := strings.IndexByte(entry, ' ')
	if i < 0 {
		return "", "", false
	}
	return entry[:i], entry[i+1:], true
}
