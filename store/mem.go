// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"path"
	"sync"
)

// MemConn is an in-memory Conn for tests and embedded use where no redis
// server is wanted. Each operation is individually atomic; Pipelined runs
// its function against the same connection.
type MemConn struct {
	mu      sync.Mutex
	sets    map[string]map[string]struct{}
	hashes  map[string]map[string]string
	lists   map[string][]string
	strings map[string]string
	subs    map[string][]*memSub
	closed  bool
}

var _ Conn = (*MemConn)(nil)

// NewMemConn returns an empty in-memory store connection.
func NewMemConn() *MemConn {
	return &MemConn{
		sets:    make(map[string]map[string]struct{}),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		strings: make(map[string]string),
		subs:    make(map[string][]*memSub),
	}
}

func (c *MemConn) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.sets[key]
	if set == nil {
		set = make(map[string]struct{})
		c.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (c *MemConn) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := make([]string, 0, len(c.sets[key]))
	for m := range c.sets[key] {
		members = append(members, m)
	}
	return members, nil
}

func (c *MemConn) SIsMember(_ context.Context, key, member string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sets[key][member]
	return ok, nil
}

func (c *MemConn) SRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range members {
		delete(c.sets[key], m)
	}
	if len(c.sets[key]) == 0 {
		delete(c.sets, key)
	}
	return nil
}

func (c *MemConn) HSet(_ context.Context, key string, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := c.hashes[key]
	if hash == nil {
		hash = make(map[string]string)
		c.hashes[key] = hash
	}
	for k, v := range fields {
		hash[k] = v
	}
	return nil
}

func (c *MemConn) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.hashes[key]))
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (c *MemConn) LPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		c.lists[key] = append([]string{v}, c.lists[key]...)
	}
	return nil
}

func (c *MemConn) RPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = append(c.lists[key], values...)
	return nil
}

func (c *MemConn) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (c *MemConn) LTrim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		delete(c.lists, key)
		return nil
	}
	c.lists[key] = append([]string(nil), list[start:stop+1]...)
	return nil
}

func (c *MemConn) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strings[key] = value
	return nil
}

func (c *MemConn) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strings[key], nil
}

func (c *MemConn) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.sets, k)
		delete(c.hashes, k)
		delete(c.lists, k)
		delete(c.strings, k)
	}
	return nil
}

func (c *MemConn) Keys(_ context.Context, pattern string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	match := func(k string) {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	for k := range c.sets {
		match(k)
	}
	for k := range c.hashes {
		match(k)
	}
	for k := range c.lists {
		match(k)
	}
	for k := range c.strings {
		match(k)
	}
	return out, nil
}

func (c *MemConn) Pipelined(_ context.Context, fn func(Conn) error) error {
	return fn(c)
}

func (c *MemConn) Publish(_ context.Context, channel, payload string) error {
	c.mu.Lock()
	subs := append([]*memSub(nil), c.subs[channel]...)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(payload)
	}
	return nil
}

func (c *MemConn) Subscribe(_ context.Context, channel string) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &memSub{conn: c, channel: channel, ch: make(chan string, 32)}
	c.subs[channel] = append(c.subs[channel], sub)
	return sub, nil
}

func (c *MemConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, subs := range c.subs {
		for _, sub := range subs {
			sub.shutdown()
		}
	}
	c.subs = make(map[string][]*memSub)
	return nil
}

type memSub struct {
	conn    *MemConn
	channel string

	mu     sync.Mutex
	ch     chan string
	closed bool
}

func (s *memSub) deliver(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- payload:
	default:
		// Slow subscriber; redis pub/sub drops too.
	}
}

func (s *memSub) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *memSub) Messages() <-chan string { return s.ch }

func (s *memSub) Close() error {
	c := s.conn
	c.mu.Lock()
	subs := c.subs[s.channel]
	for i, sub := range subs {
		if sub == s {
			c.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	s.shutdown()
	return nil
}
