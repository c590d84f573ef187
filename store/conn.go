// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// A Subscription delivers the payloads published on one pub/sub channel.
type Subscription interface {
	// Messages is closed when the subscription is closed or the
	// connection is lost.
	Messages() <-chan string
	Close() error
}

// Conn is the slice of a key/value store the gateway uses: sets, hashes,
// lists, strings, deletion and pub/sub. Redis is the expected backend; an
// in-memory implementation serves tests and embedded use.
//
// Get returns "" without error for a missing key.
type Conn interface {
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SRem(ctx context.Context, key string, members ...string) error

	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	LPush(ctx context.Context, key string, values ...string) error
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)

	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Pipelined runs fn with a Conn whose writes are applied as one
	// atomic batch. Reads inside fn are not supported on every backend;
	// read first, then write.
	Pipelined(ctx context.Context, fn func(Conn) error) error

	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	Close() error
}

// redisConn adapts a go-redis client to Conn. Inside Pipelined the
// commands field is the pipeline while client keeps the root connection
// for pub/sub.
type redisConn struct {
	commands redis.Cmdable
	client   *redis.Client
}

// NewRedisConn wraps an already configured go-redis client.
func NewRedisConn(client *redis.Client) Conn {
	return &redisConn{commands: client, client: client}
}

// DialRedis connects to the redis server at addr ("host:port") and
// verifies the connection with a ping.
func DialRedis(ctx context.Context, addr string, db int, password string) (Conn, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "store: dial redis %s", addr)
	}
	return NewRedisConn(client), nil
}

func (c *redisConn) SAdd(ctx context.Context, key string, members ...string) error {
	return c.commands.SAdd(ctx, key, toAny(members)...).Err()
}

func (c *redisConn) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.commands.SMembers(ctx, key).Result()
}

func (c *redisConn) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return c.commands.SIsMember(ctx, key, member).Result()
}

func (c *redisConn) SRem(ctx context.Context, key string, members ...string) error {
	return c.commands.SRem(ctx, key, toAny(members)...).Err()
}

func (c *redisConn) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return c.commands.HSet(ctx, key, fields).Err()
}

func (c *redisConn) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.commands.HGetAll(ctx, key).Result()
}

func (c *redisConn) LPush(ctx context.Context, key string, values ...string) error {
	return c.commands.LPush(ctx, key, toAny(values)...).Err()
}

func (c *redisConn) RPush(ctx context.Context, key string, values ...string) error {
	return c.commands.RPush(ctx, key, toAny(values)...).Err()
}

func (c *redisConn) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.commands.LRange(ctx, key, start, stop).Result()
}

func (c *redisConn) LTrim(ctx context.Context, key string, start, stop int64) error {
	return c.commands.LTrim(ctx, key, start, stop).Err()
}

func (c *redisConn) Set(ctx context.Context, key, value string) error {
	return c.commands.Set(ctx, key, value, 0).Err()
}

func (c *redisConn) Get(ctx context.Context, key string) (string, error) {
	v, err := c.commands.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (c *redisConn) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.commands.Del(ctx, keys...).Err()
}

func (c *redisConn) Keys(ctx context.Context, pattern string) ([]string, error) {
	return c.commands.Keys(ctx, pattern).Result()
}

func (c *redisConn) Pipelined(ctx context.Context, fn func(Conn) error) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		return fn(&redisConn{commands: p, client: c.client})
	})
	return err
}

func (c *redisConn) Publish(ctx context.Context, channel, payload string) error {
	return c.commands.Publish(ctx, channel, payload).Err()
}

func (c *redisConn) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := c.client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round trip so a dead server surfaces here.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrapf(err, "store: subscribe %s", channel)
	}
	sub := &redisSub{ps: ps, ch: make(chan string), done: make(chan struct{})}
	go sub.pump(ps.Channel())
	return sub, nil
}

func (c *redisConn) Close() error {
	return c.client.Close()
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan string
	done chan struct{}
	once sync.Once
}

// pump forwards payloads until the source closes or the subscription is
// closed; a delivery in flight to a reader that has stopped receiving
// must not pin the goroutine.
func (s *redisSub) pump(src <-chan *redis.Message) {
	defer close(s.ch)
	for m := range src {
		select {
		case s.ch <- m.Payload:
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) Messages() <-chan string { return s.ch }

func (s *redisSub) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.ps.Close()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
