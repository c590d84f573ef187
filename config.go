// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package indimr

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/indimr/indimr/bridge"
	"github.com/indimr/indimr/store"
	"github.com/indimr/indimr/transport"
)

// Errors returned by the Validate methods.
var (
	ErrBadPort     = errors.New("indimr: port must be positive")
	ErrBadChannels = errors.New("indimr: redis channels must be non-empty and differ from each other")
	ErrBadTopics   = errors.New("indimr: mqtt topics must be four distinct non-empty strings")
	ErrNoClientID  = errors.New("indimr: an mqtt client id must be given")
)

// IndiServer locates the INDI server the gateway attaches to.
type IndiServer struct {
	Host string
	Port int
}

// DefaultIndiServer returns the conventional localhost attachment.
func DefaultIndiServer() IndiServer {
	return IndiServer{Host: "localhost", Port: transport.DefaultINDIPort}
}

// Addr returns the host:port dial string.
func (s IndiServer) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s IndiServer) Validate() error {
	if s.Port <= 0 {
		return ErrBadPort
	}
	return nil
}

// RedisServer locates the redis server backing the store and names the
// keyspace and the two pub/sub channels. Clients publish commands on the
// to-indi channel; the gateway publishes alerts on the from-indi
// channel, so the two must differ.
type RedisServer struct {
	Host     string
	Port     int
	DB       int
	Password string

	KeyPrefix       string
	ToIndiChannel   string
	FromIndiChannel string
}

// DefaultRedisServer returns a localhost server with the conventional
// prefix and channel names.
func DefaultRedisServer() RedisServer {
	return RedisServer{
		Host:            "localhost",
		Port:            6379,
		KeyPrefix:       store.DefaultPrefix,
		ToIndiChannel:   store.DefaultToChannel,
		FromIndiChannel: store.DefaultFromChannel,
	}
}

// Addr returns the host:port dial string.
func (s RedisServer) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s RedisServer) Validate() error {
	if s.Port <= 0 {
		return ErrBadPort
	}
	if s.ToIndiChannel == "" || s.FromIndiChannel == "" || s.ToIndiChannel == s.FromIndiChannel {
		return ErrBadChannels
	}
	return nil
}

// Dial validates the record and connects, pinging the server once.
func (s RedisServer) Dial(ctx context.Context) (store.Conn, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return store.DialRedis(ctx, s.Addr(), s.DB, s.Password)
}

// Options returns the store options the record describes.
func (s RedisServer) Options() store.Options {
	return store.Options{
		Prefix:      s.KeyPrefix,
		ToChannel:   s.ToIndiChannel,
		FromChannel: s.FromIndiChannel,
	}
}

// MQTTServer locates the broker joining remote sites. The client id
// must be unique on the MQTT network; the four topics must be distinct.
type MQTTServer struct {
	ClientID string
	Host     string
	Port     int
	Username string
	Password string

	Topics bridge.MQTTTopics
}

// DefaultMQTTServer returns a localhost broker with the conventional
// topic names.
func DefaultMQTTServer(clientID string) MQTTServer {
	return MQTTServer{
		ClientID: clientID,
		Host:     "localhost",
		Port:     1883,
		Topics:   bridge.DefaultMQTTTopics(),
	}
}

// Broker returns the paho broker URI.
func (s MQTTServer) Broker() string {
	return "tcp://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s MQTTServer) Validate() error {
	if s.Port <= 0 {
		return ErrBadPort
	}
	if s.ClientID == "" {
		return ErrNoClientID
	}
	t := s.Topics
	names := map[string]bool{
		t.ToIndi: true, t.FromIndi: true, t.SnoopControl: true, t.SnoopData: true,
	}
	if len(names) != 4 || names[""] {
		return ErrBadTopics
	}
	return nil
}

// Options returns the transport options the record describes. The
// bridge topology fills in the topics it subscribes and publishes on.
func (s MQTTServer) Options() transport.MQTTOptions {
	return transport.MQTTOptions{
		Broker:   s.Broker(),
		ClientID: s.ClientID,
		Username: s.Username,
		Password: s.Password,
	}
}
