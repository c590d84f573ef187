// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The indimr command mirrors an INDI server into redis: it attaches to
// the server, ingests everything it publishes into the store, saves
// BLOBs under the given directory and forwards commands published on
// the to-indi channel back to the server.
//
// Usage:
//
//	indimr [flags] blobfolder
//
// An indiserver is expected to be running already, for example:
//
//	indiserver -v indi_simulator_telescope indi_simulator_dome
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	indimr "github.com/indimr/indimr"
	"github.com/indimr/indimr/bridge"
	"github.com/indimr/indimr/store"
)

const version = "0.7.2"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "indimr:", err)
		os.Exit(1)
	}
}

func run() error {
	indi := indimr.DefaultIndiServer()
	redis := indimr.DefaultRedisServer()

	var (
		clientOnly  bool
		showVersion bool
		webHost     string
		webPort     int
	)
	pflag.StringVar(&indi.Host, "ihost", indi.Host, "hostname of the indiserver")
	pflag.IntVar(&indi.Port, "iport", indi.Port, "port of the indiserver")
	pflag.StringVar(&redis.Host, "rhost", redis.Host, "hostname of the redis server")
	pflag.IntVar(&redis.Port, "rport", redis.Port, "port of the redis server")
	pflag.StringVar(&redis.KeyPrefix, "prefix", redis.KeyPrefix, "prefix applied to redis keys")
	pflag.StringVar(&redis.ToIndiChannel, "toindipub", redis.ToIndiChannel, "redis channel carrying commands to the indiserver")
	pflag.StringVar(&redis.FromIndiChannel, "fromindipub", redis.FromIndiChannel, "redis channel carrying alerts from the indiserver")
	pflag.BoolVar(&clientOnly, "clientonly", false, "do not connect to the indiserver; only serve the store")
	pflag.StringVar(&webHost, "host", "localhost", "listening address reserved for an external web client")
	pflag.IntVar(&webPort, "port", 8000, "listening port reserved for an external web client")
	pflag.BoolVar(&showVersion, "version", false, "print the version and exit")
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: indimr [flags] blobfolder")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if showVersion {
		fmt.Println(version)
		return nil
	}
	if pflag.NArg() != 1 {
		pflag.Usage()
		return fmt.Errorf("a blob folder argument is required")
	}
	blobFolder := pflag.Arg(0)

	if err := indi.Validate(); err != nil {
		return err
	}
	if err := redis.Validate(); err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := store.NewBLOBSink(afero.NewOsFs(), blobFolder)
	if err != nil {
		return err
	}

	conn, err := redis.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	opts := redis.Options()
	opts.BLOBs = sink
	opts.Logger = logger
	s := store.New(conn, opts)

	// The keyspace describes a live session; stale state from an earlier
	// run must not survive into this one.
	if err := s.Clear(ctx); err != nil {
		return err
	}

	logger.Info("starting",
		zap.String("indi", indi.Addr()),
		zap.String("redis", redis.Addr()),
		zap.String("web", fmt.Sprintf("%s:%d", webHost, webPort)),
		zap.String("prefix", redis.KeyPrefix),
		zap.String("blobs", blobFolder),
		zap.Bool("clientonly", clientOnly))

	if clientOnly {
		// The store stays reachable for web clients and for drivers
		// bridged by another process; nothing to run here.
		<-ctx.Done()
		return nil
	}

	err = bridge.IndiToRedis(ctx, indi.Addr(), s, logger)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
