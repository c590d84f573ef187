// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/internal/deque"
	"github.com/indimr/indimr/property"
	"github.com/indimr/indimr/store"
	"github.com/indimr/indimr/transport"
)

// DriversToRedis spawns one subprocess per executable and bridges them
// to the store. Frames carrying a device attribute are routed to the
// driver that announced the device, the rest are broadcast. An
// enableBLOB frame updates the owning driver's policy and is not written
// to its stdin; the policy then gates what that driver's frames reach
// the store.
//
// Blocks until the context is done or a driver exits.
func DriversToRedis(ctx context.Context, executables []string, s *store.Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := &driverPool{devices: make(map[string]*driverPipe)}
	errc := make(chan error, len(executables)+1)

	for _, exe := range executables {
		d, err := transport.StartDriver(ctx, exe, nil, logger)
		if err != nil {
			return err
		}
		pipe := &driverPipe{driver: d, outq: deque.New(deque.DefaultCap)}
		pool.pipes = append(pool.pipes, pipe)
		defer d.Close()

		go work(ctx, pipe.outq, func(data []byte) {
			if err := d.Send(ctx, data); err != nil {
				logger.Warn("driver write failed", zap.String("driver", d.Executable()), zap.Error(err))
			}
		})
		go func() {
			errc <- runDriverReader(ctx, s, pool, pipe, logger)
		}()
		if err := s.SetMessage(ctx, "", property.Now(), "Driver "+exe+" started"); err != nil {
			return err
		}
	}
	if err := s.SetMessage(ctx, "", property.Now(), "Drivers started, waiting for data"); err != nil {
		return err
	}

	go func() {
		errc <- RunSender(ctx, s, logger, pool.route)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

// runDriverReader frames the driver's stdout and ingests every frame
// its BLOB policy admits, learning device ownership from definitions.
func runDriverReader(ctx context.Context, s *store.Store, pool *driverPool, pipe *driverPipe, logger *zap.Logger) error {
	inq := deque.New(deque.DefaultCap)
	go work(ctx, inq, func(data []byte) {
		f, err := frame.Parse(data)
		if err != nil {
			logger.Warn("frame dropped", zap.String("driver", pipe.driver.Executable()), zap.Error(err))
			return
		}
		if !pipe.driver.BLOBPolicy().Permits(f.FrameTag()) {
			return
		}
		if device := definedDevice(f); device != "" {
			pool.claim(device, pipe)
		}
		if err := s.Apply(ctx, f); err != nil && ctx.Err() == nil {
			logger.Error("ingest failed", zap.String("tag", string(f.FrameTag())), zap.Error(err))
		}
	})
	return receive(ctx, pipe.driver, frame.ServerTags(), inq.Append)
}

// definedDevice returns the device a definition frame announces, or "".
func definedDevice(f frame.Frame) string {
	switch f := f.(type) {
	case frame.DefText:
		return f.Device
	case frame.DefNumber:
		return f.Device
	case frame.DefSwitch:
		return f.Device
	case frame.DefLight:
		return f.Device
	case frame.DefBLOB:
		return f.Device
	}
	return ""
}

type driverPipe struct {
	driver *transport.Driver
	outq   *deque.Deque
}

// driverPool routes outbound commands to the driver owning the target
// device.
type driverPool struct {
	mu      sync.Mutex
	pipes   []*driverPipe
	devices map[string]*driverPipe
}

// claim records that a driver serves a device; the first claim wins.
func (p *driverPool) claim(device string, pipe *driverPipe) {
	p.mu.Lock()
	if _, ok := p.devices[device]; !ok {
		p.devices[device] = pipe
	}
	p.mu.Unlock()
}

func (p *driverPool) owner(device string) *driverPipe {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.devices[device]
}

// route delivers one outbound command. Commands without a device, or for
// a device no driver has announced, are broadcast; a driver that does
// not serve the device ignores the frame.
func (p *driverPool) route(data []byte) {
	f, err := frame.Parse(data)
	if err != nil {
		// Unparseable payloads still go everywhere; the drivers decide.
		p.broadcast(data)
		return
	}
	if en, ok := f.(frame.Enable); ok {
		if en.Device == "" {
			return
		}
		if pipe := p.owner(en.Device); pipe != nil {
			pipe.driver.SetBLOBPolicy(en.State)
		}
		return
	}
	device := commandDevice(f)
	if device == "" {
		p.broadcast(data)
		return
	}
	if pipe := p.owner(device); pipe != nil {
		pipe.outq.Append(data)
		return
	}
	p.broadcast(data)
}

func (p *driverPool) broadcast(data []byte) {
	p.mu.Lock()
	pipes := append([]*driverPipe(nil), p.pipes...)
	p.mu.Unlock()
	for _, pipe := range pipes {
		pipe.outq.Append(data)
	}
}

// commandDevice returns the device a client frame addresses, or "".
func commandDevice(f frame.Frame) string {
	switch f := f.(type) {
	case frame.Get:
		return f.Device
	case frame.NewText:
		return f.Device
	case frame.NewNumber:
		return f.Device
	case frame.NewSwitch:
		return f.Device
	case frame.NewBLOB:
		return f.Device
	}
	return ""
}
