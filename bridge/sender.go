// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package bridge

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/property"
	"github.com/indimr/indimr/store"
)

// RunSender subscribes to the to-indi channel and hands each decoded
// command to transmit. It blocks until the context is done.
//
// Two payload encodings are accepted. A payload opening with '<' is the
// frame itself. Anything else is the legacy indirect form
// "<cmd>:<stringkey>": the arguments live in the store list P<stringkey>
// as [device, property, timestamp, elementKey…], each elementKey naming
// a hash {name, value}; the sender composes the frame and deletes the
// keys.
//
// Before a newXxxVector is transmitted the affected property is marked
// Busy in the store: a client that commanded a change considers the
// property Busy until the server confirms.
func RunSender(ctx context.Context, s *store.Store, logger *zap.Logger, transmit func([]byte)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub, err := s.SubscribeCommands(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-sub.Messages():
			if !ok {
				return errors.New("bridge: command subscription closed")
			}
			data, err := decodeCommand(ctx, s, payload)
			if err != nil {
				logger.Warn("command dropped", zap.Error(err))
				continue
			}
			markBusy(ctx, s, data, logger)
			transmit(data)
		}
	}
}

// decodeCommand resolves the indirect encoding; direct payloads pass
// through untouched.
func decodeCommand(ctx context.Context, s *store.Store, payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "<") {
		return []byte(payload), nil
	}
	cmd, stringkey, ok := strings.Cut(payload, ":")
	if !ok {
		return nil, errors.Errorf("bridge: malformed command %q", payload)
	}
	conn := s.Conn()
	listKey := s.Prefix() + stringkey
	args, err := conn.LRange(ctx, listKey, 0, -1)
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, errors.Errorf("bridge: short argument list for %q", payload)
	}
	device, name, timestamp := args[0], args[1], args[2]
	doomed := []string{listKey}

	var f frame.Frame
	switch frame.Tag(cmd) {
	case frame.NewTextVector:
		nf := frame.NewText{Device: device, Name: name, Timestamp: timestamp}
		for _, ek := range args[3:] {
			key := s.Prefix() + ek
			fields, err := conn.HGetAll(ctx, key)
			if err != nil {
				return nil, err
			}
			doomed = append(doomed, key)
			nf.Elements = append(nf.Elements, property.TextElement{Name: fields["name"], Value: fields["value"]})
		}
		f = nf
	case frame.NewNumberVector:
		nf := frame.NewNumber{Device: device, Name: name, Timestamp: timestamp}
		for _, ek := range args[3:] {
			key := s.Prefix() + ek
			fields, err := conn.HGetAll(ctx, key)
			if err != nil {
				return nil, err
			}
			doomed = append(doomed, key)
			nf.Elements = append(nf.Elements, property.NumberElement{Name: fields["name"], Value: fields["value"]})
		}
		f = nf
	case frame.NewSwitchVector:
		nf := frame.NewSwitch{Device: device, Name: name, Timestamp: timestamp}
		for _, ek := range args[3:] {
			key := s.Prefix() + ek
			fields, err := conn.HGetAll(ctx, key)
			if err != nil {
				return nil, err
			}
			doomed = append(doomed, key)
			nf.Elements = append(nf.Elements, property.SwitchElement{Name: fields["name"], Value: fields["value"]})
		}
		f = nf
	default:
		return nil, errors.Errorf("bridge: unsupported indirect command %q", cmd)
	}

	data, err := frame.Render(f)
	if err != nil {
		return nil, err
	}
	if err := conn.Del(ctx, doomed...); err != nil {
		return nil, err
	}
	return data, nil
}

// markBusy parses outbound data just enough to apply the Busy rule; a
// payload that is not a newXxxVector is left alone.
func markBusy(ctx context.Context, s *store.Store, data []byte, logger *zap.Logger) {
	f, err := frame.Parse(data)
	if err != nil {
		return
	}
	var device, name string
	switch f := f.(type) {
	case frame.NewText:
		device, name = f.Device, f.Name
	case frame.NewNumber:
		device, name = f.Device, f.Name
	case frame.NewSwitch:
		device, name = f.Device, f.Name
	case frame.NewBLOB:
		device, name = f.Device, f.Name
	default:
		return
	}
	if err := s.MarkBusy(ctx, device, name); err != nil {
		logger.Warn("busy mark failed",
			zap.String("device", device), zap.String("property", name), zap.Error(err))
	}
}
