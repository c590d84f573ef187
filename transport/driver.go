// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
)

// A Driver is a spawned INDI driver subprocess. Its stdout is the
// receive stream, stdin the send stream; stderr lines go to the log.
// Each driver carries its own BLOB policy, default Never.
type Driver struct {
	executable string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     io.ReadCloser

	mu     sync.Mutex
	policy frame.BLOBEnable

	closeOnce sync.Once
	closeErr  error
	log       *zap.Logger
}

var _ Duplex = (*Driver)(nil)

// StartDriver spawns the executable and immediately writes a
// getProperties so the driver announces its devices.
func StartDriver(ctx context.Context, executable string, args []string, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cmd := exec.CommandContext(ctx, executable, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "transport: driver stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "transport: driver stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "transport: driver stderr")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "transport: start driver %s", executable)
	}
	d := &Driver{
		executable: executable,
		cmd:        cmd,
		stdin:      stdin,
		stdout:     stdout,
		policy:     frame.BLOBNever,
		log:        logger.With(zap.String("driver", executable)),
	}
	go d.logStderr(stderr)
	if err := d.Send(ctx, []byte(`<getProperties version="`+frame.Version+`" />`)); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Executable returns the path the driver was started from.
func (d *Driver) Executable() string { return d.executable }

// BLOBPolicy returns the driver's current BLOB policy.
func (d *Driver) BLOBPolicy() frame.BLOBEnable {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.policy
}

// SetBLOBPolicy records the policy from an enableBLOB frame addressed to
// one of this driver's devices.
func (d *Driver) SetBLOBPolicy(policy frame.BLOBEnable) {
	d.mu.Lock()
	d.policy = policy
	d.mu.Unlock()
}

// Recv returns the next stdout chunk. The pipe has no deadlines; Close
// unblocks a pending read by killing the subprocess.
func (d *Driver) Recv(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := d.stdout.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, errors.Wrapf(err, "transport: driver %s read", d.executable)
}

// Send writes one frame to the driver's stdin.
func (d *Driver) Send(_ context.Context, data []byte) error {
	_, err := d.stdin.Write(data)
	return errors.Wrapf(err, "transport: driver %s write", d.executable)
}

// Close terminates the subprocess and reaps it.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		_ = d.stdin.Close()
		if d.cmd.Process != nil {
			_ = d.cmd.Process.Kill()
		}
		d.closeErr = d.cmd.Wait()
	})
	return d.closeErr
}

func (d *Driver) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		d.log.Info("driver stderr", zap.String("line", scanner.Text()))
	}
}
