// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/internal/deque"
)

// fakeDuplex replays a fixed chunk sequence, then reports the context.
type fakeDuplex struct {
	chunks [][]byte
}

func (d *fakeDuplex) Recv(ctx context.Context) ([]byte, error) {
	if len(d.chunks) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	chunk := d.chunks[0]
	d.chunks = d.chunks[1:]
	return chunk, nil
}

func (d *fakeDuplex) Send(ctx context.Context, data []byte) error { return nil }
func (d *fakeDuplex) Close() error                                { return nil }

func TestReceiveReassemblesAcrossChunks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	doc := `<!-- noise --><message device="Scope" message="a"/><message devi` +
		`ce="Scope" message="b"/>`
	d := &fakeDuplex{chunks: [][]byte{
		[]byte(doc[:17]), []byte(doc[17:40]), []byte(doc[40:]),
	}}

	var frames []string
	err := receive(ctx, d, frame.ServerTags(), func(f []byte) {
		frames = append(frames, string(f))
		if len(frames) == 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{
		`<message device="Scope" message="a"/>`,
		`<message device="Scope" message="b"/>`,
	}, frames)
}

func TestWorkDrainsThenWaits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := deque.New(deque.DefaultCap)
	q.Append([]byte("one"))
	q.Append([]byte("two"))

	got := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		work(ctx, q, func(data []byte) { got <- string(data) })
	}()

	require.Equal(t, "one", <-got)
	require.Equal(t, "two", <-got)

	// The worker is parked on Wait now; a late append wakes it.
	q.Append([]byte("three"))
	require.Equal(t, "three", <-got)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestDriverPoolRouting(t *testing.T) {
	a := &driverPipe{outq: deque.New(deque.DefaultCap)}
	b := &driverPipe{outq: deque.New(deque.DefaultCap)}
	pool := &driverPool{pipes: []*driverPipe{a, b}, devices: make(map[string]*driverPipe)}
	pool.claim("Scope", a)
	// A rival claim for the same device loses.
	pool.claim("Scope", b)

	newScope := []byte(`<newTextVector device="Scope" name="PORT"><oneText name="v">x</oneText></newTextVector>`)
	pool.route(newScope)
	require.Equal(t, newScope, a.outq.Pop())
	require.Nil(t, b.outq.Pop())

	// Unknown device and device-less frames reach every driver.
	newOther := []byte(`<newSwitchVector device="Dome" name="SHUTTER"><oneSwitch name="OPEN">On</oneSwitch></newSwitchVector>`)
	pool.route(newOther)
	require.Equal(t, newOther, a.outq.Pop())
	require.Equal(t, newOther, b.outq.Pop())

	get := []byte(`<getProperties version="1.7" />`)
	pool.route(get)
	require.Equal(t, get, a.outq.Pop())
	require.Equal(t, get, b.outq.Pop())

	// enableBLOB never reaches a driver's stdin, even for an unclaimed
	// device.
	pool.route([]byte(`<enableBLOB device="Dome">Also</enableBLOB>`))
	require.Nil(t, a.outq.Pop())
	require.Nil(t, b.outq.Pop())
}

func TestFrameDeviceHelpers(t *testing.T) {
	def, err := frame.Parse([]byte(`<defLightVector device="Scope" name="STATUS" state="Ok" label="S"><defLight name="L" label="L">Ok</defLight></defLightVector>`))
	require.NoError(t, err)
	require.Equal(t, "Scope", definedDevice(def))
	require.Equal(t, "", commandDevice(def))

	cmd, err := frame.Parse([]byte(`<newNumberVector device="Scope" name="RA"><oneNumber name="RA">1.5</oneNumber></newNumberVector>`))
	require.NoError(t, err)
	require.Equal(t, "Scope", commandDevice(cmd))
	require.Equal(t, "", definedDevice(cmd))
}
