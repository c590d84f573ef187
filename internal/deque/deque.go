// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package deque implements the bounded drop-oldest queue used between
// transports.
//
// Losing a stale setXxxVector frame is acceptable in INDI: the next frame
// for the same property carries complete state. A small fixed bound with
// drop-oldest is therefore the only backpressure mechanism in the gateway.
package deque

import "sync"

// DefaultCap is the conventional queue bound between any two transports.
const DefaultCap = 5

// Deque is a bounded FIFO of byte slices. Appending to a full Deque
// discards the oldest entry. The zero value is not usable; call New.
type Deque struct {
	mu    sync.Mutex
	items [][]byte
	max   int

	// ready is closed and replaced on every Append so that readers can
	// block without polling.
	ready chan struct{}
}

// New returns an empty Deque bounded at max items. If max is not positive
// DefaultCap is used.
func New(max int) *Deque {
	if max <= 0 {
		max = DefaultCap
	}
	return &Deque{
		max:   max,
		ready: make(chan struct{}),
	}
}

// Append adds b to the tail, discarding the head if the bound is reached.
func (d *Deque) Append(b []byte) {
	d.mu.Lock()
	if len(d.items) >= d.max {
		d.items = d.items[1:]
	}
	d.items = append(d.items, b)
	close(d.ready)
	d.ready = make(chan struct{})
	d.mu.Unlock()
}

// Pop removes and returns the head, or nil if the Deque is empty.
func (d *Deque) Pop() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return nil
	}
	b := d.items[0]
	d.items = d.items[1:]
	return b
}

// alreadyReady is handed out by Wait while items are queued, so an Append
// landing between a reader's empty Pop and its Wait call is never missed.
var alreadyReady = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Wait returns a channel that is closed once an item is available: the
// next Append, or immediately if the Deque is already non-empty. A reader
// that found the Deque empty can select on it alongside its cancellation
// context, then must Pop again.
func (d *Deque) Wait() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) > 0 {
		return alreadyReady
	}
	return d.ready
}

// Len returns the number of queued items.
func (d *Deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Clear discards all queued items.
func (d *Deque) Clear() {
	d.mu.Lock()
	d.items = nil
	d.mu.Unlock()
}
