// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package frame

import "bytes"

// chunkLimit bounds how much data is consumed in one step when no '>'
// delimiter has arrived; very large base64 BLOB bodies are swallowed in
// one piece rather than waiting for a delimiter that may be tens of
// megabytes away.
const chunkLimit = 32 * 1024

// A Framer reassembles complete INDI protocol elements from an
// arbitrarily chunked byte stream. Feed it reads in whatever sizes the
// transport delivers; it emits each complete top-level element exactly
// once, regardless of how the stream was partitioned.
//
// Anything that does not open with a recognised tag is discarded; remotes
// are free to send comments and other noise between frames.
type Framer struct {
	starts [][]byte // "<tag" for each recognised tag
	ends   [][]byte // "</tag>" for each recognised tag

	pending []byte // raw bytes not yet consumed by the state machine
	buf     []byte // frame under assembly; nil while idle
	tag     int    // index into ends while a frame is under assembly
}

// NewFramer returns a Framer recognising the given tags, typically
// ServerTags or ClientTags.
func NewFramer(tags []Tag) *Framer {
	f := &Framer{
		starts: make([][]byte, len(tags)),
		ends:   make([][]byte, len(tags)),
	}
	for i, t := range tags {
		f.starts[i] = []byte("<" + t)
		f.ends[i] = []byte("</" + t + ">")
	}
	return f
}

// Feed appends data to the stream and returns the complete frames it
// finished, in order. The caller owns the returned slices.
func (f *Framer) Feed(data []byte) [][]byte {
	f.pending = append(f.pending, data...)

	var frames [][]byte
	for {
		chunk := f.nextChunk()
		if chunk == nil {
			return frames
		}
		if frame := f.step(chunk); frame != nil {
			frames = append(frames, frame)
		}
	}
}

// nextChunk removes and returns the pending bytes through the first '>',
// the whole pending buffer when it has grown past chunkLimit, or nil.
func (f *Framer) nextChunk() []byte {
	i := bytes.IndexByte(f.pending, '>')
	if i < 0 {
		if len(f.pending) < chunkLimit {
			return nil
		}
		chunk := f.pending
		f.pending = nil
		return chunk
	}
	chunk := f.pending[:i+1]
	f.pending = f.pending[i+1:]
	return chunk
}

// step runs one chunk through the Idle/InFrame state machine and returns a
// completed frame, if any.
func (f *Framer) step(chunk []byte) []byte {
	if f.buf == nil {
		// Idle: hunt for a recognised opening tag.
		chunk = bytes.TrimLeft(chunk, " \t\r\n")
		tag := -1
		for i, st := range f.starts {
			if bytes.HasPrefix(chunk, st) {
				tag = i
				break
			}
		}
		if tag < 0 {
			return nil
		}
		if bytes.HasSuffix(chunk, []byte("/>")) {
			// Self-closing: complete in a single chunk.
			return append([]byte(nil), chunk...)
		}
		f.buf = append([]byte(nil), chunk...)
		f.tag = tag
		return nil
	}

	f.buf = append(f.buf, chunk...)
	if bytes.HasSuffix(f.buf, f.ends[f.tag]) {
		frame := f.buf
		f.buf = nil
		return frame
	}
	return nil
}

// Reset discards any partial frame, e.g. after a transport reconnect.
func (f *Framer) Reset() {
	f.pending = nil
	f.buf = nil
}
