// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// maxFrameBytes bounds a single inbound frame so a corrupt length prefix
// cannot force an unbounded allocation.
const maxFrameBytes = maxMessageSize

// FrameReader reads length-prefixed frames off a stream and decodes them.
// Not safe for concurrent use by multiple readers; the connection
// supervisor owns exactly one reader per connection.
type FrameReader struct {
	r io.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame blocks until one frame has been read and decoded, or returns
// the underlying stream error (io.EOF on clean peer close).
func (fr *FrameReader) ReadFrame() (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, n, maxFrameBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, err
	}
	return Unmarshal(body)
}

// FrameWriter serializes writes so multiple goroutines (dispatcher and
// worker) can share one outbound stream without interleaving frame bytes.
// The writer lock is never held across an I/O-bound Region call; it is
// acquired only to format and flush one frame.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// FrameOrError is one item off a pumped frame stream: exactly one of Frame
// or Err is set.
type FrameOrError struct {
	Frame Frame
	Err   error
}

// PumpFrames starts the connection's single frame-reader goroutine and
// returns the channel it publishes to. There is exactly one of these per
// connection, started once by the connection supervisor; the negotiator
// consumes from it first, then hands the same channel to the steady-state
// dispatcher once negotiation completes, so there is never more than one
// goroutine calling ReadFrame on a given FrameReader.
func PumpFrames(fr *FrameReader) <-chan FrameOrError {
	out := make(chan FrameOrError, 1)
	go func() {
		for {
			f, err := fr.ReadFrame()
			out <- FrameOrError{Frame: f, Err: err}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func (fw *FrameWriter) WriteFrame(f Frame) error {
	body, err := Marshal(f)
	if err != nil {
		return err
	}
	if len(body) > maxFrameBytes {
		return fmt.Errorf("%w: outbound %d bytes, limit %d", ErrFrameTooLarge, len(body), maxFrameBytes)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = fw.w.Write(body)
	return err
}
