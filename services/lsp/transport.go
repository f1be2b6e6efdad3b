// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Transport moves frames over a pair of byte streams.
//
// Description:
//
//	Writes are serialized by a single mutex so two frames never interleave.
//	Reads happen only inside ReadLoop, which owns the read side for the
//	lifetime of the connection.
//
// Thread Safety:
//
//	Write and WriteFunc are safe for concurrent use. ReadLoop must be
//	called from exactly one goroutine.
type Transport struct {
	dec *Decoder
	r   io.Reader

	w       io.Writer
	bw      *bufio.Writer
	writeMu sync.Mutex

	closeOnce sync.Once
}

// NewTransport wraps the server's stdout (r) and stdin (w).
func NewTransport(r io.Reader, w io.Writer) *Transport {
	return NewTransportWithLimits(r, w, DefaultLimits())
}

// NewTransportWithLimits is NewTransport with explicit frame limits.
func NewTransportWithLimits(r io.Reader, w io.Writer, limits Limits) *Transport {
	t := &Transport{r: r, w: w}
	if r != nil {
		t.dec = NewDecoderWithLimits(r, limits)
	}
	if w != nil {
		t.bw = bufio.NewWriter(w)
	}
	return t
}

// Write encodes msg and writes it as one frame.
func (t *Transport) Write(msg Message) error {
	return t.WriteFunc(func() (Message, error) { return msg, nil })
}

// WriteFunc builds a message and writes it while holding the write lock.
//
// Description:
//
//	The builder runs inside the critical section, so anything it allocates
//	(request ids, pending entries) reaches the wire in allocation order.
//	The lock is held only for building, encoding and flushing one frame.
//
// Inputs:
//
//	build - Returns the message to send; an error aborts the write
//
// Outputs:
//
//	error - Builder error, or ErrTransportClosed wrapping the write failure
//
// Thread Safety:
//
//	Safe for concurrent use.
func (t *Transport) WriteFunc(build func() (Message, error)) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	msg, err := build()
	if err != nil {
		return err
	}
	if t.bw == nil {
		return fmt.Errorf("%w: no writer configured", ErrTransportClosed)
	}

	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	if _, err := t.bw.Write(frame); err != nil {
		return fmt.Errorf("%w: write frame: %v", ErrTransportClosed, err)
	}
	if err := t.bw.Flush(); err != nil {
		return fmt.Errorf("%w: flush frame: %v", ErrTransportClosed, err)
	}
	return nil
}

// ReadLoop decodes messages until the stream ends or a frame is bad.
//
// Description:
//
//	Hands each decoded message to dispatch, one at a time, on the calling
//	goroutine. Never returns nil: the returned error is the terminal
//	condition of the connection.
//
// Inputs:
//
//	dispatch - Called for every message, in wire order
//
// Outputs:
//
//	error - ErrTransportClosed wrapping EOF or a read failure, or the
//	        ErrFraming / ErrProtocol error that stopped the loop
func (t *Transport) ReadLoop(dispatch func(Message)) error {
	if t.dec == nil {
		return fmt.Errorf("%w: no reader configured", ErrTransportClosed)
	}

	for {
		msg, err := t.dec.Decode()
		if err != nil {
			if errors.Is(err, ErrFraming) || errors.Is(err, ErrProtocol) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		dispatch(msg)
	}
}

// Close closes whichever of the two streams are closers.
//
// Thread Safety:
//
//	Safe for concurrent use. Only the first call has an effect.
func (t *Transport) Close() error {
	var errs []error
	t.closeOnce.Do(func() {
		if c, ok := t.w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close writer: %w", err))
			}
		}
		if c, ok := t.r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close reader: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
