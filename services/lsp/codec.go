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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const contentLengthHeader = "Content-Length"

// Limits constrains how much memory a single inbound frame may use.
type Limits struct {
	// MaxBodyBytes is the largest Content-Length accepted.
	MaxBodyBytes int

	// MaxHeaderLineBytes is the longest header line accepted.
	MaxHeaderLineBytes int
}

// DefaultLimits returns limits sized for large workspace/symbol replies.
func DefaultLimits() Limits {
	return Limits{
		MaxBodyBytes:       64 << 20,
		MaxHeaderLineBytes: 4 << 10,
	}
}

// Encode serializes msg into one Content-Length frame.
//
// Description:
//
//	Marshals the message to JSON and prefixes it with the header block
//	"Content-Length: N\r\n\r\n", where N is the body length in bytes.
//
// Inputs:
//
//	msg - The message to frame
//
// Outputs:
//
//	[]byte - Header and body, ready to write
//	error - Non-nil if the message could not be marshaled
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	header := contentLengthHeader + ": " + strconv.Itoa(len(body)) + "\r\n\r\n"
	frame := make([]byte, 0, len(header)+len(body))
	frame = append(frame, header...)
	frame = append(frame, body...)
	return frame, nil
}

// Decoder reads Content-Length frames from a byte stream.
//
// Thread Safety:
//
//	Not safe for concurrent use. The transport read loop is its only caller.
type Decoder struct {
	r      *bufio.Reader
	limits Limits
}

// NewDecoder creates a decoder with DefaultLimits.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithLimits(r, DefaultLimits())
}

// NewDecoderWithLimits creates a decoder with explicit limits.
func NewDecoderWithLimits(r io.Reader, limits Limits) *Decoder {
	defaults := DefaultLimits()
	if limits.MaxBodyBytes <= 0 {
		limits.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if limits.MaxHeaderLineBytes <= 0 {
		limits.MaxHeaderLineBytes = defaults.MaxHeaderLineBytes
	}
	return &Decoder{r: bufio.NewReader(r), limits: limits}
}

// Decode reads and parses the next frame.
//
// Description:
//
//	Reads header lines up to the blank line, finds Content-Length (field
//	name matched case-insensitively, other headers ignored), then reads
//	exactly that many bytes and parses them as a message. A frame is either
//	returned whole or not at all.
//
// Outputs:
//
//	Message - The decoded message
//	error - io.EOF if the stream ended cleanly between frames
//
// Errors:
//
//	ErrFraming - Missing, invalid or oversized length, or truncated frame
//	ErrProtocol - Body is not a JSON-RPC message
//	ErrUnknownMessageShape - Body is JSON but not a request/response/notification
func (d *Decoder) Decode() (Message, error) {
	length, err := d.readHeaders()
	if err != nil {
		return nil, err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, fmt.Errorf("%w: read body (%d bytes declared): %v", ErrFraming, length, err)
	}

	return parseMessage(body)
}

// readHeaders consumes the header block and returns the declared body length.
func (d *Decoder) readHeaders() (int, error) {
	length := -1
	first := true

	for {
		line, err := d.readLine()
		if err != nil {
			if first && errors.Is(err, io.EOF) && line == "" {
				return 0, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("%w: stream ended inside header block", ErrFraming)
			}
			return 0, err
		}
		first = false

		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return 0, fmt.Errorf("%w: malformed header line %q", ErrFraming, line)
		}
		if !strings.EqualFold(strings.TrimSpace(name), contentLengthHeader) {
			continue
		}

		value = strings.TrimSpace(value)
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid Content-Length %q", ErrFraming, value)
		}
		if n < 0 {
			return 0, fmt.Errorf("%w: negative Content-Length %d", ErrFraming, n)
		}
		if n > d.limits.MaxBodyBytes {
			return 0, fmt.Errorf("%w: Content-Length %d exceeds limit %d", ErrFraming, n, d.limits.MaxBodyBytes)
		}
		length = n
	}

	if length < 0 {
		return 0, fmt.Errorf("%w: missing Content-Length header", ErrFraming)
	}
	return length, nil
}

// readLine returns one header line without its line terminator. A bare
// "\n" terminator is tolerated.
func (d *Decoder) readLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, err := d.r.ReadSlice('\n')
		sb.Write(chunk)
		if sb.Len() > d.limits.MaxHeaderLineBytes {
			return "", fmt.Errorf("%w: header line exceeds %d bytes", ErrFraming, d.limits.MaxHeaderLineBytes)
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return sb.String(), err
	}
	return strings.TrimRight(sb.String(), "\r\n"), nil
}
