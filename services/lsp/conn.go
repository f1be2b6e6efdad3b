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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of a Conn.
type State int32

const (
	// StateUninitialized is the state after New, before Initialize.
	StateUninitialized State = iota

	// StateInitializing means the initialize request is in flight.
	StateInitializing

	// StateReady means the handshake completed; requests are allowed.
	StateReady

	// StateClosing means teardown has started.
	StateClosing

	// StateClosed is terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	names := []string{"uninitialized", "initializing", "ready", "closing", "closed"}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// OPTIONS
// =============================================================================

// NotificationHandler receives server notifications.
//
// It runs on the read loop goroutine, so it must not block and must not
// call Close.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler answers server-initiated requests.
//
// It runs on its own goroutine. Returning an *RPCError sends that error
// object; any other error is sent as an internal error.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Options configures a Conn. The zero value is usable.
type Options struct {
	// OnNotification receives server notifications. Nil drops them.
	OnNotification NotificationHandler

	// OnRequest answers server requests. Nil answers MethodNotFound.
	OnRequest RequestHandler

	// CancelOnAbandon sends $/cancelRequest when a caller's context ends
	// before its response arrives.
	CancelOnAbandon bool

	// RequestTimeout bounds every request. Zero means no timeout.
	RequestTimeout time.Duration

	// Limits bounds inbound frames. Zero fields take the defaults.
	Limits Limits
}

// =============================================================================
// CONN
// =============================================================================

// Conn is one JSON-RPC session with a language server.
//
// Description:
//
//	Drives the initialize/initialized handshake, then lets any number of
//	goroutines issue requests and notifications. Responses are routed to
//	their callers by id from a single read loop. When the read loop ends
//	for any reason, every outstanding request fails and the server
//	process is killed.
//
// Thread Safety:
//
//	Safe for concurrent use. Close may be called at any time, any number
//	of times, except from inside a NotificationHandler.
type Conn struct {
	transport *Transport
	pending   *pendingTable
	proc      *Process
	opts      Options

	state atomic.Int32

	// nextID is only read or written inside a transport.WriteFunc builder,
	// so the write lock orders id allocation with the wire.
	nextID int64

	mu         sync.RWMutex
	initResult InitializeResult
	termErr    error

	handlerCtx    context.Context
	handlerCancel context.CancelFunc

	// loopOnce either starts the read loop or, when Close wins the race
	// with Initialize, closes readDone so nobody waits for a loop that
	// never ran.
	loopOnce     sync.Once
	readDone     chan struct{}
	teardownOnce sync.Once
}

// New attaches a connection to the server's stdout (r) and stdin (w).
//
// The connection is in StateUninitialized; call Initialize before use.
// Closers among r and w are closed on teardown.
func New(r io.Reader, w io.Writer, opts Options) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		transport:     NewTransportWithLimits(r, w, opts.Limits),
		pending:       newPendingTable(),
		opts:          opts,
		handlerCtx:    ctx,
		handlerCancel: cancel,
		readDone:      make(chan struct{}),
	}
}

// Open creates a connection over r and w and completes the handshake.
func Open(ctx context.Context, r io.Reader, w io.Writer, params InitializeParams, opts Options) (*Conn, error) {
	c := New(r, w, opts)
	if err := c.Initialize(ctx, params); err != nil {
		return nil, err
	}
	return c, nil
}

// Dial spawns the server described by cfg and completes the handshake.
//
// Description:
//
//	The returned connection owns the process; Close kills it. If the
//	handshake fails the process is killed before Dial returns.
//
// Outputs:
//
//	*Conn - A ready connection
//	error - Wraps ErrSpawnFailed or ErrHandshakeFailed
func Dial(ctx context.Context, cfg ServerConfig, params InitializeParams, opts Options) (*Conn, error) {
	proc, err := Spawn(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := New(proc.Stdout(), proc.Stdin(), opts)
	c.proc = proc

	if params.ProcessID == nil {
		pid := os.Getpid()
		params.ProcessID = &pid
	}
	if err := c.Initialize(ctx, params); err != nil {
		return nil, err
	}
	return c, nil
}

// Initialize performs the handshake.
//
// Description:
//
//	Starts the read loop, sends initialize, records the server's
//	capabilities, sends initialized, and moves to StateReady. Any failure
//	tears the connection down.
//
// Inputs:
//
//	ctx - Bounds the handshake
//	params - Initialize params; missing client info and capabilities are
//	         filled with crush defaults
//
// Outputs:
//
//	error - Wraps ErrHandshakeFailed, or ErrInvalidState if called twice
func (c *Conn) Initialize(ctx context.Context, params InitializeParams) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if !c.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		if s := c.State(); s >= StateClosing {
			return c.closedError()
		}
		return fmt.Errorf("%w: initialize called in state %s", ErrInvalidState, c.State())
	}

	c.loopOnce.Do(func() { go c.readLoop() })

	if params.ClientInfo == nil {
		params.ClientInfo = &ClientInfo{Name: "crush"}
	}
	if params.Capabilities.TextDocument == nil {
		params.Capabilities = DefaultClientCapabilities()
	}

	var result InitializeResult
	if err := c.call(ctx, MethodInitialize.Name, params, &result); err != nil {
		return c.failHandshake(err)
	}

	c.mu.Lock()
	c.initResult = result
	c.mu.Unlock()

	if err := c.notify(ctx, NotifyInitialized, struct{}{}); err != nil {
		return c.failHandshake(err)
	}

	if !c.state.CompareAndSwap(int32(StateInitializing), int32(StateReady)) {
		return c.failHandshake(c.closedError())
	}

	serverName := ""
	if result.ServerInfo != nil {
		serverName = result.ServerInfo.Name
	}
	slog.Info("LSP connection ready",
		slog.String("server", serverName),
		slog.Int("pid", c.pid()),
	)
	return nil
}

func (c *Conn) failHandshake(cause error) error {
	err := fmt.Errorf("%w: %w", ErrHandshakeFailed, cause)
	c.teardown(err)
	<-c.readDone
	return err
}

// Call sends a request and waits for its response.
//
// Description:
//
//	Allocates the next id, registers a waiter, writes the frame, and
//	blocks until the response arrives, the connection dies, or ctx ends.
//	A result of null leaves result untouched.
//
// Inputs:
//
//	ctx - Bounds the wait. When it ends the request stays registered until
//	      its response or teardown, and $/cancelRequest is sent if
//	      Options.CancelOnAbandon is set.
//	method - Request method
//	params - Marshaled to JSON; nil omits params
//	result - Pointer to decode the result into, or nil to discard it
//
// Outputs:
//
//	error - nil, *RPCError, ctx.Err(), or an error wrapping one of
//	        ErrInvalidState, ErrConnectionClosed, ErrTransportClosed
//
// Thread Safety:
//
//	Safe for concurrent use.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	return c.call(ctx, method, params, result)
}

// Notify sends a notification. No response is expected.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	return c.notify(ctx, method, params)
}

// Shutdown asks the server to exit, then closes the connection.
//
// Description:
//
//	In StateReady, sends shutdown and waits for its answer, then sends
//	exit. In any other state it only closes. The connection is closed
//	when Shutdown returns, whatever the server did.
func (c *Conn) Shutdown(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateReady), int32(StateClosing)) {
		return c.Close()
	}

	var err error
	if callErr := c.call(ctx, MethodShutdown.Name, nil, nil); callErr != nil {
		err = fmt.Errorf("shutdown request: %w", callErr)
	} else if notifyErr := c.notify(ctx, NotifyExit, nil); notifyErr != nil {
		err = fmt.Errorf("exit notification: %w", notifyErr)
	}

	_ = c.Close()
	return err
}

// Close tears the connection down.
//
// Description:
//
//	Fails outstanding requests with ErrConnectionClosed, kills the server
//	process, closes the streams and waits for the read loop to exit. Later
//	calls return immediately.
//
// Thread Safety:
//
//	Safe for concurrent use, including with in-flight requests.
func (c *Conn) Close() error {
	c.teardown(ErrConnectionClosed)
	c.loopOnce.Do(func() { close(c.readDone) })
	<-c.readDone
	return nil
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Capabilities returns the raw server capabilities from the handshake.
func (c *Conn) Capabilities() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initResult.Capabilities
}

// ServerInfo returns the server's self-description, if it sent one.
func (c *Conn) ServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initResult.ServerInfo
}

// HasCapability reports whether the server advertised the named top-level
// capability with a value other than false or null.
func (c *Conn) HasCapability(name string) bool {
	var caps map[string]json.RawMessage
	if err := json.Unmarshal(c.Capabilities(), &caps); err != nil {
		return false
	}
	raw, ok := caps[name]
	if !ok || isNull(raw) {
		return false
	}
	return !bytes.Equal(bytes.TrimSpace(raw), []byte("false"))
}

// Process returns the owned server process, or nil for Open/New connections.
func (c *Conn) Process() *Process {
	return c.proc
}

// Pending returns the number of requests awaiting a response.
func (c *Conn) Pending() int {
	return c.pending.len()
}

// =============================================================================
// INTERNALS
// =============================================================================

func (c *Conn) checkReady() error {
	switch s := c.State(); s {
	case StateReady:
		return nil
	case StateClosing, StateClosed:
		return c.closedError()
	default:
		return fmt.Errorf("%w: state is %s", ErrInvalidState, s)
	}
}

// closedError is returned to callers arriving after teardown. It keeps the
// terminal cause when the connection died on its own.
func (c *Conn) closedError() error {
	c.mu.RLock()
	cause := c.termErr
	c.mu.RUnlock()

	if cause == nil || errors.Is(cause, ErrConnectionClosed) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
}

func (c *Conn) call(ctx context.Context, method string, params, result any) (err error) {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := startRequestSpan(ctx, method)
	start := time.Now()
	var id ID
	defer func() {
		endRequestSpan(span, id, err)
		recordRequest(ctx, method, time.Since(start), err)
	}()

	var waiter <-chan outcome
	writeErr := c.transport.WriteFunc(func() (Message, error) {
		c.nextID++
		id = NumberID(c.nextID)
		ch, regErr := c.pending.register(id)
		if regErr != nil {
			return nil, regErr
		}
		waiter = ch
		return &Request{ID: id, Method: method, Params: raw}, nil
	})
	if writeErr != nil {
		if waiter != nil {
			c.pending.forget(id)
			if errors.Is(writeErr, ErrTransportClosed) {
				c.teardown(writeErr)
			}
		}
		return writeErr
	}

	select {
	case o := <-waiter:
		if o.err != nil {
			return o.err
		}
		return decodeResult(method, o.result, result)
	case <-ctx.Done():
		if c.opts.CancelOnAbandon {
			c.cancelRequest(id)
		}
		return ctx.Err()
	}
}

func (c *Conn) notify(ctx context.Context, method string, params any) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	if err := c.transport.Write(&Notification{Method: method, Params: raw}); err != nil {
		if errors.Is(err, ErrTransportClosed) {
			c.teardown(err)
		}
		return err
	}
	return nil
}

// cancelRequest tells the server the caller gave up on id. Best effort.
func (c *Conn) cancelRequest(id ID) {
	if c.State() != StateReady {
		return
	}
	raw, err := json.Marshal(CancelParams{ID: id})
	if err != nil {
		return
	}
	if err := c.transport.Write(&Notification{Method: NotifyCancel, Params: raw}); err != nil {
		slog.Debug("Send cancel request",
			slog.String("id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Conn) readLoop() {
	defer close(c.readDone)

	err := c.transport.ReadLoop(c.dispatch)

	if s := c.State(); s == StateReady || s == StateInitializing {
		slog.Warn("LSP read loop terminated",
			slog.Int("pid", c.pid()),
			slog.String("error", err.Error()),
		)
	}
	if !errors.Is(err, ErrTransportClosed) {
		err = fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}
	c.teardown(err)
}

// dispatch routes one inbound message. Runs on the read loop goroutine.
func (c *Conn) dispatch(msg Message) {
	switch m := msg.(type) {
	case *Response:
		o := outcome{result: m.Result}
		if m.Error != nil {
			o = outcome{err: m.Error}
		}
		if !c.pending.resolve(m.ID, o) {
			recordDroppedResponse()
		}

	case *Notification:
		if c.opts.OnNotification != nil {
			c.opts.OnNotification(m.Method, m.Params)
			return
		}
		slog.Debug("LSP notification dropped", slog.String("method", m.Method))

	case *Request:
		go c.answer(m)
	}
}

// answer replies to a server-initiated request.
func (c *Conn) answer(req *Request) {
	resp := &Response{ID: req.ID}

	if c.opts.OnRequest == nil {
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "unsupported method: " + req.Method}
	} else {
		result, err := c.opts.OnRequest(c.handlerCtx, req.Method, req.Params)
		var rpcErr *RPCError
		switch {
		case errors.As(err, &rpcErr):
			resp.Error = rpcErr
		case err != nil:
			resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		default:
			raw, merr := marshalParams(result)
			if merr != nil {
				resp.Error = &RPCError{Code: CodeInternalError, Message: merr.Error()}
			} else {
				resp.Result = raw
			}
		}
	}

	if err := c.transport.Write(resp); err != nil {
		slog.Debug("Reply to server request",
			slog.String("method", req.Method),
			slog.String("error", err.Error()),
		)
	}
}

// teardown runs once: fails pending requests with cause, closes the
// streams and kills the process.
func (c *Conn) teardown(cause error) {
	c.teardownOnce.Do(func() {
		c.state.Store(int32(StateClosing))

		c.mu.Lock()
		c.termErr = cause
		c.mu.Unlock()

		c.pending.failAll(cause)
		c.handlerCancel()

		if err := c.transport.Close(); err != nil {
			slog.Debug("Close LSP streams", slog.String("error", err.Error()))
		}
		if c.proc != nil {
			c.proc.Kill()
		}

		c.state.Store(int32(StateClosed))
		slog.Debug("LSP connection closed",
			slog.Int("pid", c.pid()),
			slog.String("cause", cause.Error()),
		)
	})
}

func (c *Conn) pid() int {
	if c.proc == nil {
		return 0
	}
	return c.proc.Pid()
}

func marshalParams(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

func decodeResult(method string, raw json.RawMessage, result any) error {
	if result == nil || len(raw) == 0 || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
