// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsptest provides a scriptable in-process language server for
// tests of code that talks to services/lsp.
package lsptest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/AleutianAI/crush/services/lsp"
)

// ErrNoReply makes a Handler leave the request unanswered.
var ErrNoReply = errors.New("lsptest: no reply")

// Handler answers one request. Returning an *lsp.RPCError sends it as the
// error object; ErrNoReply sends nothing.
type Handler func(params json.RawMessage) (any, error)

// Server is a sequential stub language server.
//
// Requests are answered in arrival order by the handler registered for
// their method; unknown methods get MethodNotFound. Serve returns after
// the exit notification or when the input ends.
type Server struct {
	// Handlers maps request methods to handlers. initialize and shutdown
	// have defaults that can be overridden here.
	Handlers map[string]Handler

	// OnNotify, if set, sees every notification from the client.
	OnNotify func(method string, params json.RawMessage)

	mu       sync.Mutex
	received []string
	writeMu  sync.Mutex
	w        io.Writer
}

// NewServer returns a server answering initialize with a capability set
// that advertises document symbols.
func NewServer() *Server {
	return &Server{Handlers: map[string]Handler{}}
}

// Handle registers h for method and returns s.
func (s *Server) Handle(method string, h Handler) *Server {
	if s.Handlers == nil {
		s.Handlers = map[string]Handler{}
	}
	s.Handlers[method] = h
	return s
}

// Received returns the methods of every message seen so far, in order.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// Serve reads client messages from r and writes replies to w.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	s.writeMu.Lock()
	s.w = w
	s.writeMu.Unlock()

	dec := lsp.NewDecoder(r)
	for {
		msg, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case *lsp.Request:
			s.record(m.Method)
			if err := s.answer(m); err != nil {
				return err
			}
		case *lsp.Notification:
			s.record(m.Method)
			if s.OnNotify != nil {
				s.OnNotify(m.Method, m.Params)
			}
			if m.Method == lsp.NotifyExit {
				return nil
			}
		case *lsp.Response:
			s.record("response")
		}
	}
}

// Notify sends a server notification to the client. Only valid while
// Serve is running.
func (s *Server) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return s.write(&lsp.Notification{Method: method, Params: raw})
}

func (s *Server) record(method string) {
	s.mu.Lock()
	s.received = append(s.received, method)
	s.mu.Unlock()
}

func (s *Server) answer(req *lsp.Request) error {
	h, ok := s.Handlers[req.Method]
	if !ok {
		h = defaultHandler(req.Method)
	}

	resp := &lsp.Response{ID: req.ID}
	if h == nil {
		resp.Error = &lsp.RPCError{Code: lsp.CodeMethodNotFound, Message: "method not found: " + req.Method}
		return s.write(resp)
	}

	result, err := h(req.Params)
	var rpcErr *lsp.RPCError
	switch {
	case errors.Is(err, ErrNoReply):
		return nil
	case errors.As(err, &rpcErr):
		resp.Error = rpcErr
	case err != nil:
		resp.Error = &lsp.RPCError{Code: lsp.CodeInternalError, Message: err.Error()}
	default:
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal %s result: %w", req.Method, err)
		}
		resp.Result = raw
	}
	return s.write(resp)
}

func (s *Server) write(msg lsp.Message) error {
	frame, err := lsp.Encode(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.w == nil {
		return errors.New("lsptest: server not serving")
	}
	_, err = s.w.Write(frame)
	return err
}

func defaultHandler(method string) Handler {
	switch method {
	case lsp.MethodInitialize.Name:
		return func(json.RawMessage) (any, error) {
			return map[string]any{
				"capabilities": map[string]any{"documentSymbolProvider": true},
				"serverInfo":   map[string]any{"name": "lsptest", "version": "0.1.0"},
			}, nil
		}
	case lsp.MethodShutdown.Name:
		return func(json.RawMessage) (any, error) { return nil, nil }
	}
	return nil
}

// Pipe runs s on an in-memory pipe pair and returns the client ends.
//
// The returned channel yields Serve's result once the client closes its
// writer or sends exit; the server's writer is closed at that point so the
// client sees EOF.
func Pipe(s *Server) (clientR io.ReadCloser, clientW io.WriteCloser, done <-chan error) {
	serverR, cw := io.Pipe()
	cr, serverW := io.Pipe()

	ch := make(chan error, 1)
	go func() {
		err := s.Serve(serverR, serverW)
		_ = serverW.Close()
		_ = serverR.Close()
		ch <- err
	}()
	return cr, cw, ch
}
