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
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for the LSP client.
var (
	// ErrSpawnFailed indicates the language server process could not be started.
	ErrSpawnFailed = errors.New("lsp server spawn failed")

	// ErrHandshakeFailed indicates the initialize handshake did not reach the ready state.
	ErrHandshakeFailed = errors.New("lsp handshake failed")

	// ErrFraming indicates a malformed or truncated Content-Length frame.
	ErrFraming = errors.New("lsp framing error")

	// ErrProtocol indicates a frame body that is not a well-formed JSON-RPC message.
	ErrProtocol = errors.New("lsp protocol error")

	// ErrUnknownMessageShape indicates a JSON object that is neither a request,
	// a response, nor a notification. It also matches ErrProtocol.
	ErrUnknownMessageShape = fmt.Errorf("%w: unknown message shape", ErrProtocol)

	// ErrTransportClosed indicates the server's streams ended or a write failed.
	ErrTransportClosed = errors.New("lsp transport closed")

	// ErrInvalidState indicates an operation attempted outside the ready state.
	ErrInvalidState = errors.New("lsp connection not ready")

	// ErrConnectionClosed indicates the connection was closed by its owner.
	// It also matches ErrInvalidState.
	ErrConnectionClosed = fmt.Errorf("%w: connection closed", ErrInvalidState)
)

// JSON-RPC and LSP error codes.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeUnknownError         = -32001
	CodeRequestCancelled     = -32800
)

// RPCError is an error object returned by the server for a single request.
//
// Only the caller that issued the request sees it; the connection stays
// usable.
type RPCError struct {
	// Code is the JSON-RPC error code.
	Code int `json:"code"`

	// Message is a short description from the server.
	Message string `json:"message"`

	// Data carries optional server-defined detail.
	Data json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("lsp rpc error %d: %s (data: %s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("lsp rpc error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound returns true if the server does not implement the method.
func (e *RPCError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}

// IsRequestCancelled returns true if the server cancelled the request.
func (e *RPCError) IsRequestCancelled() bool {
	return e.Code == CodeRequestCancelled
}

// IsServerNotInitialized returns true if the server has not seen initialize yet.
func (e *RPCError) IsServerNotInitialized() bool {
	return e.Code == CodeServerNotInitialized
}
