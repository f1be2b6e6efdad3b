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
	"context"
	"encoding/json"
)

// Method binds a request method name to its params and result types.
//
// Call sites declare the shape they expect, so a result that does not
// decode fails only that call.
type Method[P, R any] struct {
	Name string
}

// Request methods.
var (
	MethodInitialize     = Method[InitializeParams, InitializeResult]{Name: "initialize"}
	MethodShutdown       = Method[any, json.RawMessage]{Name: "shutdown"}
	MethodDocumentSymbol = Method[DocumentSymbolParams, DocumentSymbolResult]{Name: "textDocument/documentSymbol"}
)

// Notification method names.
const (
	NotifyInitialized = "initialized"
	NotifyExit        = "exit"
	NotifyDidOpen     = "textDocument/didOpen"
	NotifyDidClose    = "textDocument/didClose"
	NotifyCancel      = "$/cancelRequest"

	NotifyDidChangeWatchedFiles = "workspace/didChangeWatchedFiles"
)

// Unparsed returns a method whose params are sent as given and whose
// result is returned undecoded.
func Unparsed(name string) Method[any, json.RawMessage] {
	return Method[any, json.RawMessage]{Name: name}
}

// Send sends a typed request on c and decodes the result.
//
// Description:
//
//	Thin typed wrapper over Conn.Call. The zero R is returned on error or
//	when the server answers null.
//
// Inputs:
//
//	ctx - Bounds how long the caller waits
//	c - A ready connection
//	m - The method, fixing the params and result types
//	params - Request params
//
// Outputs:
//
//	R - Decoded result
//	error - See Conn.Call
func Send[P, R any](ctx context.Context, c *Conn, m Method[P, R], params P) (R, error) {
	var result R
	if err := c.Call(ctx, m.Name, params, &result); err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
