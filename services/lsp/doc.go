// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp is a minimal JSON-RPC 2.0 client for language servers that
// speak over a child process's stdin/stdout.
//
// Crush uses it to pull code structure (document symbols) into the prompt
// it sends to the model. The package only transports messages: it never
// interprets result payloads beyond routing them to the waiting caller.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                              Conn                                │
//	│   state machine: uninitialized → initializing → ready → closed   │
//	│                                                                  │
//	│   Call/Notify ──► pendingTable ──► Transport.WriteFunc ──► stdin │
//	│                        ▲                                         │
//	│                        └──── dispatch ◄── Transport.ReadLoop ◄── stdout
//	│                                                                  │
//	│   Process: spawn, stderr passthrough, kill-once                  │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Components
//
//   - Decoder / Encode: Content-Length framing of a single message
//   - Transport: serialized writes and the single sequential read loop
//   - pendingTable: request id → waiting caller
//   - Conn: handshake state machine and the public request API
//   - Process: the language server child process
//
// # Thread Safety
//
// Conn is safe for concurrent use once Initialize has returned. The read
// loop is the only reader of the server's stdout.
//
// # Example
//
//	conn, err := lsp.Dial(ctx, lsp.ServerConfig{Command: "gopls"}, lsp.InitializeParams{
//	    RootURI: lsp.FileURI(root),
//	}, lsp.Options{})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	symbols, err := lsp.Send(ctx, conn, lsp.MethodDocumentSymbol, lsp.DocumentSymbolParams{
//	    TextDocument: lsp.TextDocumentIdentifier{URI: lsp.FileURI(path)},
//	})
package lsp
