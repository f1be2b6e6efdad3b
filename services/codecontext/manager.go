// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package codecontext gathers code context for a chat turn from the
// configured language servers and MCP servers.
package codecontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/crush/services/config"
	"github.com/AleutianAI/crush/services/lsp"
	"github.com/AleutianAI/crush/services/mcp"
)

// ErrNoServer is returned for a file no running language server handles.
var ErrNoServer = errors.New("no language server for file")

const (
	clientName    = "crush"
	clientVersion = "0.1.0"

	// maxParallelDials bounds concurrent server start-up.
	maxParallelDials = 4

	shutdownTimeout = 3 * time.Second
)

// Dialer starts one language server and completes its handshake.
type Dialer func(ctx context.Context, name string, srv config.LSPServer, params lsp.InitializeParams) (*lsp.Conn, error)

// ToolLister lists MCP tools. *mcp.Pool satisfies it.
type ToolLister interface {
	Servers() []string
	ListTools(ctx context.Context, server string) ([]mcp.ToolInfo, error)
}

// Options configures Open.
type Options struct {
	// Root is the workspace root. Empty means the working directory.
	Root string

	// Dial replaces the default process-spawning dialer.
	Dial Dialer

	// MCP, if set, contributes tool listings to Gather.
	MCP ToolLister

	// Stderr receives language server stderr. Nil discards it.
	Stderr io.Writer

	// WatchDebounce batches file changes seen by Watch. Zero means 200ms.
	WatchDebounce time.Duration

	// WatchExclude holds glob patterns (gobwas/glob syntax, "/" as the
	// separator) for paths Watch ignores. A pattern matches either the
	// root-relative path or the base name.
	WatchExclude []string
}

// languageServer is one live connection.
type languageServer struct {
	name string
	conn *lsp.Conn

	// mu serializes open/request/close so two lookups of the same
	// document do not interleave their didOpen and didClose.
	mu sync.Mutex
}

// Manager owns one lsp.Conn per configured language server and routes
// files to them by extension.
//
// # Thread Safety
//
// Safe for concurrent use. Requests to different servers run in
// parallel; requests to one server are serialized.
type Manager struct {
	root    string
	servers map[string]*languageServer
	byExt   map[string]*languageServer
	mcp     ToolLister

	watchDebounce time.Duration
	watchExclude  []string
	watcher       *watcher
}

// Open starts every enabled server concurrently.
//
// # Description
//
// A server that fails to start is logged and skipped; crush keeps
// working without its outline. Open itself only fails when the root
// cannot be resolved.
func Open(ctx context.Context, servers map[string]config.LSPServer, opts Options) (*Manager, error) {
	root := opts.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving workspace root: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}

	dial := opts.Dial
	if dial == nil {
		dial = processDialer(root, opts.Stderr)
	}

	m := &Manager{
		root:          root,
		servers:       make(map[string]*languageServer),
		byExt:         make(map[string]*languageServer),
		mcp:           opts.MCP,
		watchDebounce: opts.WatchDebounce,
		watchExclude:  opts.WatchExclude,
	}
	if m.watchDebounce <= 0 {
		m.watchDebounce = defaultWatchDebounce
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDials)
	for name, srv := range servers {
		if srv.Disabled {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			conn, err := dial(gctx, name, srv, initializeParams(root, srv))
			if err != nil {
				slog.Warn("Language server unavailable",
					slog.String("server", name),
					slog.String("command", srv.Command),
					slog.String("error", err.Error()),
				)
				return nil
			}
			slog.Info("Language server ready",
				slog.String("server", name),
				slog.Duration("duration", time.Since(start)),
			)

			mu.Lock()
			defer mu.Unlock()
			ls := &languageServer{name: name, conn: conn}
			m.servers[name] = ls
			for _, ext := range srv.Extensions {
				m.byExt[strings.ToLower(ext)] = ls
			}
			return nil
		})
	}
	_ = g.Wait()
	return m, nil
}

func initializeParams(root string, srv config.LSPServer) lsp.InitializeParams {
	rootURI := lsp.FileURI(root)
	params := lsp.InitializeParams{
		ClientInfo:       &lsp.ClientInfo{Name: clientName, Version: clientVersion},
		RootURI:          rootURI,
		Capabilities:     lsp.DefaultClientCapabilities(),
		WorkspaceFolders: []lsp.WorkspaceFolder{{URI: rootURI, Name: filepath.Base(root)}},
	}
	if len(srv.InitializationOptions) > 0 {
		params.InitializationOptions = srv.InitializationOptions
	}
	return params
}

// processDialer spawns servers as child processes rooted at root.
func processDialer(root string, stderr io.Writer) Dialer {
	if stderr == nil {
		stderr = io.Discard
	}
	return func(ctx context.Context, name string, srv config.LSPServer, params lsp.InitializeParams) (*lsp.Conn, error) {
		cfg := lsp.ServerConfig{
			Command: srv.Command,
			Args:    srv.Args,
			Env:     srv.Env,
			Dir:     root,
			Stderr:  stderr,
		}
		opts := lsp.Options{
			RequestTimeout:  srv.Timeout(),
			CancelOnAbandon: true,
			OnNotification: func(method string, params json.RawMessage) {
				slog.Debug("Language server notification",
					slog.String("server", name),
					slog.String("method", method),
				)
			},
		}
		return lsp.Dial(ctx, cfg, params, opts)
	}
}

// Root returns the workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Servers returns the names of running servers, sorted.
func (m *Manager) Servers() []string {
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Conn returns the connection of a running server.
func (m *Manager) Conn(name string) (*lsp.Conn, bool) {
	ls, ok := m.servers[name]
	if !ok {
		return nil, false
	}
	return ls.conn, true
}

// serverFor picks the server for path by extension.
func (m *Manager) serverFor(path string) (*languageServer, bool) {
	ls, ok := m.byExt[strings.ToLower(filepath.Ext(path))]
	return ls, ok
}

// Handles reports whether some running server accepts path.
func (m *Manager) Handles(path string) bool {
	_, ok := m.serverFor(path)
	return ok
}

// resolve makes path absolute against the workspace root.
func (m *Manager) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.root, path)
}

// DocumentSymbols returns the outline of the file at path.
//
// # Description
//
// Sends didOpen with the file's current content, asks for its symbols,
// then sends didClose whether or not the request succeeded.
//
// # Errors
//
//   - ErrNoServer when no running server handles the extension
//   - file read errors
//   - errors from the connection (*lsp.RPCError, lsp.ErrInvalidState, ...)
func (m *Manager) DocumentSymbols(ctx context.Context, path string) (lsp.DocumentSymbolResult, error) {
	ls, ok := m.serverFor(path)
	if !ok {
		return lsp.DocumentSymbolResult{}, fmt.Errorf("%w: %s", ErrNoServer, path)
	}

	abs := m.resolve(path)
	text, err := os.ReadFile(abs)
	if err != nil {
		return lsp.DocumentSymbolResult{}, err
	}
	uri := lsp.FileURI(abs)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	err = ls.conn.Notify(ctx, lsp.NotifyDidOpen, lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{URI: uri, LanguageID: languageID(abs), Version: 1, Text: string(text)},
	})
	if err != nil {
		return lsp.DocumentSymbolResult{}, fmt.Errorf("%s: didOpen %s: %w", ls.name, path, err)
	}
	defer func() {
		closeCtx := context.WithoutCancel(ctx)
		if err := ls.conn.Notify(closeCtx, lsp.NotifyDidClose, lsp.DidCloseTextDocumentParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		}); err != nil {
			slog.Debug("didClose failed",
				slog.String("server", ls.name),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}()

	result, err := lsp.Send(ctx, ls.conn, lsp.MethodDocumentSymbol, lsp.DocumentSymbolParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
	})
	if err != nil {
		return lsp.DocumentSymbolResult{}, fmt.Errorf("%s: documentSymbol %s: %w", ls.name, path, err)
	}
	return result, nil
}

// Close stops watching and shuts every server down, each bounded by a
// short timeout.
func (m *Manager) Close() error {
	if m.watcher != nil {
		m.watcher.stop()
	}
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for name, ls := range m.servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := ls.conn.Shutdown(ctx); err != nil {
				slog.Debug("Language server shutdown failed",
					slog.String("server", name),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
