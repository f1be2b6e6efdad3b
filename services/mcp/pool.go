// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mcp connects to Model Context Protocol servers over stdio and
// exposes their tools to the assistant.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AleutianAI/crush/services/config"
)

// ErrUnknownServer is returned for a server name that is not configured
// or is disabled.
var ErrUnknownServer = errors.New("unknown MCP server")

const (
	clientName    = "crush"
	clientVersion = "0.1.0"
)

// ToolInfo describes one tool a server offers.
type ToolInfo struct {
	Name        string
	Description string
}

// CallResult is a tool's answer flattened to text.
type CallResult struct {
	Text    string
	IsError bool
}

// connection wraps one live client so tests can substitute it.
type connection struct {
	listTools func(ctx context.Context) ([]mcp.Tool, error)
	callTool  func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	close     func() error
}

// Pool holds MCP clients, started on first use and reused afterwards.
//
// # Thread Safety
//
// Safe for concurrent use. Connecting holds the pool lock, so two
// callers never start the same server twice.
type Pool struct {
	servers map[string]config.MCPServer

	mu    sync.Mutex
	conns map[string]*connection

	// connect is swapped in tests.
	connect func(ctx context.Context, name string, srv config.MCPServer) (*connection, error)
}

// New builds a pool over the enabled servers. Nothing is started yet.
func New(servers map[string]config.MCPServer) *Pool {
	enabled := make(map[string]config.MCPServer, len(servers))
	for name, srv := range servers {
		if !srv.Disabled {
			enabled[name] = srv
		}
	}
	return &Pool{
		servers: enabled,
		conns:   make(map[string]*connection),
		connect: connectStdio,
	}
}

// Servers returns the configured server names, sorted.
func (p *Pool) Servers() []string {
	names := make([]string, 0, len(p.servers))
	for name := range p.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func connectStdio(ctx context.Context, name string, srv config.MCPServer) (*connection, error) {
	env := make([]string, 0, len(srv.Env))
	for k, v := range srv.Env {
		env = append(env, k+"="+v)
	}

	c, err := mcpclient.NewStdioMCPClient(srv.Command, env, srv.Args...)
	if err != nil {
		return nil, fmt.Errorf("creating stdio client: %w", err)
	}

	if _, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: clientName, Version: clientVersion},
			Capabilities:    mcp.ClientCapabilities{},
		},
	}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initializing: %w", err)
	}
	slog.Info("MCP server connected",
		slog.String("server", name),
		slog.String("command", srv.Command),
	)

	return &connection{
		listTools: func(ctx context.Context) ([]mcp.Tool, error) {
			result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
			if err != nil {
				return nil, err
			}
			return result.Tools, nil
		},
		callTool: func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
			return c.CallTool(ctx, mcp.CallToolRequest{
				Params: mcp.CallToolParams{Name: name, Arguments: args},
			})
		},
		close: c.Close,
	}, nil
}

func (p *Pool) getOrCreate(ctx context.Context, server string) (*connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[server]; ok {
		return conn, nil
	}
	srv, ok := p.servers[server]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}

	conn, err := p.connect(ctx, server, srv)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", server, err)
	}
	p.conns[server] = conn
	return conn, nil
}

// invalidate drops a connection after a failed call so the next use
// restarts the server.
func (p *Pool) invalidate(server string, conn *connection) {
	p.mu.Lock()
	if current, ok := p.conns[server]; ok && current == conn {
		delete(p.conns, server)
	}
	p.mu.Unlock()

	if conn != nil && conn.close != nil {
		if err := conn.close(); err != nil {
			slog.Debug("Closing MCP connection failed",
				slog.String("server", server),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ListTools returns the tools a server offers, starting it if needed.
func (p *Pool) ListTools(ctx context.Context, server string) ([]ToolInfo, error) {
	conn, err := p.getOrCreate(ctx, server)
	if err != nil {
		return nil, err
	}

	tools, err := conn.listTools(ctx)
	if err != nil {
		p.invalidate(server, conn)
		return nil, fmt.Errorf("%s: listing tools: %w", server, err)
	}

	infos := make([]ToolInfo, len(tools))
	for i, t := range tools {
		infos[i] = ToolInfo{Name: t.Name, Description: t.Description}
	}
	return infos, nil
}

// CallTool invokes tool on server. A nil args map sends an empty object.
func (p *Pool) CallTool(ctx context.Context, server, tool string, args map[string]any) (*CallResult, error) {
	conn, err := p.getOrCreate(ctx, server)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := conn.callTool(ctx, tool, args)
	if err != nil {
		p.invalidate(server, conn)
		return nil, fmt.Errorf("%s: calling %s: %w", server, tool, err)
	}
	return flatten(result), nil
}

// CloseAll stops every started server.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*connection)
	p.mu.Unlock()

	var errs []error
	for name, conn := range conns {
		if conn.close == nil {
			continue
		}
		if err := conn.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// flatten joins text content and appends structured content as JSON.
func flatten(result *mcp.CallToolResult) *CallResult {
	if result == nil {
		return &CallResult{}
	}
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(c); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	if result.StructuredContent != nil && len(parts) == 0 {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			parts = append(parts, string(data))
		}
	}
	return &CallResult{Text: strings.Join(parts, "\n"), IsError: result.IsError}
}
