// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codecontext

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/crush/services/lsp"
)

// maxContextFiles caps how many mentioned files get an outline per turn.
const maxContextFiles = 5

// FormatOutline renders a symbol result as an indented outline with
// one-based line numbers.
func FormatOutline(path string, result lsp.DocumentSymbolResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", path)
	if result.Len() == 0 {
		b.WriteString("  (no symbols)\n")
		return b.String()
	}
	writeSymbols(&b, result.Symbols, 1)
	for _, s := range result.Flat {
		container := ""
		if s.ContainerName != "" {
			container = " in " + s.ContainerName
		}
		fmt.Fprintf(&b, "  %s %s%s (line %d)\n", s.Kind, s.Name, container, s.Location.Range.Start.Line+1)
	}
	return b.String()
}

func writeSymbols(b *strings.Builder, symbols []lsp.DocumentSymbol, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, s := range symbols {
		detail := ""
		if s.Detail != "" {
			detail = " " + s.Detail
		}
		fmt.Fprintf(b, "%s%s %s%s (line %d)\n", indent, s.Kind, s.Name, detail, s.Range.Start.Line+1)
		writeSymbols(b, s.Children, depth+1)
	}
}

// mentionedFiles returns paths in text that name existing regular files
// some server handles, in order of first mention.
func (m *Manager) mentionedFiles(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '"', '\'', '`', ',', '(', ')', '[', ']', '<', '>':
			return true
		}
		return false
	})

	seen := make(map[string]bool)
	var files []string
	for _, f := range fields {
		f = strings.TrimRight(f, ".:;!?")
		if f == "" || seen[f] || !m.Handles(f) {
			continue
		}
		info, err := os.Stat(m.resolve(f))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		seen[f] = true
		files = append(files, f)
		if len(files) == maxContextFiles {
			break
		}
	}
	return files
}

// Gather builds the context block for a user message: an outline of
// every mentioned file a language server handles, then the tools of each
// MCP server. Failures only drop their section. An empty string means
// there is nothing to add.
func (m *Manager) Gather(ctx context.Context, message string) string {
	files := m.mentionedFiles(message)
	servers := []string(nil)
	if m.mcp != nil {
		servers = m.mcp.Servers()
	}

	sections := make([]string, len(files)+len(servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			result, err := m.DocumentSymbols(gctx, path)
			if err != nil {
				slog.Warn("Skipping file outline",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				return nil
			}
			sections[i] = FormatOutline(path, result)
			return nil
		})
	}
	for i, name := range servers {
		g.Go(func() error {
			tools, err := m.mcp.ListTools(gctx, name)
			if err != nil {
				slog.Warn("Skipping MCP tool listing",
					slog.String("server", name),
					slog.String("error", err.Error()),
				)
				return nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "MCP server %s tools:\n", name)
			for _, t := range tools {
				fmt.Fprintf(&b, "  %s: %s\n", t.Name, t.Description)
			}
			sections[len(files)+i] = b.String()
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	for _, s := range sections {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}
