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
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// =============================================================================
// POSITIONS
// =============================================================================

// Position is a zero-based line/character offset in a document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range inside a specific document.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// TextDocumentIdentifier names a document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentItem is a document's full content, sent on didOpen.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// DidOpenTextDocumentParams are the params of textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidCloseTextDocumentParams are the params of textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// CancelParams are the params of $/cancelRequest.
type CancelParams struct {
	ID ID `json:"id"`
}

// FileURI converts a filesystem path into a file:// URI.
//
// Relative paths are resolved against the working directory. If that fails
// the path is used as given.
func FileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		// Windows drive letter: C:/x -> /C:/x
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// URIToPath converts a file:// URI back into a filesystem path.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("uri %q: unsupported scheme %q", uri, u.Scheme)
	}
	p := u.Path
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}

// =============================================================================
// SYMBOLS
// =============================================================================

// FileChangeType is the kind of a watched-file event.
type FileChangeType int

const (
	FileCreated FileChangeType = 1
	FileChanged FileChangeType = 2
	FileDeleted FileChangeType = 3
)

// FileEvent is one changed file.
type FileEvent struct {
	URI  string         `json:"uri"`
	Type FileChangeType `json:"type"`
}

// DidChangeWatchedFilesParams are the params of
// workspace/didChangeWatchedFiles.
type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes"`
}

// DocumentSymbolParams are the params of textDocument/documentSymbol.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// SymbolKind classifies a symbol.
type SymbolKind int

// Symbol kinds defined by LSP.
const (
	SymbolKindFile          SymbolKind = 1
	SymbolKindModule        SymbolKind = 2
	SymbolKindNamespace     SymbolKind = 3
	SymbolKindPackage       SymbolKind = 4
	SymbolKindClass         SymbolKind = 5
	SymbolKindMethod        SymbolKind = 6
	SymbolKindProperty      SymbolKind = 7
	SymbolKindField         SymbolKind = 8
	SymbolKindConstructor   SymbolKind = 9
	SymbolKindEnum          SymbolKind = 10
	SymbolKindInterface     SymbolKind = 11
	SymbolKindFunction      SymbolKind = 12
	SymbolKindVariable      SymbolKind = 13
	SymbolKindConstant      SymbolKind = 14
	SymbolKindString        SymbolKind = 15
	SymbolKindNumber        SymbolKind = 16
	SymbolKindBoolean       SymbolKind = 17
	SymbolKindArray         SymbolKind = 18
	SymbolKindObject        SymbolKind = 19
	SymbolKindKey           SymbolKind = 20
	SymbolKindNull          SymbolKind = 21
	SymbolKindEnumMember    SymbolKind = 22
	SymbolKindStruct        SymbolKind = 23
	SymbolKindEvent         SymbolKind = 24
	SymbolKindOperator      SymbolKind = 25
	SymbolKindTypeParameter SymbolKind = 26
)

var symbolKindNames = [...]string{
	"", "file", "module", "namespace", "package", "class", "method", "property",
	"field", "constructor", "enum", "interface", "function", "variable",
	"constant", "string", "number", "boolean", "array", "object", "key", "null",
	"enum member", "struct", "event", "operator", "type parameter",
}

// String returns the lower-case kind name.
func (k SymbolKind) String() string {
	if k > 0 && int(k) < len(symbolKindNames) {
		return symbolKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DocumentSymbol is one node of a hierarchical symbol outline.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Deprecated     bool             `json:"deprecated,omitempty"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is one entry of a flat symbol list.
type SymbolInformation struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Deprecated    bool       `json:"deprecated,omitempty"`
	Location      Location   `json:"location"`
	ContainerName string     `json:"containerName,omitempty"`
}

// DocumentSymbolResult is the result of textDocument/documentSymbol.
//
// Servers answer with either DocumentSymbol[] or SymbolInformation[]; at
// most one of Symbols and Flat is set. A null result leaves both empty.
type DocumentSymbolResult struct {
	Symbols []DocumentSymbol
	Flat    []SymbolInformation
}

// Len returns the number of top-level entries.
func (r DocumentSymbolResult) Len() int {
	return len(r.Symbols) + len(r.Flat)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *DocumentSymbolResult) UnmarshalJSON(data []byte) error {
	*r = DocumentSymbolResult{}
	if isNull(data) {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("document symbol result: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(items[0], &probe); err != nil {
		return fmt.Errorf("document symbol result: %w", err)
	}
	if _, flat := probe["location"]; flat {
		return json.Unmarshal(data, &r.Flat)
	}
	return json.Unmarshal(data, &r.Symbols)
}

// MarshalJSON implements json.Marshaler.
func (r DocumentSymbolResult) MarshalJSON() ([]byte, error) {
	switch {
	case len(r.Flat) > 0:
		return json.Marshal(r.Flat)
	case r.Symbols != nil:
		return json.Marshal(r.Symbols)
	default:
		return []byte("[]"), nil
	}
}

// =============================================================================
// INITIALIZE
// =============================================================================

// InitializeParams are the params of the initialize request.
type InitializeParams struct {
	// ProcessID is the client's pid. Nil is sent as null.
	ProcessID *int `json:"processId"`

	ClientInfo *ClientInfo `json:"clientInfo,omitempty"`

	// RootURI is the workspace root. Empty is sent as null.
	RootURI string `json:"rootUri"`

	Capabilities ClientCapabilities `json:"capabilities"`

	InitializationOptions any `json:"initializationOptions,omitempty"`

	WorkspaceFolders []WorkspaceFolder `json:"workspaceFolders,omitempty"`
}

// MarshalJSON sends an empty RootURI as null.
func (p InitializeParams) MarshalJSON() ([]byte, error) {
	type plain InitializeParams
	var rootURI *string
	if p.RootURI != "" {
		rootURI = &p.RootURI
	}
	return json.Marshal(struct {
		plain
		RootURI *string `json:"rootUri"`
	}{plain: plain(p), RootURI: rootURI})
}

// ClientInfo identifies the client to the server.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// WorkspaceFolder is one root folder of the workspace.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// ClientCapabilities declares what the client understands.
type ClientCapabilities struct {
	Workspace    *WorkspaceClientCapabilities    `json:"workspace,omitempty"`
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
}

// WorkspaceClientCapabilities are the workspace-level client capabilities.
type WorkspaceClientCapabilities struct {
	DidChangeWatchedFiles *DidChangeWatchedFilesClientCapabilities `json:"didChangeWatchedFiles,omitempty"`
}

// DidChangeWatchedFilesClientCapabilities says the client reports file
// changes itself. Dynamic registration is not supported.
type DidChangeWatchedFilesClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

// TextDocumentClientCapabilities are the document-level client capabilities.
type TextDocumentClientCapabilities struct {
	DocumentSymbol *DocumentSymbolClientCapabilities `json:"documentSymbol,omitempty"`
}

// DocumentSymbolClientCapabilities asks for the hierarchical result shape.
type DocumentSymbolClientCapabilities struct {
	HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport,omitempty"`
}

// DefaultClientCapabilities returns the capabilities crush advertises.
func DefaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Workspace: &WorkspaceClientCapabilities{
			DidChangeWatchedFiles: &DidChangeWatchedFilesClientCapabilities{},
		},
		TextDocument: &TextDocumentClientCapabilities{
			DocumentSymbol: &DocumentSymbolClientCapabilities{
				HierarchicalDocumentSymbolSupport: true,
			},
		},
	}
}

// InitializeResult is the server's answer to initialize.
//
// Capabilities is kept raw: the connection stores it but never interprets it.
type InitializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *ServerInfo     `json:"serverInfo,omitempty"`
}

// ServerInfo identifies the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}
