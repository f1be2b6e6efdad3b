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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSymbolResult_Shapes(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantSymbols  int
		wantFlat     int
		wantChildren int
	}{
		{"null", `null`, 0, 0, 0},
		{"empty", `[]`, 0, 0, 0},
		{
			"hierarchical",
			`[{"name":"A","kind":5,"range":{"start":{"line":0,"character":0},"end":{"line":9,"character":0}},
			   "selectionRange":{"start":{"line":0,"character":6},"end":{"line":0,"character":7}},
			   "children":[{"name":"m","kind":6,"range":{"start":{"line":1,"character":0},"end":{"line":2,"character":0}},
			                "selectionRange":{"start":{"line":1,"character":0},"end":{"line":1,"character":1}}}]},
			  {"name":"B","kind":12,"range":{"start":{"line":10,"character":0},"end":{"line":11,"character":0}},
			   "selectionRange":{"start":{"line":10,"character":5},"end":{"line":10,"character":6}}}]`,
			2, 0, 1,
		},
		{
			"flat",
			`[{"name":"A","kind":5,"location":{"uri":"file:///a.go","range":{"start":{"line":0,"character":0},"end":{"line":1,"character":0}}}}]`,
			0, 1, 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r DocumentSymbolResult
			require.NoError(t, json.Unmarshal([]byte(tt.input), &r))
			assert.Len(t, r.Symbols, tt.wantSymbols)
			assert.Len(t, r.Flat, tt.wantFlat)
			assert.Equal(t, tt.wantSymbols+tt.wantFlat, r.Len())
			if tt.wantChildren > 0 {
				assert.Len(t, r.Symbols[0].Children, tt.wantChildren)
			}
		})
	}
}

func TestDocumentSymbolResult_RejectsObject(t *testing.T) {
	var r DocumentSymbolResult
	assert.Error(t, json.Unmarshal([]byte(`{"name":"A"}`), &r))
}

func TestSymbolKind_String(t *testing.T) {
	assert.Equal(t, "function", SymbolKindFunction.String())
	assert.Equal(t, "type parameter", SymbolKindTypeParameter.String())
	assert.Equal(t, "kind(99)", SymbolKind(99).String())
}

func TestFileURI(t *testing.T) {
	abs, err := filepath.Abs("/tmp/my project/a.go")
	require.NoError(t, err)

	uri := FileURI(abs)
	assert.Equal(t, "file:///tmp/my%20project/a.go", uri)

	back, err := URIToPath(uri)
	require.NoError(t, err)
	assert.Equal(t, abs, back)

	_, err = URIToPath("https://example.com/a.go")
	assert.Error(t, err)
}

func TestInitializeParams_NullRoot(t *testing.T) {
	raw, err := json.Marshal(InitializeParams{})
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "null", string(got["rootUri"]))
	assert.Equal(t, "null", string(got["processId"]))

	pid := 42
	raw, err = json.Marshal(InitializeParams{ProcessID: &pid, RootURI: "file:///w"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"rootUri":"file:///w"`)
	assert.Contains(t, string(raw), `"processId":42`)
}

func TestDefaultClientCapabilities_JSON(t *testing.T) {
	raw, err := json.Marshal(DefaultClientCapabilities())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"workspace": {"didChangeWatchedFiles": {"dynamicRegistration": false}},
		"textDocument": {"documentSymbol": {"hierarchicalDocumentSymbolSupport": true}}
	}`, string(raw))

	raw, err = json.Marshal(DidChangeWatchedFilesParams{Changes: []FileEvent{{URI: "file:///a.go", Type: FileDeleted}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"changes":[{"uri":"file:///a.go","type":3}]}`, string(raw))
}
