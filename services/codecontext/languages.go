// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codecontext

import (
	"path/filepath"
	"strings"
)

// languageIDs maps extensions to LSP language identifiers.
var languageIDs = map[string]string{
	".go":   "go",
	".rs":   "rust",
	".py":   "python",
	".pyi":  "python",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".cxx":  "cpp",
	".hpp":  "cpp",
	".rb":   "ruby",
	".lua":  "lua",
	".zig":  "zig",
}

// languageID returns the identifier sent on didOpen. Unknown extensions
// fall back to the extension without its dot.
func languageID(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if id, ok := languageIDs[ext]; ok {
		return id
	}
	return strings.TrimPrefix(ext, ".")
}
