// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_Default(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name: "unknown api type",
			mutate: func(c *Config) {
				c.Providers["x"] = ProviderConfig{APIType: "smoke-signals"}
			},
			want: "APIType",
		},
		{
			name: "bad base url",
			mutate: func(c *Config) {
				c.Providers["x"] = ProviderConfig{APIType: APITypeOpenAI, BaseURL: "not a url"}
			},
			want: "BaseURL",
		},
		{
			name: "negative rate",
			mutate: func(c *Config) {
				c.Providers["x"] = ProviderConfig{APIType: APITypeOpenAI, RequestsPerMinute: -1}
			},
			want: "RequestsPerMinute",
		},
		{
			name:   "temperature out of range",
			mutate: func(c *Config) { c.GlobalSettings.Temperature = 3 },
			want:   "Temperature",
		},
		{
			name:   "lsp without command",
			mutate: func(c *Config) { c.LSP["x"] = LSPServer{Extensions: []string{".x"}} },
			want:   "Command",
		},
		{
			name:   "lsp extension without dot",
			mutate: func(c *Config) { c.LSP["x"] = LSPServer{Command: "x", Extensions: []string{"x"}} },
			want:   "startswith",
		},
		{
			name: "lsp bad timeout",
			mutate: func(c *Config) {
				c.LSP["x"] = LSPServer{Command: "x", Extensions: []string{".x"}, RequestTimeout: "soon"}
			},
			want: "duration",
		},
		{
			name:   "mcp without command",
			mutate: func(c *Config) { c.MCP["x"] = MCPServer{} },
			want:   "Command",
		},
		{
			name:   "unknown default provider",
			mutate: func(c *Config) { c.DefaultProvider = "nope" },
			want:   `default_provider "nope"`,
		},
		{
			name: "duplicate extension",
			mutate: func(c *Config) {
				c.LSP["gopls-2"] = LSPServer{Command: "gopls", Extensions: []string{".go"}}
			},
			want: "extension .go is served by both gopls and gopls-2",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
			want:   "Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_DisabledServerSkipsExtensionCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LSP["gopls-old"] = LSPServer{Command: "gopls", Extensions: []string{".go"}, Disabled: true}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLSPServer_Timeout(t *testing.T) {
	if got := (LSPServer{RequestTimeout: "1m"}).Timeout(); got != time.Minute {
		t.Errorf("Timeout() = %v", got)
	}
	if got := (LSPServer{}).Timeout(); got != 0 {
		t.Errorf("Timeout() = %v, want 0", got)
	}
}

func TestProviderNames_Sorted(t *testing.T) {
	cfg := DefaultConfig()
	got := strings.Join(cfg.ProviderNames(), ",")
	if got != "anthropic,deepseek,kimi,ollama,openai" {
		t.Errorf("ProviderNames() = %s", got)
	}
}
