// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "time"

// Config is the crush configuration file.
type Config struct {
	// DefaultProvider is used when --provider is not given. Empty means
	// the CLI asks.
	DefaultProvider string `yaml:"default_provider,omitempty" toml:"default_provider,omitempty"`

	Providers      map[string]ProviderConfig `yaml:"providers" toml:"providers" validate:"dive"`
	GlobalSettings GlobalSettings            `yaml:"global_settings" toml:"global_settings"`

	// LSP servers keyed by name. Each serves the listed file extensions.
	LSP map[string]LSPServer `yaml:"lsp,omitempty" toml:"lsp,omitempty" validate:"dive"`

	// MCP context servers keyed by name.
	MCP map[string]MCPServer `yaml:"mcp,omitempty" toml:"mcp,omitempty" validate:"dive"`

	Workspace WorkspaceConfig `yaml:"workspace,omitempty" toml:"workspace,omitempty"`

	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	path string
	raw  *Config
}

// APIType selects the wire protocol a provider speaks.
type APIType string

const (
	APITypeOpenAI    APIType = "openai"
	APITypeAnthropic APIType = "anthropic"
	APITypeOllama    APIType = "ollama"

	// APITypeCustom is any OpenAI-compatible endpoint.
	APITypeCustom APIType = "custom"
)

type ProviderConfig struct {
	APIType APIType `yaml:"api_type" toml:"api_type" validate:"required,oneof=openai anthropic ollama custom"`

	// APIKey usually holds a ${VAR} placeholder, expanded at load time.
	APIKey  string `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" toml:"base_url,omitempty" validate:"omitempty,url"`
	Model   string `yaml:"model,omitempty" toml:"model,omitempty"`

	// RequestsPerMinute throttles calls to the provider. 0 is unlimited.
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty" toml:"requests_per_minute,omitempty" validate:"gte=0"`
}

// NeedsAPIKey reports whether the provider refuses to start without a key.
func (p ProviderConfig) NeedsAPIKey() bool {
	return p.APIType != APITypeOllama
}

// Ready reports whether the provider has what it needs to be used.
func (p ProviderConfig) Ready() bool {
	return !p.NeedsAPIKey() || p.APIKey != ""
}

type GlobalSettings struct {
	// AutoApproveSafeTools lets read-only tools run without confirmation.
	AutoApproveSafeTools bool    `yaml:"auto_approve_safe_tools" toml:"auto_approve_safe_tools"`
	MaxTokens            int     `yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty" validate:"gte=0"`
	Temperature          float32 `yaml:"temperature,omitempty" toml:"temperature,omitempty" validate:"gte=0,lte=2"`

	// AllowSensitiveData turns off the credential check on outgoing
	// messages and context.
	AllowSensitiveData bool `yaml:"allow_sensitive_data,omitempty" toml:"allow_sensitive_data,omitempty"`
}

// LSPServer describes a language server crush spawns for symbol context.
type LSPServer struct {
	Command    string            `yaml:"command" toml:"command" validate:"required"`
	Args       []string          `yaml:"args,omitempty" toml:"args,omitempty"`
	Env        map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`
	Extensions []string          `yaml:"extensions" toml:"extensions" validate:"required,min=1,dive,startswith=."`

	// RequestTimeout bounds each request, e.g. "10s". Empty means none.
	RequestTimeout string `yaml:"request_timeout,omitempty" toml:"request_timeout,omitempty" validate:"omitempty,duration"`

	InitializationOptions map[string]any `yaml:"initialization_options,omitempty" toml:"initialization_options,omitempty"`

	Disabled bool `yaml:"disabled,omitempty" toml:"disabled,omitempty"`
}

// Timeout parses RequestTimeout. Invalid or empty values yield 0.
func (s LSPServer) Timeout() time.Duration {
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil {
		return 0
	}
	return d
}

// MCPServer describes a stdio MCP server.
type MCPServer struct {
	Command  string            `yaml:"command" toml:"command" validate:"required"`
	Args     []string          `yaml:"args,omitempty" toml:"args,omitempty"`
	Env      map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`
	Disabled bool              `yaml:"disabled,omitempty" toml:"disabled,omitempty"`
}

// WorkspaceConfig tunes how crush follows the project it runs in.
type WorkspaceConfig struct {
	// WatchExclude lists glob patterns ("dist/**", "*.pb.go") whose
	// changes are not reported to language servers.
	WatchExclude []string `yaml:"watch_exclude,omitempty" toml:"watch_exclude,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level,omitempty" toml:"level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`

	// Dir enables JSON file logs. "~" is expanded.
	Dir  string `yaml:"dir,omitempty" toml:"dir,omitempty"`
	JSON bool   `yaml:"json,omitempty" toml:"json,omitempty"`
}

// DefaultConfig returns the configuration written on first run. API keys
// are placeholders resolved from the environment at load time.
func DefaultConfig() Config {
	return Config{
		Providers: map[string]ProviderConfig{
			"openai": {
				APIType: APITypeOpenAI,
				APIKey:  "${OPENAI_API_KEY}",
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o",
			},
			"anthropic": {
				APIType: APITypeAnthropic,
				APIKey:  "${ANTHROPIC_API_KEY}",
				BaseURL: "https://api.anthropic.com/v1",
				Model:   "claude-3-5-sonnet-20240620",
			},
			"deepseek": {
				APIType: APITypeCustom,
				APIKey:  "${DEEPSEEK_API_KEY}",
				BaseURL: "https://api.deepseek.com/v1",
				Model:   "deepseek-chat",
			},
			"kimi": {
				APIType: APITypeCustom,
				APIKey:  "${KIMI_API_KEY}",
				BaseURL: "https://api.moonshot.cn/v1",
				Model:   "moonshot-v1-8k",
			},
			"ollama": {
				APIType: APITypeOllama,
				BaseURL: "http://localhost:11434",
				Model:   "llama3.2",
			},
		},
		GlobalSettings: GlobalSettings{
			AutoApproveSafeTools: true,
			MaxTokens:            4000,
			Temperature:          0.7,
		},
		LSP: map[string]LSPServer{
			"gopls": {
				Command:        "gopls",
				Extensions:     []string{".go"},
				RequestTimeout: "10s",
			},
			"rust-analyzer": {
				Command:        "rust-analyzer",
				Extensions:     []string{".rs"},
				RequestTimeout: "30s",
			},
			"typescript": {
				Command:        "typescript-language-server",
				Args:           []string{"--stdio"},
				Extensions:     []string{".ts", ".tsx", ".js", ".jsx"},
				RequestTimeout: "10s",
			},
		},
		MCP:     map[string]MCPServer{},
		Logging: LoggingConfig{Level: "info"},
	}
}

// ProviderNames returns configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	return sortedKeys(c.Providers)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// SetDefaultProvider changes the default provider in memory. Call Save to
// persist it.
func (c *Config) SetDefaultProvider(name string) {
	c.DefaultProvider = name
	if c.raw != nil {
		c.raw.DefaultProvider = name
	}
}
