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

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoad_FirstRunCreatesDefault verifies default config creation.
func TestLoad_FirstRunCreatesDefault(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "deep", "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}

	if got := cfg.Providers["openai"].APIKey; got != "sk-test" {
		t.Errorf("openai api_key = %q, want expanded value", got)
	}
	if cfg.GlobalSettings.MaxTokens != 4000 || cfg.GlobalSettings.Temperature != 0.7 {
		t.Errorf("global settings = %+v", cfg.GlobalSettings)
	}
	if _, ok := cfg.LSP["gopls"]; !ok {
		t.Error("default config should configure gopls")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if strings.Contains(string(data), "sk-test") {
		t.Error("resolved secret written to disk")
	}
	if !strings.Contains(string(data), "${OPENAI_API_KEY}") {
		t.Error("placeholder missing from the default file")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config mode = %o, want 600", perm)
	}
}

func TestLoad_UnsetVariableExpandsEmpty(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	anthropic := cfg.Providers["anthropic"]
	if anthropic.APIKey != "" {
		t.Errorf("api_key = %q, want empty", anthropic.APIKey)
	}
	if anthropic.Ready() {
		t.Error("anthropic without a key should not be ready")
	}
	if !cfg.Providers["ollama"].Ready() {
		t.Error("ollama needs no key and should be ready")
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("CRUSH_TEST_KEY", "k-123")
	t.Setenv("CRUSH_TEST_ROOT", "/opt/tools")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
default_provider: work
providers:
  work:
    api_type: custom
    api_key: ${CRUSH_TEST_KEY}
    base_url: https://llm.internal/v1
    model: coder
    requests_per_minute: 30
global_settings:
  auto_approve_safe_tools: true
  max_tokens: 2048
lsp:
  clangd:
    command: ${CRUSH_TEST_ROOT}/clangd
    extensions: [".c", ".h"]
    request_timeout: 5s
mcp:
  files:
    command: mcp-files
    args: ["--root", "${CRUSH_TEST_ROOT}"]
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	work := cfg.Providers["work"]
	if work.APIKey != "k-123" || work.RequestsPerMinute != 30 || work.APIType != APITypeCustom {
		t.Errorf("provider = %+v", work)
	}
	if !cfg.GlobalSettings.AutoApproveSafeTools {
		t.Error("auto_approve_safe_tools not parsed")
	}
	clangd := cfg.LSP["clangd"]
	if clangd.Command != "/opt/tools/clangd" || clangd.Timeout() != 5*time.Second {
		t.Errorf("lsp = %+v", clangd)
	}
	if got := cfg.MCP["files"].Args; len(got) != 2 || got[1] != "/opt/tools" {
		t.Errorf("mcp args = %v", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crush.toml")
	writeFile(t, path, `
default_provider = "local"

[providers.local]
api_type = "ollama"
base_url = "http://127.0.0.1:11434"
model = "qwen"

[lsp.gopls]
command = "gopls"
extensions = [".go"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DefaultProvider != "local" || cfg.Providers["local"].Model != "qwen" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.MCP == nil {
		t.Error("missing sections should decode to empty maps")
	}

	cfg.SetDefaultProvider("local")
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `default_provider = "local"`) {
		t.Errorf("saved TOML = %s", data)
	}
}

func TestSave_KeepsPlaceholders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.SetDefaultProvider("ollama")
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "sk-secret") {
		t.Error("Save() leaked the expanded secret")
	}

	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.DefaultProvider != "ollama" {
		t.Errorf("default_provider = %q after reload", again.DefaultProvider)
	}
}

func TestSave_WithoutPath(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Save(); err == nil {
		t.Error("Save() on an unloaded config should fail")
	}

	path := filepath.Join(t.TempDir(), "out.toml")
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of saved TOML failed: %v", err)
	}
	if len(loaded.Providers) != len(cfg.Providers) {
		t.Errorf("providers = %v", loaded.ProviderNames())
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "providers: [not, a, map]\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail on malformed YAML")
	}

	writeFile(t, path, "providers:\n  x:\n    api_type: carrier-pigeon\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("Load() error = %v, want validation error naming the file", err)
	}
}

func TestDirs_EnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigDir, "/tmp/crush-conf")
	t.Setenv(EnvDataDir, "/tmp/crush-data")

	dir, err := Dir()
	if err != nil || dir != "/tmp/crush-conf" {
		t.Errorf("Dir() = %q, %v", dir, err)
	}
	path, err := DefaultPath()
	if err != nil || path != filepath.Join("/tmp/crush-conf", DefaultFileName) {
		t.Errorf("DefaultPath() = %q, %v", path, err)
	}
	data, err := DataDir()
	if err != nil || data != "/tmp/crush-data" {
		t.Errorf("DataDir() = %q, %v", data, err)
	}
}

func TestDataDir_XDG(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")

	data, err := DataDir()
	if err != nil || data != filepath.Join("/tmp/xdg", "crush") {
		t.Errorf("DataDir() = %q, %v", data, err)
	}
}

func TestLoad_EmptyPathUsesConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path() != filepath.Join(dir, DefaultFileName) {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_WorkspaceAndSensitiveData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crush.yaml")
	writeFile(t, path, `
providers: {}
global_settings:
  allow_sensitive_data: true
workspace:
  watch_exclude: ["dist/**", "*.pb.go"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.GlobalSettings.AllowSensitiveData {
		t.Error("allow_sensitive_data was not read")
	}
	if got := cfg.Workspace.WatchExclude; len(got) != 2 || got[0] != "dist/**" || got[1] != "*.pb.go" {
		t.Errorf("watch_exclude = %v", got)
	}

	cfg.Workspace.WatchExclude[0] = "changed"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "dist/**") {
		t.Errorf("saved config lost the raw pattern: %s", data)
	}
}
