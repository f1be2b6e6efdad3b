// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and saves the crush configuration file.
//
// The file is YAML by default; a path ending in .toml is read and written
// as TOML. ${VAR} placeholders are expanded from the environment when the
// file is loaded and are written back unexpanded by Save, so secrets never
// land on disk.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigDir overrides the directory holding config.yaml.
	EnvConfigDir = "CRUSH_CONFIG_DIR"

	// EnvDataDir overrides the directory holding sessions and logs.
	EnvDataDir = "CRUSH_DATA_DIR"

	// DefaultFileName is the config file created on first run.
	DefaultFileName = "config.yaml"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Dir returns $CRUSH_CONFIG_DIR or <user config dir>/crush.
func Dir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's config directory: %w", err)
	}
	return filepath.Join(base, "crush"), nil
}

// DefaultPath returns the config file used when --config is not given.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultFileName), nil
}

// DataDir returns where sessions and logs live: $CRUSH_DATA_DIR, else
// $XDG_DATA_HOME/crush, else ~/.local/share/crush (the roaming config
// directory on Windows).
func DataDir() (string, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir, nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "crush"), nil
	}
	if runtime.GOOS == "windows" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not find the user's data directory: %w", err)
		}
		return filepath.Join(base, "crush", "data"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "crush"), nil
}

// Load reads the config at path, or DefaultPath when path is empty,
// creating it with DefaultConfig on first run. The result is expanded and
// validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Info("First run detected, creating the config", slog.String("path", path))
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}

	raw, err := decode(path, data)
	if err != nil {
		return nil, err
	}

	cfg := raw.clone()
	cfg.expand()
	cfg.path = path
	cfg.raw = raw

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config back to the file it was loaded from, keeping
// ${VAR} placeholders unexpanded.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no path; it was not loaded from a file")
	}
	out := c.raw
	if out == nil {
		out = c
	}
	return write(c.path, out)
}

// SaveTo writes c to path as-is and makes path its home for later saves.
func (c *Config) SaveTo(path string) error {
	c.path = path
	return write(path, c)
}

func createDefault(path string) error {
	cfg := DefaultConfig()
	return write(path, &cfg)
}

func write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := encode(path, cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write the config file: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decode(path string, data []byte) (*Config, error) {
	var cfg Config
	if isTOML(path) {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.ensureMaps()
	return &cfg, nil
}

func encode(path string, cfg *Config) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encoding config: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

func (c *Config) ensureMaps() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if c.LSP == nil {
		c.LSP = make(map[string]LSPServer)
	}
	if c.MCP == nil {
		c.MCP = make(map[string]MCPServer)
	}
}

// clone copies c deeply enough that expanding the copy leaves c intact.
func (c *Config) clone() *Config {
	out := *c
	out.raw = nil

	out.Providers = maps.Clone(c.Providers)

	out.LSP = make(map[string]LSPServer, len(c.LSP))
	for name, s := range c.LSP {
		s.Args = append([]string(nil), s.Args...)
		s.Env = maps.Clone(s.Env)
		s.Extensions = append([]string(nil), s.Extensions...)
		out.LSP[name] = s
	}

	out.Workspace.WatchExclude = append([]string(nil), c.Workspace.WatchExclude...)

	out.MCP = make(map[string]MCPServer, len(c.MCP))
	for name, s := range c.MCP {
		s.Args = append([]string(nil), s.Args...)
		s.Env = maps.Clone(s.Env)
		out.MCP[name] = s
	}
	return &out
}

func (c *Config) expand() {
	for name, p := range c.Providers {
		p.APIKey = expandEnvVars(p.APIKey)
		p.BaseURL = expandEnvVars(p.BaseURL)
		p.Model = expandEnvVars(p.Model)
		c.Providers[name] = p
	}
	for name, s := range c.LSP {
		s.Command = expandEnvVars(s.Command)
		expandAll(s.Args, s.Env)
		c.LSP[name] = s
	}
	for name, s := range c.MCP {
		s.Command = expandEnvVars(s.Command)
		expandAll(s.Args, s.Env)
		c.MCP[name] = s
	}
	c.Logging.Dir = expandEnvVars(c.Logging.Dir)
}

func expandAll(args []string, env map[string]string) {
	for i := range args {
		args[i] = expandEnvVars(args[i])
	}
	for k, v := range env {
		env[k] = expandEnvVars(v)
	}
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment
// variable. Unset variables expand to "" so an unresolved placeholder is
// never sent as a credential.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
