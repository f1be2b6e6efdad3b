// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/crush/pkg/ux"
	"github.com/AleutianAI/crush/services/codecontext"
	"github.com/AleutianAI/crush/services/config"
	"github.com/AleutianAI/crush/services/session"
)

// --- sessions ---

func (a *app) sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List all saved sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.DefaultStore()
			if err != nil {
				return a.fail(cmd, err, nil)
			}
			names, err := store.List()
			if err != nil {
				return a.fail(cmd, err, nil)
			}
			p := a.printer(cmd)
			if len(names) > 0 {
				p.Title("Available sessions:")
			}
			p.List(names, "No sessions found.")
			return nil
		},
	}
}

// --- status ---

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.showStatus(cmd)
			return nil
		},
	}
}

func (a *app) showStatus(cmd *cobra.Command) {
	p := a.printer(cmd)
	cfg := a.cfg

	defaultProvider := cfg.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = "None"
	}
	dataDir, err := config.DataDir()
	if err != nil {
		dataDir = "unavailable: " + err.Error()
	}

	p.Title("Crush Status")
	p.KeyValues(map[string]string{
		"Provider":     defaultProvider,
		"Config path":  cfg.Path(),
		"Data dir":     dataDir,
		"Auto-approve": strconv.FormatBool(cfg.GlobalSettings.AutoApproveSafeTools),
		"Secret check": strconv.FormatBool(!cfg.GlobalSettings.AllowSensitiveData),
	})

	var providers []string
	for _, name := range cfg.ProviderNames() {
		pc := cfg.Providers[name]
		state := "ready"
		if !pc.Ready() {
			state = "no API key"
		}
		providers = append(providers, fmt.Sprintf("%s (%s, %s): %s", name, pc.APIType, pc.Model, state))
	}
	p.Title("Providers")
	p.List(providers, "No providers configured.")

	var servers []string
	for _, name := range sortedNames(cfg.LSP) {
		srv := cfg.LSP[name]
		state := "available"
		switch {
		case srv.Disabled:
			state = "disabled"
		case !onPath(srv.Command):
			state = "not installed"
		}
		servers = append(servers, fmt.Sprintf("%s [%s] %s: %s", name, strings.Join(srv.Extensions, " "), srv.Command, state))
	}
	p.Title("Language servers")
	p.List(servers, "No language servers configured.")

	var mcpServers []string
	for _, name := range sortedNames(cfg.MCP) {
		srv := cfg.MCP[name]
		state := "enabled"
		if srv.Disabled {
			state = "disabled"
		}
		mcpServers = append(mcpServers, fmt.Sprintf("%s %s: %s", name, srv.Command, state))
	}
	p.Title("MCP servers")
	p.List(mcpServers, "No MCP servers configured.")
}

func onPath(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// --- config ---

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Choose the default provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.configureDefault(cmd.Context(), cmd)
		},
	}
}

// configureDefault asks for a provider and saves it as the default.
func (a *app) configureDefault(ctx context.Context, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	names := a.cfg.ProviderNames()
	if len(names) == 0 {
		return a.fail(cmd, errors.New("no providers configured"), []string{"Add one under 'providers' in " + a.cfg.Path()})
	}

	choice, err := a.prompter.Select(ctx, "Select default provider", names, a.cfg.DefaultProvider)
	if errors.Is(err, ux.ErrAborted) {
		return nil
	}
	if err != nil {
		return a.fail(cmd, err, nil)
	}

	a.cfg.SetDefaultProvider(choice)
	if err := a.cfg.Save(); err != nil {
		return a.fail(cmd, err, nil)
	}
	a.printer(cmd).Success("Default provider set to: " + choice)
	return nil
}

// --- symbols ---

func (a *app) symbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols <file>",
		Short: "Print a file's outline from its language server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSymbols(cmd, args[0])
		},
	}
}

// runSymbols starts only the servers that handle the file's extension.
func (a *app) runSymbols(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ext := strings.ToLower(filepath.Ext(path))
	servers := make(map[string]config.LSPServer)
	for name, srv := range a.cfg.LSP {
		if !srv.Disabled && slices.Contains(srv.Extensions, ext) {
			servers[name] = srv
		}
	}
	if len(servers) == 0 {
		err := fmt.Errorf("%w: %s", codecontext.ErrNoServer, path)
		return a.fail(cmd, err, []string{"Add a server for " + ext + " files under 'lsp' in " + a.cfg.Path()})
	}

	manager, err := codecontext.Open(ctx, servers, codecontext.Options{Root: workingDir(), Stderr: a.serverStderr()})
	if err != nil {
		return a.fail(cmd, err, nil)
	}
	defer manager.Close()

	result, err := manager.DocumentSymbols(ctx, path)
	if err != nil {
		var hints []string
		if errors.Is(err, codecontext.ErrNoServer) {
			hints = []string{"Check that the server is installed: crush status"}
		}
		return a.fail(cmd, err, hints)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), codecontext.FormatOutline(path, result))
	return err
}
