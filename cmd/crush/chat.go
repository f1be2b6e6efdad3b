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
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/crush/pkg/ux"
	"github.com/AleutianAI/crush/services/codecontext"
	"github.com/AleutianAI/crush/services/llm"
	"github.com/AleutianAI/crush/services/mcp"
	"github.com/AleutianAI/crush/services/policy"
	"github.com/AleutianAI/crush/services/session"
	"github.com/AleutianAI/crush/services/tools"
)

const inputHistory = 100

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Start an interactive chat session, optionally sending a first message",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, joinArgs(args))
		},
	}
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// runChat resolves the provider, opens the session and its context
// sources, then runs the REPL until the user leaves.
func (a *app) runChat(cmd *cobra.Command, initial string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	name, err := a.chooseProvider(ctx, cmd)
	if err != nil || name == "" {
		return err
	}

	provider, err := llm.FromConfig(a.cfg, name)
	if err != nil {
		return a.fail(cmd, err, a.providerHints(name, err))
	}

	store, err := session.DefaultStore()
	if err != nil {
		return a.fail(cmd, err, nil)
	}
	sess, _, err := store.LoadOrCreate(a.session)
	if err != nil {
		return a.fail(cmd, err, []string{"Sessions are kept in " + store.Dir()})
	}

	level := ux.GetPersonality()
	out := cmd.OutOrStdout()

	pool := mcp.New(a.cfg.MCP)
	defer func() {
		if err := pool.CloseAll(); err != nil {
			slog.Debug("Closing MCP servers failed", slog.String("error", err.Error()))
		}
	}()

	var manager *codecontext.Manager
	err = ux.WithSpinner(cmd.ErrOrStderr(), level, "Starting language servers...", func() error {
		var err error
		manager, err = codecontext.Open(ctx, a.cfg.LSP, codecontext.Options{
			Root:         workingDir(),
			MCP:          pool,
			Stderr:       a.serverStderr(),
			WatchExclude: a.cfg.Workspace.WatchExclude,
		})
		return err
	})
	if err != nil {
		return a.fail(cmd, err, nil)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			slog.Debug("Closing language servers failed", slog.String("error", err.Error()))
		}
	}()
	if err := manager.Watch(ctx); err != nil {
		slog.Warn("File watching disabled", slog.String("error", err.Error()))
	}

	executor := tools.NewExecutor(
		tools.WithYolo(a.yolo),
		tools.WithAutoApproveSafe(a.cfg.GlobalSettings.AutoApproveSafeTools),
		tools.WithConfirmer(a.prompter),
		tools.WithDir(manager.Root()),
	)

	chat := session.NewChat(provider, store, sess, manager)
	if !a.cfg.GlobalSettings.AllowSensitiveData {
		engine, err := policy.NewEngine()
		if err != nil {
			return a.fail(cmd, err, nil)
		}
		chat.SetGuard(engine)
	}

	runner := session.NewRunner(session.RunnerConfig{
		Chat:    chat,
		UI:      ux.NewChatUIWithWriter(out, level),
		Input:   a.inputReader(level),
		Out:     out,
		Level:   level,
		Tools:   executor,
		Symbols: manager,
		MCP:     pool,
	})

	runner.Header()
	if initial != "" {
		_ = runner.Send(ctx, initial)
	}
	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) inputReader(level ux.PersonalityLevel) ux.InputReader {
	if a.input != nil {
		return a.input
	}
	if level == ux.PersonalityMachine {
		return ux.NewStdinReader()
	}
	return ux.NewInteractiveInputReader(inputHistory)
}

// serverStderr forwards language server stderr only when debugging.
func (a *app) serverStderr() io.Writer {
	if a.debug {
		return os.Stderr
	}
	return io.Discard
}

// providerHints suggests fixes for a provider that failed to build.
func (a *app) providerHints(name string, err error) []string {
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		return setupInstructions(name)
	case errors.Is(err, llm.ErrInvalidBaseURL):
		return []string{"Check base_url in " + a.cfg.Path()}
	case errors.Is(err, llm.ErrUnknownProvider):
		return []string{"Configured providers: " + strings.Join(a.cfg.ProviderNames(), ", ")}
	}
	return nil
}
