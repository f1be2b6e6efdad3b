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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/crush/pkg/logging"
	"github.com/AleutianAI/crush/pkg/telemetry"
	"github.com/AleutianAI/crush/pkg/ux"
	"github.com/AleutianAI/crush/services/config"
)

const (
	version = "0.1.0"

	telemetryFlushTimeout = 5 * time.Second
)

// app holds what the persistent flags and PersistentPreRunE resolve, so
// each command builds from the same state.
type app struct {
	debug      bool
	yolo       bool
	provider   string
	session    string
	configPath string
	output     string
	traceFile  string

	cfg    *config.Config
	logger *logging.Logger

	traceOut          *os.File
	shutdownTelemetry func(context.Context) error

	// prompter and input are replaced in tests.
	prompter ux.Prompter
	input    ux.InputReader
}

func newRootCmdFor(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "crush [message]",
		Short:         "A glamorous AI coding agent for your terminal",
		Long:          "crush chats with an LLM provider about your code, using language servers\nand MCP servers for context and running tools with your permission.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, joinArgs(args))
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&a.debug, "debug", false, "Log protocol and provider traffic to stderr")
	flags.BoolVar(&a.yolo, "yolo", false, "Skip all permission prompts (use with extreme care)")
	flags.StringVar(&a.provider, "provider", "", "LLM provider to use")
	flags.StringVar(&a.session, "session", "", "Session name to use or create")
	flags.StringVar(&a.configPath, "config", "", "Config file (default: "+defaultConfigHint()+")")
	flags.StringVar(&a.output, "output", "", "Output style: full, minimal or machine (default from "+ux.PersonalityEnv+")")
	flags.StringVar(&a.traceFile, "trace-file", "", "Write OpenTelemetry spans and metrics to this file")

	root.AddCommand(
		a.chatCmd(),
		a.sessionsCmd(),
		a.statusCmd(),
		a.configCmd(),
		a.symbolsCmd(),
	)
	return root
}

func defaultConfigHint() string {
	path, err := config.DefaultPath()
	if err != nil {
		return filepath.Join("~", ".config", "crush", config.DefaultFileName)
	}
	return path
}

// setup picks the output level, loads the config and installs logging.
func (a *app) setup(cmd *cobra.Command) error {
	if a.output != "" {
		ux.SetPersonality(ux.ParsePersonalityLevel(a.output))
	} else {
		ux.InitPersonality()
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return a.fail(cmd, err, []string{"Fix or remove the config file and run crush again"})
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	if a.debug {
		level = logging.LevelDebug
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.logDir(),
		Service: "crush",
		JSON:    cfg.Logging.JSON,
		Quiet:   !a.debug,
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.logger.Slog())
	slog.Debug("Configuration loaded",
		slog.String("path", cfg.Path()),
		slog.Int("providers", len(cfg.Providers)),
	)

	if err := a.startTelemetry(cmd.Context()); err != nil {
		slog.Warn("Telemetry disabled", slog.String("error", err.Error()))
	}

	if a.prompter == nil {
		a.prompter = ux.NewPrompter()
	}
	return nil
}

// startTelemetry honours --trace-file first, then the OTEL_* environment.
func (a *app) startTelemetry(ctx context.Context) error {
	cfg := telemetry.ConfigFromEnv("crush", version)
	if a.traceFile != "" {
		f, err := os.OpenFile(a.traceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		a.traceOut = f
		cfg.TraceExporter = telemetry.ExporterStdout
		cfg.MetricExporter = telemetry.ExporterStdout
		cfg.Output = f
	}
	if !cfg.Enabled() {
		return nil
	}

	shutdown, err := telemetry.Init(ctx, cfg)
	if err != nil {
		a.closeTraceFile()
		return err
	}
	a.shutdownTelemetry = shutdown
	slog.Debug("Telemetry enabled",
		slog.String("traces", cfg.TraceExporter),
		slog.String("metrics", cfg.MetricExporter),
	)
	return nil
}

func (a *app) closeTraceFile() {
	if a.traceOut != nil {
		_ = a.traceOut.Close()
		a.traceOut = nil
	}
}

// logDir is the configured log directory, else <data>/logs.
func (a *app) logDir() string {
	if a.cfg.Logging.Dir != "" {
		return a.cfg.Logging.Dir
	}
	data, err := config.DataDir()
	if err != nil {
		return ""
	}
	return filepath.Join(data, "logs")
}

func (a *app) teardown() {
	if a.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		if err := a.shutdownTelemetry(ctx); err != nil {
			slog.Debug("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
		cancel()
		a.shutdownTelemetry = nil
	}
	a.closeTraceFile()
	if a.logger != nil {
		_ = a.logger.Close()
		a.logger = nil
	}
}

// printer writes to the command's stdout at the current level.
func (a *app) printer(cmd *cobra.Command) *ux.Printer {
	return &ux.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Level: ux.GetPersonality()}
}

// fail shows err with suggestions and returns it, so cobra exits non-zero
// without printing it a second time.
func (a *app) fail(cmd *cobra.Command, err error, suggestions []string) error {
	p := a.printer(cmd)
	p.Error(err.Error())
	for _, s := range suggestions {
		writeLine(cmd.ErrOrStderr(), fmt.Sprintf("  %s %s", ux.IconArrow, s))
	}
	return err
}

func writeLine(w io.Writer, s string) {
	_, _ = fmt.Fprintln(w, s)
}

func workingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
