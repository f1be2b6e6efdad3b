// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/crush/pkg/ux"
	"github.com/AleutianAI/crush/services/codecontext"
	"github.com/AleutianAI/crush/services/llm"
	"github.com/AleutianAI/crush/services/lsp"
	"github.com/AleutianAI/crush/services/mcp"
	"github.com/AleutianAI/crush/services/policy"
	"github.com/AleutianAI/crush/services/tools"
)

// clearScreen erases the terminal and homes the cursor.
const clearScreen = "\033[2J\033[H"

// ToolRunner runs tools. *tools.Executor satisfies it.
type ToolRunner interface {
	Execute(ctx context.Context, call tools.Call) (*tools.Result, error)
	Yolo() bool
}

// SymbolSource outlines files. *codecontext.Manager satisfies it.
type SymbolSource interface {
	DocumentSymbols(ctx context.Context, path string) (lsp.DocumentSymbolResult, error)
	Servers() []string
}

// ToolCaller calls MCP tools. *mcp.Pool satisfies it.
type ToolCaller interface {
	Servers() []string
	CallTool(ctx context.Context, server, tool string, args map[string]any) (*mcp.CallResult, error)
}

// RunnerConfig wires a Runner. Only Chat, UI and Input are required.
type RunnerConfig struct {
	Chat  *Chat
	UI    ux.ChatUI
	Input ux.InputReader

	// Out receives the prompt for readers that do not draw one, the
	// clear-screen sequence and token usage lines.
	Out   io.Writer
	Level ux.PersonalityLevel

	Tools   ToolRunner
	Symbols SymbolSource
	MCP     ToolCaller
}

// Runner is the interactive chat loop.
type Runner struct {
	chat    *Chat
	ui      ux.ChatUI
	input   ux.InputReader
	out     io.Writer
	level   ux.PersonalityLevel
	printer *ux.Printer

	tools   ToolRunner
	symbols SymbolSource
	mcp     ToolCaller

	headerShown bool
}

// NewRunner builds a Runner from cfg.
func NewRunner(cfg RunnerConfig) *Runner {
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		chat:    cfg.Chat,
		ui:      cfg.UI,
		input:   cfg.Input,
		out:     out,
		level:   cfg.Level,
		printer: ux.NewPrinter(out, cfg.Level),
		tools:   cfg.Tools,
		symbols: cfg.Symbols,
		mcp:     cfg.MCP,
	}
}

// Commands lists what the REPL accepts, for help output.
func (r *Runner) Commands() []ux.Command {
	cmds := []ux.Command{
		{Name: "exit, quit, :q", Description: "Exit the session"},
		{Name: "clear, :clear", Description: "Clear the screen"},
		{Name: "help, :help", Description: "Show this help"},
		{Name: "status, :status", Description: "Show session status"},
	}
	if r.tools != nil {
		cmds = append(cmds,
			ux.Command{Name: "!<command>", Description: "Run a shell command"},
			ux.Command{Name: ":tool <name> [json]", Description: "Run a tool (" + strings.Join(tools.Names(), ", ") + ")"},
		)
	}
	if r.symbols != nil {
		cmds = append(cmds, ux.Command{Name: ":symbols <file>", Description: "Show a file outline from its language server"})
	}
	if r.mcp != nil {
		cmds = append(cmds, ux.Command{Name: ":mcp <server> <tool> [json]", Description: "Call a tool on an MCP server"})
	}
	return cmds
}

// Header shows the session banner, and a resume line for a session that
// already has turns. Only the first call prints.
func (r *Runner) Header() {
	if r.headerShown {
		return
	}
	r.headerShown = true
	sess := r.chat.Session()
	provider := r.chat.Provider()
	r.ui.Header(ux.HeaderConfig{
		Provider: provider.Name(),
		Model:    provider.Model(),
		Session:  sess.Name,
		Yolo:     r.tools != nil && r.tools.Yolo(),
		Servers:  r.servers(),
	})
	if turns := sess.Turns(); turns > 0 {
		r.ui.SessionResume(sess.Name, turns)
	}
}

func (r *Runner) servers() []string {
	var out []string
	if r.symbols != nil {
		for _, s := range r.symbols.Servers() {
			out = append(out, "lsp:"+s)
		}
	}
	if r.mcp != nil {
		for _, s := range r.mcp.Servers() {
			out = append(out, "mcp:"+s)
		}
	}
	return out
}

// Run shows the header if Header has not been called, then reads lines
// until exit, end of input or cancellation.
//
// # Outputs
//
//   - nil on exit or end of input
//   - ctx.Err() when cancelled
//   - a read error other than io.EOF
//
// Failed turns are shown and the loop continues.
func (r *Runner) Run(ctx context.Context) error {
	r.Header()

	for {
		if err := ctx.Err(); err != nil {
			r.ui.SessionEnd(r.chat.Session().Name)
			return err
		}

		if p, ok := r.input.(ux.PromptingInputReader); ok {
			p.SetPrompt(r.ui.Prompt())
		} else {
			_, _ = fmt.Fprint(r.out, r.ui.Prompt())
		}

		line, err := r.input.ReadLine()
		if errors.Is(err, io.EOF) {
			r.ui.SessionEnd(r.chat.Session().Name)
			return nil
		}
		if err != nil {
			slog.Error("Failed to read input", slog.String("error", err.Error()))
			return fmt.Errorf("read input: %w", err)
		}
		if line == "" {
			continue
		}

		if done := r.Handle(ctx, line); done {
			r.ui.SessionEnd(r.chat.Session().Name)
			return nil
		}
	}
}

// Handle processes one input line and reports whether the user asked to
// exit.
func (r *Runner) Handle(ctx context.Context, line string) bool {
	switch line {
	case "exit", "quit", ":q":
		return true
	case "clear", ":clear":
		_, _ = fmt.Fprint(r.out, clearScreen)
		return false
	case "help", ":help":
		r.ui.Help(r.Commands())
		return false
	case "status", ":status":
		r.ui.Status(r.status())
		return false
	}

	switch {
	case strings.HasPrefix(line, "!") && r.tools != nil:
		r.runTool(ctx, tools.Call{
			Name:        "shell",
			Arguments:   map[string]any{"command": strings.TrimSpace(line[1:])},
			Description: "Shell command typed at the prompt",
		})
	case hasCommand(line, ":tool") && r.tools != nil:
		r.toolCommand(ctx, strings.TrimSpace(strings.TrimPrefix(line, ":tool")))
	case hasCommand(line, ":symbols") && r.symbols != nil:
		r.symbolsCommand(ctx, strings.TrimSpace(strings.TrimPrefix(line, ":symbols")))
	case hasCommand(line, ":mcp") && r.mcp != nil:
		r.mcpCommand(ctx, strings.TrimSpace(strings.TrimPrefix(line, ":mcp")))
	default:
		_ = r.Send(ctx, line)
	}
	return false
}

// hasCommand matches ":cmd" alone or followed by whitespace.
func hasCommand(line, cmd string) bool {
	if !strings.HasPrefix(line, cmd) {
		return false
	}
	rest := line[len(cmd):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// Send runs one chat turn behind a spinner and displays the outcome.
func (r *Runner) Send(ctx context.Context, message string) error {
	var resp *llm.ChatResponse
	err := ux.WithSpinner(r.out, r.level, "Thinking...", func() error {
		var err error
		resp, err = r.chat.Send(ctx, message)
		return err
	})
	if resp != nil {
		r.ui.Response(resp.Content)
		if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
			r.printer.Muted(fmt.Sprintf("(%d tokens used)", resp.Usage.TotalTokens))
		}
	}
	if err != nil {
		r.ui.Error(err, errorSuggestions(err))
	}
	return err
}

func errorSuggestions(err error) []string {
	if errors.Is(err, policy.ErrSensitiveData) {
		return []string{
			"Remove the credential or personal data from your message and send it again",
			"Set global_settings.allow_sensitive_data: true to turn this check off",
		}
	}
	return llm.Suggestions(err)
}

func (r *Runner) runTool(ctx context.Context, call tools.Call) {
	res, err := r.tools.Execute(ctx, call)
	if err != nil {
		r.ui.Error(err, nil)
		return
	}
	r.ui.ToolResult(call.Name, res.Text(), res.Success)
}

func (r *Runner) toolCommand(ctx context.Context, args string) {
	name, raw, _ := strings.Cut(args, " ")
	if name == "" {
		r.ui.Error(errors.New("usage: :tool <name> [json arguments]"), []string{"Tools: " + strings.Join(tools.Names(), ", ")})
		return
	}
	call, err := tools.ParseCall(name, raw)
	if err != nil {
		r.ui.Error(err, nil)
		return
	}
	r.runTool(ctx, call)
}

func (r *Runner) symbolsCommand(ctx context.Context, path string) {
	if path == "" {
		r.ui.Error(errors.New("usage: :symbols <file>"), nil)
		return
	}
	res, err := r.symbols.DocumentSymbols(ctx, path)
	if err != nil {
		var suggestions []string
		if errors.Is(err, codecontext.ErrNoServer) {
			suggestions = []string{"Add a server for this file type under 'lsp' in the config file"}
		}
		r.ui.Error(err, suggestions)
		return
	}
	r.ui.ToolResult("symbols", codecontext.FormatOutline(path, res), true)
}

func (r *Runner) mcpCommand(ctx context.Context, args string) {
	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		r.ui.Error(errors.New("usage: :mcp <server> <tool> [json arguments]"), nil)
		return
	}
	server, tool := fields[0], fields[1]

	arguments := map[string]any{}
	if len(fields) == 3 && strings.TrimSpace(fields[2]) != "" {
		if err := json.Unmarshal([]byte(fields[2]), &arguments); err != nil {
			r.ui.Error(fmt.Errorf("mcp %s/%s: arguments must be a JSON object: %w", server, tool, err), nil)
			return
		}
	}

	res, err := r.mcp.CallTool(ctx, server, tool, arguments)
	if err != nil {
		var suggestions []string
		if errors.Is(err, mcp.ErrUnknownServer) {
			suggestions = []string{"Configured MCP servers: " + strings.Join(r.mcp.Servers(), ", ")}
		}
		r.ui.Error(err, suggestions)
		return
	}
	r.ui.ToolResult(server+"/"+tool, res.Text, !res.IsError)
}

func (r *Runner) status() map[string]string {
	sess := r.chat.Session()
	provider := r.chat.Provider()
	yolo := "OFF"
	if r.tools != nil && r.tools.Yolo() {
		yolo = "ON"
	}
	fields := map[string]string{
		"Name":     sess.Name,
		"ID":       sess.ID,
		"Messages": strconv.Itoa(len(sess.Messages)),
		"Provider": provider.Name(),
		"Model":    provider.Model(),
		"YOLO":     yolo,
		"Created":  sess.CreatedAt.Format(time.DateTime + " MST"),
		"Updated":  sess.UpdatedAt.Format(time.DateTime + " MST"),
	}
	if servers := r.servers(); len(servers) > 0 {
		fields["Servers"] = strings.Join(servers, ", ")
	}
	return fields
}
