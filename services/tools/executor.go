// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools runs local tools (shell, files, git) on behalf of the
// assistant, gated by an allow-list and user confirmation.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
)

// ErrUnknownTool is returned for a tool name no handler serves.
var ErrUnknownTool = errors.New("unknown tool")

// ErrMissingArgument is returned when a required argument is absent or
// not a string.
var ErrMissingArgument = errors.New("missing argument")

// deniedOutput is the result text for a call the user refused.
const deniedOutput = "Tool execution denied by user"

// safeTools run without confirmation when auto-approval is on. They
// only read state.
var safeTools = []string{
	"list_files",
	"read_file",
	"get_current_directory",
	"git_status",
	"git_log",
	"which",
	"echo",
}

// IsSafe reports whether name is on the read-only allow-list. Aliases
// are not: "cat" still asks even though "read_file" does not.
func IsSafe(name string) bool {
	return slices.Contains(safeTools, name)
}

// Call is one tool invocation.
type Call struct {
	Name        string         `json:"name"`
	Arguments   map[string]any `json:"arguments"`
	Description string         `json:"description,omitempty"`
}

// ParseCall builds a Call from a name and an optional JSON object of
// arguments.
func ParseCall(name, rawArgs string) (Call, error) {
	call := Call{Name: name, Arguments: map[string]any{}}
	rawArgs = strings.TrimSpace(rawArgs)
	if rawArgs == "" {
		return call, nil
	}
	if err := json.Unmarshal([]byte(rawArgs), &call.Arguments); err != nil {
		return Call{}, fmt.Errorf("tool %s: arguments must be a JSON object: %w", name, err)
	}
	return call, nil
}

// Result is what a tool produced. Error carries stderr or the failure
// text; it does not make the call itself an error.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Text joins output and error for display.
func (r *Result) Text() string {
	switch {
	case r.Error == "":
		return r.Output
	case r.Output == "":
		return r.Error
	default:
		return strings.TrimRight(r.Output, "\n") + "\n" + r.Error
	}
}

// Confirmer asks the user whether a tool may run. ux.Prompter satisfies
// it.
type Confirmer interface {
	Confirm(ctx context.Context, title, description string) (bool, error)
}

type handler func(ctx context.Context, e *Executor, args map[string]any) (*Result, error)

// handlers maps every accepted name, aliases included, to its tool.
var handlers = map[string]handler{
	"shell":                 runShell,
	"bash":                  runShell,
	"cmd":                   runShell,
	"list_files":            listFiles,
	"ls":                    listFiles,
	"read_file":             readFile,
	"cat":                   readFile,
	"write_file":            writeFile,
	"get_current_directory": currentDirectory,
	"pwd":                   currentDirectory,
	"git_status":            gitStatus,
	"git_log":               gitLog,
	"which":                 which,
	"echo":                  echo,
}

// Names returns every accepted tool name, sorted.
func Names() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Executor runs tool calls.
//
// # Description
//
// A call runs without asking when yolo mode is on, or when the tool is
// on the safe list and safe tools are auto-approved. Anything else goes
// through the Confirmer; with no Confirmer the call is denied.
//
// # Thread Safety
//
// Safe for concurrent use once built.
type Executor struct {
	yolo        bool
	autoApprove bool
	confirmer   Confirmer
	dir         string
}

// Option configures an Executor.
type Option func(*Executor)

// WithYolo skips confirmation for every tool.
func WithYolo(yolo bool) Option {
	return func(e *Executor) { e.yolo = yolo }
}

// WithAutoApproveSafe lets safe-listed tools run without confirmation.
func WithAutoApproveSafe(on bool) Option {
	return func(e *Executor) { e.autoApprove = on }
}

// WithConfirmer sets the prompt used for unapproved tools.
func WithConfirmer(c Confirmer) Option {
	return func(e *Executor) { e.confirmer = c }
}

// WithDir sets the working directory tools resolve relative paths
// against. The default is the process working directory.
func WithDir(dir string) Option {
	return func(e *Executor) { e.dir = dir }
}

// NewExecutor builds an Executor. Safe tools are auto-approved unless an
// option says otherwise.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{autoApprove: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Yolo reports whether confirmation is disabled.
func (e *Executor) Yolo() bool {
	return e.yolo
}

// Execute runs call after the approval check.
//
// # Outputs
//
//   - A denied call returns a non-success Result and a nil error.
//   - A tool that ran but failed (non-zero exit, unreadable file) returns
//     a non-success Result and a nil error.
//
// # Errors
//
//   - ErrUnknownTool for a name no tool serves
//   - ErrMissingArgument when a required argument is absent
//   - errors from the Confirmer other than an abort
func (e *Executor) Execute(ctx context.Context, call Call) (*Result, error) {
	h, ok := handlers[call.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}

	approved, err := e.approve(ctx, call)
	if err != nil {
		return nil, err
	}
	if !approved {
		slog.Info("Tool execution denied", slog.String("tool", call.Name))
		return &Result{Success: false, Output: deniedOutput}, nil
	}

	slog.Debug("Executing tool", slog.String("tool", call.Name))
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	return h(ctx, e, call.Arguments)
}

func (e *Executor) approve(ctx context.Context, call Call) (bool, error) {
	if e.yolo || (e.autoApprove && IsSafe(call.Name)) {
		return true, nil
	}
	if e.confirmer == nil {
		return false, nil
	}

	description := call.Description
	if description == "" {
		description = "No description provided"
	}
	args, err := json.MarshalIndent(call.Arguments, "", "  ")
	if err != nil {
		return false, fmt.Errorf("tool %s: encoding arguments: %w", call.Name, err)
	}
	detail := fmt.Sprintf("Tool: %s\nDescription: %s\nArguments: %s", call.Name, description, args)

	ok, err := e.confirmer.Confirm(ctx, "Do you want to execute this tool?", detail)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// An aborted prompt counts as a refusal.
		slog.Debug("Tool confirmation aborted",
			slog.String("tool", call.Name),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return ok, nil
}

// path resolves p against the executor's directory.
func (e *Executor) path(p string) string {
	if e.dir == "" || p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.dir, p)
}

func stringArg(args map[string]any, key string) (string, error) {
	s, ok := args[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingArgument, key)
	}
	return s, nil
}

func optionalString(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// intArg accepts JSON numbers and numeric strings.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return int(n)
		}
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
