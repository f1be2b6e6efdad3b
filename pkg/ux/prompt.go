// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("prompt aborted")

// Prompter asks the user questions.
type Prompter interface {
	// Confirm asks a yes/no question. The default answer is no.
	Confirm(ctx context.Context, title, description string) (bool, error)

	// Select asks the user to pick one of options. current is
	// preselected and returned on an empty answer.
	Select(ctx context.Context, title string, options []string, current string) (string, error)
}

// NewPrompter returns form-based prompts on a terminal and line-based
// prompts on stdin/stderr otherwise.
func NewPrompter() Prompter {
	if IsInteractive() {
		return &FormPrompter{}
	}
	return NewLinePrompter(os.Stdin, os.Stderr)
}

// =============================================================================
// FormPrompter
// =============================================================================

// FormPrompter renders prompts as huh forms.
type FormPrompter struct {
	// In and Out override the terminal streams when set.
	In  io.Reader
	Out io.Writer
}

func (p *FormPrompter) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).WithShowHelp(false)
	if p.In != nil {
		form = form.WithInput(p.In)
	}
	if p.Out != nil {
		form = form.WithOutput(p.Out)
	}
	err := form.RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return err
}

// Confirm shows a yes/no form.
func (p *FormPrompter) Confirm(ctx context.Context, title, description string) (bool, error) {
	var ok bool
	field := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)
	if err := p.run(ctx, field); err != nil {
		return false, err
	}
	return ok, nil
}

// Select shows a single-choice list.
func (p *FormPrompter) Select(ctx context.Context, title string, options []string, current string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("select %q: no options", title)
	}
	choice := current
	if !slices.Contains(options, choice) {
		choice = options[0]
	}
	field := huh.NewSelect[string]().
		Title(title).
		Options(huh.NewOptions(options...)...).
		Value(&choice)
	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	return choice, nil
}

// =============================================================================
// LinePrompter
// =============================================================================

// LinePrompter asks questions as plain lines, for pipes and dumb
// terminals.
type LinePrompter struct {
	in  *LineReader
	out io.Writer
}

// NewLinePrompter reads answers from r and writes questions to w.
func NewLinePrompter(r io.Reader, w io.Writer) *LinePrompter {
	return &LinePrompter{in: NewLineReader(r), out: w}
}

func (p *LinePrompter) readLine() (string, error) {
	line, err := p.in.ReadLine()
	if errors.Is(err, io.EOF) {
		return "", ErrAborted
	}
	return line, err
}

// Confirm accepts y or yes, case-insensitively. Input closed before an
// answer returns ErrAborted.
func (p *LinePrompter) Confirm(ctx context.Context, title, description string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if description != "" {
		_, _ = fmt.Fprintln(p.out, description)
	}
	_, _ = fmt.Fprintf(p.out, "%s [y/N]: ", title)

	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Select accepts a 1-based number or an option name.
func (p *LinePrompter) Select(ctx context.Context, title string, options []string, current string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("select %q: no options", title)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	_, _ = fmt.Fprintln(p.out, title)
	for i, opt := range options {
		marker := " "
		if opt == current {
			marker = "*"
		}
		_, _ = fmt.Fprintf(p.out, " %s %d) %s\n", marker, i+1, opt)
	}
	_, _ = fmt.Fprint(p.out, "choice: ")

	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	if line == "" && slices.Contains(options, current) {
		return current, nil
	}
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], nil
	}
	if slices.Contains(options, line) {
		return line, nil
	}
	return "", fmt.Errorf("invalid choice %q", line)
}
