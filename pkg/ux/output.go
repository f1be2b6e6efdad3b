// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling, prompts and line input for
// the crush CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// crush palette
var (
	ColorPrimary   = lipgloss.Color("#B388FF") // violet - titles, prompt
	ColorSecondary = lipgloss.Color("#7C4DFF") // deep violet - borders
	ColorAccent    = lipgloss.Color("#FF80AB") // pink - highlights
	ColorSlate     = lipgloss.Color("#6C7086") // muted text

	ColorSuccess = lipgloss.Color("#A6E3A1")
	ColorWarning = lipgloss.Color("#F9E2AF")
	ColorError   = lipgloss.Color("#F38BA8")
	ColorMuted   = ColorSlate
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	InfoBox    lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorSecondary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorAccent).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSecondary).
		Padding(0, 1),
	InfoBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconTool    Icon = "⚙"
)

// Render returns the icon with its semantic color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled status lines. Machine-level output goes to Out
// for results and Err for warnings and errors, so scripts can separate
// them.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Level PersonalityLevel
}

// NewPrinter returns a Printer writing both streams to w.
func NewPrinter(w io.Writer, level PersonalityLevel) *Printer {
	return &Printer{Out: w, Err: w, Level: level}
}

// Stdout returns a Printer on the process streams at the current level.
func Stdout() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Level: GetPersonality()}
}

func (p *Printer) printf(w io.Writer, format string, args ...any) {
	// Terminal write errors have no meaningful recovery.
	_, _ = fmt.Fprintf(w, format, args...)
}

// Title prints a styled title. Suppressed in machine mode.
func (p *Printer) Title(text string) {
	if p.Level == PersonalityMachine {
		return
	}
	p.printf(p.Out, "%s\n", Styles.Title.Render(text))
}

// Success prints a success message with a checkmark.
func (p *Printer) Success(text string) {
	switch p.Level {
	case PersonalityMachine:
		p.printf(p.Out, "OK: %s\n", text)
	case PersonalityMinimal:
		p.printf(p.Out, "%s %s\n", IconSuccess, text)
	default:
		p.printf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message.
func (p *Printer) Warning(text string) {
	switch p.Level {
	case PersonalityMachine:
		p.printf(p.Err, "WARN: %s\n", text)
	case PersonalityMinimal:
		p.printf(p.Out, "%s %s\n", IconWarning, text)
	default:
		p.printf(p.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message.
func (p *Printer) Error(text string) {
	switch p.Level {
	case PersonalityMachine:
		p.printf(p.Err, "ERROR: %s\n", text)
	case PersonalityMinimal:
		p.printf(p.Out, "%s %s\n", IconError, text)
	default:
		p.printf(p.Out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.Level == PersonalityMachine {
		p.printf(p.Out, "%s\n", text)
		return
	}
	p.printf(p.Out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text. Suppressed in machine mode.
func (p *Printer) Muted(text string) {
	if p.Level == PersonalityMachine {
		return
	}
	p.printf(p.Out, "%s\n", Styles.Muted.Render(text))
}

// Box prints content in a rounded box under a title.
func (p *Printer) Box(title, content string) {
	switch p.Level {
	case PersonalityMachine:
		p.printf(p.Out, "%s: %s\n", title, content)
	case PersonalityMinimal:
		p.printf(p.Out, "%s\n%s\n", title, content)
	default:
		p.printf(p.Out, "%s\n", Styles.Box.Width(boxWidth).Render(Styles.Title.Render(title)+"\n"+content))
	}
}

// WarningBox prints content in a warning-styled box.
func (p *Printer) WarningBox(title, content string) {
	switch p.Level {
	case PersonalityMachine:
		p.printf(p.Err, "WARN %s: %s\n", title, content)
	case PersonalityMinimal:
		p.printf(p.Out, "%s %s\n%s\n", IconWarning, title, content)
	default:
		titleLine := Styles.Warning.Bold(true).Render(title)
		p.printf(p.Out, "%s\n", Styles.WarningBox.Width(boxWidth).Render(titleLine+"\n"+content))
	}
}

// KeyValues prints fields sorted by key, aligned in full and minimal mode
// and as key=value lines in machine mode.
func (p *Printer) KeyValues(fields map[string]string) {
	keys := make([]string, 0, len(fields))
	width := 0
	for k := range fields {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch p.Level {
		case PersonalityMachine:
			p.printf(p.Out, "%s=%s\n", k, fields[k])
		case PersonalityMinimal:
			p.printf(p.Out, "%-*s  %s\n", width, k, fields[k])
		default:
			p.printf(p.Out, "%s  %s\n", Styles.Muted.Render(fmt.Sprintf("%-*s", width, k)), fields[k])
		}
	}
}

// List prints bulleted items. An empty list prints the empty text muted.
func (p *Printer) List(items []string, empty string) {
	if len(items) == 0 {
		if p.Level == PersonalityMachine {
			return
		}
		p.Muted(empty)
		return
	}
	for _, item := range items {
		if p.Level == PersonalityMachine {
			p.printf(p.Out, "%s\n", item)
			continue
		}
		p.printf(p.Out, "  %s %s\n", IconBullet, item)
	}
}

const boxWidth = 72

// Package-level helpers print through Stdout().

// Title prints a styled title.
func Title(text string) { Stdout().Title(text) }

// Success prints a success message.
func Success(text string) { Stdout().Success(text) }

// Warning prints a warning message.
func Warning(text string) { Stdout().Warning(text) }

// Error prints an error message.
func Error(text string) { Stdout().Error(text) }

// Info prints an informational line.
func Info(text string) { Stdout().Info(text) }

// Muted prints secondary text.
func Muted(text string) { Stdout().Muted(text) }

// Indent prefixes every non-empty line of s with prefix.
func Indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
