// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// HeaderConfig describes the session shown when the REPL starts.
type HeaderConfig struct {
	Provider string
	Model    string
	Session  string

	// Yolo is shown as a warning: tools run without confirmation.
	Yolo bool

	// Servers lists language and MCP servers that came up.
	Servers []string
}

// Command is one REPL command for the help listing.
type Command struct {
	Name        string
	Description string
}

// ChatUI renders the interactive chat loop.
type ChatUI interface {
	// Header displays the session banner.
	Header(config HeaderConfig)

	// Prompt returns the input prompt string.
	Prompt() string

	// Response displays the assistant's answer.
	Response(answer string)

	// ToolResult displays the output of a tool run from the REPL.
	ToolResult(name, output string, success bool)

	// Error displays a failed turn with optional remediation hints.
	Error(err error, suggestions []string)

	// Help lists the REPL commands.
	Help(commands []Command)

	// Status displays session and provider details.
	Status(fields map[string]string)

	// SessionResume displays that an existing session was loaded.
	SessionResume(session string, turnCount int)

	// SessionEnd displays the goodbye line.
	SessionEnd(session string)
}

// terminalChatUI implements ChatUI for terminal output
type terminalChatUI struct {
	writer      io.Writer
	personality PersonalityLevel
	printer     *Printer
}

func (u *terminalChatUI) write(format string, args ...any) {
	_, _ = fmt.Fprintf(u.writer, format, args...)
}

func (u *terminalChatUI) writeln(args ...any) {
	_, _ = fmt.Fprintln(u.writer, args...)
}

// NewChatUI creates a terminal ChatUI on stdout.
func NewChatUI() ChatUI {
	return NewChatUIWithWriter(os.Stdout, GetPersonality())
}

// NewChatUIWithWriter creates a ChatUI with a custom writer (for testing)
func NewChatUIWithWriter(w io.Writer, personality PersonalityLevel) ChatUI {
	return &terminalChatUI{
		writer:      w,
		personality: personality,
		printer:     NewPrinter(w, personality),
	}
}

func (u *terminalChatUI) Header(config HeaderConfig) {
	switch u.personality {
	case PersonalityMachine:
		u.write("CHAT_START: provider=%s model=%s session=%s yolo=%t\n",
			config.Provider, config.Model, config.Session, config.Yolo)
		for _, s := range config.Servers {
			u.write("SERVER: %s\n", s)
		}
		return
	case PersonalityMinimal:
		u.write("crush | %s (%s) | session: %s\n", config.Provider, config.Model, config.Session)
		if len(config.Servers) > 0 {
			u.write("servers: %s\n", strings.Join(config.Servers, ", "))
		}
		if config.Yolo {
			u.writeln("YOLO mode: tools run without confirmation")
		}
		u.writeln("Type 'exit' to end, 'help' for commands.")
		return
	}

	var body strings.Builder
	body.WriteString(fmt.Sprintf("%s %s\n", Styles.Muted.Render("provider"), config.Provider))
	body.WriteString(fmt.Sprintf("%s    %s\n", Styles.Muted.Render("model"), config.Model))
	body.WriteString(fmt.Sprintf("%s  %s", Styles.Muted.Render("session"), config.Session))
	if len(config.Servers) > 0 {
		body.WriteString(fmt.Sprintf("\n%s  %s", Styles.Muted.Render("servers"), strings.Join(config.Servers, ", ")))
	}
	u.writeln(Styles.InfoBox.Width(boxWidth).Render(Styles.Title.Render("crush") + "\n" + body.String()))
	if config.Yolo {
		u.printer.Warning("YOLO mode: tools run without confirmation")
	}
	u.writeln(Styles.Muted.Render("Type 'exit' to end, 'help' for commands."))
	u.writeln()
}

func (u *terminalChatUI) Prompt() string {
	if u.personality == PersonalityFull {
		return Styles.Highlight.Render("> ")
	}
	return "> "
}

func (u *terminalChatUI) Response(answer string) {
	if u.personality == PersonalityMachine {
		u.write("RESPONSE: %s\n", answer)
		return
	}
	u.writeln()
	u.writeln(answer)
	u.writeln()
}

func (u *terminalChatUI) ToolResult(name, output string, success bool) {
	output = strings.TrimRight(output, "\n")
	if u.personality == PersonalityMachine {
		u.write("TOOL: name=%s success=%t\n%s\n", name, success, output)
		return
	}

	icon := IconSuccess
	if !success {
		icon = IconError
	}
	if u.personality == PersonalityMinimal {
		u.write("%s %s %s\n%s\n", IconTool, name, icon, output)
		return
	}
	u.write("%s %s %s\n", IconTool, Styles.Bold.Render(name), icon.Render())
	if output != "" {
		u.writeln(Indent(output, "  "))
	}
}

func (u *terminalChatUI) Error(err error, suggestions []string) {
	if u.personality == PersonalityMachine {
		u.write("CHAT_ERROR: %v\n", err)
		for _, s := range suggestions {
			u.write("SUGGESTION: %s\n", s)
		}
		return
	}
	u.printer.Error(fmt.Sprintf("Chat error: %v", err))
	for _, s := range suggestions {
		u.write("  %s %s\n", IconArrow, s)
	}
}

func (u *terminalChatUI) Help(commands []Command) {
	width := 0
	for _, c := range commands {
		width = max(width, len(c.Name))
	}
	if u.personality != PersonalityMachine {
		u.printer.Title("Commands")
	}
	for _, c := range commands {
		switch u.personality {
		case PersonalityMachine:
			u.write("COMMAND: %s\t%s\n", c.Name, c.Description)
		case PersonalityMinimal:
			u.write("  %-*s  %s\n", width, c.Name, c.Description)
		default:
			u.write("  %s  %s\n", Styles.Highlight.Render(fmt.Sprintf("%-*s", width, c.Name)), c.Description)
		}
	}
}

func (u *terminalChatUI) Status(fields map[string]string) {
	if u.personality != PersonalityMachine {
		u.printer.Title("Status")
	}
	u.printer.KeyValues(fields)
}

func (u *terminalChatUI) SessionResume(session string, turnCount int) {
	if u.personality == PersonalityMachine {
		u.write("SESSION_RESUME: session=%s turns=%d\n", session, turnCount)
		return
	}
	u.printer.Success(fmt.Sprintf("Resumed session %s (%d previous turns)", session, turnCount))
}

func (u *terminalChatUI) SessionEnd(session string) {
	if u.personality == PersonalityMachine {
		u.write("CHAT_END: session=%s\n", session)
		return
	}
	if session != "" {
		u.writeln(Styles.Muted.Render(fmt.Sprintf("Session saved: %s", session)))
	}
	u.writeln("Goodbye!")
}
