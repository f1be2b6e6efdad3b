// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// terminalChatUI Tests
// =============================================================================

func newTestUI(level PersonalityLevel) (ChatUI, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewChatUIWithWriter(&buf, level), &buf
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// -----------------------------------------------------------------------------
// Header Tests
// -----------------------------------------------------------------------------

func TestChatUI_Header_MachineMode(t *testing.T) {
	ui, buf := newTestUI(PersonalityMachine)
	ui.Header(HeaderConfig{Provider: "openai", Model: "gpt-4o", Session: "default", Servers: []string{"gopls"}})

	assertContains(t, buf.String(),
		"CHAT_START: provider=openai model=gpt-4o session=default yolo=false",
		"SERVER: gopls")
}

func TestChatUI_Header_MinimalMode(t *testing.T) {
	ui, buf := newTestUI(PersonalityMinimal)
	ui.Header(HeaderConfig{Provider: "ollama", Model: "llama3", Session: "work", Yolo: true})

	assertContains(t, buf.String(),
		"crush | ollama (llama3) | session: work",
		"YOLO mode",
		"Type 'exit' to end")
}

func TestChatUI_Header_FullMode(t *testing.T) {
	ui, buf := newTestUI(PersonalityFull)
	ui.Header(HeaderConfig{Provider: "anthropic", Model: "claude", Session: "s1", Servers: []string{"gopls", "mcp:fs"}})

	assertContains(t, buf.String(), "crush", "anthropic", "claude", "s1", "gopls, mcp:fs")
	if strings.Contains(buf.String(), "YOLO") {
		t.Error("YOLO warning shown without yolo mode")
	}
}

// -----------------------------------------------------------------------------
// Turn Tests
// -----------------------------------------------------------------------------

func TestChatUI_Prompt(t *testing.T) {
	ui, _ := newTestUI(PersonalityMachine)
	if ui.Prompt() != "> " {
		t.Errorf("Prompt() = %q", ui.Prompt())
	}
	full, _ := newTestUI(PersonalityFull)
	if !strings.Contains(full.Prompt(), ">") {
		t.Errorf("Prompt() = %q", full.Prompt())
	}
}

func TestChatUI_Response(t *testing.T) {
	ui, buf := newTestUI(PersonalityMachine)
	ui.Response("use a mutex")
	if buf.String() != "RESPONSE: use a mutex\n" {
		t.Errorf("Response() = %q", buf.String())
	}

	ui, buf = newTestUI(PersonalityMinimal)
	ui.Response("use a mutex")
	if buf.String() != "\nuse a mutex\n\n" {
		t.Errorf("Response() = %q", buf.String())
	}
}

func TestChatUI_ToolResult(t *testing.T) {
	ui, buf := newTestUI(PersonalityMachine)
	ui.ToolResult("git_status", "clean\n", true)
	if buf.String() != "TOOL: name=git_status success=true\nclean\n" {
		t.Errorf("ToolResult() = %q", buf.String())
	}

	ui, buf = newTestUI(PersonalityFull)
	ui.ToolResult("shell", "line1\nline2", false)
	assertContains(t, buf.String(), "shell", IconError.Render(), "  line1\n  line2")
}

func TestChatUI_Error_WithSuggestions(t *testing.T) {
	ui, buf := newTestUI(PersonalityMachine)
	ui.Error(errors.New("401 unauthorized"), []string{"check api_key"})
	assertContains(t, buf.String(), "CHAT_ERROR: 401 unauthorized", "SUGGESTION: check api_key")

	ui, buf = newTestUI(PersonalityMinimal)
	ui.Error(errors.New("timeout"), []string{"retry later"})
	assertContains(t, buf.String(), "Chat error: timeout", "→ retry later")
}

func TestChatUI_Help(t *testing.T) {
	commands := []Command{{"exit", "leave"}, {":symbols <file>", "outline"}}

	ui, buf := newTestUI(PersonalityMinimal)
	ui.Help(commands)
	assertContains(t, buf.String(), "Commands", "  exit             leave", "  :symbols <file>  outline")

	ui, buf = newTestUI(PersonalityMachine)
	ui.Help(commands)
	assertContains(t, buf.String(), "COMMAND: exit\tleave")
}

func TestChatUI_Status(t *testing.T) {
	ui, buf := newTestUI(PersonalityMachine)
	ui.Status(map[string]string{"provider": "openai", "messages": "3"})
	if buf.String() != "messages=3\nprovider=openai\n" {
		t.Errorf("Status() = %q", buf.String())
	}
}

// -----------------------------------------------------------------------------
// Session Tests
// -----------------------------------------------------------------------------

func TestChatUI_SessionResume(t *testing.T) {
	ui, buf := newTestUI(PersonalityMachine)
	ui.SessionResume("work", 4)
	if buf.String() != "SESSION_RESUME: session=work turns=4\n" {
		t.Errorf("SessionResume() = %q", buf.String())
	}

	ui, buf = newTestUI(PersonalityMinimal)
	ui.SessionResume("work", 4)
	assertContains(t, buf.String(), "Resumed session work (4 previous turns)")
}

func TestChatUI_SessionEnd(t *testing.T) {
	ui, buf := newTestUI(PersonalityMachine)
	ui.SessionEnd("work")
	if buf.String() != "CHAT_END: session=work\n" {
		t.Errorf("SessionEnd() = %q", buf.String())
	}

	ui, buf = newTestUI(PersonalityMinimal)
	ui.SessionEnd("")
	if buf.String() != "Goodbye!\n" {
		t.Errorf("SessionEnd() = %q", buf.String())
	}
}
