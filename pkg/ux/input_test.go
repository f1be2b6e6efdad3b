// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestLineReader(t *testing.T) {
	r := NewLineReader(strings.NewReader("  hello \nsecond\nlast"))

	for _, want := range []string{"hello", "second", "last"} {
		got, err := r.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine() error = %v", err)
		}
		if got != want {
			t.Errorf("ReadLine() = %q, want %q", got, want)
		}
	}
	if _, err := r.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadLine() error = %v, want io.EOF", err)
	}
}

func TestMockInputReader(t *testing.T) {
	r := NewMockInputReader("a", " b ")
	if got, _ := r.ReadLine(); got != "a" {
		t.Errorf("got %q", got)
	}
	if got, _ := r.ReadLine(); got != "b" {
		t.Errorf("got %q", got)
	}
	if _, err := r.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want io.EOF", err)
	}
}

// =============================================================================
// inputModel Tests
// =============================================================================

func press(m inputModel, k tea.KeyType) (inputModel, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(inputModel), cmd
}

func typeText(m inputModel, s string) inputModel {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(inputModel)
}

func TestInputModel_EnterSubmits(t *testing.T) {
	m := typeText(newInputModel("> ", nil), "explain main.go")
	m, cmd := press(m, tea.KeyEnter)

	if !m.done || m.cancelled {
		t.Errorf("done=%v cancelled=%v", m.done, m.cancelled)
	}
	if cmd == nil {
		t.Error("Enter should quit the program")
	}
	if m.textInput.Value() != "explain main.go" {
		t.Errorf("value = %q", m.textInput.Value())
	}
	if m.View() != "" {
		t.Errorf("View() after done = %q", m.View())
	}
}

func TestInputModel_CtrlCClears(t *testing.T) {
	m := typeText(newInputModel("> ", nil), "oops")
	m, _ = press(m, tea.KeyCtrlC)

	if m.cancelled || m.textInput.Value() != "" {
		t.Errorf("cancelled=%v value=%q", m.cancelled, m.textInput.Value())
	}
}

func TestInputModel_CtrlDCancels(t *testing.T) {
	m, _ := press(newInputModel("> ", nil), tea.KeyCtrlD)
	if !m.cancelled {
		t.Error("Ctrl+D should cancel")
	}
}

func TestInputModel_HistoryNavigation(t *testing.T) {
	m := typeText(newInputModel("> ", []string{"first", "second"}), "draft")

	m, _ = press(m, tea.KeyUp)
	if m.textInput.Value() != "second" {
		t.Fatalf("Up = %q, want second", m.textInput.Value())
	}
	m, _ = press(m, tea.KeyUp)
	m, _ = press(m, tea.KeyUp)
	if m.textInput.Value() != "first" {
		t.Fatalf("Up at oldest = %q, want first", m.textInput.Value())
	}
	m, _ = press(m, tea.KeyDown)
	if m.textInput.Value() != "second" {
		t.Fatalf("Down = %q, want second", m.textInput.Value())
	}
	m, _ = press(m, tea.KeyDown)
	if m.textInput.Value() != "draft" || m.historyIndex != -1 {
		t.Errorf("Down past newest = %q (index %d), want draft", m.textInput.Value(), m.historyIndex)
	}
}

func TestInputModel_UpWithoutHistory(t *testing.T) {
	m := typeText(newInputModel("> ", nil), "x")
	m, _ = press(m, tea.KeyUp)
	if m.textInput.Value() != "x" {
		t.Errorf("value = %q", m.textInput.Value())
	}
}

func TestInteractiveInputReader_History(t *testing.T) {
	r := &InteractiveInputReader{maxHistory: 2}
	r.addToHistory("a")
	r.addToHistory("a")
	r.addToHistory("b")
	r.addToHistory("c")

	got := r.History()
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("History() = %v, want [b c]", got)
	}
}
