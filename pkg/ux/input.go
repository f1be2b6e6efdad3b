// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// InputReader Interface
// =============================================================================

// InputReader abstracts user input reading for testability.
//
// # Outputs
//
// ReadLine returns the trimmed line, or io.EOF when input is exhausted.
//
// # Limitations
//
//   - Does not support multi-line input
type InputReader interface {
	ReadLine() (string, error)
}

// PromptingInputReader is implemented by readers that draw their own
// prompt. The REPL checks for it to avoid double-prompting:
//
//	if p, ok := reader.(PromptingInputReader); ok {
//	    p.SetPrompt(ui.Prompt())
//	} else {
//	    fmt.Print(ui.Prompt())
//	}
type PromptingInputReader interface {
	InputReader
	SetPrompt(prompt string)
}

// =============================================================================
// LineReader Implementation
// =============================================================================

// LineReader reads newline-terminated lines from any io.Reader. It is the
// fallback for piped input and CI.
//
// # Thread Safety
//
// Not thread-safe. Do not share across goroutines.
type LineReader struct {
	reader *bufio.Reader
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{reader: bufio.NewReader(r)}
}

// NewStdinReader returns a LineReader on os.Stdin.
func NewStdinReader() *LineReader {
	return NewLineReader(os.Stdin)
}

// ReadLine reads one line. A final line without a newline is returned
// before io.EOF.
func (r *LineReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// =============================================================================
// InteractiveInputReader Implementation (with history)
// =============================================================================

// InteractiveInputReader reads lines through a bubbletea text input with:
//   - Up/down arrow history navigation
//   - Line editing (Ctrl+A, Ctrl+E, etc.)
//   - Ctrl+C to clear the line, Ctrl+D to end input
//
// # Limitations
//
//   - History is in-memory only (not persisted across sessions)
type InteractiveInputReader struct {
	history    []string
	maxHistory int
	prompt     string

	in  io.Reader
	out io.Writer
}

// inputModel is the bubbletea model for interactive input.
type inputModel struct {
	textInput    textinput.Model
	history      []string
	historyIndex int
	currentInput string // input being edited before history navigation
	done         bool
	cancelled    bool
}

// NewInteractiveInputReader returns an interactive reader when stdin is a
// terminal and a LineReader otherwise.
func NewInteractiveInputReader(maxHistory int) InputReader {
	if !IsTerminal(os.Stdin) {
		return NewStdinReader()
	}
	return &InteractiveInputReader{
		history:    make([]string, 0, maxHistory),
		maxHistory: maxHistory,
		prompt:     "> ",
		out:        os.Stderr,
	}
}

// SetPrompt sets the prompt drawn by the text input.
func (r *InteractiveInputReader) SetPrompt(prompt string) {
	r.prompt = prompt
}

// History returns a copy of the submitted lines, oldest first.
func (r *InteractiveInputReader) History() []string {
	return append([]string(nil), r.history...)
}

// ReadLine runs the line editor until Enter, Ctrl+C or Ctrl+D.
// Non-empty submissions are added to history.
func (r *InteractiveInputReader) ReadLine() (string, error) {
	m := newInputModel(r.prompt, r.history)

	opts := []tea.ProgramOption{tea.WithOutput(r.out)}
	if r.in != nil {
		opts = append(opts, tea.WithInput(r.in))
	}
	finalModel, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return "", err
	}

	result, ok := finalModel.(inputModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}
	if result.cancelled {
		return "", io.EOF
	}

	input := strings.TrimSpace(result.textInput.Value())
	if input != "" {
		r.addToHistory(input)
	}
	return input, nil
}

func (r *InteractiveInputReader) addToHistory(input string) {
	if len(r.history) > 0 && r.history[len(r.history)-1] == input {
		return
	}
	r.history = append(r.history, input)
	if r.maxHistory > 0 && len(r.history) > r.maxHistory {
		r.history = r.history[1:]
	}
}

func newInputModel(prompt string, history []string) inputModel {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 80

	return inputModel{
		textInput:    ti,
		history:      history,
		historyIndex: -1,
	}
}

// Init initializes the bubbletea model.
func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles key events.
func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlC:
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlD:
			m.cancelled = true
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyUp:
			if len(m.history) == 0 {
				return m, nil
			}
			if m.historyIndex == -1 {
				m.currentInput = m.textInput.Value()
				m.historyIndex = len(m.history) - 1
			} else if m.historyIndex > 0 {
				m.historyIndex--
			}
			m.textInput.SetValue(m.history[m.historyIndex])
			m.textInput.CursorEnd()
			return m, nil

		case tea.KeyDown:
			if m.historyIndex == -1 {
				return m, nil
			}
			if m.historyIndex < len(m.history)-1 {
				m.historyIndex++
				m.textInput.SetValue(m.history[m.historyIndex])
			} else {
				m.historyIndex = -1
				m.textInput.SetValue(m.currentInput)
			}
			m.textInput.CursorEnd()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// View renders the input line.
func (m inputModel) View() string {
	if m.done {
		return ""
	}
	return m.textInput.View()
}

// =============================================================================
// MockInputReader Implementation (for testing)
// =============================================================================

// MockInputReader returns predetermined inputs in order, then io.EOF.
type MockInputReader struct {
	inputs []string
	index  int
}

// NewMockInputReader creates a reader over inputs.
func NewMockInputReader(inputs ...string) *MockInputReader {
	return &MockInputReader{inputs: inputs}
}

// ReadLine returns the next input.
func (r *MockInputReader) ReadLine() (string, error) {
	if r.index >= len(r.inputs) {
		return "", io.EOF
	}
	line := r.inputs[r.index]
	r.index++
	return strings.TrimSpace(line), nil
}
