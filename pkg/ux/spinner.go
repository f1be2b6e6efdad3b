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
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// SpinnerType defines the animation style
type SpinnerType int

const (
	SpinnerDots SpinnerType = iota
	SpinnerLine
	SpinnerCircle
)

var spinnerFrames = map[SpinnerType][]string{
	SpinnerDots:   {"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	SpinnerLine:   {"-", "\\", "|", "/"},
	SpinnerCircle: {"◐", "◓", "◑", "◒"},
}

const spinnerInterval = 80 * time.Millisecond

// Spinner shows an animated indicator while the assistant waits on a
// provider or a language server.
type Spinner struct {
	message    string
	spinType   SpinnerType
	out        io.Writer
	level      PersonalityLevel
	stop       chan struct{}
	done       chan struct{}
	mu         sync.Mutex
	isRunning  bool
	frameIndex int
}

// NewSpinner creates a spinner on stderr at the current level.
func NewSpinner(message string) *Spinner {
	return NewSpinnerWithWriter(os.Stderr, GetPersonality(), message)
}

// NewSpinnerWithWriter creates a spinner writing frames to w.
func NewSpinnerWithWriter(w io.Writer, level PersonalityLevel, message string) *Spinner {
	return &Spinner{
		message:  message,
		spinType: SpinnerDots,
		out:      w,
		level:    level,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithType sets the animation style. Call before Start.
func (s *Spinner) WithType(t SpinnerType) *Spinner {
	s.spinType = t
	return s
}

// Start begins the animation. A second Start is a no-op; a stopped
// spinner cannot be restarted.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	if s.level == PersonalityMachine {
		_, _ = fmt.Fprintf(s.out, "PROGRESS: %s\n", s.message)
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		frames := spinnerFrames[s.spinType]
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				_, _ = fmt.Fprint(s.out, "\r\033[K")
				return
			case <-ticker.C:
				s.mu.Lock()
				frame := frames[s.frameIndex]
				msg := s.message
				s.frameIndex = (s.frameIndex + 1) % len(frames)
				s.mu.Unlock()

				if s.level == PersonalityFull {
					frame = Styles.Highlight.Render(frame)
				}
				_, _ = fmt.Fprintf(s.out, "\r%s %s", frame, msg)
			}
		}
	}()
}

// Stop halts the animation and clears the line. Safe to call on a
// spinner that never started.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.level != PersonalityMachine {
		close(s.stop)
	}
	<-s.done
}

// UpdateMessage changes the message while running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// WithSpinner runs fn behind a spinner on w.
func WithSpinner(w io.Writer, level PersonalityLevel, message string, fn func() error) error {
	spin := NewSpinnerWithWriter(w, level, message)
	spin.Start()
	defer spin.Stop()
	return fn()
}
