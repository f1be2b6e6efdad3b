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
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer written by the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewSpinner_Defaults(t *testing.T) {
	spin := NewSpinner("Loading...")
	if spin.message != "Loading..." {
		t.Errorf("message = %q", spin.message)
	}
	if spin.spinType != SpinnerDots {
		t.Errorf("spinType = %v, want SpinnerDots", spin.spinType)
	}
	if spin.WithType(SpinnerLine).spinType != SpinnerLine {
		t.Error("WithType did not apply")
	}
}

func TestSpinner_MachineModePrintsOnce(t *testing.T) {
	var buf syncBuffer
	spin := NewSpinnerWithWriter(&buf, PersonalityMachine, "thinking")

	spin.Start()
	spin.Start()
	spin.Stop()

	if got := buf.String(); got != "PROGRESS: thinking\n" {
		t.Errorf("output = %q", got)
	}
}

func TestSpinner_AnimatesAndClears(t *testing.T) {
	var buf syncBuffer
	spin := NewSpinnerWithWriter(&buf, PersonalityMinimal, "thinking").WithType(SpinnerLine)

	spin.Start()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "thinking") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	spin.UpdateMessage("reading symbols")
	time.Sleep(3 * spinnerInterval)
	spin.Stop()

	out := buf.String()
	if !strings.Contains(out, "\r- thinking") {
		t.Errorf("first frame missing: %q", out)
	}
	if !strings.Contains(out, "reading symbols") {
		t.Errorf("updated message missing: %q", out)
	}
	if !strings.HasSuffix(out, "\r\033[K") {
		t.Errorf("line not cleared on stop: %q", out)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	spin := NewSpinnerWithWriter(&syncBuffer{}, PersonalityFull, "idle")
	spin.Stop()
	spin.Stop()
}

func TestWithSpinner_ReturnsFnError(t *testing.T) {
	var buf syncBuffer
	want := errors.New("provider down")

	err := WithSpinner(&buf, PersonalityMachine, "asking", func() error { return want })
	if !errors.Is(err, want) {
		t.Errorf("WithSpinner() = %v, want %v", err, want)
	}
	if err := WithSpinner(&buf, PersonalityMachine, "asking", func() error { return nil }); err != nil {
		t.Errorf("WithSpinner() = %v", err)
	}
}
