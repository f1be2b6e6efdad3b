// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLinePrompter_Confirm(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr error
	}{
		{"y\n", true, nil},
		{"YES\n", true, nil},
		{"n\n", false, nil},
		{"\n", false, nil},
		{"", false, ErrAborted},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewLinePrompter(strings.NewReader(tt.input), &out)

			got, err := p.Confirm(context.Background(), "Run shell?", "rm -rf build")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Confirm() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "rm -rf build\nRun shell? [y/N]: ") {
				t.Errorf("prompt = %q", out.String())
			}
		})
	}
}

func TestLinePrompter_ConfirmCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLinePrompter(strings.NewReader("y\n"), &bytes.Buffer{}).Confirm(ctx, "t", "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Confirm() error = %v", err)
	}
}

func TestLinePrompter_Select(t *testing.T) {
	options := []string{"openai", "anthropic", "ollama"}
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"by number", "2\n", "anthropic", false},
		{"by name", "ollama\n", "ollama", false},
		{"default", "\n", "openai", false},
		{"out of range", "9\n", "", true},
		{"unknown", "gemini\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewLinePrompter(strings.NewReader(tt.input), &out)

			got, err := p.Select(context.Background(), "Default provider", options, "openai")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Select() = %q, want %q", got, tt.want)
			}
			if !strings.Contains(out.String(), " * 1) openai") {
				t.Errorf("current option not marked: %q", out.String())
			}
		})
	}
}

func TestSelect_NoOptions(t *testing.T) {
	if _, err := NewLinePrompter(strings.NewReader(""), &bytes.Buffer{}).Select(context.Background(), "x", nil, ""); err == nil {
		t.Error("LinePrompter.Select with no options should fail")
	}
	if _, err := (&FormPrompter{}).Select(context.Background(), "x", nil, ""); err == nil {
		t.Error("FormPrompter.Select with no options should fail")
	}
}
