// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"MINIMAL", PersonalityMinimal},
		{"plain", PersonalityMinimal},
		{" machine ", PersonalityMachine},
		{"q", PersonalityMachine},
		{"", PersonalityFull},
		{"nautical", PersonalityFull},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParsePersonalityLevel(tt.in); got != tt.want {
				t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetPersonality_RoundTrip(t *testing.T) {
	orig := GetPersonality()
	t.Cleanup(func() { SetPersonality(orig) })

	SetPersonality(PersonalityMinimal)
	if got := GetPersonality(); got != PersonalityMinimal {
		t.Errorf("GetPersonality() = %q, want minimal", got)
	}
}

func TestInitPersonality_FromEnv(t *testing.T) {
	orig := GetPersonality()
	t.Cleanup(func() { SetPersonality(orig) })

	t.Setenv(PersonalityEnv, "machine")
	InitPersonality()
	if got := GetPersonality(); got != PersonalityMachine {
		t.Errorf("GetPersonality() = %q, want machine", got)
	}
}

func TestIsTerminal_RegularFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Error("a regular file is not a terminal")
	}
	if IsTerminal(nil) {
		t.Error("nil is not a terminal")
	}
}
