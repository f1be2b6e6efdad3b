// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines how rich the CLI output is.
type PersonalityLevel string

const (
	// PersonalityFull enables colors, icons and boxes.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityMinimal uses icons and plain text only.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs KEY: value lines suitable for scripting.
	PersonalityMachine PersonalityLevel = "machine"
)

// PersonalityEnv overrides the detected level.
const PersonalityEnv = "CRUSH_OUTPUT"

var (
	currentLevel  = PersonalityFull
	personalityMu sync.RWMutex
)

// GetPersonality returns the current output level.
func GetPersonality() PersonalityLevel {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentLevel
}

// SetPersonality changes the output level for package-level helpers.
func SetPersonality(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentLevel = level
}

// ParsePersonalityLevel converts a string to a PersonalityLevel.
// Unknown values yield PersonalityFull.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m", "plain":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityFull
	}
}

// InitPersonality picks the level from CRUSH_OUTPUT, falling back to
// machine output when stdout is not a terminal.
func InitPersonality() {
	if env := os.Getenv(PersonalityEnv); env != "" {
		SetPersonality(ParsePersonalityLevel(env))
		return
	}
	if !IsTerminal(os.Stdout) {
		SetPersonality(PersonalityMachine)
		return
	}
	SetPersonality(PersonalityFull)
}

// IsTerminal reports whether f is attached to a terminal, including
// Cygwin/MSYS ptys.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive returns true if forms and the line editor may be used.
func IsInteractive() bool {
	return GetPersonality() != PersonalityMachine && IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}
