// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy finds credentials and personal data in text before it
// is sent to a model provider.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatterns []byte

// Public is what Classify returns when nothing matches.
const Public = "public"

// ErrSensitiveData is returned when a message would leak a secret.
var ErrSensitiveData = errors.New("message contains sensitive data")

// ViolationError carries the findings that blocked a message.
type ViolationError struct {
	Findings []Finding
}

func (e *ViolationError) Error() string {
	ids := make([]string, 0, len(e.Findings))
	seen := make(map[string]bool)
	for _, f := range e.Findings {
		if !seen[f.PatternID] {
			seen[f.PatternID] = true
			ids = append(ids, f.PatternID)
		}
	}
	return fmt.Sprintf("%s (%s)", ErrSensitiveData, strings.Join(ids, ", "))
}

func (e *ViolationError) Unwrap() error {
	return ErrSensitiveData
}

// Engine scans text against the compiled classifications.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Engine struct {
	classifications []Classification
}

// NewEngine loads the built-in patterns.
func NewEngine() (*Engine, error) {
	return NewEngineFromYAML(defaultPatterns)
}

// NewEngineFromYAML loads patterns in the built-in file's format.
func NewEngineFromYAML(data []byte) (*Engine, error) {
	var f patternFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse policy patterns: %w", err)
	}
	if err := f.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile policy patterns: %w", err)
	}
	f.sortByPriority()
	return &Engine{classifications: f.Classifications}, nil
}

// Classifications returns the loaded classification names, highest
// priority first.
func (e *Engine) Classifications() []string {
	names := make([]string, len(e.classifications))
	for i, c := range e.classifications {
		names[i] = c.Name
	}
	return names
}

// Classify returns the first classification that matches, or Public.
func (e *Engine) Classify(text string) string {
	for _, c := range e.classifications {
		for _, p := range c.Patterns {
			if p.re.MatchString(text) {
				return c.Name
			}
		}
	}
	return Public
}

// Scan reports every match line by line.
func (e *Engine) Scan(text string) []Finding {
	var findings []Finding
	for n, line := range strings.Split(text, "\n") {
		for _, c := range e.classifications {
			for _, p := range c.Patterns {
				for _, loc := range p.re.FindAllStringSubmatchIndex(line, -1) {
					start, end := sensitiveSpan(loc)
					findings = append(findings, Finding{
						Line:           n + 1,
						Classification: c.Name,
						PatternID:      p.ID,
						Description:    p.Description,
						Confidence:     p.Confidence,
						Match:          mask(line[start:end]),
					})
				}
			}
		}
	}
	return findings
}

// Check returns a *ViolationError when text holds anything classified.
func (e *Engine) Check(text string) error {
	if findings := e.Scan(text); len(findings) > 0 {
		return &ViolationError{Findings: findings}
	}
	return nil
}

// Redact replaces every sensitive span with [REDACTED:<pattern id>] and
// reports what it replaced.
func (e *Engine) Redact(text string) (string, []Finding) {
	findings := e.Scan(text)
	if len(findings) == 0 {
		return text, nil
	}
	for _, c := range e.classifications {
		for _, p := range c.Patterns {
			text = redactPattern(text, p)
		}
	}
	return text, findings
}

func redactPattern(text string, p Pattern) string {
	locs := p.re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := sensitiveSpan(loc)
		b.WriteString(text[last:start])
		b.WriteString("[REDACTED:" + p.ID + "]")
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// sensitiveSpan picks the first capture group when it matched, else the
// whole match.
func sensitiveSpan(loc []int) (int, int) {
	if len(loc) >= 4 && loc[2] >= 0 {
		return loc[2], loc[3]
	}
	return loc[0], loc[1]
}

// mask keeps the first and last two characters.
func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
