// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session keeps named chat sessions on disk and runs the chat
// REPL over them.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/crush/services/config"
	"github.com/AleutianAI/crush/services/llm"
)

// DefaultName is the session used when none is given.
const DefaultName = "default"

var (
	// ErrNotFound is returned by Load for a session with no file.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidName rejects names that would escape the sessions
	// directory or are not usable as file names.
	ErrInvalidName = errors.New("invalid session name")
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Session is one named conversation.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Messages  []llm.Message `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// New returns a session seeded with the system prompt.
func New(name string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Name:      name,
		Messages:  []llm.Message{llm.NewMessage(llm.RoleSystem, llm.SystemPrompt)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Turns counts user messages.
func (s *Session) Turns() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == llm.RoleUser {
			n++
		}
	}
	return n
}

// Store reads and writes sessions as <dir>/<name>.json.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultStore returns the store under config.DataDir()/sessions.
func DefaultStore() (*Store, error) {
	data, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	return NewStore(filepath.Join(data, "sessions")), nil
}

// Dir returns the directory sessions are kept in.
func (s *Store) Dir() string {
	return s.dir
}

func validateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load reads the named session.
func (s *Store) Load(name string) (*Session, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", name, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", s.path(name), err)
	}
	if sess.Name == "" {
		sess.Name = name
	}
	return &sess, nil
}

// Save writes sess through a temp file and rename, so a crash never
// leaves a truncated session behind.
func (s *Store) Save(sess *Session) error {
	if err := validateName(sess.Name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating sessions directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.Name, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+sess.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("saving session %s: %w", sess.Name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("saving session %s: %w", sess.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving session %s: %w", sess.Name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(sess.Name)); err != nil {
		return fmt.Errorf("saving session %s: %w", sess.Name, err)
	}
	return nil
}

// List returns the names of saved sessions, sorted. A missing directory
// is an empty list.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// LoadOrCreate loads the named session, or creates and saves a new one.
// An empty name means DefaultName. created reports which happened.
func (s *Store) LoadOrCreate(name string) (sess *Session, created bool, err error) {
	if name == "" {
		name = DefaultName
	}
	sess, err = s.Load(name)
	if err == nil {
		slog.Debug("Session loaded",
			slog.String("session", name),
			slog.Int("messages", len(sess.Messages)),
		)
		return sess, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	sess = New(name)
	if err := s.Save(sess); err != nil {
		return nil, false, err
	}
	slog.Info("Session created",
		slog.String("session", name),
		slog.String("id", sess.ID),
	)
	return sess, true, nil
}
