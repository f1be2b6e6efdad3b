// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/crush/services/config"
	"github.com/AleutianAI/crush/services/llm"
)

func TestLoadOrCreate_NewSessionIsSeededAndSaved(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "sessions"))

	sess, created, err := store.LoadOrCreate("")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, DefaultName, sess.Name)
	_, err = uuid.Parse(sess.ID)
	assert.NoError(t, err)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, llm.RoleSystem, sess.Messages[0].Role)
	assert.Equal(t, llm.SystemPrompt, sess.Messages[0].Content)
	assert.Zero(t, sess.Turns())

	info, err := os.Stat(filepath.Join(store.Dir(), "default.json"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	again, created, err := store.LoadOrCreate(DefaultName)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.ID, again.ID)
	assert.True(t, sess.CreatedAt.Equal(again.CreatedAt))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	sess := New("work")
	sess.Messages = append(sess.Messages,
		llm.NewMessage(llm.RoleUser, "hi"),
		llm.NewMessage(llm.RoleAssistant, "hello"),
	)
	require.NoError(t, store.Save(sess))

	got, err := store.Load("work")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "hello", got.Messages[2].Content)
	assert.Equal(t, 1, got.Turns())

	// No temp files left behind.
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_Errors(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := store.Load(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
	assert.ErrorIs(t, store.Save(New("../x")), ErrInvalidName)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "bad.json"), []byte("{"), 0o600))
	_, err = store.Load("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")

	_, _, err = store.LoadOrCreate("bad")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing"))
	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, n := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, store.Save(New(n)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), ".x.json.tmp"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "dir.json"), 0o700))

	names, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestDefaultStore_UsesDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvDataDir, dir)

	store, err := DefaultStore()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sessions"), store.Dir())
}
