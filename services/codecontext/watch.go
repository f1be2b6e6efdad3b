// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codecontext

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/AleutianAI/crush/services/lsp"
)

const (
	defaultWatchDebounce = 200 * time.Millisecond
	notifyTimeout        = 5 * time.Second
)

// skippedDirs are never watched.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"__pycache__":  true,
}

// watcher batches file system events under the workspace root and sends
// them to the language servers as workspace/didChangeWatchedFiles.
type watcher struct {
	m        *Manager
	fs       *fsnotify.Watcher
	debounce time.Duration
	excludes []glob.Glob

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Watch starts forwarding file changes under the root to the running
// servers. It is a no-op when no server is running or Watch was already
// called. Changes are debounced and sent only to servers that handle the
// file's extension. An invalid exclude pattern is an error.
func (m *Manager) Watch(ctx context.Context) error {
	if len(m.servers) == 0 || m.watcher != nil {
		return nil
	}
	excludes, err := compileExcludes(m.watchExclude)
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w := &watcher{
		m:        m,
		fs:       fsw,
		debounce: m.watchDebounce,
		excludes: excludes,
		done:     make(chan struct{}),
	}
	if err := w.addRecursive(m.root); err != nil {
		_ = fsw.Close()
		return err
	}
	m.watcher = w

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func compileExcludes(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("watch exclude %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// excluded reports whether path matches an exclude pattern.
func (w *watcher) excluded(path string) bool {
	if len(w.excludes) == 0 {
		return false
	}
	rel, err := filepath.Rel(w.m.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(path)
	for _, g := range w.excludes {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

func (w *watcher) skipDir(path string) bool {
	if path == w.m.root {
		return false
	}
	base := filepath.Base(path)
	return skippedDirs[base] || strings.HasPrefix(base, ".") || w.excluded(path)
}

func (w *watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if w.skipDir(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *watcher) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fs.Close()
		w.wg.Wait()
	})
}

func (w *watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]lsp.FileChangeType)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !w.skipDir(ev.Name) {
						_ = w.addRecursive(ev.Name)
					}
					continue
				}
			}
			if !w.m.Handles(ev.Name) || w.excluded(ev.Name) {
				continue
			}
			merge(pending, ev.Name, changeType(ev.Op))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			}

		case <-timerC:
			w.flush(ctx, pending)
			pending = make(map[string]lsp.FileChangeType)
			timer, timerC = nil, nil

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Debug("File watcher error", slog.String("error", err.Error()))
		}
	}
}

func changeType(op fsnotify.Op) lsp.FileChangeType {
	switch {
	case op.Has(fsnotify.Create):
		return lsp.FileCreated
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return lsp.FileDeleted
	default:
		return lsp.FileChanged
	}
}

// merge records t for path. A file created and then written in the same
// batch is still reported as created.
func merge(pending map[string]lsp.FileChangeType, path string, t lsp.FileChangeType) {
	if prev, ok := pending[path]; ok && prev == lsp.FileCreated && t == lsp.FileChanged {
		return
	}
	pending[path] = t
}

// flush sends one notification per server with that server's files.
func (w *watcher) flush(ctx context.Context, pending map[string]lsp.FileChangeType) {
	batches := make(map[*languageServer][]lsp.FileEvent)
	for path, t := range pending {
		ls, ok := w.m.serverFor(path)
		if !ok {
			continue
		}
		batches[ls] = append(batches[ls], lsp.FileEvent{URI: lsp.FileURI(path), Type: t})
	}

	for ls, changes := range batches {
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := ls.conn.Notify(nctx, lsp.NotifyDidChangeWatchedFiles, lsp.DidChangeWatchedFilesParams{Changes: changes})
		cancel()
		if err != nil {
			slog.Debug("didChangeWatchedFiles failed",
				slog.String("server", ls.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		slog.Debug("Sent file changes",
			slog.String("server", ls.name),
			slog.Int("files", len(changes)),
		)
	}
}
