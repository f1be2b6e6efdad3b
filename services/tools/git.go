// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

const defaultLogLimit = 10

// openRepo opens the repository containing the executor's directory.
func (e *Executor) openRepo() (*git.Repository, error) {
	dir := e.dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	return git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
}

// gitStatus prints changed paths in porcelain form ("XY path"), sorted.
func gitStatus(_ context.Context, e *Executor, _ map[string]any) (*Result, error) {
	repo, err := e.openRepo()
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("not a git repository: %v", err)}, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	status, err := wt.Status()
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	paths := make([]string, 0, len(status))
	for path, fs := range status {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	slices.Sort(paths)

	var out strings.Builder
	for _, path := range paths {
		fs := status[path]
		fmt.Fprintf(&out, "%c%c %s\n", fs.Staging, fs.Worktree, path)
	}
	return &Result{Success: true, Output: out.String()}, nil
}

// gitLog prints the last "limit" commits reachable from HEAD as
// "<short hash> <subject>" lines.
func gitLog(ctx context.Context, e *Executor, args map[string]any) (*Result, error) {
	limit := intArg(args, "limit", defaultLogLimit)

	repo, err := e.openRepo()
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("not a git repository: %v", err)}, nil
	}
	iter, err := repo.Log(&git.LogOptions{Order: git.LogOrderCommitterTime})
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	defer iter.Close()

	var out strings.Builder
	n := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if n >= limit {
			return storer.ErrStop
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
		fmt.Fprintf(&out, "%s %s\n", c.Hash.String()[:7], subject)
		n++
		return nil
	})
	if err != nil {
		return &Result{Success: false, Output: out.String(), Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: out.String()}, nil
}
