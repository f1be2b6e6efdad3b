// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// runShell runs "command" through the platform shell. A non-zero exit is
// a failed Result carrying stdout and stderr.
func runShell(ctx context.Context, e *Executor, args map[string]any) (*Result, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}

	cmd := shellCommand(ctx, command)
	cmd.Dir = e.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := &Result{Success: runErr == nil, Output: stdout.String(), Error: stderr.String()}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The shell itself could not start.
			res.Error = strings.TrimSpace(res.Error + "\n" + runErr.Error())
		}
	}
	return res, nil
}

// listFiles lists a directory, directories first then files, each with
// its mode and size.
func listFiles(_ context.Context, e *Executor, args map[string]any) (*Result, error) {
	dir := e.path(optionalString(args, "path", "."))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	var dirs, files []string
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		line := fmt.Sprintf("%s %10d  %s", info.Mode(), info.Size(), entry.Name())
		if entry.IsDir() {
			dirs = append(dirs, line+"/")
		} else {
			files = append(files, line)
		}
	}

	var out strings.Builder
	for _, line := range append(dirs, files...) {
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return &Result{Success: true, Output: out.String()}, nil
}

func readFile(_ context.Context, e *Executor, args map[string]any) (*Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(e.path(path))
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: string(data)}, nil
}

func writeFile(_ context.Context, e *Executor, args map[string]any) (*Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(e.path(path), []byte(content), 0o644); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: fmt.Sprintf("Successfully wrote to %s", path)}, nil
}

func currentDirectory(_ context.Context, e *Executor, _ map[string]any) (*Result, error) {
	if e.dir != "" {
		return &Result{Success: true, Output: e.dir}, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: wd}, nil
}

// which resolves "command" on PATH.
func which(_ context.Context, _ *Executor, args map[string]any) (*Result, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: path}, nil
}

func echo(_ context.Context, _ *Executor, args map[string]any) (*Result, error) {
	return &Result{Success: true, Output: optionalString(args, "message", "")}, nil
}
