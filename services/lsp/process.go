// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
)

// ServerConfig describes how to launch a language server.
//
// It is passed through to the OS unvalidated.
type ServerConfig struct {
	// Command is the executable name or path.
	Command string

	// Args are passed to Command in order.
	Args []string

	// Env overlays the host environment.
	Env map[string]string

	// Dir is the working directory. Empty means the current one.
	Dir string

	// Stderr receives the server's stderr. Nil means os.Stderr.
	Stderr io.Writer
}

// Process is a running language server child process.
//
// Thread Safety:
//
//	Safe for concurrent use. Kill has effect only once.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	killOnce sync.Once
	done     chan struct{}
}

// Spawn starts the server described by cfg.
//
// Description:
//
//	Pipes the child's stdin and stdout for the transport and passes its
//	stderr through for diagnostics. The child is not tied to any context:
//	it lives until Kill.
//
// Inputs:
//
//	ctx - Used for telemetry only
//	cfg - Launch configuration
//
// Outputs:
//
//	*Process - The running process
//	error - Wraps ErrSpawnFailed
func Spawn(ctx context.Context, cfg ServerConfig) (*Process, error) {
	p, err := spawn(cfg)
	recordSpawn(ctx, cfg.Command, err == nil)
	if err != nil {
		slog.Warn("Language server failed to start",
			slog.String("command", cfg.Command),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	slog.Debug("Language server started",
		slog.String("command", cfg.Command),
		slog.Int("pid", p.Pid()),
	)
	return p, nil
}

func spawn(cfg ServerConfig) (*Process, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: empty command", ErrSpawnFailed)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = overlayEnv(os.Environ(), cfg.Env)
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawnFailed, cfg.Command, err)
	}

	return &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		done:   make(chan struct{}),
	}, nil
}

// overlayEnv appends the overlay in a stable order. exec keeps the last
// value of a duplicated key, so overlay entries win.
func overlayEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(keys))
	env = append(env, base...)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}

// Stdin is the writer connected to the server's stdin.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout is the reader connected to the server's stdout.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Kill terminates the process if it is still running and reaps it.
//
// Only the first call does anything; later calls return immediately.
// The wait status of a killed server is not an error.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		defer close(p.done)

		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.Debug("Kill language server",
				slog.Int("pid", p.Pid()),
				slog.String("error", err.Error()),
			)
		}
		if err := p.cmd.Wait(); err != nil {
			slog.Debug("Language server exited",
				slog.Int("pid", p.Pid()),
				slog.String("status", err.Error()),
			)
		}
	})
}

// Exited reports whether the process has been killed and reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done is closed once Kill has reaped the process.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitState returns the reaped process state, or nil before Kill returns.
func (p *Process) ExitState() *os.ProcessState {
	if !p.Exited() {
		return nil
	}
	return p.cmd.ProcessState
}
