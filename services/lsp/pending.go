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
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// outcome is what a waiting caller receives: a raw result or an error.
type outcome struct {
	result json.RawMessage
	err    error
}

// pendingTable maps outstanding request ids to their waiters.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Each waiter channel is
//	buffered with capacity 1 and written at most once, so the read loop
//	never blocks on a caller that stopped listening.
type pendingTable struct {
	mu        sync.Mutex
	waiters   map[ID]chan outcome
	closedErr error
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: make(map[ID]chan outcome)}
}

// register adds a waiter for id.
//
// Fails once failAll has run, so no caller can wait on a dead connection.
func (p *pendingTable) register(id ID) (<-chan outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closedErr != nil {
		return nil, p.closedErr
	}
	if _, exists := p.waiters[id]; exists {
		return nil, fmt.Errorf("request id %s already pending", id)
	}

	ch := make(chan outcome, 1)
	p.waiters[id] = ch
	return ch, nil
}

// resolve delivers o to the waiter for id and removes it.
//
// Returns false if nothing was waiting on id. That is not an error: late
// or duplicate responses are dropped.
func (p *pendingTable) resolve(id ID, o outcome) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()

	if !ok {
		slog.Debug("Dropping response for unknown request id",
			slog.String("id", id.String()),
		)
		return false
	}

	ch <- o
	return true
}

// forget removes a waiter without delivering anything.
func (p *pendingTable) forget(id ID) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

// failAll delivers err to every waiter and rejects future registrations
// with the same error. Only the first call's error is kept.
func (p *pendingTable) failAll(err error) {
	p.mu.Lock()
	if p.closedErr == nil {
		p.closedErr = err
	}
	waiters := p.waiters
	p.waiters = make(map[ID]chan outcome)
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- outcome{err: err}
	}
}

// len returns the number of outstanding requests.
func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
