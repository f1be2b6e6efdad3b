// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/crush/services/llm"
	"github.com/AleutianAI/crush/services/policy"
)

// Gatherer produces context for a user message. *codecontext.Manager
// satisfies it.
type Gatherer interface {
	Gather(ctx context.Context, message string) string
}

// Guard screens text before it leaves the machine. *policy.Engine
// satisfies it.
type Guard interface {
	Check(text string) error
	Redact(text string) (string, []policy.Finding)
}

// Chat sends turns of one session to one provider.
//
// # Thread Safety
//
// Not safe for concurrent use; the REPL drives it from one goroutine.
type Chat struct {
	provider llm.Provider
	store    *Store
	session  *Session
	gatherer Gatherer
	guard    Guard
}

// NewChat binds a session to a provider. store and gatherer may be nil:
// without a store nothing is persisted, without a gatherer no context is
// added.
func NewChat(provider llm.Provider, store *Store, sess *Session, gatherer Gatherer) *Chat {
	return &Chat{provider: provider, store: store, session: sess, gatherer: gatherer}
}

// SetGuard blocks user messages the guard rejects and redacts gathered
// context. Nil turns screening off.
func (c *Chat) SetGuard(g Guard) {
	c.guard = g
}

// Session returns the bound session.
func (c *Chat) Session() *Session {
	return c.session
}

// Provider returns the bound provider.
func (c *Chat) Provider() llm.Provider {
	return c.provider
}

// Send runs one turn.
//
// # Description
//
// Appends the user message, gathers context, asks the provider, appends
// the reply and saves the session. When the provider fails the user
// message is removed again so the session never holds an unanswered
// turn.
//
// With a guard set, a message it rejects is never sent or stored, and
// gathered context is redacted instead of rejected.
//
// # Errors
//
// The guard's error (a *policy.ViolationError) for a rejected message.
// Provider errors are returned as is (see llm.Suggestions). A failed
// save is returned after the reply has been appended; the response is
// still returned with it.
func (c *Chat) Send(ctx context.Context, message string) (*llm.ChatResponse, error) {
	sess := c.session
	if c.guard != nil {
		if err := c.guard.Check(message); err != nil {
			slog.Warn("Blocked message containing sensitive data",
				slog.String("session", sess.Name),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
	}
	sess.Messages = append(sess.Messages, llm.NewMessage(llm.RoleUser, message))

	var extra string
	if c.gatherer != nil {
		extra = c.gatherer.Gather(ctx, message)
	}
	if c.guard != nil && extra != "" {
		var findings []policy.Finding
		if extra, findings = c.guard.Redact(extra); len(findings) > 0 {
			slog.Warn("Redacted sensitive data from context",
				slog.String("session", sess.Name),
				slog.Int("findings", len(findings)),
			)
		}
	}

	start := time.Now()
	resp, err := c.provider.Chat(ctx, llm.ChatRequest{Messages: sess.Messages, Context: extra})
	if err != nil {
		sess.Messages = sess.Messages[:len(sess.Messages)-1]
		slog.Warn("Chat turn failed",
			slog.String("session", sess.Name),
			slog.String("provider", c.provider.Name()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if resp == nil {
		sess.Messages = sess.Messages[:len(sess.Messages)-1]
		return nil, llm.ErrEmptyResponse
	}

	sess.Messages = append(sess.Messages, llm.NewMessage(llm.RoleAssistant, resp.Content))
	sess.UpdatedAt = time.Now().UTC()

	attrs := []any{
		"session", sess.Name,
		"provider", c.provider.Name(),
		"model", c.provider.Model(),
		"duration", time.Since(start),
		"context_bytes", len(extra),
	}
	if resp.Usage != nil {
		attrs = append(attrs, "total_tokens", resp.Usage.TotalTokens)
	}
	slog.Debug("Chat turn complete", attrs...)

	if c.store != nil {
		if err := c.store.Save(sess); err != nil {
			return resp, errors.Join(ErrSaveFailed, err)
		}
	}
	return resp, nil
}

// ErrSaveFailed marks a turn that succeeded but could not be persisted.
var ErrSaveFailed = errors.New("session not saved")
