// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm talks to chat-completion providers: OpenAI and any
// OpenAI-compatible endpoint, Anthropic, and a local Ollama.
package llm

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SystemPrompt seeds every new session.
const SystemPrompt = "You are Crush, a helpful AI coding assistant. You can help with coding tasks, " +
	"explain code, suggest improvements, and run tools when needed. Always be concise and helpful. " +
	"When you need to run tools or execute commands, ask for permission unless the user has enabled yolo mode."

// contextPreamble introduces gathered code context to the model.
const contextPreamble = "You are an expert coding assistant. Context:\n"

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a message with the current time.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Usage is the token accounting reported by a provider, when it reports one.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest is one completion call.
type ChatRequest struct {
	// Messages is the conversation so far, oldest first.
	Messages []Message

	// Context is extra material (document outlines, MCP tool listings)
	// sent as a system message ahead of the conversation. Empty means none.
	Context string

	// MaxTokens and Temperature override provider defaults when non-zero.
	MaxTokens   int
	Temperature float32
}

// ChatResponse is the assistant's answer.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Provider sends a conversation to a model and returns the reply.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type Provider interface {
	// Name is the configured provider name (e.g. "openai", "kimi").
	Name() string

	// Model is the model identifier requests are sent to.
	Model() string

	// Chat sends req and returns the assistant's reply.
	//
	// # Errors
	//
	//   - *APIError when the provider answered with a non-success status
	//   - ErrEmptyResponse when the reply carried no text
	//   - ctx.Err() when cancelled
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// withContext returns the messages to send, with req.Context prepended
// as a system message when present.
func (req ChatRequest) withContext() []Message {
	if req.Context == "" {
		return req.Messages
	}
	out := make([]Message, 0, len(req.Messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: contextPreamble + req.Context})
	return append(out, req.Messages...)
}

// maxTokens picks the request override or the fallback.
func (req ChatRequest) maxTokens(fallback int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return fallback
}

func (req ChatRequest) temperature(fallback float32) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return fallback
}
