// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "llama3.2"

	// Local models can be slow to load on first use.
	ollamaHTTPTimeout = 5 * time.Minute
)

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaChatMessage `json:"message"`
	CreatedAt       string            `json:"created_at"`
	Done            bool              `json:"done"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

// OllamaClient talks to a local Ollama server through /api/chat. No API
// key is needed.
type OllamaClient struct {
	httpClient  *http.Client
	name        string
	baseURL     string
	model       string
	maxTokens   int
	temperature float32
}

// NewOllamaClient builds a client. An empty baseURL uses localhost:11434.
func NewOllamaClient(name, baseURL, model string, maxTokens int, temperature float32) *OllamaClient {
	if baseURL == "" {
		baseURL = ollamaDefaultBase
	}
	if model == "" {
		model = ollamaDefaultModel
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client",
		slog.String("base_url", baseURL),
		slog.String("model", model),
	)
	return &OllamaClient{
		httpClient:  &http.Client{Timeout: ollamaHTTPTimeout},
		name:        name,
		baseURL:     baseURL,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (o *OllamaClient) Name() string  { return o.name }
func (o *OllamaClient) Model() string { return o.model }

// Chat implements Provider.
func (o *OllamaClient) Chat(ctx context.Context, req ChatRequest) (resp *ChatResponse, err error) {
	messages := req.withContext()
	ctx, span := startSpan(ctx, "OllamaClient.Chat", o.name, o.model, len(messages))
	defer func() { endSpan(span, err) }()

	payload := ollamaChatRequest{
		Model:    o.model,
		Messages: make([]ollamaChatMessage, 0, len(messages)),
		Stream:   false,
		Options: map[string]any{
			"temperature": req.temperature(o.temperature),
			"num_predict": req.maxTokens(o.maxTokens),
		},
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}

	slog.Debug("Generating chat via Ollama",
		slog.String("model", o.model),
		slog.Int("messages", len(messages)),
	)
	status, body, err := postJSON(ctx, o.httpClient, o.baseURL+"/api/chat", nil, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}
	if !isSuccess(status) {
		return nil, o.statusError(status, body)
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		slog.Error("Failed to parse JSON chat response from Ollama",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s: failed to parse response: %w", o.name, err)
	}
	if chatResp.Message.Role != "" && chatResp.Message.Role != RoleAssistant {
		slog.Warn("Ollama chat response message role was not 'assistant'",
			slog.String("role", chatResp.Message.Role),
		)
	}
	if chatResp.Message.Content == "" {
		return nil, fmt.Errorf("%s: %w", o.name, ErrEmptyResponse)
	}

	resp = &ChatResponse{Content: chatResp.Message.Content}
	if total := chatResp.PromptEvalCount + chatResp.EvalCount; total > 0 {
		resp.Usage = &Usage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      total,
		}
	}
	return resp, nil
}

func (o *OllamaClient) statusError(status int, body []byte) error {
	e := classify(o.name, status, string(body))
	e.Model = o.model
	if status == http.StatusNotFound {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil &&
			strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
			slog.Warn("Ollama model not found", slog.String("model", o.model))
			e.Kind = KindModelNotFound
		}
	}
	slog.Error("Ollama chat returned an error",
		slog.Int("status_code", status),
		slog.String("kind", e.Kind.String()),
	)
	return e
}
