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
)

const (
	anthropicAPIVersion   = "2023-06-01"
	anthropicDefaultBase  = "https://api.anthropic.com/v1"
	anthropicDefaultModel = "claude-3-5-sonnet-20240620"

	// System prompts longer than this are marked for prompt caching.
	anthropicCacheThreshold = 1024
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []systemBlock      `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Usage   *anthropicUsage    `json:"usage,omitempty"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient speaks the Anthropic Messages API over plain HTTP.
type AnthropicClient struct {
	httpClient  *http.Client
	name        string
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float32
}

// NewAnthropicClient builds a client. An empty baseURL uses
// api.anthropic.com.
func NewAnthropicClient(name, apiKey, baseURL, model string, maxTokens int, temperature float32) *AnthropicClient {
	if baseURL == "" {
		baseURL = anthropicDefaultBase
	}
	if model == "" {
		model = anthropicDefaultModel
	}
	slog.Info("Initializing Anthropic client",
		slog.String("provider", name),
		slog.String("model", model),
	)
	return &AnthropicClient{
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		name:        name,
		apiKey:      apiKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (a *AnthropicClient) Name() string  { return a.name }
func (a *AnthropicClient) Model() string { return a.model }

// Chat implements Provider. System messages move to the top-level system
// field; Anthropic rejects them inside messages.
func (a *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (resp *ChatResponse, err error) {
	messages := req.withContext()
	ctx, span := startSpan(ctx, "AnthropicClient.Chat", a.name, a.model, len(messages))
	defer func() { endSpan(span, err) }()

	payload := anthropicRequest{
		Model:     a.model,
		MaxTokens: req.maxTokens(a.maxTokens),
	}
	if t := req.temperature(a.temperature); t > 0 {
		payload.Temperature = &t
	}
	for _, m := range messages {
		if strings.EqualFold(m.Role, RoleSystem) {
			block := systemBlock{Type: "text", Text: m.Content}
			if len(m.Content) > anthropicCacheThreshold {
				block.CacheControl = &cacheControl{Type: "ephemeral"}
			}
			payload.System = append(payload.System, block)
			continue
		}
		payload.Messages = append(payload.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}
	slog.Debug("Sending request to Anthropic",
		slog.String("model", a.model),
		slog.Int("messages", len(payload.Messages)),
	)
	status, body, err := postJSON(ctx, a.httpClient, a.baseURL+"/messages", headers, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}
	if !isSuccess(status) {
		e := classify(a.name, status, string(body))
		e.Model = a.model
		slog.Error("Anthropic returned an error",
			slog.Int("status_code", status),
			slog.String("kind", e.Kind.String()),
		)
		return nil, e
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%s: failed to parse response JSON: %w", a.name, err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("%s: API error: %s - %s", a.name, apiResp.Error.Type, apiResp.Error.Message)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", a.name, ErrEmptyResponse)
	}

	resp = &ChatResponse{Content: text.String()}
	if u := apiResp.Usage; u != nil {
		resp.Usage = &Usage{
			PromptTokens:     u.InputTokens,
			CompletionTokens: u.OutputTokens,
			TotalTokens:      u.InputTokens + u.OutputTokens,
		}
	}
	return resp, nil
}
