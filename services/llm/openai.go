// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIClient speaks the OpenAI chat completions API. It also serves
// DeepSeek, Kimi and any other OpenAI-compatible endpoint through a
// custom base URL.
type OpenAIClient struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIClient builds a client. An empty baseURL uses api.openai.com.
func NewOpenAIClient(name, apiKey, baseURL, model string, maxTokens int, temperature float32) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	if model == "" {
		model = defaultOpenAIModel
	}
	slog.Info("Initializing OpenAI-compatible client",
		slog.String("provider", name),
		slog.String("model", model),
		slog.String("base_url", cfg.BaseURL),
	)
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		name:        name,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (c *OpenAIClient) Name() string  { return c.name }
func (c *OpenAIClient) Model() string { return c.model }

// Chat implements Provider.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (resp *ChatResponse, err error) {
	messages := req.withContext()
	ctx, span := startSpan(ctx, "OpenAIClient.Chat", c.name, c.model, len(messages))
	defer func() { endSpan(span, err) }()

	creq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   req.maxTokens(c.maxTokens),
		Temperature: req.temperature(c.temperature),
	}
	for _, m := range messages {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	slog.Debug("Sending chat completion",
		slog.String("provider", c.name),
		slog.String("model", c.model),
		slog.Int("messages", len(messages)),
	)
	out, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		slog.Warn("Provider returned no choices or empty content", slog.String("provider", c.name))
		return nil, fmt.Errorf("%s: %w", c.name, ErrEmptyResponse)
	}
	slog.Debug("Received chat completion",
		slog.String("provider", c.name),
		slog.String("finish_reason", string(out.Choices[0].FinishReason)),
	)

	resp = &ChatResponse{Content: out.Choices[0].Message.Content}
	if out.Usage.TotalTokens > 0 {
		resp.Usage = &Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return resp, nil
}

// wrapError maps go-openai errors onto *APIError.
func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		body := fmt.Sprintf("%s %s %v", apiErr.Message, apiErr.Type, apiErr.Code)
		e := classify(c.name, apiErr.HTTPStatusCode, body)
		e.Model = c.model
		slog.Error("OpenAI-compatible API call failed",
			slog.String("provider", c.name),
			slog.Int("status", e.Status),
			slog.String("kind", e.Kind.String()),
		)
		return e
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := string(reqErr.Body)
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		e := classify(c.name, reqErr.HTTPStatusCode, body)
		e.Model = c.model
		slog.Error("OpenAI-compatible API call failed",
			slog.String("provider", c.name),
			slog.Int("status", e.Status),
			slog.String("kind", e.Kind.String()),
		)
		return e
	}

	return fmt.Errorf("%s: API call failed: %w", c.name, err)
}
