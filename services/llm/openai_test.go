// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openAIWire struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

func TestOpenAIClient_Chat(t *testing.T) {
	var got openAIWire
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "use a mutex"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("deepseek", "sk-1", srv.URL+"/v1/", "deepseek-chat", 4000, 0.7)
	assert.Equal(t, "deepseek", c.Name())
	assert.Equal(t, "deepseek-chat", c.Model())

	resp, err := c.Chat(context.Background(), ChatRequest{
		Messages:  []Message{NewMessage(RoleSystem, SystemPrompt), NewMessage(RoleUser, "how do I guard a map?")},
		Context:   "main.go: func main",
		MaxTokens: 256,
	})
	require.NoError(t, err)

	assert.Equal(t, "use a mutex", resp.Content)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, "Bearer sk-1", auth)
	assert.Equal(t, "deepseek-chat", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "You are an expert coding assistant. Context:\nmain.go: func main", got.Messages[0].Content)
	assert.Equal(t, SystemPrompt, got.Messages[1].Content)
	assert.Equal(t, "user", got.Messages[2].Role)
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{
			name:   "bad key",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want:   KindAuth,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"Slow down","type":"requests","code":"rate_limit_exceeded"}}`,
			want:   KindRateLimit,
		},
		{
			name:   "cloudflare page",
			status: http.StatusForbidden,
			body:   `<!DOCTYPE html><html><title>Just a moment...</title></html>`,
			want:   KindCloudflare,
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   `{"error":{"message":"upstream","type":"server_error"}}`,
			want:   KindServer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAIClient("openai", "sk", srv.URL, "gpt-4o", 100, 0.5)
			_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{NewMessage(RoleUser, "hi")}})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %T: %v", err, err)
			assert.Equal(t, tt.want, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, "openai", apiErr.Provider)
		})
	}
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("openai", "sk", srv.URL, "", 100, 0.5)
	assert.Equal(t, defaultOpenAIModel, c.Model())
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{NewMessage(RoleUser, "hi")}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
