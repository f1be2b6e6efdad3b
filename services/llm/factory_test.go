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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/crush/services/config"
)

func TestNewProvider_ByAPIType(t *testing.T) {
	global := config.GlobalSettings{MaxTokens: 1000, Temperature: 0.3}

	tests := []struct {
		name string
		cfg  config.ProviderConfig
		want any
	}{
		{"openai", config.ProviderConfig{APIType: config.APITypeOpenAI, APIKey: "k"}, &OpenAIClient{}},
		{"kimi", config.ProviderConfig{APIType: config.APITypeCustom, APIKey: "k", BaseURL: "https://api.moonshot.cn/v1"}, &OpenAIClient{}},
		{"anthropic", config.ProviderConfig{APIType: config.APITypeAnthropic, APIKey: "k"}, &AnthropicClient{}},
		{"ollama", config.ProviderConfig{APIType: config.APITypeOllama}, &OllamaClient{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.name, tt.cfg, global)
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
			assert.Equal(t, tt.name, p.Name())
		})
	}
}

func TestNewProvider_Defaults(t *testing.T) {
	p, err := NewProvider("openai", config.ProviderConfig{APIType: config.APITypeOpenAI, APIKey: "k"}, config.GlobalSettings{})
	require.NoError(t, err)
	c := p.(*OpenAIClient)
	assert.Equal(t, defaultMaxTokens, c.maxTokens)
	assert.Equal(t, defaultTemperature, c.temperature)
}

func TestNewProvider_MissingKey(t *testing.T) {
	_, err := NewProvider("openai", config.ProviderConfig{APIType: config.APITypeOpenAI}, config.GlobalSettings{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewProvider_ConsoleURL(t *testing.T) {
	for _, url := range []string{"https://console.anthropic.com/settings", "https://claude.ai/new"} {
		_, err := NewProvider("anthropic", config.ProviderConfig{
			APIType: config.APITypeAnthropic, APIKey: "k", BaseURL: url,
		}, config.GlobalSettings{})
		assert.ErrorIs(t, err, ErrInvalidBaseURL, url)
	}
}

func TestNewProvider_RateLimited(t *testing.T) {
	p, err := NewProvider("openai", config.ProviderConfig{
		APIType: config.APITypeOpenAI, APIKey: "k", RequestsPerMinute: 10,
	}, config.GlobalSettings{})
	require.NoError(t, err)
	assert.IsType(t, &rateLimited{}, p)
	assert.Equal(t, "openai", p.Name())
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	_, err := FromConfig(&cfg, "")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = FromConfig(&cfg, "nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	cfg.DefaultProvider = "ollama"
	p, err := FromConfig(&cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
}

// countingProvider records calls for wrapper tests.
type countingProvider struct {
	calls atomic.Int32
}

func (c *countingProvider) Name() string  { return "counting" }
func (c *countingProvider) Model() string { return "m" }
func (c *countingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	c.calls.Add(1)
	return &ChatResponse{Content: "ok"}, nil
}

func TestWithRateLimit(t *testing.T) {
	inner := &countingProvider{}
	assert.Same(t, Provider(inner), WithRateLimit(inner, 0))

	// 6000/min is one call every 10ms.
	p := WithRateLimit(inner, 6000)
	start := time.Now()
	for range 3 {
		_, err := p.Chat(context.Background(), ChatRequest{})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.EqualValues(t, 3, inner.calls.Load())
}

func TestWithRateLimit_Cancelled(t *testing.T) {
	inner := &countingProvider{}
	p := WithRateLimit(inner, 1)

	_, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Chat(ctx, ChatRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.EqualValues(t, 1, inner.calls.Load())
}
