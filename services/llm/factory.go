// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/crush/services/config"
)

const (
	defaultHTTPTimeout = 2 * time.Minute
	defaultMaxTokens   = 4000
	defaultTemperature = float32(0.7)
)

// consoleHosts are web front-ends people paste as an Anthropic base_url.
var consoleHosts = []string{"console.anthropic.com", "claude.ai"}

// NewProvider builds the client for one configured provider.
//
// # Description
//
// The client type follows cfg.APIType: openai and custom share the
// OpenAI-compatible client, anthropic and ollama get their own.
// global supplies default max tokens and temperature. A positive
// RequestsPerMinute wraps the client in a rate limiter.
//
// # Errors
//
//   - ErrMissingAPIKey when a keyed provider has no key after expansion
//   - ErrInvalidBaseURL when an anthropic base_url is a web console
func NewProvider(name string, cfg config.ProviderConfig, global config.GlobalSettings) (Provider, error) {
	if cfg.NeedsAPIKey() && cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %q", ErrMissingAPIKey, name)
	}
	if cfg.APIType == config.APITypeAnthropic {
		for _, host := range consoleHosts {
			if strings.Contains(cfg.BaseURL, host) {
				return nil, fmt.Errorf("%w for provider %q: %s is a web console, not an API endpoint; "+
					"remove base_url or use %s", ErrInvalidBaseURL, name, cfg.BaseURL, anthropicDefaultBase)
			}
		}
	}

	maxTokens := global.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := global.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	var p Provider
	switch cfg.APIType {
	case config.APITypeOpenAI, config.APITypeCustom:
		p = NewOpenAIClient(name, cfg.APIKey, cfg.BaseURL, cfg.Model, maxTokens, temperature)
	case config.APITypeAnthropic:
		p = NewAnthropicClient(name, cfg.APIKey, cfg.BaseURL, cfg.Model, maxTokens, temperature)
	case config.APITypeOllama:
		p = NewOllamaClient(name, cfg.BaseURL, cfg.Model, maxTokens, temperature)
	default:
		return nil, fmt.Errorf("provider %q: unsupported api_type %q", name, cfg.APIType)
	}
	return WithRateLimit(p, cfg.RequestsPerMinute), nil
}

// FromConfig builds the named provider, or the default provider when
// name is empty.
func FromConfig(cfg *config.Config, name string) (Provider, error) {
	if name == "" {
		name = cfg.DefaultProvider
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no provider selected and no default_provider set", ErrUnknownProvider)
	}
	pc, ok := cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, name, strings.Join(cfg.ProviderNames(), ", "))
	}
	return NewProvider(name, pc, cfg.GlobalSettings)
}
