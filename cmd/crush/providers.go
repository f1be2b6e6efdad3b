// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/crush/pkg/ux"
	"github.com/AleutianAI/crush/services/config"
)

// configureOption is the extra entry in the provider menu.
const configureOption = "Configure default provider"

var errNoProvider = errors.New("no LLM provider specified; use --provider or configure a default with 'crush config'")

var providerBlurbs = map[string]string{
	"openai":    "OpenAI GPT-4 - Industry leading AI model",
	"anthropic": "Anthropic Claude - Advanced reasoning capabilities",
	"deepseek":  "DeepSeek - High performance, cost-effective",
	"ollama":    "Ollama - Local AI models",
	"kimi":      "Kimi - Moonshot AI with excellent Chinese support",
}

// providerLabel is the menu line for a provider.
func providerLabel(name string, p config.ProviderConfig) string {
	blurb, ok := providerBlurbs[name]
	if !ok {
		blurb = name + " - Custom provider"
	}
	if name == "ollama" && p.Model != "" {
		blurb = fmt.Sprintf("Ollama - Local AI models (%s)", p.Model)
	}
	status := "ready"
	if !p.Ready() {
		status = "no API key"
	}
	return fmt.Sprintf("%s [%s]", blurb, status)
}

// chooseProvider returns --provider, else the default provider, else asks.
// An empty name with a nil error means the user was sent elsewhere
// (configuration or setup instructions) and there is nothing to chat with.
func (a *app) chooseProvider(ctx context.Context, cmd *cobra.Command) (string, error) {
	if a.provider != "" {
		return a.provider, nil
	}
	if a.cfg.DefaultProvider != "" {
		return a.cfg.DefaultProvider, nil
	}
	if !ux.IsInteractive() {
		return "", a.fail(cmd, errNoProvider, nil)
	}

	names := a.cfg.ProviderNames()
	labels := make([]string, 0, len(names)+1)
	byLabel := make(map[string]string, len(names))
	for _, name := range names {
		label := providerLabel(name, a.cfg.Providers[name])
		labels = append(labels, label)
		byLabel[label] = name
	}
	labels = append(labels, configureOption)

	choice, err := a.prompter.Select(ctx, "Please select an AI provider", labels, "")
	if errors.Is(err, ux.ErrAborted) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if choice == configureOption {
		return "", a.configureDefault(ctx, cmd)
	}

	name := byLabel[choice]
	if !a.cfg.Providers[name].Ready() {
		p := a.printer(cmd)
		p.Error(fmt.Sprintf("%s requires an API key!", name))
		p.Box("Setup Instructions", strings.Join(setupInstructions(name), "\n"))
		p.Muted("Then restart crush to use this provider.")
		return "", nil
	}
	return name, nil
}

// setupInstructions explains how to obtain and export an API key.
func setupInstructions(name string) []string {
	sites := map[string][2]string{
		"openai":    {"https://platform.openai.com/api-keys", "OPENAI_API_KEY"},
		"anthropic": {"https://console.anthropic.com/", "ANTHROPIC_API_KEY"},
		"deepseek":  {"https://platform.deepseek.com/", "DEEPSEEK_API_KEY"},
		"kimi":      {"https://platform.moonshot.cn/", "KIMI_API_KEY"},
	}
	site, ok := sites[name]
	if !ok {
		return []string{fmt.Sprintf("Please configure your API key for %s", name)}
	}
	return []string{
		"1. Visit " + site[0],
		"2. Create an API key",
		"3. Set environment variable:",
		fmt.Sprintf("   export %s=your-key-here", site[1]),
	}
}
