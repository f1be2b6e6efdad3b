// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrEmptyResponse is returned when a provider answers without text.
	ErrEmptyResponse = errors.New("provider returned an empty response")

	// ErrMissingAPIKey is returned by NewProvider for a keyed provider
	// without a key.
	ErrMissingAPIKey = errors.New("API key not set")

	// ErrInvalidBaseURL is returned by NewProvider for a base URL that
	// points at a web console rather than an API.
	ErrInvalidBaseURL = errors.New("invalid base_url")

	// ErrUnknownProvider is returned by NewProvider for an unconfigured name.
	ErrUnknownProvider = errors.New("provider not configured")
)

// ErrorKind classifies a failed provider call.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindCloudflare
	KindHTML
	KindAuth
	KindRateLimit
	KindNotFound
	KindModelNotFound
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindCloudflare:
		return "cloudflare"
	case KindHTML:
		return "html"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindModelNotFound:
		return "model_not_found"
	case KindServer:
		return "server"
	default:
		return "other"
	}
}

// maxBodySnippet bounds the response body quoted in KindOther errors.
const maxBodySnippet = 500

// APIError is a non-success answer from a provider.
type APIError struct {
	Provider string
	Model    string
	Status   int
	Kind     ErrorKind
	Body     string
}

func (e *APIError) Error() string {
	var msg string
	switch e.Kind {
	case KindCloudflare:
		msg = "Cloudflare protection detected. The API endpoint may be incorrect or blocked"
	case KindHTML:
		msg = "received HTML instead of JSON. The API endpoint may be incorrect"
	case KindAuth:
		msg = "authentication failed. Please check your API key"
	case KindRateLimit:
		msg = "rate limit exceeded. Please wait and try again"
	case KindNotFound:
		msg = "API endpoint not found. Please check your base_url configuration"
	case KindModelNotFound:
		msg = fmt.Sprintf("model %q not found. Please run: 'ollama pull %s'", e.Model, e.Model)
	case KindServer:
		msg = "server error. The API service may be temporarily unavailable"
	default:
		body := e.Body
		if len(body) > maxBodySnippet {
			body = body[:maxBodySnippet] + "..."
		}
		msg = "API request failed: " + body
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Provider, msg, e.Status)
}

// classify turns a failed HTTP exchange into an *APIError. Body markers
// win over the status code: a Cloudflare challenge arrives as a 403 and
// a quota error as a 400 on some OpenAI-compatible hosts.
func classify(provider string, status int, body string) *APIError {
	e := &APIError{Provider: provider, Status: status, Body: body}
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "<!doctype html"):
		if strings.Contains(lower, "cloudflare") || strings.Contains(body, "Just a moment") {
			e.Kind = KindCloudflare
		} else {
			e.Kind = KindHTML
		}
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid_api_key") ||
		status == http.StatusUnauthorized:
		e.Kind = KindAuth
	case strings.Contains(lower, "rate_limit") || strings.Contains(lower, "quota") ||
		status == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusInternalServerError || status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable:
		e.Kind = KindServer
	}
	return e
}

// Suggestions returns remediation hints for err, or nil when there are
// none. The REPL prints them under the error line.
func Suggestions(err error) []string {
	if errors.Is(err, ErrMissingAPIKey) {
		return []string{"Set the API key in your config or the provider's environment variable", "Run 'crush config' to pick another provider"}
	}
	if errors.Is(err, ErrInvalidBaseURL) {
		return []string{"Remove base_url to use the provider's default API endpoint"}
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	switch apiErr.Kind {
	case KindCloudflare, KindHTML, KindNotFound:
		return []string{"Check base_url in your config", "Try a different provider with 'crush config'"}
	case KindAuth:
		return []string{"Check that your API key is valid and has not expired", "Make sure the key belongs to this provider"}
	case KindRateLimit:
		return []string{"Wait a moment and try again", "Set requests_per_minute for this provider to throttle requests", "Check your account quota"}
	case KindModelNotFound:
		return []string{fmt.Sprintf("Run 'ollama pull %s'", apiErr.Model), "Or set model to one listed by 'ollama list'"}
	case KindServer:
		return []string{"The service may be down; try again shortly", "Try a different provider with 'crush config'"}
	default:
		return []string{"Check your network connection and provider configuration"}
	}
}
