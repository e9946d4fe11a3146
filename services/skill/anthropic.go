// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"

	sessionMaxTokens     = 2000
	incrementalMaxTokens = 3000
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicProvider calls the Anthropic Messages API directly over HTTP.
type AnthropicProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewAnthropicProvider creates the provider. The API key comes from
// ANTHROPIC_API_KEY with a Podman secret fallback; a missing key fails
// fast.
func NewAnthropicProvider(model string, timeoutSec int) (*AnthropicProvider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/anthropic_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read Anthropic API Key from Podman Secrets")
		}
	}
	if apiKey == "" {
		return nil, &ConfigurationError{Field: "ANTHROPIC_API_KEY", Reason: "environment variable not set"}
	}
	if model == "" {
		model = DefaultModel("anthropic")
		slog.Info("model not set, using default", "provider", "anthropic", "model", model)
	}
	if timeoutSec <= 0 {
		timeoutSec = 120
	}
	return &AnthropicProvider{
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		baseURL:    anthropicBaseURL,
		apiKey:     apiKey,
		model:      model,
	}, nil
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

// GenerateSession implements Provider.
func (p *AnthropicProvider) GenerateSession(ctx context.Context, skillPrompt string, digest any) (json.RawMessage, error) {
	return p.generate(ctx, skillPrompt, "SessionDigestV1", digest, "SessionMechanismV1", sessionMaxTokens)
}

// GenerateIncremental implements Provider.
func (p *AnthropicProvider) GenerateIncremental(ctx context.Context, skillPrompt string, input any) (json.RawMessage, error) {
	return p.generate(ctx, skillPrompt, "IncrementalInputV1", input, "IncrementalMechanismV1", incrementalMaxTokens)
}

func (p *AnthropicProvider) generate(ctx context.Context, skillPrompt, inputName string, payload any, outputSchema string, maxTokens int) (json.RawMessage, error) {
	userPrompt, err := buildUserPrompt(skillPrompt, inputName, payload, outputSchema)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Temperature: 0.2,
		System:      systemPrompt(),
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicContent{{Type: "text", Text: userPrompt}}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: inputName, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: inputName, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		slog.Warn("Anthropic API returned retryable status", "status", resp.StatusCode)
		return nil, &TransientError{Op: inputName,
			Err: fmt.Errorf("anthropic status %d: %s", resp.StatusCode, truncateBody(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("anthropic error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	obj, err := ExtractJSONObject(text.String())
	if err != nil {
		return nil, err
	}
	return RawObject(obj)
}

func truncateBody(body []byte) string {
	const limit = 500
	text := strings.TrimSpace(string(body))
	if runes := []rune(text); len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}
