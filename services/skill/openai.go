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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider calls the OpenAI Chat Completions API with JSON response
// mode. Temperature sits low because diagnosis output must be stable across
// retries.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIProvider creates the provider. The API key comes from
// OPENAI_API_KEY with a Podman secret fallback; a missing key fails fast.
func NewOpenAIProvider(model string, timeoutSec int) (*OpenAIProvider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		}
	}
	if apiKey == "" {
		return nil, &ConfigurationError{Field: "OPENAI_API_KEY", Reason: "environment variable not set"}
	}
	if model == "" {
		model = DefaultModel("openai")
		slog.Warn("model not set, using default", "provider", "openai", "model", model)
	}
	if timeoutSec <= 0 {
		timeoutSec = 120
	}
	slog.Info("Initializing OpenAI provider", "model", model)
	return &OpenAIProvider{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: time.Duration(timeoutSec) * time.Second,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

// GenerateSession implements Provider.
func (p *OpenAIProvider) GenerateSession(ctx context.Context, skillPrompt string, digest any) (json.RawMessage, error) {
	return p.generate(ctx, skillPrompt, "SessionDigestV1", digest, "SessionMechanismV1")
}

// GenerateIncremental implements Provider.
func (p *OpenAIProvider) GenerateIncremental(ctx context.Context, skillPrompt string, input any) (json.RawMessage, error) {
	return p.generate(ctx, skillPrompt, "IncrementalInputV1", input, "IncrementalMechanismV1")
}

func (p *OpenAIProvider) generate(ctx context.Context, skillPrompt, inputName string, payload any, outputSchema string) (json.RawMessage, error) {
	userPrompt, err := buildUserPrompt(skillPrompt, inputName, payload, outputSchema)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return nil, &TransientError{Op: inputName, Err: err}
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, &TransientError{Op: inputName, Err: fmt.Errorf("OpenAI returned no choices")}
	}

	obj, err := ExtractJSONObject(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return RawObject(obj)
}
