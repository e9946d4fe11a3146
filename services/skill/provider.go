// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package skill is the inference provider gateway. It turns validated inputs
(session digests, incremental payloads) into raw mechanism documents by
calling an opaque inference provider with an externally authored skill
prompt.

# Description

The gateway deliberately does NOT validate what comes back; its output is
untrusted until the contract validator passes it. Responsibilities end at:

  - loading and compacting skill prompts (PromptSet)
  - building the provider-agnostic user prompt
  - calling the provider and extracting the first JSON object
  - a best-effort sanitation pass mapping loose field names onto contract
    keys (SanitizeSession)

# Error Classification

ConfigurationError covers deterministic setup failures (missing key,
missing prompt file). TransientError covers failures a bounded retry may
resolve. Callers use IsConfiguration and IsTransient to decide between
aborting and retrying; the gateway itself never retries.
*/
package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider generates raw mechanism documents from skill prompts. The
// returned bytes are an extracted JSON object, untrusted until validated.
type Provider interface {
	// GenerateSession diagnoses a single session digest.
	GenerateSession(ctx context.Context, skillPrompt string, digest any) (json.RawMessage, error)
	// GenerateIncremental aggregates one period payload into dimension
	// reports.
	GenerateIncremental(ctx context.Context, skillPrompt string, input any) (json.RawMessage, error)
	// Name returns the provider identifier recorded in generated_by.
	Name() string
	// Model returns the model identifier recorded in generated_by.
	Model() string
}

// NewProvider constructs a provider by name. Unknown names are a
// ConfigurationError.
func NewProvider(name, model string, timeoutSec int) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return NewOpenAIProvider(model, timeoutSec)
	case "anthropic":
		return NewAnthropicProvider(model, timeoutSec)
	default:
		return nil, &ConfigurationError{
			Field:  "provider",
			Reason: fmt.Sprintf("unsupported provider: %s", name),
		}
	}
}

// DefaultModel returns the default model for a provider name.
func DefaultModel(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "anthropic":
		return "claude-3-5-sonnet-latest"
	case "openai":
		return "gpt-4o-mini"
	default:
		return ""
	}
}

// systemPrompt is the runtime guardrail enforcing JSON-only output.
func systemPrompt() string {
	return "你是 Skill 运行时执行器。" +
		"必须严格遵循用户提供的 Skill 文本。" +
		"仅输出一个 JSON object。" +
		"不要输出 markdown、解释或额外前后缀。"
}

// buildUserPrompt assembles the provider-agnostic user prompt: the skill
// text, the compact input payload and the name of the target schema.
func buildUserPrompt(skillPrompt, inputName string, payload any, outputSchema string) (string, error) {
	rendered, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("render %s payload: %w", inputName, err)
	}
	return fmt.Sprintf(
		"请严格执行以下 Skill，按其约束生成结果。\n"+
			"输出必须是单个 JSON object。\n\n"+
			"[Skill]\n%s\n\n"+
			"[%s]\n%s\n\n"+
			"[TargetSchema]\n%s\n",
		skillPrompt, inputName, rendered, outputSchema), nil
}
