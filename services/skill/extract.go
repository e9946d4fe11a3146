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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON means the model produced text with no decodable JSON object.
// Callers treat it as transient since a retried generation usually recovers.
var ErrNoJSON = errors.New("no JSON object found in model output")

// ExtractJSONObject pulls the first JSON object out of model text output.
// Fast path when the whole response is JSON; otherwise the text is scanned
// for the first position where a JSON object decodes.
func ExtractJSONObject(text string) (map[string]any, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, &TransientError{Op: "extract", Err: errors.New("empty model output")}
	}

	var whole map[string]any
	if err := json.Unmarshal([]byte(content), &whole); err == nil {
		return whole, nil
	}

	for idx, ch := range content {
		if ch != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(content[idx:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err == nil {
			return obj, nil
		}
	}
	return nil, &TransientError{Op: "extract", Err: ErrNoJSON}
}

// ExtractEnvelopeJSON handles result envelopes produced by CLI runtimes:
// {"result": "<json text>"} or {"content": [{"type":"text","text":...}]}.
// Falls back to plain extraction when no envelope matches.
func ExtractEnvelopeJSON(text string) (map[string]any, error) {
	var envelope map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &envelope); err == nil {
		if result, ok := envelope["result"].(string); ok && strings.TrimSpace(result) != "" {
			return ExtractJSONObject(result)
		}
		if blocks, ok := envelope["content"].([]any); ok {
			var builder strings.Builder
			for _, raw := range blocks {
				block, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				if kind, _ := block["type"].(string); kind != "text" {
					continue
				}
				if t, ok := block["text"].(string); ok {
					builder.WriteString(t)
				}
			}
			if strings.TrimSpace(builder.String()) != "" {
				return ExtractJSONObject(builder.String())
			}
		}
		if envelope["schema_version"] != nil || envelope["session_id"] != nil {
			return envelope, nil
		}
	}
	return ExtractJSONObject(text)
}

// RawObject re-renders an extracted object as canonical JSON bytes.
func RawObject(obj map[string]any) (json.RawMessage, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("render extracted object: %w", err)
	}
	return data, nil
}
