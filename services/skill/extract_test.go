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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject_WholeString(t *testing.T) {
	obj, err := ExtractJSONObject(`{"schema_version":"session-mechanism.v1","summary":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", obj["summary"])
}

func TestExtractJSONObject_EmbeddedInProse(t *testing.T) {
	text := "好的，以下是分析结果：\n```json\n{\"summary\":\"机制分析\"}\n```\n希望有帮助。"
	obj, err := ExtractJSONObject(text)
	require.NoError(t, err)
	assert.Equal(t, "机制分析", obj["summary"])
}

func TestExtractJSONObject_SkipsNonJSONBraces(t *testing.T) {
	text := `the set {1,2} is not JSON but {"a":1} is`
	obj, err := ExtractJSONObject(text)
	require.NoError(t, err)
	assert.Equal(t, float64(1), obj["a"])
}

func TestExtractJSONObject_Failures(t *testing.T) {
	_, err := ExtractJSONObject("no braces here")
	assert.True(t, IsTransient(err), "undecodable output should be retryable")

	_, err = ExtractJSONObject("   ")
	assert.True(t, IsTransient(err))
}

func TestExtractEnvelopeJSON_ResultString(t *testing.T) {
	obj, err := ExtractEnvelopeJSON(`{"result":"{\"summary\":\"inner\"}"}`)
	require.NoError(t, err)
	assert.Equal(t, "inner", obj["summary"])
}

func TestExtractEnvelopeJSON_ContentBlocks(t *testing.T) {
	text := `{"content":[{"type":"text","text":"{\"summary\":"},{"type":"tool_use","id":"x"},{"type":"text","text":"\"joined\"}"}]}`
	obj, err := ExtractEnvelopeJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "joined", obj["summary"])
}

func TestExtractEnvelopeJSON_SelfPayload(t *testing.T) {
	obj, err := ExtractEnvelopeJSON(`{"schema_version":"session-mechanism.v1","session_id":"s1"}`)
	require.NoError(t, err)
	assert.Equal(t, "s1", obj["session_id"])
}

func TestRawObject(t *testing.T) {
	raw, err := RawObject(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}
