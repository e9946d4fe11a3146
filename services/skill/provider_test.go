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

func TestNewProvider_UnsupportedName(t *testing.T) {
	_, err := NewProvider("gemini", "", 0)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestNewProvider_MissingCredentialsFailFast(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewProvider("openai", "gpt-4o-mini", 30)
	assert.True(t, IsConfiguration(err), "missing API key is a configuration error, got %v", err)

	_, err = NewProvider("anthropic", "claude-3-5-sonnet-latest", 30)
	assert.True(t, IsConfiguration(err), "missing API key is a configuration error, got %v", err)
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, "claude-3-5-sonnet-latest", DefaultModel("anthropic"))
	assert.Equal(t, "gpt-4o-mini", DefaultModel("OpenAI"))
	assert.Empty(t, DefaultModel("other"))
}
