// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package notion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitText covers the chunking used to respect Notion's 2000-char
// rich-text element limit.
func TestSplitText(t *testing.T) {
	t.Run("short text passes through", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, splitText("hello", 10))
	})

	t.Run("empty text yields one empty chunk", func(t *testing.T) {
		assert.Equal(t, []string{""}, splitText("", 10))
	})

	t.Run("prefers newline break", func(t *testing.T) {
		chunks := splitText("first line\nsecond one", 15)
		require.Len(t, chunks, 2)
		assert.Equal(t, "first line", chunks[0])
		assert.Equal(t, "second one", chunks[1])
	})

	t.Run("falls back to space break", func(t *testing.T) {
		chunks := splitText("alpha beta gamma delta", 12)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 12)
		}
		assert.Equal(t, "alpha beta", chunks[0])
	})

	t.Run("hard cut when no break point", func(t *testing.T) {
		chunks := splitText(strings.Repeat("x", 25), 10)
		require.Len(t, chunks, 3)
		assert.Equal(t, strings.Repeat("x", 10), chunks[0])
		assert.Equal(t, strings.Repeat("x", 5), chunks[2])
	})

	t.Run("never splits a multi-byte character", func(t *testing.T) {
		text := strings.Repeat("模型在工具调用前先复述约束", 40)
		chunks := splitText(text, 100)
		var rejoined strings.Builder
		for _, chunk := range chunks {
			assert.True(t, utf8.ValidString(chunk))
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 100)
			rejoined.WriteString(chunk)
		}
		assert.Equal(t, text, rejoined.String())
	})
}

// TestRichTextArraySplitsLongContent verifies builders emit multiple
// rich-text elements rather than one oversized one.
func TestRichTextArraySplitsLongContent(t *testing.T) {
	parts := richTextArray(strings.Repeat("a", maxTextChunk*2+10))
	assert.Len(t, parts, 3)

	short := richTextArray("摘要")
	require.Len(t, short, 1)
	text := short[0]["text"].(map[string]any)
	assert.Equal(t, "摘要", text["content"])
}

func TestHeadingClampsLevel(t *testing.T) {
	assert.Equal(t, "heading_1", Heading("t", 1)["type"])
	assert.Equal(t, "heading_3", Heading("t", 3)["type"])
	assert.Equal(t, "heading_2", Heading("t", 0)["type"])
	assert.Equal(t, "heading_2", Heading("t", 7)["type"])
}

func TestPropertyBuilders(t *testing.T) {
	title := PropTitle("上下文管理 | 2025-W33")
	require.Contains(t, title, "title")

	sel := PropSelect("L2")
	assert.Equal(t, map[string]any{"name": "L2"}, sel["select"])

	num := PropNumber(0.875)
	assert.Equal(t, 0.875, num["number"])

	date := PropDate("2025-08-14")
	assert.Equal(t, map[string]any{"start": "2025-08-14"}, date["date"])
}

func TestFilterBuilders(t *testing.T) {
	eq := FilterSelectEquals("Dimension", "任务规划")
	assert.Equal(t, "Dimension", eq["property"])

	combined := FilterAnd(eq, FilterSelectEquals("Period", "2025-W33"))
	filters := combined["and"].([]map[string]any)
	assert.Len(t, filters, 2)
}
