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

import "strings"

// Block is an outgoing block object. Builders below produce the shapes the
// sync engine writes; the type stays a map because Notion's block schema is
// large and only a handful of variants matter here.
type Block map[string]any

// splitText chunks text at the rich-text element limit, preferring to break
// on the last newline, then space, before the cut. Operates on runes so
// multi-byte content never splits mid-character.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{""}
	}
	var chunks []string
	for len(runes) > limit {
		cut := -1
		for i := limit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		if cut <= 0 {
			for i := limit - 1; i > 0; i-- {
				if runes[i] == ' ' {
					cut = i
					break
				}
			}
		}
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n"))
	}
	chunks = append(chunks, string(runes))
	return chunks
}

// richTextArray builds a rich_text array, splitting at the 2000-char
// element boundary.
func richTextArray(text string) []map[string]any {
	chunks := splitText(text, maxTextChunk)
	parts := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, map[string]any{
			"type": "text",
			"text": map[string]any{"content": chunk},
		})
	}
	return parts
}

// Heading builds a heading block. Levels outside 1..3 clamp to 2.
func Heading(text string, level int) Block {
	if level < 1 || level > 3 {
		level = 2
	}
	key := map[int]string{1: "heading_1", 2: "heading_2", 3: "heading_3"}[level]
	return Block{
		"object": "block",
		"type":   key,
		key:      map[string]any{"rich_text": richTextArray(text)},
	}
}

// Paragraph builds a paragraph block.
func Paragraph(text string) Block {
	return Block{
		"object":    "block",
		"type":      "paragraph",
		"paragraph": map[string]any{"rich_text": richTextArray(text)},
	}
}

// BulletedList builds one bulleted list item block.
func BulletedList(text string) Block {
	return Block{
		"object":             "block",
		"type":               "bulleted_list_item",
		"bulleted_list_item": map[string]any{"rich_text": richTextArray(text)},
	}
}

// Divider builds a divider block.
func Divider() Block {
	return Block{"object": "block", "type": "divider", "divider": map[string]any{}}
}

// PropTitle builds a title property value.
func PropTitle(text string) map[string]any {
	return map[string]any{"title": richTextArray(text)}
}

// PropRichText builds a rich_text property value.
func PropRichText(text string) map[string]any {
	return map[string]any{"rich_text": richTextArray(text)}
}

// PropSelect builds a select property value.
func PropSelect(name string) map[string]any {
	return map[string]any{"select": map[string]any{"name": name}}
}

// PropNumber builds a number property value.
func PropNumber(value float64) map[string]any {
	return map[string]any{"number": value}
}

// PropDate builds a date property value.
func PropDate(start string) map[string]any {
	return map[string]any{"date": map[string]any{"start": start}}
}

// FilterSelectEquals builds the query filter for one select property match.
func FilterSelectEquals(property, value string) map[string]any {
	return map[string]any{
		"property": property,
		"select":   map[string]any{"equals": value},
	}
}

// FilterAnd combines filters conjunctively.
func FilterAnd(filters ...map[string]any) map[string]any {
	return map[string]any{"and": filters}
}
