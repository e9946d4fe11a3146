// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mechanism

import "strings"

const (
	maxTimelineTurns        = 12
	userSnippetLimit        = 140
	assistantSnippetLimit   = 120
	defaultSnippetCharLimit = 200
)

// Snippet collapses whitespace and trims text to a bounded length. Used
// everywhere a free-form string crosses into a prompt payload.
func Snippet(text string, limit int) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if limit > 0 {
		if runes := []rune(cleaned); len(runes) > limit {
			return string(runes[:limit])
		}
	}
	return cleaned
}

// BuildDigest projects a SessionRecord into the compact digest handed to
// the inference provider. Long sessions keep a head/tail timeline selection
// so the prompt stays bounded while the opening intent and final outcome
// both survive.
func BuildDigest(rec SessionRecord) SessionDigest {
	source := rec.Source
	if source == "" {
		source = "unknown"
	}
	model := rec.Model
	if model == "" {
		model = "unknown"
	}
	primaryLanguage := rec.Metadata.PrimaryLanguage
	if primaryLanguage == "" {
		primaryLanguage = "unknown"
	}
	turnCount := rec.Metadata.TotalTurns
	if turnCount == 0 {
		turnCount = len(rec.Turns)
	}

	selected := selectTimelineTurns(rec.Turns, maxTimelineTurns)
	timeline := make([]TimelineTurn, 0, len(selected))
	for i, turn := range selected {
		turnID := turn.TurnID
		if turnID <= 0 {
			turnID = i + 1
		}
		tools := make([]string, 0, len(turn.AssistantResponse.ToolUses))
		for _, use := range turn.AssistantResponse.ToolUses {
			if use.ToolName != "" {
				tools = append(tools, use.ToolName)
			}
		}
		timeline = append(timeline, TimelineTurn{
			TurnID:           turnID,
			UserSnippet:      Snippet(turn.UserMessage.Content, userSnippetLimit),
			AssistantSnippet: Snippet(turn.AssistantResponse.Content, assistantSnippetLimit),
			CorrectionCount:  len(turn.Corrections),
			Tools:            tools,
		})
	}

	return SessionDigest{
		SchemaVersion:   DigestSchemaVersion,
		SessionID:       rec.SessionID,
		Source:          source,
		Model:           model,
		Title:           rec.Title,
		CreatedAt:       rec.CreatedAt,
		Week:            WeekOf(rec.CreatedAt),
		TurnCount:       turnCount,
		ToolCount:       rec.Metadata.TotalToolUses,
		PrimaryLanguage: primaryLanguage,
		DetectedDomains: rec.Metadata.DetectedDomains,
		LLMMetadata:     rec.Metadata.LLMMetadata,
		Timeline:        timeline,
	}
}

// selectTimelineTurns keeps the head and tail halves of an over-long turn
// list, deduplicating by turn id in case the halves overlap.
func selectTimelineTurns(turns []Turn, maxTurns int) []Turn {
	if len(turns) <= maxTurns {
		return turns
	}
	head := maxTurns / 2
	tail := maxTurns - head
	selected := make([]Turn, 0, maxTurns)
	selected = append(selected, turns[:head]...)
	selected = append(selected, turns[len(turns)-tail:]...)

	deduped := selected[:0]
	seen := make(map[int]bool, len(selected))
	for _, turn := range selected {
		if turn.TurnID > 0 {
			if seen[turn.TurnID] {
				continue
			}
			seen[turn.TurnID] = true
		}
		deduped = append(deduped, turn)
	}
	return deduped
}
