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
	evidenceSnippetLimit = 240

	// TierPrimary and TierSupporting are the only valid evidence tiers.
	TierPrimary    = "primary"
	TierSupporting = "supporting"
)

type evidenceIdentity struct {
	sessionID string
	turnID    int
	snippet   string
}

func identityOf(ev Evidence) (evidenceIdentity, bool) {
	sessionID := strings.TrimSpace(ev.SessionID)
	snippet := Snippet(ev.Snippet, evidenceSnippetLimit)
	if sessionID == "" || ev.TurnID <= 0 || snippet == "" {
		return evidenceIdentity{}, false
	}
	return evidenceIdentity{sessionID, ev.TurnID, strings.ToLower(snippet)}, true
}

// DedupeEvidence drops malformed entries and duplicates by
// (session, turn, snippet) identity, preserving first-seen order.
func DedupeEvidence(entries []Evidence) []Evidence {
	seen := make(map[evidenceIdentity]bool, len(entries))
	result := make([]Evidence, 0, len(entries))
	for _, entry := range entries {
		id, ok := identityOf(entry)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, Evidence{
			SessionID: id.sessionID,
			TurnID:    id.turnID,
			Snippet:   Snippet(entry.Snippet, evidenceSnippetLimit),
		})
	}
	return result
}

// SelectDiverseEvidence picks a layered evidence sample: up to primaryLimit
// primary entries drawn from distinct sessions first, then supporting
// entries until maxItems is reached. Cross-session evidence is preferred so
// a single chatty session cannot crowd out the sample.
func SelectDiverseEvidence(entries []Evidence, maxItems, primaryLimit int) []Evidence {
	if maxItems <= 0 {
		return nil
	}
	deduped := DedupeEvidence(entries)
	if len(deduped) == 0 {
		return nil
	}

	primaryCap := primaryLimit
	if primaryCap < 1 {
		primaryCap = 1
	}
	if primaryCap > maxItems {
		primaryCap = maxItems
	}

	selected := make([]Evidence, 0, maxItems)
	seenSessions := make(map[string]bool)
	for _, entry := range deduped {
		if seenSessions[entry.SessionID] {
			continue
		}
		entry.Tier = TierPrimary
		selected = append(selected, entry)
		seenSessions[entry.SessionID] = true
		if len(selected) >= primaryCap {
			break
		}
	}

	for _, entry := range deduped {
		if len(selected) >= maxItems {
			break
		}
		if containsEvidence(selected, entry) {
			continue
		}
		entry.Tier = TierSupporting
		selected = append(selected, entry)
	}
	return selected
}

func containsEvidence(list []Evidence, candidate Evidence) bool {
	for _, existing := range list {
		if existing.SessionID == candidate.SessionID &&
			existing.TurnID == candidate.TurnID &&
			existing.Snippet == candidate.Snippet {
			return true
		}
	}
	return false
}
