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

// placeholderTokens mark low-quality filler the diagnosis skills emit when
// they lack real signal. Any text containing one of these is treated as
// placeholder content, never as an insight.
var placeholderTokens = []string{
	"placeholder",
	"insufficient-evidence",
	"no validated",
	"need more session mechanism outputs",
	"collect-more-session-insights",
	"tbd",
	"trigger-missing",
	"action-missing",
	"root-cause-missing",
	"gain-missing",
	"window-missing",
}

// mechanismTokens are markers of mechanism-level explanation or action
// language. Reports whose text carries none of these read as statistics
// dumps rather than diagnoses.
var mechanismTokens = []string{
	"机制",
	"根因",
	"导致",
	"因为",
	"动作",
	"验证",
	"改善",
	"干预",
	"hypothesis",
	"root cause",
	"trigger",
	"action",
	"validation",
}

// ContainsPlaceholder reports whether text is empty or carries a known
// placeholder marker.
func ContainsPlaceholder(text string) bool {
	content := strings.ToLower(strings.TrimSpace(text))
	if content == "" {
		return true
	}
	for _, token := range placeholderTokens {
		if strings.Contains(content, token) {
			return true
		}
	}
	return false
}

// LooksMechanistic reports whether text carries mechanism or action
// language.
func LooksMechanistic(text string) bool {
	content := strings.ToLower(strings.TrimSpace(text))
	if content == "" {
		return false
	}
	for _, token := range mechanismTokens {
		if strings.Contains(content, token) {
			return true
		}
	}
	return false
}

// hasConcreteEvidence checks one evidence item for a real citation: a known
// session, a positive turn id, and a non-placeholder snippet.
func hasConcreteEvidence(ev Evidence) bool {
	sessionID := strings.ToLower(strings.TrimSpace(ev.SessionID))
	if sessionID == "" || sessionID == "n/a" || sessionID == "unknown" {
		return false
	}
	if ev.TurnID <= 0 {
		return false
	}
	snippet := strings.TrimSpace(ev.Snippet)
	return snippet != "" && !ContainsPlaceholder(snippet)
}

// HasSignal reports whether a session mechanism carries at least one usable
// insight: a non-placeholder summary plus a hypothesis backed by concrete
// evidence. Documents without signal are re-diagnosed on the next backfill
// even though they are schema-valid.
func (m SessionMechanism) HasSignal() bool {
	if ContainsPlaceholder(m.Summary) {
		return false
	}
	for _, why := range m.Why {
		hypothesis := strings.TrimSpace(why.Hypothesis)
		if hypothesis == "" || ContainsPlaceholder(hypothesis) {
			continue
		}
		for _, ev := range why.Evidence {
			if hasConcreteEvidence(ev) {
				return true
			}
		}
	}
	return false
}
