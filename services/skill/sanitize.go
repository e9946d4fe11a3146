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
	"strconv"
	"strings"

	"github.com/AleutianAI/insights/services/mechanism"
)

// SanitizeSession normalizes a loosely shaped model output object into a
// best-effort SessionMechanism. Models occasionally rename fields
// (root_cause for hypothesis, interventions for how_to_improve) or emit a
// single object where the contract wants a list; this pass maps the common
// variants onto contract keys. It never invents content and never
// validates; invalid documents still fail the contract afterwards.
func SanitizeSession(raw map[string]any) mechanism.SessionMechanism {
	doc := mechanism.SessionMechanism{
		SchemaVersion: asText(raw["schema_version"]),
		SessionID:     asText(raw["session_id"]),
		CreatedAt:     asText(raw["created_at"]),
		Week:          asText(raw["week"]),
		PeriodID:      asText(raw["period_id"]),
	}

	doc.WhatHappened = textList(raw["what_happened"])
	if len(doc.WhatHappened) == 0 {
		for _, key := range []string{"event", "outcome", "observed_behavior", "observation", "phenomenon", "snippet"} {
			if text := asText(raw[key]); text != "" {
				doc.WhatHappened = append(doc.WhatHappened, text)
			}
		}
	}

	doc.Summary = asText(raw["summary"])
	if doc.Summary == "" && len(doc.WhatHappened) > 0 {
		doc.Summary = doc.WhatHappened[0]
	}

	whyEntries := objectList(raw["why"])
	if len(whyEntries) == 0 && asText(raw["hypothesis"]) != "" {
		whyEntries = []map[string]any{{
			"hypothesis": raw["hypothesis"],
			"confidence": raw["confidence"],
			"evidence":   raw["evidence"],
		}}
	}
	for _, entry := range whyEntries {
		why := mechanism.Why{
			Hypothesis: firstText(entry, "hypothesis", "root_cause", "reasoning"),
			Evidence:   normalizeEvidence(entry["evidence"]),
		}
		if len(why.Evidence) == 0 {
			why.Evidence = normalizeEvidence(raw["evidence"])
		}
		if conf, ok := coerceConfidence(entry["confidence"]); ok {
			why.Confidence = &conf
		}
		doc.Why = append(doc.Why, why)
	}

	doc.HowToImprove = normalizeActions(raw["how_to_improve"])
	if len(doc.HowToImprove) == 0 {
		for _, key := range []string{"interventions", "recommendations", "actions"} {
			if actions := normalizeActions(raw[key]); len(actions) > 0 {
				doc.HowToImprove = actions
				break
			}
		}
	}

	doc.Labels = textList(raw["labels"])
	return doc
}

func normalizeEvidence(value any) []mechanism.Evidence {
	entries := objectList(value)
	out := make([]mechanism.Evidence, 0, len(entries))
	for _, entry := range entries {
		sessionID := asText(entry["session_id"])
		turnID, ok := coerceTurnID(entry["turn_id"])
		snippet := asText(entry["snippet"])
		if sessionID == "" || !ok || snippet == "" {
			continue
		}
		ev := mechanism.Evidence{
			SessionID: sessionID,
			TurnID:    turnID,
			Snippet:   snippet,
		}
		if tier := asText(entry["tier"]); tier == mechanism.TierPrimary || tier == mechanism.TierSupporting {
			ev.Tier = tier
		}
		out = append(out, ev)
	}
	return out
}

func normalizeActions(value any) []mechanism.Action {
	entries := objectList(value)
	out := make([]mechanism.Action, 0, len(entries))
	for _, entry := range entries {
		out = append(out, mechanism.Action{
			Trigger:          firstText(entry, "trigger", "when", "condition"),
			Action:           firstText(entry, "action", "do", "step"),
			ExpectedGain:     firstText(entry, "expected_gain", "expect", "benefit", "outcome"),
			ValidationWindow: firstText(entry, "validation_window", "validate", "window"),
		})
	}
	return out
}

// asText collapses any scalar into compact whitespace-normalized text.
func asText(value any) string {
	var raw string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		raw = v
	case float64:
		raw = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		raw = strconv.FormatBool(v)
	default:
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}

func firstText(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		if text := asText(entry[key]); text != "" {
			return text
		}
	}
	return ""
}

func textList(value any) []string {
	switch v := value.(type) {
	case string:
		if text := asText(v); text != "" {
			return []string{text}
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if text := asText(item); text != "" {
				out = append(out, text)
			}
		}
		return out
	}
	return nil
}

func objectList(value any) []map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return []map[string]any{v}
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

func coerceTurnID(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		id := int(v)
		return id, id > 0
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(v))
		return id, err == nil && id > 0
	}
	return 0, false
}

func coerceConfidence(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		conf, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return conf, err == nil
	}
	return 0, false
}
