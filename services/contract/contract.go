// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contract validates mechanism documents before they are persisted
// or synced. Validation is pure and side-effect free: every stage runs and
// the result is the full union of violations, so a caller sees everything
// wrong with a document at once.
//
// # Description
//
// Stage order for both document kinds:
//
//  1. Schema shape against the embedded JSON Schema.
//  2. Field-level non-emptiness and range checks.
//  3. Cross-field invariants (coverage bound, duplicate report keys,
//     dimension registry consistency, detail-line caps).
//  4. Provenance gate: documents whose generated_by metadata points at a
//     simulated or manual origin are rejected outright.
//
// Strict versus partial handling of a failed Result is the caller's job;
// this package only reports.
package contract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/insights/services/dimensions"
	"github.com/AleutianAI/insights/services/mechanism"
)

// maxDetailLines caps aggregated report bodies. Anything larger is almost
// always a per-session evidence dump rather than a mechanism-level insight.
const maxDetailLines = 80

// evidenceDumpPattern matches lines that look like raw evidence citations
// rather than aggregated insight text.
var evidenceDumpPattern = regexp.MustCompile(`(?i)(#t\d+|session[_-]?id|主证据[:：]|辅助证据[:：])`)

// Provenance blocklists. Documents produced by manual, mock or template
// origins must never enter the sidecar store or the remote workspace.
var (
	disallowedEngines = map[string]struct{}{
		"manual":   {},
		"mock":     {},
		"template": {},
	}
	disallowedProviders = map[string]struct{}{
		"skill-manual": {},
		"manual":       {},
		"mock":         {},
		"api-mock":     {},
		"template":     {},
	}
	disallowedRunIDTokens = []string{
		"replace-mock-sidecars",
		"mock-sidecar",
		"mock-backfill",
	}
)

// ProvenanceBlockReason returns a human-readable reason when the
// generated_by metadata indicates simulated output, or "" when the
// provenance is acceptable.
func ProvenanceBlockReason(gb mechanism.GeneratedBy) string {
	engine := strings.ToLower(strings.TrimSpace(gb.Engine))
	provider := strings.ToLower(strings.TrimSpace(gb.Provider))
	runID := strings.ToLower(strings.TrimSpace(gb.RunID))

	if _, blocked := disallowedEngines[engine]; blocked {
		return fmt.Sprintf("generated_by.engine=%s is not allowed", engine)
	}
	if _, blocked := disallowedProviders[provider]; blocked {
		return fmt.Sprintf("generated_by.provider=%s is not allowed", provider)
	}
	for _, token := range disallowedRunIDTokens {
		if strings.Contains(runID, token) {
			return fmt.Sprintf("generated_by.run_id contains blocked token: %s", runID)
		}
	}
	return ""
}

// ValidateSessionJSON validates a raw session mechanism document: schema
// shape first, then the semantic stages on the decoded value. The decoded
// document is returned so callers do not parse twice.
func ValidateSessionJSON(raw []byte) (mechanism.SessionMechanism, *Result) {
	res := &Result{}
	compileOnce.Do(compileSchemas)

	var doc mechanism.SessionMechanism
	if !checkShape(sessionSchema, raw, res) {
		return doc, res
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		res.add(CodeShape, "", "decode: %v", err)
		return doc, res
	}
	res.Violations = append(res.Violations, ValidateSession(doc).Violations...)
	return doc, res
}

// ValidateSession runs the semantic stages over a decoded session
// mechanism.
func ValidateSession(doc mechanism.SessionMechanism) *Result {
	res := &Result{}

	if doc.SchemaVersion != mechanism.SessionSchemaVersion {
		res.add(CodeSchemaVersion, "schema_version", "must be %q", mechanism.SessionSchemaVersion)
	}
	requireNonEmpty(res, "session_id", doc.SessionID)
	requireNonEmpty(res, "created_at", doc.CreatedAt)
	requireNonEmpty(res, "summary", doc.Summary)

	if len(doc.WhatHappened) == 0 {
		res.add(CodeMissingField, "what_happened", "must be non-empty list")
	}

	if len(doc.Why) == 0 {
		res.add(CodeMissingField, "why", "must be non-empty list")
	}
	for i, why := range doc.Why {
		path := fmt.Sprintf("why[%d]", i)
		if strings.TrimSpace(why.Hypothesis) == "" {
			res.add(CodeMissingField, path+".hypothesis", "must be non-empty string")
		}
		if len(why.Evidence) == 0 {
			res.add(CodeEvidence, path+".evidence", "must be non-empty list")
		}
		for j, ev := range why.Evidence {
			validateEvidence(res, fmt.Sprintf("%s.evidence[%d]", path, j), ev)
		}
	}

	if len(doc.HowToImprove) == 0 {
		res.add(CodeMissingField, "how_to_improve", "must be non-empty list")
	}
	for i, action := range doc.HowToImprove {
		path := fmt.Sprintf("how_to_improve[%d]", i)
		requireNonEmpty(res, path+".trigger", action.Trigger)
		requireNonEmpty(res, path+".action", action.Action)
		requireNonEmpty(res, path+".expected_gain", action.ExpectedGain)
		requireNonEmpty(res, path+".validation_window", action.ValidationWindow)
	}

	requireNonEmpty(res, "generated_by.engine", doc.GeneratedBy.Engine)
	requireNonEmpty(res, "generated_by.provider", doc.GeneratedBy.Provider)
	requireNonEmpty(res, "generated_by.model", doc.GeneratedBy.Model)
	requireNonEmpty(res, "generated_by.run_id", doc.GeneratedBy.RunID)
	requireNonEmpty(res, "generated_by.generated_at", doc.GeneratedBy.GeneratedAt)
	if reason := ProvenanceBlockReason(doc.GeneratedBy); reason != "" {
		res.add(CodeProvenance, "generated_by", "blocked: %s", reason)
	}

	return res
}

// ValidateIncrementalJSON validates a raw incremental mechanism document.
// defaultPeriod is used for report-key deduplication when entries omit
// their own period.
func ValidateIncrementalJSON(raw []byte, defaultPeriod string) (mechanism.IncrementalMechanism, *Result) {
	res := &Result{}
	compileOnce.Do(compileSchemas)

	var doc mechanism.IncrementalMechanism
	if !checkShape(incrementalSchema, raw, res) {
		return doc, res
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		res.add(CodeShape, "", "decode: %v", err)
		return doc, res
	}
	res.Violations = append(res.Violations, ValidateIncremental(doc, defaultPeriod).Violations...)
	return doc, res
}

// ValidateIncremental runs the semantic stages over a decoded incremental
// mechanism.
func ValidateIncremental(doc mechanism.IncrementalMechanism, defaultPeriod string) *Result {
	res := &Result{}

	if doc.SchemaVersion != mechanism.IncrementalSchemaVersion {
		res.add(CodeSchemaVersion, "schema_version", "must be %q", mechanism.IncrementalSchemaVersion)
	}
	if strings.TrimSpace(doc.PeriodID) == "" && strings.TrimSpace(doc.Week) == "" {
		res.add(CodeMissingField, "period_id", "period_id or week must be provided")
	}

	if defaultPeriod == "" {
		defaultPeriod = firstNonEmpty(doc.PeriodID, doc.Week)
	}

	if len(doc.Reports) == 0 {
		res.add(CodeMissingField, "reports", "must be non-empty list")
	}
	seen := map[[2]string]struct{}{}
	for i, report := range doc.Reports {
		validateReport(res, fmt.Sprintf("reports[%d]", i), report, defaultPeriod, seen)
	}

	if doc.Coverage.SessionsTotal < 0 {
		res.add(CodeCoverage, "coverage.sessions_total", "must be non-negative integer")
	}
	if doc.Coverage.SessionsWithMechanism < 0 {
		res.add(CodeCoverage, "coverage.sessions_with_mechanism", "must be non-negative integer")
	}
	if doc.Coverage.SessionsWithMechanism > doc.Coverage.SessionsTotal {
		res.add(CodeCoverage, "coverage", "sessions_with_mechanism cannot exceed sessions_total")
	}

	return res
}

func validateReport(res *Result, path string, report mechanism.Report, defaultPeriod string, seen map[[2]string]struct{}) {
	requireNonEmpty(res, path+".dimension", report.Dimension)
	requireNonEmpty(res, path+".layer", report.Layer)
	requireNonEmpty(res, path+".title", report.Title)
	requireNonEmpty(res, path+".key_insights", report.KeyInsights)

	dimension := strings.TrimSpace(report.Dimension)
	layer := strings.TrimSpace(report.Layer)
	if dimension != "" {
		expected, supported := dimensions.LayerOf(dimension)
		if !supported {
			res.add(CodeDimension, path+".dimension",
				"must be one of [%s]", strings.Join(dimensions.Supported(), ", "))
		} else if layer != "" && layer != string(expected) {
			res.add(CodeLayer, path+".layer",
				"must be %q for dimension %q", expected, dimension)
		}
	}

	key := report.Key(defaultPeriod)
	if key[0] != "" && key[1] != "" {
		if _, dup := seen[key]; dup {
			res.add(CodeDuplicateKey, path,
				"duplicate report key for dimension+period: %s+%s", key[0], key[1])
		} else {
			seen[key] = struct{}{}
		}
	}

	if report.ConversationsAnalyzed != nil && *report.ConversationsAnalyzed < 0 {
		res.add(CodeMissingField, path+".conversations_analyzed", "must be non-negative integer when present")
	}

	lines := normalizedLines(report.DetailLines)
	hasText := strings.TrimSpace(report.DetailText) != ""
	if len(lines) == 0 && !hasText {
		res.add(CodeMissingField, path, "requires detail_lines or detail_text")
	}
	if len(lines) > maxDetailLines {
		res.add(CodeDetailCap, path+".detail_lines",
			"has %d lines; expected aggregated insights <= %d", len(lines), maxDetailLines)
	}
	if len(lines) >= 20 {
		evidenceLike := 0
		for _, line := range lines {
			if evidenceDumpPattern.MatchString(line) {
				evidenceLike++
			}
		}
		if float64(evidenceLike)/float64(len(lines)) >= 0.7 {
			res.add(CodeEvidenceDump, path,
				"looks like per-session evidence dump; aggregate into mechanism-level insights")
		}
	}
}

func validateEvidence(res *Result, path string, ev mechanism.Evidence) {
	if strings.TrimSpace(ev.SessionID) == "" {
		res.add(CodeEvidence, path+".session_id", "must be non-empty string")
	}
	if ev.TurnID <= 0 {
		res.add(CodeEvidence, path+".turn_id", "must be positive integer")
	}
	if strings.TrimSpace(ev.Snippet) == "" {
		res.add(CodeEvidence, path+".snippet", "must be non-empty string")
	}
	if ev.Tier != "" && ev.Tier != mechanism.TierPrimary && ev.Tier != mechanism.TierSupporting {
		res.add(CodeEvidence, path+".tier", "must be %q or %q when present",
			mechanism.TierPrimary, mechanism.TierSupporting)
	}
}

func requireNonEmpty(res *Result, path, value string) {
	if strings.TrimSpace(value) == "" {
		res.add(CodeMissingField, path, "must be non-empty string")
	}
}

func normalizedLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
