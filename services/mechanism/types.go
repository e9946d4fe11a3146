// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mechanism defines the document shapes that flow through the
// diagnosis pipeline: immutable session records on the input side, and the
// session-scoped and period-scoped mechanism documents the inference step
// produces.
//
// Raw provider output must pass through the contract validator before any
// of these types is trusted downstream; this package only defines shapes
// and pure shaping helpers (digests, compaction, evidence selection).
package mechanism

// Schema version tags. These are part of the on-disk and wire contracts and
// must match what the diagnosis skills emit.
const (
	SessionSchemaVersion     = "session-mechanism.v1"
	IncrementalSchemaVersion = "incremental-mechanism.v1"
	DigestSchemaVersion      = "session-digest.v1"
	InputSchemaVersion       = "incremental-input.v1"
)

// -----------------------------------------------------------------------------
// Session records (read-only input)
// -----------------------------------------------------------------------------

// SessionRecord is one ingested AI-assisted work session. Records are
// immutable once ingested; the pipeline only ever reads them.
type SessionRecord struct {
	SessionID string          `json:"session_id"`
	Source    string          `json:"source"`
	Model     string          `json:"model,omitempty"`
	Title     string          `json:"title,omitempty"`
	CreatedAt string          `json:"created_at"`
	Turns     []Turn          `json:"turns"`
	Metadata  SessionMetadata `json:"metadata"`
}

// Turn is one user/assistant exchange inside a session.
type Turn struct {
	TurnID            int      `json:"turn_id"`
	UserMessage       Message  `json:"user_message"`
	AssistantResponse Response `json:"assistant_response"`
	Corrections       []string `json:"corrections,omitempty"`
}

type Message struct {
	Content string `json:"content"`
}

type Response struct {
	Content  string    `json:"content"`
	ToolUses []ToolUse `json:"tool_uses,omitempty"`
}

type ToolUse struct {
	ToolName string `json:"tool_name"`
}

// SessionMetadata is the free-form enrichment attached to a record by the
// (out-of-scope) ingestion layer.
type SessionMetadata struct {
	TotalTurns      int         `json:"total_turns,omitempty"`
	TotalToolUses   int         `json:"total_tool_uses,omitempty"`
	PrimaryLanguage string      `json:"primary_language,omitempty"`
	DetectedDomains []string    `json:"detected_domains,omitempty"`
	LLMMetadata     LLMMetadata `json:"llm_metadata,omitempty"`
}

// LLMMetadata carries model-derived enrichment fields. All optional.
type LLMMetadata struct {
	ConversationIntent  string         `json:"conversation_intent,omitempty"`
	TaskType            string         `json:"task_type,omitempty"`
	ActualDomains       []string       `json:"actual_domains,omitempty"`
	Difficulty          string         `json:"difficulty,omitempty"`
	Outcome             string         `json:"outcome,omitempty"`
	KeyTopics           []string       `json:"key_topics,omitempty"`
	PromptQuality       map[string]any `json:"prompt_quality,omitempty"`
	CognitivePatterns   []string       `json:"cognitive_patterns,omitempty"`
	ConversationSummary string         `json:"conversation_summary,omitempty"`
}

// -----------------------------------------------------------------------------
// Session digest (inference input)
// -----------------------------------------------------------------------------

// SessionDigest is the compact, prompt-sized projection of a SessionRecord
// handed to the inference provider. Timeline turns are a bounded head/tail
// selection with trimmed snippets.
type SessionDigest struct {
	SchemaVersion   string         `json:"schema_version"`
	SessionID       string         `json:"session_id"`
	Source          string         `json:"source"`
	Model           string         `json:"model"`
	Title           string         `json:"title"`
	CreatedAt       string         `json:"created_at"`
	Week            string         `json:"week"`
	TurnCount       int            `json:"turn_count"`
	ToolCount       int            `json:"tool_count"`
	PrimaryLanguage string         `json:"primary_language"`
	DetectedDomains []string       `json:"detected_domains"`
	LLMMetadata     LLMMetadata    `json:"llm_metadata"`
	Timeline        []TimelineTurn `json:"timeline"`
}

// TimelineTurn is one digest timeline row.
type TimelineTurn struct {
	TurnID           int      `json:"turn_id"`
	UserSnippet      string   `json:"user_snippet"`
	AssistantSnippet string   `json:"assistant_snippet"`
	CorrectionCount  int      `json:"correction_count"`
	Tools            []string `json:"tools"`
}

// -----------------------------------------------------------------------------
// Session mechanism (per-session output)
// -----------------------------------------------------------------------------

// SessionMechanism is the validated what/why/how insight document for one
// session. Immutable once written; the only supported update is full
// regeneration under the same key.
type SessionMechanism struct {
	SchemaVersion string      `json:"schema_version"`
	SessionID     string      `json:"session_id"`
	CreatedAt     string      `json:"created_at"`
	Week          string      `json:"week,omitempty"`
	PeriodID      string      `json:"period_id,omitempty"`
	Summary       string      `json:"summary"`
	WhatHappened  []string    `json:"what_happened"`
	Why           []Why       `json:"why"`
	HowToImprove  []Action    `json:"how_to_improve"`
	Labels        []string    `json:"labels,omitempty"`
	GeneratedBy   GeneratedBy `json:"generated_by"`
}

// Why is one causal hypothesis with its supporting evidence. Every entry
// must cite at least one evidence item traceable to a real turn.
type Why struct {
	Hypothesis string     `json:"hypothesis"`
	Confidence *float64   `json:"confidence,omitempty"`
	Evidence   []Evidence `json:"evidence"`
}

// Evidence cites a concrete turn in a session.
type Evidence struct {
	SessionID string `json:"session_id"`
	TurnID    int    `json:"turn_id"`
	Snippet   string `json:"snippet"`
	Tier      string `json:"tier,omitempty"` // "primary" or "supporting"
}

// Action is one recommended intervention.
type Action struct {
	Trigger          string `json:"trigger"`
	Action           string `json:"action"`
	ExpectedGain     string `json:"expected_gain"`
	ValidationWindow string `json:"validation_window"`
}

// GeneratedBy records provenance for a mechanism document. The contract
// validator rejects documents whose origin is on the disallowed list.
type GeneratedBy struct {
	Engine      string `json:"engine"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	RunID       string `json:"run_id"`
	GeneratedAt string `json:"generated_at"`
}

// -----------------------------------------------------------------------------
// Incremental mechanism (per-period output)
// -----------------------------------------------------------------------------

// IncrementalMechanism is the period-level report set produced by one
// aggregation run. A later run covering the same period supersedes it
// wholesale; reports are never merged across runs.
type IncrementalMechanism struct {
	SchemaVersion string   `json:"schema_version"`
	PeriodID      string   `json:"period_id"`
	Week          string   `json:"week,omitempty"`
	GeneratedAt   string   `json:"generated_at"`
	SourceRunID   string   `json:"source_run_id"`
	Period        Period   `json:"period"`
	Coverage      Coverage `json:"coverage"`
	Reports       []Report `json:"reports"`
	Guardrails    []string `json:"guardrails,omitempty"`
	WhatHappened  []string `json:"what_happened,omitempty"`
}

// Period is the date window an incremental run covered.
type Period struct {
	Window string `json:"window,omitempty"`
	Since  string `json:"since,omitempty"`
	Until  string `json:"until,omitempty"`
}

// Coverage relates period-wide session counts to how many of those sessions
// contributed a validated mechanism. Invariant: WithMechanism <= Total.
type Coverage struct {
	SessionsTotal         int `json:"sessions_total"`
	SessionsWithMechanism int `json:"sessions_with_mechanism"`
}

// Report is one dimension-scoped insight report. Natural key for
// deduplication is (Dimension, Period).
type Report struct {
	Dimension             string   `json:"dimension"`
	Layer                 string   `json:"layer"`
	Title                 string   `json:"title"`
	KeyInsights           string   `json:"key_insights"`
	DetailLines           []string `json:"detail_lines,omitempty"`
	DetailText            string   `json:"detail_text,omitempty"`
	ConversationsAnalyzed *int     `json:"conversations_analyzed,omitempty"`
	Period                string   `json:"period,omitempty"`
	Date                  string   `json:"date,omitempty"`
}

// Key returns the natural key for deduplication, falling back to the given
// period when the report does not carry its own.
func (r Report) Key(defaultPeriod string) [2]string {
	period := r.Period
	if period == "" {
		period = defaultPeriod
	}
	return [2]string{r.Dimension, period}
}

// -----------------------------------------------------------------------------
// Incremental input (aggregation payload)
// -----------------------------------------------------------------------------

// IncrementalInput is the single aggregation payload sent to the provider
// for a period: counts plus compact session summaries, never full raw text.
type IncrementalInput struct {
	SchemaVersion string           `json:"schema_version"`
	PeriodID      string           `json:"period_id"`
	GeneratedAt   string           `json:"generated_at"`
	SourceRunID   string           `json:"source_run_id"`
	Period        Period           `json:"period"`
	Coverage      Coverage         `json:"coverage"`
	Sessions      []CompactSession `json:"sessions"`
}

// CompactSession is the few-token projection of one validated session
// mechanism used inside an IncrementalInput.
type CompactSession struct {
	SessionID string            `json:"session_id"`
	CreatedAt string            `json:"created_at"`
	Labels    []string          `json:"labels,omitempty"`
	Mechanism *CompactMechanism `json:"mechanism,omitempty"`
	ActionRef string            `json:"action_ref,omitempty"`
}

type CompactMechanism struct {
	Hypothesis   string   `json:"hypothesis"`
	Confidence   *float64 `json:"confidence,omitempty"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}
