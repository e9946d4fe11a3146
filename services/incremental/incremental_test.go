// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package incremental

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/insights/services/mechanism"
	"github.com/AleutianAI/insights/services/records"
	"github.com/AleutianAI/insights/services/sidecar"
	"github.com/AleutianAI/insights/services/skill"
)

// fakePeriodProvider returns a canned incremental payload and captures the
// input it was handed.
type fakePeriodProvider struct {
	payload   json.RawMessage
	errs      []error
	calls     int
	lastInput mechanism.IncrementalInput
}

func (p *fakePeriodProvider) GenerateIncremental(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	p.calls++
	if in, ok := input.(mechanism.IncrementalInput); ok {
		p.lastInput = in
	}
	if p.calls <= len(p.errs) {
		return nil, p.errs[p.calls-1]
	}
	return p.payload, nil
}

func (p *fakePeriodProvider) GenerateSession(ctx context.Context, prompt string, digest any) (json.RawMessage, error) {
	return nil, errors.New("not used in aggregation")
}

func (p *fakePeriodProvider) Name() string  { return "anthropic" }
func (p *fakePeriodProvider) Model() string { return "claude-test" }

// sessionDoc builds a contract-valid session mechanism created at the given
// timestamp.
func sessionDoc(sessionID, createdAt string) mechanism.SessionMechanism {
	conf := 0.7
	return mechanism.SessionMechanism{
		SchemaVersion: mechanism.SessionSchemaVersion,
		SessionID:     sessionID,
		CreatedAt:     createdAt,
		Week:          mechanism.WeekOf(createdAt),
		Summary:       "长任务中段发生上下文丢失",
		WhatHappened:  []string{"用户在第 8 轮重复早期约束"},
		Why: []mechanism.Why{{
			Hypothesis: "上下文窗口溢出导致早期指令被截断",
			Confidence: &conf,
			Evidence:   []mechanism.Evidence{{SessionID: sessionID, TurnID: 8, Snippet: "模型忽略了第 2 轮的约束"}},
		}},
		HowToImprove: []mechanism.Action{{
			Trigger:          "会话超过 20 轮",
			Action:           "重申关键约束",
			ExpectedGain:     "减少纠正轮次",
			ValidationWindow: "14d",
		}},
		GeneratedBy: mechanism.GeneratedBy{
			Engine:      "api",
			Provider:    "anthropic",
			Model:       "claude-test",
			RunID:       "backfill-abc",
			GeneratedAt: createdAt,
		},
	}
}

func reportPayload() json.RawMessage {
	// Reports deliberately out of dimension order; the run must sort them.
	doc := map[string]any{
		"incremental": map[string]any{
			"reports": []map[string]any{
				{
					"dimension":    "incremental-root-causes",
					"layer":        "L3",
					"title":        "上下文丢失是本周期的主导根因",
					"key_insights": "长会话机制：超过 20 轮后早期约束被截断，导致重复纠正",
					"detail_lines": []string{"机制：上下文窗口溢出导致早期指令丢失"},
				},
				{
					"dimension":    "incremental-trigger-chains",
					"layer":        "L2",
					"title":        "纠正多发生在工具调用失败之后",
					"key_insights": "触发链：工具报错 → 模型自行猜测 → 用户纠正",
					"detail_lines": []string{"机制：报错信息未被回读就继续执行"},
				},
			},
		},
	}
	raw, _ := json.Marshal(doc)
	return raw
}

type harness struct {
	agg         *Aggregator
	provider    *fakePeriodProvider
	sessions    *sidecar.Store
	incremental *sidecar.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	recDir := t.TempDir()
	// Record files inside the default test period.
	for _, stamp := range []string{"2025-08-11", "2025-08-13", "2025-08-15", "2025-08-16"} {
		rec := mechanism.SessionRecord{SessionID: "r-" + stamp, Source: "claude-code", CreatedAt: stamp + "T09:00:00Z"}
		raw, err := json.Marshal(rec)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(recDir, rec.SessionID+".json"), raw, 0o644))
	}

	sessions, err := sidecar.NewStore(t.TempDir())
	require.NoError(t, err)
	incStore, err := sidecar.NewStore(t.TempDir())
	require.NoError(t, err)

	provider := &fakePeriodProvider{payload: reportPayload()}
	prompts := &skill.PromptSet{Session: "diagnose", Incremental: "aggregate"}
	agg := NewAggregator(records.NewDir(recDir, nil), sessions, incStore, provider, prompts, nil)
	agg.maxAttempts = 2
	return &harness{agg: agg, provider: provider, sessions: sessions, incremental: incStore}
}

func (h *harness) putSession(t *testing.T, doc mechanism.SessionMechanism) {
	t.Helper()
	_, err := h.sessions.Put(doc.SessionID, doc)
	require.NoError(t, err)
}

// TestRunAggregatesPeriod verifies a run collects only valid in-period
// sidecars, fills metadata, sorts reports by dimension rank and persists
// one document under the period key.
func TestRunAggregatesPeriod(t *testing.T) {
	h := newHarness(t)
	h.putSession(t, sessionDoc("s1", "2025-08-11T10:00:00Z"))
	h.putSession(t, sessionDoc("s2", "2025-08-15T10:00:00Z"))
	h.putSession(t, sessionDoc("s3", "2025-09-01T10:00:00Z")) // outside period
	_, err := h.sessions.Put("junk", map[string]any{"schema_version": "bogus.v9"})
	require.NoError(t, err)

	doc, err := h.agg.Run(context.Background(), Options{
		Since:    "2025-08-11",
		Until:    "2025-08-17",
		PeriodID: "2025-W33",
		RunID:    "incremental-t1",
	})
	require.NoError(t, err)

	assert.Equal(t, mechanism.IncrementalSchemaVersion, doc.SchemaVersion)
	assert.Equal(t, "2025-W33", doc.PeriodID)
	assert.Equal(t, "incremental-t1", doc.SourceRunID)
	assert.Equal(t, "2025-08-11", doc.Period.Since)
	assert.Equal(t, "2025-08-17", doc.Period.Until)
	assert.NotEmpty(t, doc.GeneratedAt)

	// Four records in the period, two of which carry a valid mechanism.
	assert.Equal(t, 4, doc.Coverage.SessionsTotal)
	assert.Equal(t, 2, doc.Coverage.SessionsWithMechanism)
	assert.Equal(t, 2, h.provider.lastInput.Coverage.SessionsWithMechanism)

	require.Len(t, doc.Reports, 2)
	assert.Equal(t, "incremental-trigger-chains", doc.Reports[0].Dimension, "L2 sorts before L3")
	assert.Equal(t, "incremental-root-causes", doc.Reports[1].Dimension)

	var stored mechanism.IncrementalMechanism
	require.NoError(t, h.incremental.Get("2025-W33", &stored))
	assert.Equal(t, doc.PeriodID, stored.PeriodID)
}

// TestRunRequiresCoverage verifies zero valid in-period mechanisms abort
// the run before any gateway call.
func TestRunRequiresCoverage(t *testing.T) {
	h := newHarness(t)
	h.putSession(t, sessionDoc("s1", "2025-09-01T10:00:00Z")) // outside

	_, err := h.agg.Run(context.Background(), Options{
		Since: "2025-08-11", Until: "2025-08-17", PeriodID: "2025-W33",
	})
	require.ErrorIs(t, err, ErrInsufficientCoverage)
	assert.Contains(t, err.Error(), "2025-W33")
	assert.Equal(t, 0, h.provider.calls)
}

// TestRunDryRunDoesNotPersist verifies dry-run validates and returns the
// document without writing the period sidecar.
func TestRunDryRunDoesNotPersist(t *testing.T) {
	h := newHarness(t)
	h.putSession(t, sessionDoc("s1", "2025-08-12T10:00:00Z"))

	doc, err := h.agg.Run(context.Background(), Options{
		Since: "2025-08-11", Until: "2025-08-17", PeriodID: "2025-W33", DryRun: true,
	})
	require.NoError(t, err)
	assert.Len(t, doc.Reports, 2)
	assert.False(t, h.incremental.Exists("2025-W33"))
}

// TestRunAcceptsCanonicalPayload verifies a provider response that carries
// the schema version at top level is used as-is.
func TestRunAcceptsCanonicalPayload(t *testing.T) {
	h := newHarness(t)
	h.putSession(t, sessionDoc("s1", "2025-08-12T10:00:00Z"))

	canonical := map[string]any{
		"schema_version": mechanism.IncrementalSchemaVersion,
		"reports": []map[string]any{{
			"dimension":    "incremental-root-causes",
			"layer":        "L3",
			"title":        "上下文丢失是本周期的主导根因",
			"key_insights": "长会话机制：超过 20 轮后早期约束被截断",
			"detail_lines": []string{"机制：上下文窗口溢出导致早期指令丢失"},
		}},
	}
	raw, err := json.Marshal(canonical)
	require.NoError(t, err)
	h.provider.payload = raw

	doc, err := h.agg.Run(context.Background(), Options{
		Since: "2025-08-11", Until: "2025-08-17", PeriodID: "2025-W33",
	})
	require.NoError(t, err)
	require.Len(t, doc.Reports, 1)
	assert.Equal(t, "2025-W33", doc.PeriodID)
}

// TestRunRejectsMalformedPayload verifies output that is neither canonical
// nor nested fails the run.
func TestRunRejectsMalformedPayload(t *testing.T) {
	h := newHarness(t)
	h.putSession(t, sessionDoc("s1", "2025-08-12T10:00:00Z"))
	h.provider.payload = json.RawMessage(`{"reports": []}`)

	_, err := h.agg.Run(context.Background(), Options{
		Since: "2025-08-11", Until: "2025-08-17", PeriodID: "2025-W33",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

// TestRunRetriesTransient verifies one transient gateway failure is retried
// within the attempt budget.
func TestRunRetriesTransient(t *testing.T) {
	h := newHarness(t)
	h.putSession(t, sessionDoc("s1", "2025-08-12T10:00:00Z"))
	h.provider.errs = []error{&skill.TransientError{Op: "call", Err: errors.New("overloaded")}}

	doc, err := h.agg.Run(context.Background(), Options{
		Since: "2025-08-11", Until: "2025-08-17", PeriodID: "2025-W33",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, h.provider.calls)
	assert.NotNil(t, doc)
}

// TestRunDoesNotRetryConfiguration verifies non-transient gateway errors
// surface on the first attempt.
func TestRunDoesNotRetryConfiguration(t *testing.T) {
	h := newHarness(t)
	h.putSession(t, sessionDoc("s1", "2025-08-12T10:00:00Z"))
	h.provider.errs = []error{
		&skill.ConfigurationError{Field: "api_key", Reason: "missing"},
		&skill.ConfigurationError{Field: "api_key", Reason: "missing"},
	}

	_, err := h.agg.Run(context.Background(), Options{
		Since: "2025-08-11", Until: "2025-08-17", PeriodID: "2025-W33",
	})
	require.Error(t, err)
	assert.True(t, skill.IsConfiguration(err))
	assert.Equal(t, 1, h.provider.calls)
}

// TestRunIsIdempotent verifies rerunning the same period rewrites nothing
// when the document content is unchanged apart from generation time.
func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.putSession(t, sessionDoc("s1", "2025-08-12T10:00:00Z"))

	opts := Options{Since: "2025-08-11", Until: "2025-08-17", PeriodID: "2025-W33", RunID: "incremental-t1"}
	first, err := h.agg.Run(context.Background(), opts)
	require.NoError(t, err)
	second, err := h.agg.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first.PeriodID, second.PeriodID)
	assert.Equal(t, first.Reports, second.Reports)
}
