// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/insights/services/backfill"
	"github.com/AleutianAI/insights/services/incremental"
	"github.com/AleutianAI/insights/services/mechanism"
	"github.com/AleutianAI/insights/services/notion"
	"github.com/AleutianAI/insights/services/records"
	"github.com/AleutianAI/insights/services/reportsync"
	"github.com/AleutianAI/insights/services/sidecar"
	"github.com/AleutianAI/insights/services/skill"
)

// chainProvider serves both gateway operations with canned valid payloads.
type chainProvider struct {
	mu               sync.Mutex
	sessionCalls     int
	incrementalCalls int
	sessionErr       error
	incrementalErr   error
}

func (p *chainProvider) GenerateSession(ctx context.Context, prompt string, digest any) (json.RawMessage, error) {
	p.mu.Lock()
	p.sessionCalls++
	p.mu.Unlock()
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	d := digest.(mechanism.SessionDigest)
	payload := map[string]any{
		"summary":       "长任务中段发生上下文丢失",
		"what_happened": []string{"用户在第 8 轮重复早期约束"},
		"why": []map[string]any{{
			"hypothesis": "上下文窗口溢出导致早期指令被截断",
			"confidence": 0.7,
			"evidence": []map[string]any{{
				"session_id": d.SessionID, "turn_id": 1, "snippet": "模型忽略了第 2 轮的约束",
			}},
		}},
		"how_to_improve": []map[string]any{{
			"trigger": "会话超过 20 轮", "action": "重申关键约束",
			"expected_gain": "减少纠正轮次", "validation_window": "14d",
		}},
	}
	return json.Marshal(payload)
}

func (p *chainProvider) GenerateIncremental(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	p.mu.Lock()
	p.incrementalCalls++
	p.mu.Unlock()
	if p.incrementalErr != nil {
		return nil, p.incrementalErr
	}
	payload := map[string]any{
		"incremental": map[string]any{
			"reports": []map[string]any{
				{
					"dimension":    "incremental-trigger-chains",
					"layer":        "L2",
					"title":        "纠正多发生在工具调用失败之后",
					"key_insights": "触发链：工具报错后模型自行猜测",
					"detail_lines": []string{"机制：报错信息未被回读就继续执行"},
				},
				{
					"dimension":    "incremental-root-causes",
					"layer":        "L3",
					"title":        "上下文丢失是本周期的主导根因",
					"key_insights": "长会话机制：早期约束被截断",
					"detail_lines": []string{"机制：上下文窗口溢出导致早期指令丢失"},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func (p *chainProvider) Name() string  { return "anthropic" }
func (p *chainProvider) Model() string { return "claude-test" }

// fakeRemote is a minimal remote workspace: query, create, patch and block
// endpoints, counting created pages.
type fakeRemote struct {
	mu      sync.Mutex
	created int
	nextID  int
}

func (f *fakeRemote) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		rw.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/query"):
			fmt.Fprint(rw, `{"results":[],"has_more":false}`)
		case r.Method == http.MethodPost && r.URL.Path == "/pages":
			f.nextID++
			f.created++
			fmt.Fprintf(rw, `{"id":"page-%d"}`, f.nextID)
		default:
			fmt.Fprint(rw, `{}`)
		}
	}
}

type chainHarness struct {
	runner   *Runner
	provider *chainProvider
	remote   *fakeRemote
	sessions *sidecar.Store
}

func newChainHarness(t *testing.T, withSync bool) *chainHarness {
	t.Helper()
	recDir := t.TempDir()
	for i, stamp := range []string{"2025-08-12", "2025-08-13"} {
		rec := mechanism.SessionRecord{
			SessionID: fmt.Sprintf("s%d", i+1),
			Source:    "claude-code",
			CreatedAt: stamp + "T10:00:00Z",
			Turns: []mechanism.Turn{{
				TurnID:            1,
				UserMessage:       mechanism.Message{Content: "帮我修复解析错误"},
				AssistantResponse: mechanism.Response{Content: "先看输入格式"},
			}},
		}
		raw, err := json.Marshal(rec)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(recDir, rec.SessionID+".json"), raw, 0o644))
	}

	sessions, err := sidecar.NewStore(t.TempDir())
	require.NoError(t, err)
	incStore, err := sidecar.NewStore(t.TempDir())
	require.NoError(t, err)

	provider := &chainProvider{}
	prompts := &skill.PromptSet{Session: "diagnose", Incremental: "aggregate"}
	recs := records.NewDir(recDir, nil)

	orch := backfill.NewOrchestrator(recs, sessions, provider, prompts, backfill.Config{
		MaxWorkers:  2,
		ProviderRPS: 1000,
		Retry:       backfill.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1},
	}, nil)
	agg := incremental.NewAggregator(recs, sessions, incStore, provider, prompts, nil)

	var engine *reportsync.Engine
	remote := &fakeRemote{}
	if withSync {
		srv := httptest.NewServer(remote.handler())
		t.Cleanup(srv.Close)
		client, err := notion.NewClient("secret", notion.WithBaseURL(srv.URL), notion.WithHTTPClient(srv.Client()))
		require.NoError(t, err)
		engine = reportsync.NewEngine(client, "db-analysis", nil, nil)
	}

	return &chainHarness{
		runner:   NewRunner(orch, agg, engine, nil),
		provider: provider,
		remote:   remote,
		sessions: sessions,
	}
}

func weekOptions(runID string) Options {
	return Options{
		Since:    "2025-08-11",
		Until:    "2025-08-17",
		PeriodID: "2025-W33",
		RunID:    runID,
	}
}

// TestRunFullChain verifies the three steps run in order and each later
// step consumes what the earlier one produced.
func TestRunFullChain(t *testing.T) {
	h := newChainHarness(t, true)

	outcome, err := h.runner.Run(context.Background(), weekOptions("run-t1"))
	require.NoError(t, err)

	require.Len(t, outcome.Steps, 3)
	assert.Equal(t, "backfill", outcome.Steps[0].Name)
	assert.Equal(t, backfill.StatusSuccess, outcome.Steps[0].Status)
	assert.Equal(t, "incremental", outcome.Steps[1].Name)
	assert.Equal(t, "completed", outcome.Steps[1].Status)
	assert.Equal(t, "sync", outcome.Steps[2].Name)
	assert.Equal(t, "completed", outcome.Steps[2].Status)

	require.NotNil(t, outcome.Backfill)
	assert.Equal(t, 2, outcome.Backfill.Processed)
	require.NotNil(t, outcome.Period)
	assert.Equal(t, "2025-W33", outcome.Period.PeriodID)
	assert.Len(t, outcome.Period.Reports, 2)
	require.NotNil(t, outcome.Sync)
	assert.Equal(t, 2, outcome.Sync.Written)
	assert.Equal(t, 2, h.remote.created)
}

// TestRunSkipFlags verifies skip-backfill and skip-sync leave only the
// aggregation step.
func TestRunSkipFlags(t *testing.T) {
	h := newChainHarness(t, true)

	// First pass populates the session sidecars.
	_, err := h.runner.Run(context.Background(), weekOptions("run-t1"))
	require.NoError(t, err)
	sessionCallsAfterFirst := h.provider.sessionCalls

	opts := weekOptions("run-t2")
	opts.SkipBackfill = true
	opts.SkipSync = true
	outcome, err := h.runner.Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, outcome.Steps, 1)
	assert.Equal(t, "incremental", outcome.Steps[0].Name)
	assert.Nil(t, outcome.Backfill)
	assert.Nil(t, outcome.Sync)
	assert.Equal(t, sessionCallsAfterFirst, h.provider.sessionCalls)
}

// TestRunFailFast verifies a failed backfill stops the chain before
// aggregation.
func TestRunFailFast(t *testing.T) {
	h := newChainHarness(t, true)
	h.provider.sessionErr = &skill.ConfigurationError{Field: "api_key", Reason: "missing"}

	outcome, err := h.runner.Run(context.Background(), weekOptions("run-t1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline step backfill")

	require.Len(t, outcome.Steps, 1)
	assert.Equal(t, "backfill", outcome.Steps[0].Name)
	assert.Equal(t, backfill.StatusFailed, outcome.Steps[0].Status)
	assert.Equal(t, 0, h.provider.incrementalCalls)
	assert.Equal(t, 0, h.remote.created)
}

// TestRunIncrementalFailureStopsSync verifies an empty period fails the
// aggregation step and never reaches sync.
func TestRunIncrementalFailureStopsSync(t *testing.T) {
	h := newChainHarness(t, true)

	opts := weekOptions("run-t1")
	opts.SkipBackfill = true // no sidecars exist yet
	outcome, err := h.runner.Run(context.Background(), opts)
	require.ErrorIs(t, err, incremental.ErrInsufficientCoverage)

	require.Len(t, outcome.Steps, 1)
	assert.Equal(t, "incremental", outcome.Steps[0].Name)
	assert.Equal(t, "failed", outcome.Steps[0].Status)
	assert.Equal(t, 0, h.remote.created)
}

// TestRunWithoutSyncEngine verifies the sync step fails when no remote is
// configured, unless explicitly skipped.
func TestRunWithoutSyncEngine(t *testing.T) {
	t.Run("fails without skip", func(t *testing.T) {
		h := newChainHarness(t, false)
		outcome, err := h.runner.Run(context.Background(), weekOptions("run-t1"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no sync engine configured")
		require.Len(t, outcome.Steps, 3)
		assert.Equal(t, "failed", outcome.Steps[2].Status)
	})

	t.Run("succeeds with skip", func(t *testing.T) {
		h := newChainHarness(t, false)
		opts := weekOptions("run-t1")
		opts.SkipSync = true
		outcome, err := h.runner.Run(context.Background(), opts)
		require.NoError(t, err)
		require.Len(t, outcome.Steps, 2)
		assert.NotNil(t, outcome.Period)
	})
}

// TestRunDryRun verifies dry-run propagates to every step: nothing is
// persisted locally or remotely.
func TestRunDryRun(t *testing.T) {
	h := newChainHarness(t, true)

	// Dry-run aggregation still needs existing valid sidecars.
	_, err := h.runner.Run(context.Background(), weekOptions("run-t1"))
	require.NoError(t, err)
	createdAfterFirst := h.remote.created

	opts := weekOptions("run-t2")
	opts.DryRun = true
	outcome, err := h.runner.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, createdAfterFirst, h.remote.created, "dry-run must not write remote pages")
	assert.Equal(t, 0, outcome.Sync.Written)
}
