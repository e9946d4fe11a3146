// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package backfill reconciles session records against the sidecar store: every
selected session ends up with a validated mechanism sidecar, or an explicit
skip entry explaining why it could not.

# Description

A run computes the work set (sessions whose sidecar is missing, unreadable,
contract-invalid, provenance-blocked or carrying no mechanism signal), then
diagnoses each item through the provider gateway on a bounded worker pool.
Provider calls share one rate limiter and transient failures are retried a
bounded number of times before the item counts as failed.

# Modes

Strict (default): the first contract-invalid result cancels dispatching and
the run reports failed. Sidecars already written in that run stand; they are
individually valid.

Partial: invalid results, and items whose provider calls exhaust their
transient retries, are recorded as skipped entries and remaining work
continues. The run outcome is partial when at least one item was skipped.
Configuration and I/O errors abort either way.
*/
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/insights/services/contract"
	"github.com/AleutianAI/insights/services/mechanism"
	"github.com/AleutianAI/insights/services/records"
	"github.com/AleutianAI/insights/services/sidecar"
	"github.com/AleutianAI/insights/services/skill"
)

// Run outcome states.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Options selects the sessions a run covers and how failures are handled.
type Options struct {
	Since        string
	Until        string
	Window       string
	Source       string
	Limit        int
	RunID        string
	ForceRefresh bool
	AllowPartial bool
	DryRun       bool
}

// Skipped records one session excluded from a partial run.
type Skipped struct {
	SessionID  string               `json:"session_id"`
	Violations []contract.Violation `json:"violations,omitempty"`
	Reason     string               `json:"reason,omitempty"`
}

// Report summarizes one backfill run.
type Report struct {
	Status    string        `json:"status"`
	RunID     string        `json:"run_id"`
	Selected  int           `json:"selected"`
	Planned   int           `json:"planned"`
	Processed int           `json:"processed"`
	Skipped   []Skipped     `json:"skipped,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Config tunes orchestrator concurrency.
type Config struct {
	MaxWorkers int
	// ProviderRPS bounds provider calls per second across all workers.
	ProviderRPS float64
	Retry       RetryConfig
}

// Orchestrator drives session backfill runs.
type Orchestrator struct {
	records  *records.Dir
	sidecars *sidecar.Store
	provider skill.Provider
	prompts  *skill.PromptSet
	logger   *slog.Logger
	cfg      Config
}

// NewOrchestrator wires a backfill orchestrator. Zero config fields fall
// back to safe defaults.
func NewOrchestrator(rec *records.Dir, store *sidecar.Store, provider skill.Provider, prompts *skill.PromptSet, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.ProviderRPS <= 0 {
		cfg.ProviderRPS = 2
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		records:  rec,
		sidecars: store,
		provider: provider,
		prompts:  prompts,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run executes one backfill run. The returned report is non-nil even on
// failure so callers can render what happened.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{Status: StatusFailed, RunID: opts.RunID}

	since := opts.Since
	if since == "" && opts.Until == "" && opts.Window != "" {
		resolved, err := mechanism.ParseWindow(opts.Window, time.Now().UTC())
		if err != nil {
			return report, &skill.ConfigurationError{Field: "window", Reason: err.Error()}
		}
		since = resolved
	}

	selected, err := o.records.Load(records.Filter{
		Since:  since,
		Until:  opts.Until,
		Source: opts.Source,
		Limit:  opts.Limit,
	})
	if err != nil {
		return report, err
	}
	report.Selected = len(selected)

	work := make([]mechanism.SessionRecord, 0, len(selected))
	for _, rec := range selected {
		if o.needsBackfill(rec.SessionID, opts.ForceRefresh) {
			work = append(work, rec)
		}
	}
	report.Planned = len(work)
	o.logger.Info("backfill work set computed",
		"run_id", opts.RunID, "selected", len(selected), "planned", len(work))

	if opts.DryRun || len(work) == 0 {
		report.Status = StatusSuccess
		report.Duration = time.Since(start)
		return report, nil
	}

	limiter := rate.NewLimiter(rate.Limit(o.cfg.ProviderRPS), 1)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxWorkers)

	for _, rec := range work {
		rec := rec
		g.Go(func() error {
			doc, result, err := o.diagnose(gCtx, limiter, rec, opts.RunID)
			if err != nil {
				// Exhausted transient retries count as a skippable failure
				// in partial mode; configuration and I/O errors still abort.
				if opts.AllowPartial && skill.IsTransient(err) {
					mu.Lock()
					report.Skipped = append(report.Skipped, Skipped{
						SessionID: rec.SessionID,
						Reason:    err.Error(),
					})
					mu.Unlock()
					o.logger.Warn("skipping session after exhausted retries",
						"run_id", opts.RunID, "session_id", rec.SessionID, "error", err)
					return nil
				}
				return fmt.Errorf("session %s: %w", rec.SessionID, err)
			}
			if !result.Valid() {
				if !opts.AllowPartial {
					return fmt.Errorf("session %s: %w", rec.SessionID, result.Err())
				}
				mu.Lock()
				report.Skipped = append(report.Skipped, Skipped{
					SessionID:  rec.SessionID,
					Violations: result.Violations,
				})
				mu.Unlock()
				o.logger.Warn("skipping invalid session mechanism",
					"run_id", opts.RunID, "session_id", rec.SessionID,
					"violations", len(result.Violations))
				return nil
			}
			changed, err := o.sidecars.Put(doc.SessionID, doc)
			if err != nil {
				return fmt.Errorf("session %s: %w", rec.SessionID, err)
			}
			mu.Lock()
			report.Processed++
			mu.Unlock()
			o.logger.Debug("session mechanism persisted",
				"session_id", doc.SessionID, "changed", changed)
			return nil
		})
	}

	runErr := g.Wait()
	report.Duration = time.Since(start)
	if runErr != nil {
		return report, runErr
	}
	if len(report.Skipped) > 0 {
		report.Status = StatusPartial
	} else {
		report.Status = StatusSuccess
	}
	return report, nil
}

// needsBackfill reports whether the stored sidecar for a session is
// missing, unreadable, contract-invalid or carries no mechanism signal.
func (o *Orchestrator) needsBackfill(sessionID string, forceRefresh bool) bool {
	if forceRefresh {
		return true
	}
	raw, err := o.sidecars.Raw(sessionID)
	if err != nil {
		return true
	}
	doc, result := contract.ValidateSessionJSON(raw)
	if !result.Valid() {
		return true
	}
	return !doc.HasSignal()
}

// diagnose runs one session through the gateway with bounded retries and
// returns the stamped document plus its validation result.
func (o *Orchestrator) diagnose(ctx context.Context, limiter *rate.Limiter, rec mechanism.SessionRecord, runID string) (mechanism.SessionMechanism, *contract.Result, error) {
	digest := mechanism.BuildDigest(rec)

	var raw json.RawMessage
	err := retry(ctx, o.cfg.Retry, func(ctx context.Context) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		var callErr error
		raw, callErr = o.provider.GenerateSession(ctx, o.prompts.Session, digest)
		return callErr
	})
	if err != nil {
		return mechanism.SessionMechanism{}, nil, err
	}

	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return mechanism.SessionMechanism{}, nil, fmt.Errorf("decode provider output: %w", err)
	}
	doc := skill.SanitizeSession(loose)
	o.stamp(&doc, rec, runID)

	rendered, err := json.Marshal(doc)
	if err != nil {
		return mechanism.SessionMechanism{}, nil, fmt.Errorf("render session mechanism: %w", err)
	}
	validated, result := contract.ValidateSessionJSON(rendered)
	verifyEvidenceTurns(validated, rec, result)
	return validated, result, nil
}

// verifyEvidenceTurns checks every evidence item citing the source session
// against the turns the record actually contains. The validator cannot do
// this on its own; only the orchestrator holds both documents.
func verifyEvidenceTurns(doc mechanism.SessionMechanism, rec mechanism.SessionRecord, result *contract.Result) {
	turns := make(map[int]struct{}, len(rec.Turns))
	for _, turn := range rec.Turns {
		turns[turn.TurnID] = struct{}{}
	}
	for i, why := range doc.Why {
		for j, ev := range why.Evidence {
			if ev.SessionID != rec.SessionID {
				continue
			}
			if _, ok := turns[ev.TurnID]; !ok {
				result.Violations = append(result.Violations, contract.Violation{
					Code:    contract.CodeEvidence,
					Path:    fmt.Sprintf("why[%d].evidence[%d].turn_id", i, j),
					Message: fmt.Sprintf("turn %d does not exist in session %s", ev.TurnID, rec.SessionID),
				})
			}
		}
	}
}

// stamp fills defaults the model is allowed to omit: identity from the
// source record, schema version, the provenance envelope, and week/period
// derived from created_at.
func (o *Orchestrator) stamp(doc *mechanism.SessionMechanism, rec mechanism.SessionRecord, runID string) {
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = mechanism.SessionSchemaVersion
	}
	if strings.TrimSpace(doc.SessionID) == "" {
		doc.SessionID = rec.SessionID
	}
	if strings.TrimSpace(doc.CreatedAt) == "" {
		doc.CreatedAt = rec.CreatedAt
	}
	if doc.GeneratedBy.Engine == "" {
		doc.GeneratedBy.Engine = "api"
	}
	if doc.GeneratedBy.Provider == "" {
		doc.GeneratedBy.Provider = o.provider.Name()
	}
	if doc.GeneratedBy.Model == "" {
		doc.GeneratedBy.Model = o.provider.Model()
	}
	if doc.GeneratedBy.RunID == "" {
		doc.GeneratedBy.RunID = runID
	}
	if doc.GeneratedBy.GeneratedAt == "" {
		doc.GeneratedBy.GeneratedAt = mechanism.NowISO()
	}
	if doc.Week == "" && doc.CreatedAt != "" {
		doc.Week = mechanism.WeekOf(doc.CreatedAt)
	}
	if doc.PeriodID == "" && doc.Week != "" {
		doc.PeriodID = doc.Week
	}
}
