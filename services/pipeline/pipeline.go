// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline chains backfill, incremental aggregation and report
// sync into one serial run with fail-fast semantics: a failed step stops
// the chain, and everything the earlier steps persisted stands.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/insights/services/backfill"
	"github.com/AleutianAI/insights/services/incremental"
	"github.com/AleutianAI/insights/services/mechanism"
	"github.com/AleutianAI/insights/services/reportsync"
)

// Options configures one full pipeline run.
type Options struct {
	Since        string
	Until        string
	Window       string
	Source       string
	Limit        int
	RunID        string
	PeriodID     string
	ForceRefresh bool
	AllowPartial bool
	DryRun       bool
	SkipBackfill bool
	SkipSync     bool
}

// StepOutcome records one executed step.
type StepOutcome struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail,omitempty"`
}

// Outcome is the combined result of a pipeline run.
type Outcome struct {
	Steps    []StepOutcome               `json:"steps"`
	Backfill *backfill.Report            `json:"backfill,omitempty"`
	Period   *mechanism.IncrementalMechanism `json:"period,omitempty"`
	Sync     *reportsync.Summary         `json:"sync,omitempty"`
}

// Runner executes the full chain.
type Runner struct {
	backfill    *backfill.Orchestrator
	incremental *incremental.Aggregator
	sync        *reportsync.Engine
	logger      *slog.Logger
}

// NewRunner wires a pipeline runner. The sync engine may be nil when the
// deployment has no remote workspace configured; the sync step then fails
// unless SkipSync is set.
func NewRunner(bf *backfill.Orchestrator, agg *incremental.Aggregator, sync *reportsync.Engine, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{backfill: bf, incremental: agg, sync: sync, logger: logger}
}

// Run executes backfill, then incremental aggregation, then report sync.
// The returned outcome always lists the steps that ran, including the one
// that failed.
func (r *Runner) Run(ctx context.Context, opts Options) (*Outcome, error) {
	outcome := &Outcome{}

	if !opts.SkipBackfill {
		start := time.Now()
		r.logger.Info("pipeline step start", "step", "backfill")
		report, err := r.backfill.Run(ctx, backfill.Options{
			Since:        opts.Since,
			Until:        opts.Until,
			Window:       opts.Window,
			Source:       opts.Source,
			Limit:        opts.Limit,
			RunID:        opts.RunID,
			ForceRefresh: opts.ForceRefresh,
			AllowPartial: opts.AllowPartial,
			DryRun:       opts.DryRun,
		})
		outcome.Backfill = report
		status := "failed"
		if report != nil {
			status = report.Status
		}
		outcome.Steps = append(outcome.Steps, StepOutcome{
			Name: "backfill", Status: status, Duration: time.Since(start),
		})
		if err != nil {
			return outcome, fmt.Errorf("pipeline step backfill: %w", err)
		}
		r.logger.Info("pipeline step done", "step", "backfill", "status", status)
	}

	start := time.Now()
	r.logger.Info("pipeline step start", "step", "incremental")
	doc, err := r.incremental.Run(ctx, incremental.Options{
		Since:    opts.Since,
		Until:    opts.Until,
		Window:   opts.Window,
		PeriodID: opts.PeriodID,
		RunID:    opts.RunID,
		DryRun:   opts.DryRun,
	})
	if err != nil {
		outcome.Steps = append(outcome.Steps, StepOutcome{
			Name: "incremental", Status: "failed", Duration: time.Since(start), Detail: err.Error(),
		})
		return outcome, fmt.Errorf("pipeline step incremental: %w", err)
	}
	outcome.Period = doc
	outcome.Steps = append(outcome.Steps, StepOutcome{
		Name: "incremental", Status: "completed", Duration: time.Since(start),
		Detail: fmt.Sprintf("period=%s reports=%d", doc.PeriodID, len(doc.Reports)),
	})
	r.logger.Info("pipeline step done", "step", "incremental", "period_id", doc.PeriodID)

	if !opts.SkipSync {
		start = time.Now()
		if r.sync == nil {
			outcome.Steps = append(outcome.Steps, StepOutcome{
				Name: "sync", Status: "failed", Detail: "no sync engine configured",
			})
			return outcome, fmt.Errorf("pipeline step sync: no sync engine configured")
		}
		r.logger.Info("pipeline step start", "step", "sync")
		summary, err := r.sync.Sync(ctx, *doc, opts.DryRun)
		outcome.Sync = summary
		if err != nil {
			outcome.Steps = append(outcome.Steps, StepOutcome{
				Name: "sync", Status: "failed", Duration: time.Since(start), Detail: err.Error(),
			})
			return outcome, fmt.Errorf("pipeline step sync: %w", err)
		}
		outcome.Steps = append(outcome.Steps, StepOutcome{
			Name: "sync", Status: "completed", Duration: time.Since(start),
			Detail: fmt.Sprintf("written=%d archived=%d", summary.Written, summary.Archived),
		})
		r.logger.Info("pipeline step done", "step", "sync", "written", summary.Written)
	}

	return outcome, nil
}
