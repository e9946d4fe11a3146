// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/insights/pkg/ux"
	"github.com/AleutianAI/insights/services/pipeline"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runSince        string
	runUntil        string
	runWindow       string
	runSource       string
	runLimit        int
	runRunID        string
	runPeriodID     string
	runMaxWorkers   int
	runForceRefresh bool
	runAllowPartial bool
	runDryRun       bool
	runSkipBackfill bool
	runSkipSync     bool
)

// runCmd executes the full chain: backfill, incremental aggregation, and
// Notion sync, stopping at the first failed step.
//
// # Examples
//
//	insights run --window 7d
//	insights run --window 30d --allow-partial --skip-sync
//	insights run --since 2025-08-01 --until 2025-08-15 --dry-run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run backfill, aggregation, and sync in one pass",
	Long: `Runs the full pipeline for one period: diagnose missing session
sidecars, aggregate them into an incremental document, and publish the
document to Notion. Steps share one run id, and a failed step stops the
chain.

Use --skip-backfill to aggregate existing sidecars only, or --skip-sync
when no Notion workspace is configured.`,
	RunE: runPipelineCommand,
}

func init() {
	runCmd.Flags().StringVar(&runSince, "since", "", "start date (YYYY-MM-DD, inclusive)")
	runCmd.Flags().StringVar(&runUntil, "until", "", "end date (YYYY-MM-DD, inclusive)")
	runCmd.Flags().StringVarP(&runWindow, "window", "w", "", "rolling window, e.g. 7d, or all")
	runCmd.Flags().StringVar(&runSource, "source", "", "only records from this source")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max records to select (0 = no limit)")
	runCmd.Flags().StringVar(&runRunID, "run-id", "", "run id shared by all steps")
	runCmd.Flags().StringVar(&runPeriodID, "period-id", "", "explicit period label for the document")
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "concurrent provider calls (0 = config value)")
	runCmd.Flags().BoolVar(&runForceRefresh, "force-refresh", false, "rebuild sidecars that already exist")
	runCmd.Flags().BoolVar(&runAllowPartial, "allow-partial", false, "skip failing sessions instead of aborting")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "plan all steps without writes or remote calls")
	runCmd.Flags().BoolVar(&runSkipBackfill, "skip-backfill", false, "aggregate existing sidecars only")
	runCmd.Flags().BoolVar(&runSkipSync, "skip-sync", false, "stop after the incremental step")
}

func runPipelineCommand(cmd *cobra.Command, args []string) error {
	logger := newCommandLogger("run")

	orch, err := newBackfillOrchestrator(logger, runMaxWorkers)
	if err != nil {
		return err
	}
	agg, err := newAggregator(logger)
	if err != nil {
		return err
	}
	engine, err := newSyncEngine(logger)
	if err != nil {
		return err
	}

	runID := runRunID
	if runID == "" {
		runID = "run-" + uuid.NewString()
	}

	runner := pipeline.NewRunner(orch, agg, engine, logger)
	outcome, err := runner.Run(cmd.Context(), pipeline.Options{
		Since:        runSince,
		Until:        runUntil,
		Window:       runWindow,
		Source:       runSource,
		Limit:        runLimit,
		RunID:        runID,
		PeriodID:     runPeriodID,
		ForceRefresh: runForceRefresh,
		AllowPartial: runAllowPartial,
		DryRun:       runDryRun,
		SkipBackfill: runSkipBackfill,
		SkipSync:     runSkipSync,
	})
	if outcome != nil {
		renderPipelineOutcome(outcome)
	}
	if err != nil {
		return fmt.Errorf("pipeline run %s failed: %w", runID, err)
	}
	return nil
}

func renderPipelineOutcome(outcome *pipeline.Outcome) {
	ux.Title("pipeline")
	for _, step := range outcome.Steps {
		line := fmt.Sprintf("%-12s %-10s %s", step.Name, step.Status, step.Duration.Round(timeRounding))
		if step.Detail != "" {
			line += "  " + step.Detail
		}
		switch step.Status {
		case "failed":
			ux.Error(line)
		case "partial", "skipped":
			ux.Warning(line)
		default:
			ux.Info(line)
		}
	}
	if outcome.Backfill != nil {
		ux.RunSummary(outcome.Backfill.Processed, len(outcome.Backfill.Skipped), outcome.Backfill.Selected)
	}
	if outcome.Period != nil {
		ux.KeyValue("period", outcome.Period.PeriodID)
		ux.KeyValue("reports", fmt.Sprintf("%d", len(outcome.Period.Reports)))
	}
	if outcome.Sync != nil {
		ux.KeyValue("written", fmt.Sprintf("%d", outcome.Sync.Written))
		ux.KeyValue("archived", fmt.Sprintf("%d", outcome.Sync.Archived))
	}
}
