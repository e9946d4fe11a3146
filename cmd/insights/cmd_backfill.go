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
	"github.com/AleutianAI/insights/services/backfill"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	backfillSince        string // inclusive lower date bound (YYYY-MM-DD)
	backfillUntil        string // inclusive upper date bound (YYYY-MM-DD)
	backfillWindow       string // rolling window, e.g. "30d" or "all"
	backfillSource       string // only records from this source
	backfillLimit        int    // cap on selected records
	backfillRunID        string // provenance run id stamped into sidecars
	backfillMaxWorkers   int    // concurrent provider calls
	backfillForceRefresh bool   // rebuild sidecars that already exist
	backfillAllowPartial bool   // record failures instead of aborting
	backfillDryRun       bool   // plan only, no provider calls or writes
)

// backfillCmd diagnoses session records that have no valid mechanism
// sidecar yet and writes one sidecar document per session.
//
// # Examples
//
//	insights backfill --window 30d
//	insights backfill --since 2025-08-01 --until 2025-08-15
//	insights backfill --window all --allow-partial
//	insights backfill --dry-run
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Diagnose session records into mechanism sidecar documents",
	Long: `Selects session records in the given range, diagnoses each one with
the configured inference provider, and writes a validated mechanism
sidecar per session. Sessions that already have a valid sidecar with a
mechanism signal are skipped, so reruns are cheap.

With --allow-partial, sessions that fail diagnosis or validation are
recorded and skipped instead of aborting the run.`,
	RunE: runBackfillCommand,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillSince, "since", "", "start date (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVar(&backfillUntil, "until", "", "end date (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVarP(&backfillWindow, "window", "w", "", "rolling window, e.g. 30d, or all")
	backfillCmd.Flags().StringVar(&backfillSource, "source", "", "only records from this source")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "max records to select (0 = no limit)")
	backfillCmd.Flags().StringVar(&backfillRunID, "run-id", "", "run id stamped into generated sidecars")
	backfillCmd.Flags().IntVar(&backfillMaxWorkers, "max-workers", 0, "concurrent provider calls (0 = config value)")
	backfillCmd.Flags().BoolVar(&backfillForceRefresh, "force-refresh", false, "rebuild sidecars that already exist")
	backfillCmd.Flags().BoolVar(&backfillAllowPartial, "allow-partial", false, "skip failing sessions instead of aborting")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "plan the run without provider calls or writes")
}

func runBackfillCommand(cmd *cobra.Command, args []string) error {
	logger := newCommandLogger("backfill")
	orch, err := newBackfillOrchestrator(logger, backfillMaxWorkers)
	if err != nil {
		return err
	}

	runID := backfillRunID
	if runID == "" {
		runID = "backfill-" + uuid.NewString()
	}

	report, err := orch.Run(cmd.Context(), backfill.Options{
		Since:        backfillSince,
		Until:        backfillUntil,
		Window:       backfillWindow,
		Source:       backfillSource,
		Limit:        backfillLimit,
		RunID:        runID,
		ForceRefresh: backfillForceRefresh,
		AllowPartial: backfillAllowPartial,
		DryRun:       backfillDryRun,
	})
	if err != nil {
		return fmt.Errorf("backfill run %s failed: %w", runID, err)
	}

	renderBackfillReport(report)
	return nil
}

func renderBackfillReport(report *backfill.Report) {
	switch report.Status {
	case backfill.StatusPartial:
		ux.Warning(fmt.Sprintf("backfill %s finished partial", report.RunID))
	default:
		ux.Success(fmt.Sprintf("backfill %s completed", report.RunID))
	}
	ux.KeyValue("selected", fmt.Sprintf("%d", report.Selected))
	ux.KeyValue("planned", fmt.Sprintf("%d", report.Planned))
	ux.KeyValue("duration", report.Duration.Round(timeRounding).String())
	for _, s := range report.Skipped {
		reason := s.Reason
		if reason == "" && len(s.Violations) > 0 {
			reason = s.Violations[0].Message
		}
		ux.Muted(fmt.Sprintf("  skipped %s: %s", s.SessionID, reason))
	}
	ux.RunSummary(report.Processed, len(report.Skipped), report.Selected)
}
