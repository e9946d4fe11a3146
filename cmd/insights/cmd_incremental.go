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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/insights/pkg/ux"
	"github.com/AleutianAI/insights/services/incremental"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	incrementalSince    string
	incrementalUntil    string
	incrementalWindow   string
	incrementalPeriodID string // explicit period label, e.g. 2025-W35
	incrementalRunID    string
	incrementalDryRun   bool
)

// incrementalCmd aggregates the session sidecars of one period into a
// single period-level mechanism document.
//
// # Examples
//
//	insights incremental --window 7d
//	insights incremental --since 2025-08-01 --until 2025-08-15
//	insights incremental --period-id 2025-W35 --window 7d
var incrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Aggregate session sidecars into a period report document",
	Long: `Collects the valid session mechanism sidecars inside the requested
period, feeds them to the configured inference provider, and writes one
validated incremental document keyed by period id.

The run fails when the period holds no valid session mechanisms.`,
	RunE: runIncrementalCommand,
}

func init() {
	incrementalCmd.Flags().StringVar(&incrementalSince, "since", "", "start date (YYYY-MM-DD, inclusive)")
	incrementalCmd.Flags().StringVar(&incrementalUntil, "until", "", "end date (YYYY-MM-DD, inclusive)")
	incrementalCmd.Flags().StringVarP(&incrementalWindow, "window", "w", "", "rolling window, e.g. 7d, or all")
	incrementalCmd.Flags().StringVar(&incrementalPeriodID, "period-id", "", "explicit period label for the document")
	incrementalCmd.Flags().StringVar(&incrementalRunID, "run-id", "", "run id recorded as source_run_id")
	incrementalCmd.Flags().BoolVar(&incrementalDryRun, "dry-run", false, "aggregate and validate without persisting")
}

func runIncrementalCommand(cmd *cobra.Command, args []string) error {
	logger := newCommandLogger("incremental")
	agg, err := newAggregator(logger)
	if err != nil {
		return err
	}

	doc, err := agg.Run(cmd.Context(), incremental.Options{
		Since:    incrementalSince,
		Until:    incrementalUntil,
		Window:   incrementalWindow,
		PeriodID: incrementalPeriodID,
		RunID:    incrementalRunID,
		DryRun:   incrementalDryRun,
	})
	if err != nil {
		if errors.Is(err, incremental.ErrInsufficientCoverage) {
			return fmt.Errorf("no valid session mechanisms in the requested period, run backfill first: %w", err)
		}
		return err
	}

	ux.Success(fmt.Sprintf("incremental document ready for period %s", doc.PeriodID))
	ux.KeyValue("reports", fmt.Sprintf("%d", len(doc.Reports)))
	ux.KeyValue("sessions_total", fmt.Sprintf("%d", doc.Coverage.SessionsTotal))
	ux.KeyValue("sessions_with_mechanism", fmt.Sprintf("%d", doc.Coverage.SessionsWithMechanism))
	if incrementalDryRun {
		ux.Muted("dry run: document was not persisted")
	}
	return nil
}
