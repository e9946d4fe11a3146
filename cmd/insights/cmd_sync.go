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
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/insights/cmd/insights/config"
	"github.com/AleutianAI/insights/pkg/ux"
	"github.com/AleutianAI/insights/services/mechanism"
	"github.com/AleutianAI/insights/services/sidecar"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	syncPeriodID   string // period id of the stored incremental document
	syncReportFile string // read the document from a file instead of the store
	syncDryRun     bool
)

// syncCmd publishes one incremental document to the Notion reports
// database, archiving duplicate pages and upserting one page per
// (dimension, period) report.
//
// # Examples
//
//	insights sync --period-id 2025-W35
//	insights sync --sync-report ./incremental.json --dry-run
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Publish a period report document to the Notion workspace",
	Long: `Loads the incremental document for the given period id from the local
store (or from --sync-report) and mirrors its reports into the
analysis_reports Notion database. Existing pages are updated in place,
duplicate pages for the same dimension and period are archived first.

Requires notion.api_key and notion.databases.analysis_reports in the
config.`,
	RunE: runSyncCommand,
}

func init() {
	syncCmd.Flags().StringVar(&syncPeriodID, "period-id", "", "period id of the stored document to publish")
	syncCmd.Flags().StringVar(&syncReportFile, "sync-report", "", "path to an incremental document to publish")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "validate and plan without touching Notion")
}

func runSyncCommand(cmd *cobra.Command, args []string) error {
	logger := newCommandLogger("sync")

	doc, err := loadSyncDocument()
	if err != nil {
		return err
	}

	engine, err := newSyncEngine(logger)
	if err != nil {
		return err
	}
	if engine == nil {
		return &config.Error{Err: errors.New("notion.api_key and notion.databases.analysis_reports must be set for sync")}
	}

	summary, err := engine.Sync(cmd.Context(), doc, syncDryRun)
	if err != nil {
		return fmt.Errorf("sync of period %s failed: %w", doc.PeriodID, err)
	}

	if syncDryRun {
		ux.Success(fmt.Sprintf("dry run: %d reports for period %s are ready to publish", summary.Reports, doc.PeriodID))
		return nil
	}
	ux.Success(fmt.Sprintf("synced period %s", doc.PeriodID))
	ux.KeyValue("reports", fmt.Sprintf("%d", summary.Reports))
	ux.KeyValue("written", fmt.Sprintf("%d", summary.Written))
	ux.KeyValue("archived", fmt.Sprintf("%d", summary.Archived))
	return nil
}

// loadSyncDocument reads the incremental document from --sync-report or
// from the incremental sidecar store by period id.
func loadSyncDocument() (mechanism.IncrementalMechanism, error) {
	var doc mechanism.IncrementalMechanism

	var raw []byte
	switch {
	case syncReportFile != "":
		data, err := os.ReadFile(syncReportFile)
		if err != nil {
			return doc, fmt.Errorf("read %s: %w", syncReportFile, err)
		}
		raw = data
	case syncPeriodID != "":
		store, err := sidecar.NewStore(config.Global.Data.IncrementalDir)
		if err != nil {
			return doc, err
		}
		data, err := store.Raw(syncPeriodID)
		if err != nil {
			if errors.Is(err, sidecar.ErrNotFound) {
				return doc, fmt.Errorf("no incremental document stored for period %s, run incremental first", syncPeriodID)
			}
			return doc, err
		}
		raw = data
	default:
		return doc, errors.New("either --period-id or --sync-report is required")
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode incremental document: %w", err)
	}
	return doc, nil
}
