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
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/insights/cmd/insights/config"
	"github.com/AleutianAI/insights/pkg/ux"
	"github.com/AleutianAI/insights/services/backfill"
	"github.com/AleutianAI/insights/services/incremental"
	"github.com/AleutianAI/insights/services/notion"
	"github.com/AleutianAI/insights/services/records"
	"github.com/AleutianAI/insights/services/reportsync"
	"github.com/AleutianAI/insights/services/sidecar"
	"github.com/AleutianAI/insights/services/skill"
)

// =============================================================================
// ROOT FLAGS
// =============================================================================

var (
	rootProviderName string // overrides provider.name from the config
	rootModel        string // overrides provider.model from the config
	rootTimeoutSec   int    // overrides provider.timeout_sec from the config
	rootPlainOutput  bool   // machine-readable output, no styling
)

var rootCmd = &cobra.Command{
	Use:   "insights",
	Short: "Extract mechanism insights from local AI session records",
	Long: `Insights diagnoses recorded AI sessions into structured mechanism
documents, aggregates them into period reports, and publishes the
reports to a Notion workspace.

All state is local: session records and derived sidecar documents live
under the directories named in ~/.insights/insights.yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ux.SetPlain(rootPlainOutput)
		return config.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootProviderName, "provider", "", "inference provider (anthropic or openai)")
	rootCmd.PersistentFlags().StringVar(&rootModel, "model", "", "provider model override")
	rootCmd.PersistentFlags().IntVar(&rootTimeoutSec, "timeout-sec", 0, "provider request timeout in seconds")
	rootCmd.PersistentFlags().BoolVar(&rootPlainOutput, "plain", false, "disable styled output")

	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(incrementalCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(runCmd)
}

// =============================================================================
// SHARED WIRING
// =============================================================================

// timeRounding keeps rendered durations readable.
const timeRounding = 10 * time.Millisecond

func newCommandLogger(command string) *slog.Logger {
	return slog.Default().With("command", command)
}

// newProvider builds the inference provider from the config, letting the
// root flags override each field.
func newProvider() (skill.Provider, error) {
	cfg := config.Global.Provider
	name := cfg.Name
	if rootProviderName != "" {
		name = rootProviderName
	}
	model := cfg.Model
	if rootModel != "" {
		model = rootModel
	}
	if model == "" {
		model = skill.DefaultModel(name)
	}
	timeout := cfg.TimeoutSec
	if rootTimeoutSec > 0 {
		timeout = rootTimeoutSec
	}
	return skill.NewProvider(name, model, timeout)
}

// newBackfillOrchestrator wires the record store, session sidecar store,
// provider, and prompts into a backfill orchestrator.
func newBackfillOrchestrator(logger *slog.Logger, maxWorkers int) (*backfill.Orchestrator, error) {
	provider, err := newProvider()
	if err != nil {
		return nil, err
	}
	prompts, err := skill.LoadPromptSet(config.Global.Data.SkillsDir)
	if err != nil {
		return nil, err
	}
	sessions, err := sidecar.NewStore(config.Global.Data.SessionDir)
	if err != nil {
		return nil, err
	}
	rec := records.NewDir(config.Global.Data.RecordsDir, logger)
	cfg := backfill.Config{
		MaxWorkers:  config.Global.Backfill.MaxWorkers,
		ProviderRPS: config.Global.Backfill.ProviderRPS,
		Retry:       backfill.DefaultRetryConfig(),
	}
	if maxWorkers > 0 {
		cfg.MaxWorkers = maxWorkers
	}
	return backfill.NewOrchestrator(rec, sessions, provider, prompts, cfg, logger), nil
}

// newAggregator wires the incremental aggregator over both sidecar stores.
func newAggregator(logger *slog.Logger) (*incremental.Aggregator, error) {
	provider, err := newProvider()
	if err != nil {
		return nil, err
	}
	prompts, err := skill.LoadPromptSet(config.Global.Data.SkillsDir)
	if err != nil {
		return nil, err
	}
	sessions, err := sidecar.NewStore(config.Global.Data.SessionDir)
	if err != nil {
		return nil, err
	}
	incr, err := sidecar.NewStore(config.Global.Data.IncrementalDir)
	if err != nil {
		return nil, err
	}
	rec := records.NewDir(config.Global.Data.RecordsDir, logger)
	return incremental.NewAggregator(rec, sessions, incr, provider, prompts, logger), nil
}

// newSyncEngine builds the Notion sync engine, or (nil, nil) when the
// config has no workspace credentials. Callers decide whether that is an
// error for their command.
func newSyncEngine(logger *slog.Logger) (*reportsync.Engine, error) {
	nc := config.Global.Notion
	if nc.APIKey == "" || nc.AnalysisReportsDB() == "" {
		return nil, nil
	}
	client, err := notion.NewClient(nc.APIKey, notion.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return reportsync.NewEngine(client, nc.AnalysisReportsDB(), nil, logger), nil
}
