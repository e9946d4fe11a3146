// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
)

type InsightsConfig struct {
	// Data: local directories for session records and derived documents
	Data DataConfig `yaml:"data" validate:"required"`

	// Provider: which inference backend diagnoses sessions
	Provider ProviderConfig `yaml:"provider" validate:"required"`

	// Backfill: concurrency limits for bulk diagnosis runs
	Backfill BackfillConfig `yaml:"backfill"`

	// Notion: remote workspace credentials and database ids
	Notion NotionConfig `yaml:"notion"`
}

type DataConfig struct {
	RecordsDir     string `yaml:"records_dir" validate:"required"`      // e.g. ~/.insights/records
	SessionDir     string `yaml:"session_sidecar_dir" validate:"required"`
	IncrementalDir string `yaml:"incremental_sidecar_dir" validate:"required"`
	SkillsDir      string `yaml:"skills_dir" validate:"required"` // prompt bundles live here
}

type ProviderConfig struct {
	// Name can be "anthropic" or "openai".
	Name       string `yaml:"name" validate:"required,oneof=anthropic openai"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec" validate:"gte=0,lte=600"`
}

type BackfillConfig struct {
	MaxWorkers  int     `yaml:"max_workers" validate:"gte=0,lte=32"`
	ProviderRPS float64 `yaml:"provider_rps" validate:"gte=0"`
}

type NotionConfig struct {
	APIKey string `yaml:"api_key"`
	// Databases maps logical names to Notion database ids. The sync
	// command looks up "analysis_reports".
	Databases map[string]string `yaml:"databases"`
}

// AnalysisReportsDB returns the database id the sync engine writes to,
// or "" when the deployment has no remote workspace configured.
func (n NotionConfig) AnalysisReportsDB() string {
	return n.Databases["analysis_reports"]
}

// DefaultConfig returns the config written on first run. All data lives
// under ~/.insights so a fresh install works without any editing except
// the Notion section.
func DefaultConfig() InsightsConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".insights")
	return InsightsConfig{
		Data: DataConfig{
			RecordsDir:     filepath.Join(base, "records"),
			SessionDir:     filepath.Join(base, "sidecars", "sessions"),
			IncrementalDir: filepath.Join(base, "sidecars", "incremental"),
			SkillsDir:      filepath.Join(base, "skills"),
		},
		Provider: ProviderConfig{
			Name:       "anthropic",
			TimeoutSec: 120,
		},
		Backfill: BackfillConfig{
			MaxWorkers:  4,
			ProviderRPS: 2,
		},
		Notion: NotionConfig{
			Databases: map[string]string{},
		},
	}
}
