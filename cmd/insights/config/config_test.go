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
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestDefaultConfigIsValid guards the first-run file: the defaults we write
// must pass our own validation rules.
func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, validator.New().Struct(cfg))
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 120, cfg.Provider.TimeoutSec)
	assert.Equal(t, 4, cfg.Backfill.MaxWorkers)
	assert.NotEmpty(t, cfg.Data.RecordsDir)
}

// TestValidationRejectsBadValues covers the rules a hand-edited file can
// break.
func TestValidationRejectsBadValues(t *testing.T) {
	validate := validator.New()

	cfg := DefaultConfig()
	cfg.Provider.Name = "gemini"
	assert.Error(t, validate.Struct(cfg), "unsupported provider name")

	cfg = DefaultConfig()
	cfg.Provider.TimeoutSec = 601
	assert.Error(t, validate.Struct(cfg), "timeout above cap")

	cfg = DefaultConfig()
	cfg.Backfill.MaxWorkers = 64
	assert.Error(t, validate.Struct(cfg), "worker count above cap")

	cfg = DefaultConfig()
	cfg.Data.SkillsDir = ""
	assert.Error(t, validate.Struct(cfg), "missing data directory")
}

// TestYAMLRoundTrip verifies the yaml tags match what the loader reads.
func TestYAMLRoundTrip(t *testing.T) {
	raw := []byte(`
data:
  records_dir: /var/lib/insights/records
  session_sidecar_dir: /var/lib/insights/sidecars/sessions
  incremental_sidecar_dir: /var/lib/insights/sidecars/incremental
  skills_dir: /var/lib/insights/skills
provider:
  name: openai
  model: gpt-4o
  timeout_sec: 60
backfill:
  max_workers: 8
  provider_rps: 1.5
notion:
  api_key: secret
  databases:
    analysis_reports: db-123
`)
	var cfg InsightsConfig
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	require.NoError(t, validator.New().Struct(cfg))

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 8, cfg.Backfill.MaxWorkers)
	assert.Equal(t, 1.5, cfg.Backfill.ProviderRPS)
	assert.Equal(t, "db-123", cfg.Notion.AnalysisReportsDB())
}

// TestAnalysisReportsDBMissing verifies an unset database id reads as "".
func TestAnalysisReportsDBMissing(t *testing.T) {
	assert.Empty(t, NotionConfig{}.AnalysisReportsDB())
	assert.Empty(t, NotionConfig{Databases: map[string]string{"other": "x"}}.AnalysisReportsDB())
}

// TestErrorUnwraps verifies the config error wrapper preserves the cause
// for errors.Is/As chains.
func TestErrorUnwraps(t *testing.T) {
	cause := errors.New("bad yaml")
	err := &Error{Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "bad yaml")
}
