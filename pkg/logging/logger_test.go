// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewWritesDatedLogFile verifies file logging lands in a per-day file
// carrying the service attribute on every entry.
func TestNewWritesDatedLogFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Service: "insights", LogDir: dir, Quiet: true})
	logger.Slog().Info("backfill started", "run_id", "backfill-t1")
	require.NoError(t, logger.Close())

	name := "insights_" + time.Now().Format("2006-01-02") + ".log"
	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	line := strings.TrimSpace(string(raw))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "backfill started", entry["msg"])
	assert.Equal(t, "insights", entry["service"])
	assert.Equal(t, "backfill-t1", entry["run_id"])
}

// TestNewRespectsLevel verifies entries below the configured level are
// dropped.
func TestNewRespectsLevel(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Service: "insights", LogDir: dir, Quiet: true, Level: slog.LevelWarn})
	logger.Slog().Info("dropped")
	logger.Slog().Warn("kept")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "dropped")
	assert.Contains(t, string(raw), "kept")
}

// TestNewSurvivesUnwritableDir verifies a bad log directory degrades to a
// file-less logger instead of failing.
func TestNewSurvivesUnwritableDir(t *testing.T) {
	logger := New(Config{Service: "insights", LogDir: string([]byte{0}), Quiet: true})
	logger.Slog().Info("still works")
	assert.NoError(t, logger.Close())
}

// TestExpandPath covers home expansion for the log directory setting.
func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".insights", "logs"), expandPath("~/.insights/logs"))
	assert.Equal(t, "/var/log/insights", expandPath("/var/log/insights"))
}
