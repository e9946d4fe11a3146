// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command insights extracts mechanism-level insight documents from local
// AI session records and publishes period reports to a Notion workspace.
//
// # Usage
//
//	insights backfill --window 30d        # diagnose sessions into sidecars
//	insights incremental --window 7d      # aggregate a period document
//	insights sync --period-id 2025-W35    # push a period to Notion
//	insights run --window 7d              # full chain in one invocation
//
// Configuration lives at ~/.insights/insights.yaml and is created with
// defaults on first run.
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/AleutianAI/insights/cmd/insights/config"
	"github.com/AleutianAI/insights/pkg/logging"
	"github.com/AleutianAI/insights/pkg/ux"
	"github.com/AleutianAI/insights/services/skill"
)

func main() {
	os.Exit(run())
}

// run exists so the log file is closed before the process exits.
func run() int {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Service: "insights",
		JSON:    true,
		LogDir:  "~/.insights/logs",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if err := rootCmd.Execute(); err != nil {
		ux.Error(err.Error())
		return exitCode(err)
	}
	return 0
}

// exitCode maps configuration problems to 2 and run failures to 1, so
// scripts can tell a broken setup from a failed run.
func exitCode(err error) int {
	var cfgErr *config.Error
	if skill.IsConfiguration(err) || errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
