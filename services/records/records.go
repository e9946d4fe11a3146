// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package records reads immutable session record files. Records are written
// by an external ingestion layer; this package never modifies them.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/insights/services/mechanism"
)

// ErrNotFound is returned by Get when no record exists for a session id.
var ErrNotFound = errors.New("session record not found")

// Filter narrows a Load call. Since and Until compare against the ISO date
// prefix (YYYY-MM-DD) of created_at, both bounds inclusive. Source matches
// exactly. Zero values mean no constraint.
type Filter struct {
	Since  string
	Until  string
	Source string
	Limit  int
}

// Dir is a read-only record store over a directory of one-JSON-per-session
// files named <session_id>.json.
type Dir struct {
	path   string
	logger *slog.Logger
}

// NewDir creates a record reader for the given directory. The directory may
// be absent; Load then returns an empty slice.
func NewDir(path string, logger *slog.Logger) *Dir {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{path: path, logger: logger}
}

// Load reads every record matching the filter, sorted by created_at
// descending. Unreadable or malformed files are logged and skipped so one
// corrupt record never blocks a run.
func (d *Dir) Load(filter Filter) ([]mechanism.SessionRecord, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read records directory: %w", err)
	}

	records := make([]mechanism.SessionRecord, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := d.readOne(filepath.Join(d.path, name))
		if err != nil {
			d.logger.Warn("skipping unreadable session record", "file", name, "error", err)
			continue
		}
		if !matches(rec, filter) {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt > records[j].CreatedAt
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// Get loads a single record by session id (the filename stem).
func (d *Dir) Get(sessionID string) (mechanism.SessionRecord, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) {
		return mechanism.SessionRecord{}, fmt.Errorf("invalid session id %q", sessionID)
	}
	rec, err := d.readOne(filepath.Join(d.path, sessionID+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return mechanism.SessionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return rec, err
}

func (d *Dir) readOne(path string) (mechanism.SessionRecord, error) {
	var rec mechanism.SessionRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode: %w", err)
	}
	return rec, nil
}

func matches(rec mechanism.SessionRecord, filter Filter) bool {
	if filter.Source != "" && rec.Source != filter.Source {
		return false
	}
	created := rec.CreatedAt
	if len(created) > 10 {
		created = created[:10]
	}
	if filter.Since != "" && created < filter.Since {
		return false
	}
	if filter.Until != "" && created > filter.Until {
		return false
	}
	return true
}
