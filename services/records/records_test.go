// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package records

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/insights/services/mechanism"
)

func writeRecord(t *testing.T, dir string, rec mechanism.SessionRecord) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, rec.SessionID+".json"), data, 0o644))
}

func seedRecords(t *testing.T) (*Dir, string) {
	t.Helper()
	dir := t.TempDir()
	writeRecord(t, dir, mechanism.SessionRecord{SessionID: "s1", Source: "claude-code", CreatedAt: "2025-08-10T09:00:00Z"})
	writeRecord(t, dir, mechanism.SessionRecord{SessionID: "s2", Source: "chatgpt", CreatedAt: "2025-08-12T09:00:00Z"})
	writeRecord(t, dir, mechanism.SessionRecord{SessionID: "s3", Source: "claude-code", CreatedAt: "2025-08-15T09:00:00Z"})
	return NewDir(dir, nil), dir
}

func TestLoad_SortedNewestFirst(t *testing.T) {
	store, _ := seedRecords(t)
	recs, err := store.Load(Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "s3", recs[0].SessionID)
	assert.Equal(t, "s1", recs[2].SessionID)
}

func TestLoad_DateAndSourceFilter(t *testing.T) {
	store, _ := seedRecords(t)

	recs, err := store.Load(Filter{Since: "2025-08-12", Until: "2025-08-15"})
	require.NoError(t, err)
	require.Len(t, recs, 2, "both bounds are inclusive on the date prefix")

	recs, err = store.Load(Filter{Source: "claude-code"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "claude-code", rec.Source)
	}
}

func TestLoad_LimitAppliesAfterSort(t *testing.T) {
	store, _ := seedRecords(t)
	recs, err := store.Load(Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "s3", recs[0].SessionID, "limit keeps the newest records")
}

func TestLoad_SkipsMalformedFiles(t *testing.T) {
	store, dir := seedRecords(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	recs, err := store.Load(Filter{})
	require.NoError(t, err, "one corrupt record never fails the load")
	assert.Len(t, recs, 3)
}

func TestLoad_MissingDirectoryIsEmpty(t *testing.T) {
	store := NewDir(filepath.Join(t.TempDir(), "absent"), nil)
	recs, err := store.Load(Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGet(t *testing.T) {
	store, _ := seedRecords(t)

	rec, err := store.Get("s2")
	require.NoError(t, err)
	assert.Equal(t, "chatgpt", rec.Source)

	_, err = store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get("../escape")
	assert.Error(t, err)
}
