// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mechanism

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp_Layouts(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"rfc3339 with zone", "2025-08-14T10:00:00Z", "2025-08-14T10:00:00Z"},
		{"rfc3339 nano", "2025-08-14T10:00:00.123456Z", "2025-08-14T10:00:00Z"},
		{"naive datetime treated as utc", "2025-08-14T10:00:00", "2025-08-14T10:00:00Z"},
		{"bare date", "2025-08-14", "2025-08-14T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ts.Truncate(time.Second).Format(time.RFC3339))
		})
	}
}

func TestParseTimestamp_EmptyIsZero(t *testing.T) {
	ts, err := ParseTimestamp("  ")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}

func TestParseTimestamp_Garbage(t *testing.T) {
	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestWeekOf_ISOWeek(t *testing.T) {
	// 2025-08-14 is a Thursday in ISO week 33.
	assert.Equal(t, "2025-W33", WeekOf("2025-08-14T10:00:00Z"))
	// Early January belongs to the last ISO week of the previous year.
	assert.Equal(t, "2020-W53", WeekOf("2021-01-01"))
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)

	since, err := ParseWindow("30d", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-01", since)

	for _, unbounded := range []string{"", "all", "all-time", "ALL"} {
		since, err := ParseWindow(unbounded, now)
		require.NoError(t, err)
		assert.Empty(t, since)
	}

	for _, bad := range []string{"30", "d30", "0d", "-5d", "monthly"} {
		_, err := ParseWindow(bad, now)
		assert.Error(t, err, "window %q should be rejected", bad)
	}
}

func TestBuildPeriodID_Precedence(t *testing.T) {
	tests := []struct {
		name                           string
		since, until, window, explicit string
		want                           string
	}{
		{"explicit wins over everything", "2025-08-01", "2025-08-15", "7d", "2025-W33", "2025-W33"},
		{"date range", "2025-08-01", "2025-08-15", "", "", "2025-08-01_to_2025-08-15"},
		{"open since", "", "2025-08-15", "", "", "open_to_2025-08-15"},
		{"open until", "2025-08-01", "", "", "", "2025-08-01_to_today"},
		{"rolling window", "", "", "7d", "", "rolling_7d"},
		{"default", "", "", "", "", "rolling_30d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildPeriodID(tt.since, tt.until, tt.window, tt.explicit))
		})
	}
}

func TestInPeriod_UntilIsInclusive(t *testing.T) {
	// A timestamp late on the until day still counts.
	assert.True(t, InPeriod("2025-08-15T23:30:00Z", "2025-08-01", "2025-08-15"))
	assert.True(t, InPeriod("2025-08-01T00:00:00Z", "2025-08-01", "2025-08-15"))
	assert.False(t, InPeriod("2025-08-16T12:00:00Z", "2025-08-01", "2025-08-15"))
	assert.False(t, InPeriod("2025-07-31T23:59:59Z", "2025-08-01", "2025-08-15"))
}

func TestInPeriod_OpenBoundsAndBadTimestamps(t *testing.T) {
	assert.True(t, InPeriod("2025-08-14T10:00:00Z", "", ""))
	assert.False(t, InPeriod("", "2025-08-01", "2025-08-15"), "empty created_at never matches")
	assert.False(t, InPeriod("not-a-date", "", ""))
}
