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
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var windowPattern = regexp.MustCompile(`^(\d+)d$`)

// ParseTimestamp parses an ISO-8601 timestamp, tolerating a trailing Z and
// missing zone info (treated as UTC). An empty value parses to the zero time.
func ParseTimestamp(value string) (time.Time, error) {
	text := strings.TrimSpace(value)
	if text == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

// WeekOf converts a timestamp to its ISO week label (YYYY-Www). An
// unparseable or empty timestamp maps to the current week, matching how
// sidecars with degenerate created_at values are bucketed.
func WeekOf(timestamp string) string {
	ts, err := ParseTimestamp(timestamp)
	if err != nil || ts.IsZero() {
		ts = time.Now().UTC()
	}
	year, week := ts.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// ParseWindow converts a rolling window expression ("30d", "all-time") into
// a since-date string (YYYY-MM-DD). Empty, "all" and "all-time" mean
// unbounded and return an empty since.
func ParseWindow(window string, now time.Time) (string, error) {
	value := strings.ToLower(strings.TrimSpace(window))
	switch value {
	case "", "all", "all-time":
		return "", nil
	}
	m := windowPattern.FindStringSubmatch(value)
	if m == nil {
		return "", fmt.Errorf("window must be like '30d' or 'all-time', got %q", window)
	}
	days, err := strconv.Atoi(m[1])
	if err != nil || days <= 0 {
		return "", fmt.Errorf("window days must be positive, got %q", window)
	}
	return now.UTC().AddDate(0, 0, -days).Format("2006-01-02"), nil
}

// BuildPeriodID derives the deterministic period identifier for an
// incremental run. An explicit ID always wins; otherwise dates, then the
// rolling window, then the default 30-day rolling label.
func BuildPeriodID(since, until, window, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	if since != "" || until != "" {
		s := since
		if s == "" {
			s = "open"
		}
		u := until
		if u == "" {
			u = "today"
		}
		return s + "_to_" + u
	}
	if window != "" {
		return "rolling_" + window
	}
	return "rolling_30d"
}

// InPeriod reports whether a created_at timestamp falls inside the
// [since, until] date range. The until bound is inclusive of the whole end
// day. Empty bounds are open.
func InPeriod(createdAt, since, until string) bool {
	ts, err := ParseTimestamp(createdAt)
	if err != nil || ts.IsZero() {
		return false
	}
	if since != "" {
		sinceTs, err := time.Parse("2006-01-02", since)
		if err != nil || ts.Before(sinceTs) {
			return false
		}
	}
	if until != "" {
		untilTs, err := time.Parse("2006-01-02", until)
		if err != nil || ts.After(untilTs.AddDate(0, 0, 1)) {
			return false
		}
	}
	return true
}

// NowISO returns the current UTC time in RFC 3339 format. Provided as a
// variable so tests can pin the clock.
var NowISO = func() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
