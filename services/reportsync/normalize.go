// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reportsync

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AleutianAI/insights/services/dimensions"
	"github.com/AleutianAI/insights/services/mechanism"
)

// SyncReport is one normalized report ready for the remote write contract:
// every field defaulted, detail lines deduped and capped.
type SyncReport struct {
	Dimension             string
	Layer                 string
	Title                 string
	Period                string
	Date                  string
	ConversationsAnalyzed int
	KeyInsights           string
	DetailText            string
	DetailLines           []string
}

// BuildReports normalizes the reports of a period document into write-ready
// form, in registry display order. Reports missing any of the four required
// text fields, or with no usable detail content, are dropped.
func BuildReports(doc mechanism.IncrementalMechanism) []SyncReport {
	defaultPeriod := strings.TrimSpace(doc.PeriodID)
	if defaultPeriod == "" {
		defaultPeriod = strings.TrimSpace(doc.Week)
	}
	if defaultPeriod == "" {
		defaultPeriod = "unknown-period"
	}
	defaultDate := time.Now().Format("2006-01-02")
	defaultConversations := doc.Coverage.SessionsWithMechanism

	reports := make([]SyncReport, 0, len(doc.Reports))
	for _, item := range doc.Reports {
		if normalized, ok := normalizeReport(item, defaultPeriod, defaultDate, defaultConversations); ok {
			reports = append(reports, normalized)
		}
	}
	dimensions.SortReports(reports, func(r SyncReport) string { return r.Dimension })
	return reports
}

func normalizeReport(item mechanism.Report, defaultPeriod, defaultDate string, defaultConversations int) (SyncReport, bool) {
	report := SyncReport{
		Dimension:   strings.TrimSpace(item.Dimension),
		Layer:       strings.TrimSpace(item.Layer),
		Title:       strings.TrimSpace(item.Title),
		KeyInsights: strings.TrimSpace(item.KeyInsights),
	}
	if report.Dimension == "" || report.Layer == "" || report.Title == "" || report.KeyInsights == "" {
		return SyncReport{}, false
	}

	report.Period = strings.TrimSpace(item.Period)
	if report.Period == "" {
		report.Period = defaultPeriod
	}
	report.Date = strings.TrimSpace(item.Date)
	if report.Date == "" {
		report.Date = defaultDate
	}
	report.ConversationsAnalyzed = defaultConversations
	if item.ConversationsAnalyzed != nil && *item.ConversationsAnalyzed >= 0 {
		report.ConversationsAnalyzed = *item.ConversationsAnalyzed
	}

	// Detail cap grows with coverage: a week of three sessions gets a tight
	// report, a month of two hundred may carry more lines, never above the
	// contract cap.
	maxDetail := int(math.Sqrt(float64(defaultConversations)) * 2)
	if maxDetail < 12 {
		maxDetail = 12
	}
	if maxDetail > 80 {
		maxDetail = 80
	}

	lines := normalizeLines(item.DetailLines, maxDetail*3)
	if len(lines) == 0 {
		lines = normalizeLines(strings.Split(item.DetailText, "\n"), maxDetail*3)
	}
	lines = dedupeLines(lines, maxDetail)
	if len(lines) == 0 {
		return SyncReport{}, false
	}
	report.DetailLines = lines

	report.DetailText = strings.TrimSpace(item.DetailText)
	if report.DetailText == "" {
		report.DetailText = strings.Join(lines, "\n")
	}
	return report, true
}

func normalizeLines(values []string, maxItems int) []string {
	lines := make([]string, 0, len(values))
	for _, value := range values {
		if text := strings.TrimSpace(value); text != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) > maxItems {
		lines = lines[:maxItems]
	}
	return lines
}

// dedupeLines drops case-insensitive duplicates preserving first-seen
// order.
func dedupeLines(lines []string, maxItems int) []string {
	seen := make(map[string]struct{}, len(lines))
	deduped := make([]string, 0, len(lines))
	for _, line := range lines {
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, line)
		if len(deduped) >= maxItems {
			break
		}
	}
	return deduped
}

// QualityError carries every reason the quality gate rejected a payload.
type QualityError struct {
	Reasons []string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("quality gate failed: %s", strings.Join(e.Reasons, "; "))
}

// EvaluateQuality rejects payloads that would publish placeholder or
// statistics-only content. It runs over the normalized reports so the gate
// sees exactly what would be written.
func EvaluateQuality(doc mechanism.IncrementalMechanism) error {
	var reasons []string
	reports := BuildReports(doc)
	if len(reports) == 0 {
		return &QualityError{Reasons: []string{"no valid reports found"}}
	}

	for idx, report := range reports {
		if mechanism.ContainsPlaceholder(report.Title) {
			reasons = append(reasons, fmt.Sprintf("reports[%d] title looks placeholder", idx))
		}
		if mechanism.ContainsPlaceholder(report.KeyInsights) {
			reasons = append(reasons, fmt.Sprintf("reports[%d] key_insights looks placeholder", idx))
		}

		concrete := make([]string, 0, len(report.DetailLines))
		for _, line := range report.DetailLines {
			if !mechanism.ContainsPlaceholder(line) {
				concrete = append(concrete, line)
			}
		}
		if len(concrete) == 0 {
			reasons = append(reasons, fmt.Sprintf("reports[%d] detail lines are empty or placeholder-only", idx))
			continue
		}

		probeLines := concrete
		if len(probeLines) > 8 {
			probeLines = probeLines[:8]
		}
		probe := report.KeyInsights + " " + strings.Join(probeLines, " ")
		if !mechanism.LooksMechanistic(probe) {
			reasons = append(reasons, fmt.Sprintf(
				"reports[%d] lacks mechanism/action language; avoid statistics-only summary", idx))
		}
	}

	if len(reasons) > 0 {
		return &QualityError{Reasons: reasons}
	}
	return nil
}
