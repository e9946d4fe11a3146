// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package reportsync publishes a validated period document into the remote
workspace database, idempotently.

# Description

The natural key of a remote record is (Dimension, Period). A sync pass:

 1. Validates the payload and runs the quality gate.
 2. Indexes the remote database by natural key; for keys with multiple
    live pages the keep policy picks one canonical page and every other
    page is archived before any write happens.
 3. Upserts each normalized report: existing canonical pages get their
    properties updated and their body rebuilt; missing keys get new pages.

Running the same payload twice leaves the remote record count unchanged;
the second pass only rewrites page bodies.
*/
package reportsync

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/insights/services/contract"
	"github.com/AleutianAI/insights/services/mechanism"
	"github.com/AleutianAI/insights/services/notion"
)

// Remote property names of the analysis reports database.
const (
	propTitle         = "Title"
	propDimension     = "Dimension"
	propLayer         = "Layer"
	propPeriod        = "Period"
	propDate          = "Date"
	propConversations = "Conversations Analyzed"
	propKeyInsights   = "Key Insights"
)

var cjkPattern = regexp.MustCompile(`[\x{4e00}-\x{9fff}]`)

// Candidate is one live remote page competing for a natural key.
type Candidate struct {
	PageID      string
	Title       string
	KeyInsights string
	// SortKey orders candidates by recency (last_edited_time, falling back
	// to created_time).
	SortKey string
	HasCJK  bool
}

// KeepPolicy picks the index of the page to keep from a non-empty
// candidate list; every other candidate is archived.
type KeepPolicy func(candidates []Candidate) int

// PreferCJKKeepPolicy keeps a CJK-content page when one exists, breaking
// ties by most recent edit. This matches a workspace whose canonical
// language is Chinese: localized pages win over stale English imports.
func PreferCJKKeepPolicy(candidates []Candidate) int {
	best := -1
	bestCJK := false
	for i, c := range candidates {
		switch {
		case best < 0:
			best, bestCJK = i, c.HasCJK
		case c.HasCJK && !bestCJK:
			best, bestCJK = i, true
		case c.HasCJK == bestCJK && c.SortKey > candidates[best].SortKey:
			best = i
		}
	}
	return best
}

// Summary reports what one sync pass did.
type Summary struct {
	Reports  int
	Written  int
	Archived int
}

// Engine syncs period documents into one remote database.
type Engine struct {
	client *notion.Client
	dbID   string
	keep   KeepPolicy
	logger *slog.Logger
}

// NewEngine wires a sync engine. A nil keep policy defaults to
// PreferCJKKeepPolicy.
func NewEngine(client *notion.Client, dbID string, keep KeepPolicy, logger *slog.Logger) *Engine {
	if keep == nil {
		keep = PreferCJKKeepPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, dbID: dbID, keep: keep, logger: logger}
}

// Sync publishes one validated period document. With dryRun the pass stops
// after the quality gate and reports what it would write.
func (e *Engine) Sync(ctx context.Context, doc mechanism.IncrementalMechanism, dryRun bool) (*Summary, error) {
	if result := contract.ValidateIncremental(doc, ""); !result.Valid() {
		return nil, result.Err()
	}
	if err := EvaluateQuality(doc); err != nil {
		return nil, err
	}

	reports := BuildReports(doc)
	summary := &Summary{Reports: len(reports)}

	if dryRun {
		for _, report := range reports {
			e.logger.Info("sync dry-run would upsert",
				"dimension", report.Dimension, "period", report.Period, "title", report.Title)
		}
		return summary, nil
	}

	index, duplicates, err := e.buildIndex(ctx)
	if err != nil {
		return nil, err
	}

	// Duplicates are archived before any upsert so a failed write never
	// leaves both an old and a new page live under one key.
	for _, pageID := range duplicates {
		if err := e.client.ArchivePage(ctx, pageID); err != nil {
			return summary, fmt.Errorf("archive duplicate page %s: %w", pageID, err)
		}
		summary.Archived++
	}
	if summary.Archived > 0 {
		e.logger.Info("archived duplicate report pages", "count", summary.Archived)
	}

	for _, report := range reports {
		if err := e.upsert(ctx, report, index); err != nil {
			return summary, fmt.Errorf("write report %q: %w", report.Title, err)
		}
		summary.Written++
	}

	e.logger.Info("report sync finished",
		"written", summary.Written, "reports", len(reports), "archived", summary.Archived)
	return summary, nil
}

// buildIndex maps every live natural key to its canonical page and returns
// the page ids displaced by the keep policy.
func (e *Engine) buildIndex(ctx context.Context) (map[[2]string]string, []string, error) {
	pages, err := e.client.QueryDatabase(ctx, e.dbID, nil)
	if err != nil {
		return nil, nil, err
	}

	grouped := make(map[[2]string][]Candidate)
	var keys [][2]string
	for _, page := range pages {
		key := [2]string{page.SelectName(propDimension), page.SelectName(propPeriod)}
		if key[0] == "" || key[1] == "" || page.ID == "" {
			continue
		}
		title := page.TitleText(propTitle)
		insights := page.RichTextValue(propKeyInsights)
		sortKey := page.LastEditedTime
		if sortKey == "" {
			sortKey = page.CreatedTime
		}
		if _, ok := grouped[key]; !ok {
			keys = append(keys, key)
		}
		grouped[key] = append(grouped[key], Candidate{
			PageID:      page.ID,
			Title:       title,
			KeyInsights: insights,
			SortKey:     sortKey,
			HasCJK:      cjkPattern.MatchString(title) || cjkPattern.MatchString(insights),
		})
	}

	// Deterministic processing order keeps archive logs stable.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	index := make(map[[2]string]string, len(grouped))
	var duplicates []string
	for _, key := range keys {
		candidates := grouped[key]
		keeper := e.keep(candidates)
		if keeper < 0 || keeper >= len(candidates) {
			keeper = 0
		}
		index[key] = candidates[keeper].PageID
		for i, c := range candidates {
			if i != keeper {
				duplicates = append(duplicates, c.PageID)
			}
		}
	}
	return index, duplicates, nil
}

// upsert writes one report: property update plus full body rebuild for an
// existing canonical page, otherwise page creation. Newly created pages
// enter the index so a duplicate key later in the same pass updates
// instead of creating again.
func (e *Engine) upsert(ctx context.Context, report SyncReport, index map[[2]string]string) error {
	props := map[string]any{
		propTitle:         notion.PropTitle(report.Title),
		propDimension:     notion.PropSelect(report.Dimension),
		propLayer:         notion.PropSelect(report.Layer),
		propPeriod:        notion.PropSelect(report.Period),
		propDate:          notion.PropDate(report.Date),
		propConversations: notion.PropNumber(float64(report.ConversationsAnalyzed)),
		propKeyInsights:   notion.PropRichText(report.KeyInsights),
	}
	children := buildReportBlocks(report)
	key := [2]string{report.Dimension, report.Period}

	if pageID, exists := index[key]; exists {
		if err := e.client.UpdatePage(ctx, pageID, props); err != nil {
			return err
		}
		if err := e.client.ClearPage(ctx, pageID); err != nil {
			return err
		}
		return e.client.AppendBlocks(ctx, pageID, children)
	}

	page, err := e.client.CreatePage(ctx, e.dbID, props, children)
	if err != nil {
		return err
	}
	if page.ID != "" {
		index[key] = page.ID
	}
	return nil
}

// buildReportBlocks renders the page body: headline summary, then the
// detail insights as a bulleted list.
func buildReportBlocks(report SyncReport) []notion.Block {
	var blocks []notion.Block
	if report.KeyInsights != "" {
		blocks = append(blocks, notion.Heading("摘要", 3), notion.Paragraph(report.KeyInsights))
	}
	blocks = append(blocks, notion.Divider(), notion.Heading("详细洞察", 3))

	if len(report.DetailLines) > 0 {
		for _, line := range report.DetailLines {
			if text := strings.TrimSpace(line); text != "" {
				blocks = append(blocks, notion.BulletedList(text))
			}
		}
		return blocks
	}
	if report.DetailText != "" {
		return append(blocks, notion.Paragraph(report.DetailText))
	}
	return append(blocks, notion.Paragraph("暂无可展开的详细洞察。"))
}
