// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package incremental aggregates validated session mechanisms into one
// period-level report set. A run makes exactly one gateway call per period;
// when no valid session mechanism falls inside the period, the run fails
// with ErrInsufficientCoverage instead of fabricating an empty report.
package incremental

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/insights/services/contract"
	"github.com/AleutianAI/insights/services/dimensions"
	"github.com/AleutianAI/insights/services/mechanism"
	"github.com/AleutianAI/insights/services/records"
	"github.com/AleutianAI/insights/services/sidecar"
	"github.com/AleutianAI/insights/services/skill"
)

// ErrInsufficientCoverage means zero valid session mechanisms fall inside
// the requested period.
var ErrInsufficientCoverage = errors.New("incremental: no valid session mechanisms in period")

// Options selects the period an aggregation run covers.
type Options struct {
	Since    string
	Until    string
	Window   string
	PeriodID string
	RunID    string
	DryRun   bool
}

// Aggregator runs period-level aggregation over the session sidecar store.
type Aggregator struct {
	records     *records.Dir
	sessions    *sidecar.Store
	incremental *sidecar.Store
	provider    skill.Provider
	prompts     *skill.PromptSet
	logger      *slog.Logger
	maxAttempts int
}

// NewAggregator wires an aggregator. sessions holds per-session sidecars;
// incremental receives the period documents.
func NewAggregator(rec *records.Dir, sessions, incremental *sidecar.Store, provider skill.Provider, prompts *skill.PromptSet, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		records:     rec,
		sessions:    sessions,
		incremental: incremental,
		provider:    provider,
		prompts:     prompts,
		logger:      logger,
		maxAttempts: 3,
	}
}

// Run executes one aggregation run and returns the validated period
// document. With DryRun the document is built and validated but not
// persisted.
func (a *Aggregator) Run(ctx context.Context, opts Options) (*mechanism.IncrementalMechanism, error) {
	since, until := opts.Since, opts.Until
	if since == "" && until == "" && opts.Window != "" {
		resolved, err := mechanism.ParseWindow(opts.Window, time.Now().UTC())
		if err != nil {
			return nil, &skill.ConfigurationError{Field: "window", Reason: err.Error()}
		}
		if resolved != "" {
			since = resolved
			until = time.Now().UTC().Format("2006-01-02")
		}
	}

	periodID := mechanism.BuildPeriodID(since, until, opts.Window, opts.PeriodID)
	runID := opts.RunID
	if runID == "" {
		runID = "incremental-" + periodID
	}

	valid, err := a.loadValidSessions()
	if err != nil {
		return nil, err
	}
	filtered := make([]mechanism.SessionMechanism, 0, len(valid))
	for _, doc := range valid {
		if mechanism.InPeriod(doc.CreatedAt, since, until) {
			filtered = append(filtered, doc)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w: period=%s", ErrInsufficientCoverage, periodID)
	}

	sourceRecords, err := a.records.Load(records.Filter{Since: since, Until: until})
	if err != nil {
		return nil, err
	}
	sessionsTotal := len(sourceRecords)
	if sessionsTotal < len(filtered) {
		sessionsTotal = len(filtered)
	}

	input := mechanism.BuildIncrementalInput(periodID, runID, mechanism.Period{
		Window: opts.Window,
		Since:  since,
		Until:  until,
	}, sessionsTotal, filtered)

	a.logger.Info("incremental aggregation input built",
		"period_id", periodID, "run_id", runID,
		"sessions_total", sessionsTotal, "sessions_with_mechanism", len(filtered))

	raw, err := a.generate(ctx, input)
	if err != nil {
		return nil, err
	}

	doc, err := a.coerce(raw)
	if err != nil {
		return nil, err
	}
	a.fillDefaults(&doc, periodID, runID, since, until, sessionsTotal, len(filtered))
	dimensions.SortReports(doc.Reports, func(r mechanism.Report) string { return r.Dimension })

	rendered, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render incremental mechanism: %w", err)
	}
	validated, result := contract.ValidateIncrementalJSON(rendered, periodID)
	if !result.Valid() {
		return nil, result.Err()
	}

	if opts.DryRun {
		a.logger.Info("incremental dry-run", "period_id", periodID, "reports", len(validated.Reports))
		return &validated, nil
	}

	changed, err := a.incremental.Put(periodID, validated)
	if err != nil {
		return nil, err
	}
	a.logger.Info("incremental mechanism persisted",
		"period_id", periodID, "reports", len(validated.Reports), "changed", changed)
	return &validated, nil
}

// loadValidSessions reads every session sidecar that passes the contract,
// silently dropping invalid or provenance-blocked ones.
func (a *Aggregator) loadValidSessions() ([]mechanism.SessionMechanism, error) {
	keys, err := a.sessions.ListKeys()
	if err != nil {
		return nil, err
	}
	valid := make([]mechanism.SessionMechanism, 0, len(keys))
	for _, key := range keys {
		raw, err := a.sessions.Raw(key)
		if err != nil {
			a.logger.Warn("skipping unreadable session sidecar", "key", key, "error", err)
			continue
		}
		doc, result := contract.ValidateSessionJSON(raw)
		if !result.Valid() {
			continue
		}
		valid = append(valid, doc)
	}
	return valid, nil
}

// generate makes the single gateway call with bounded transient retries.
func (a *Aggregator) generate(ctx context.Context, input mechanism.IncrementalInput) (json.RawMessage, error) {
	backoff := time.Second
	var raw json.RawMessage
	var err error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		raw, err = a.provider.GenerateIncremental(ctx, a.prompts.Incremental, input)
		if err == nil {
			return raw, nil
		}
		if !skill.IsTransient(err) || attempt == a.maxAttempts {
			return nil, err
		}
		a.logger.Warn("incremental generation failed, retrying",
			"attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, err
}

// coerce unwraps the provider output into the period document: either the
// object itself carries the schema version, or it nests the document under
// an "incremental" key.
func (a *Aggregator) coerce(raw json.RawMessage) (mechanism.IncrementalMechanism, error) {
	var doc mechanism.IncrementalMechanism

	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return doc, fmt.Errorf("decode incremental payload: %w", err)
	}
	target := raw
	var version string
	if v, ok := loose["schema_version"]; ok {
		_ = json.Unmarshal(v, &version)
	}
	if version != mechanism.IncrementalSchemaVersion {
		nested, ok := loose["incremental"]
		if !ok {
			return doc, errors.New("incremental payload is empty or malformed")
		}
		target = nested
	}
	if err := json.Unmarshal(target, &doc); err != nil {
		return doc, fmt.Errorf("decode incremental payload: %w", err)
	}
	return doc, nil
}

// fillDefaults sets metadata the model may omit. Model-provided values win;
// only empty fields are filled.
func (a *Aggregator) fillDefaults(doc *mechanism.IncrementalMechanism, periodID, runID, since, until string, sessionsTotal, withMechanism int) {
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = mechanism.IncrementalSchemaVersion
	}
	if strings.TrimSpace(doc.PeriodID) == "" {
		doc.PeriodID = periodID
	}
	if strings.TrimSpace(doc.Week) == "" {
		doc.Week = doc.PeriodID
	}
	if doc.SourceRunID == "" {
		doc.SourceRunID = runID
	}
	if doc.GeneratedAt == "" {
		doc.GeneratedAt = mechanism.NowISO()
	}
	if since != "" && doc.Period.Since == "" {
		doc.Period.Since = since
	}
	if until != "" && doc.Period.Until == "" {
		doc.Period.Until = until
	}
	if doc.Coverage.SessionsTotal == 0 {
		doc.Coverage.SessionsTotal = sessionsTotal
	}
	if doc.Coverage.SessionsWithMechanism == 0 {
		doc.Coverage.SessionsWithMechanism = withMechanism
	}
}
