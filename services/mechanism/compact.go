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
	"math"
	"strings"
)

// Aggressive truncation limits for the period-wide aggregation payload.
// One period can carry hundreds of sessions, so each compact entry has to
// stay within a few tokens.
const (
	compactHypothesisChars = 28
	compactActionChars     = 14
)

// Compact projects a validated session mechanism into the few-token entry
// used inside an IncrementalInput: at most one label, the first concrete
// hypothesis with a single evidence reference, and the first action.
func (m SessionMechanism) Compact() CompactSession {
	compact := CompactSession{
		SessionID: strings.TrimSpace(m.SessionID),
		CreatedAt: strings.TrimSpace(m.CreatedAt),
	}

	for _, label := range m.Labels {
		if text := strings.TrimSpace(label); text != "" {
			compact.Labels = []string{text}
			break
		}
	}

	for _, why := range m.Why {
		hypothesis := strings.TrimSpace(why.Hypothesis)
		if hypothesis == "" {
			continue
		}
		cm := &CompactMechanism{
			Hypothesis: Snippet(hypothesis, compactHypothesisChars),
		}
		if why.Confidence != nil {
			rounded := math.Round(*why.Confidence*1000) / 1000
			cm.Confidence = &rounded
		}
		concrete := make([]Evidence, 0, len(why.Evidence))
		for _, ev := range why.Evidence {
			if hasConcreteEvidence(ev) {
				concrete = append(concrete, ev)
			}
		}
		for _, ev := range SelectDiverseEvidence(concrete, 1, 1) {
			cm.EvidenceRefs = append(cm.EvidenceRefs, fmt.Sprintf("%s#T%d", ev.SessionID, ev.TurnID))
		}
		compact.Mechanism = cm
		break
	}

	for _, action := range m.HowToImprove {
		if do := strings.TrimSpace(action.Action); do != "" {
			compact.ActionRef = Snippet(do, compactActionChars)
			break
		}
	}
	return compact
}

// BuildIncrementalInput assembles the single aggregation payload for a
// period. sessionsTotal is the number of sessions observed in the period
// regardless of whether diagnosis succeeded for them; mechanisms carries
// only the validated ones.
func BuildIncrementalInput(periodID, runID string, period Period, sessionsTotal int, mechanisms []SessionMechanism) IncrementalInput {
	sessions := make([]CompactSession, 0, len(mechanisms))
	for _, m := range mechanisms {
		sessions = append(sessions, m.Compact())
	}
	return IncrementalInput{
		SchemaVersion: InputSchemaVersion,
		PeriodID:      periodID,
		GeneratedAt:   NowISO(),
		SourceRunID:   runID,
		Period:        period,
		Coverage: Coverage{
			SessionsTotal:         sessionsTotal,
			SessionsWithMechanism: len(mechanisms),
		},
		Sessions: sessions,
	}
}
