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

	"github.com/stretchr/testify/assert"
)

func TestContainsPlaceholder(t *testing.T) {
	assert.True(t, ContainsPlaceholder(""))
	assert.True(t, ContainsPlaceholder("   "))
	assert.True(t, ContainsPlaceholder("PLACEHOLDER summary"))
	assert.True(t, ContainsPlaceholder("insufficient-evidence for this period"))
	assert.True(t, ContainsPlaceholder("TBD"))
	assert.False(t, ContainsPlaceholder("用户在长会话中反复纠正模型输出"))
}

func TestLooksMechanistic(t *testing.T) {
	assert.True(t, LooksMechanistic("根因：上下文窗口溢出导致指令丢失"))
	assert.True(t, LooksMechanistic("the root cause is stale tool output"))
	assert.False(t, LooksMechanistic("completed 12 sessions this week"))
	assert.False(t, LooksMechanistic(""))
}

func TestHasSignal(t *testing.T) {
	conf := 0.7
	withSignal := SessionMechanism{
		Summary: "长任务中段质量下降",
		Why: []Why{{
			Hypothesis: "上下文窗口溢出导致早期指令丢失",
			Confidence: &conf,
			Evidence:   []Evidence{{SessionID: "s1", TurnID: 8, Snippet: "模型忽略了第 2 轮的约束"}},
		}},
	}
	assert.True(t, withSignal.HasSignal())

	placeholderSummary := withSignal
	placeholderSummary.Summary = "placeholder"
	assert.False(t, placeholderSummary.HasSignal())

	noEvidence := SessionMechanism{
		Summary: "长任务中段质量下降",
		Why:     []Why{{Hypothesis: "上下文窗口溢出", Evidence: []Evidence{{SessionID: "unknown", TurnID: 0}}}},
	}
	assert.False(t, noEvidence.HasSignal())

	assert.False(t, SessionMechanism{Summary: "ok"}.HasSignal(), "summary alone is not signal")
}
