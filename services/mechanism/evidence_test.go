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
	"github.com/stretchr/testify/require"
)

func TestDedupeEvidence_DropsMalformedAndDuplicates(t *testing.T) {
	entries := []Evidence{
		{SessionID: "s1", TurnID: 3, Snippet: "user retried the same prompt"},
		{SessionID: "s1", TurnID: 3, Snippet: "User retried  the same prompt"}, // same identity, case/space folded
		{SessionID: "", TurnID: 3, Snippet: "no session"},
		{SessionID: "s1", TurnID: 0, Snippet: "no turn"},
		{SessionID: "s1", TurnID: 4, Snippet: "   "},
		{SessionID: "s2", TurnID: 1, Snippet: "tool call failed twice"},
	}

	got := DedupeEvidence(entries)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, 3, got[0].TurnID)
	assert.Equal(t, "s2", got[1].SessionID)
}

func TestSelectDiverseEvidence_PrefersDistinctSessions(t *testing.T) {
	entries := []Evidence{
		{SessionID: "s1", TurnID: 1, Snippet: "a"},
		{SessionID: "s1", TurnID: 2, Snippet: "b"},
		{SessionID: "s2", TurnID: 1, Snippet: "c"},
		{SessionID: "s3", TurnID: 1, Snippet: "d"},
	}

	got := SelectDiverseEvidence(entries, 3, 2)
	require.Len(t, got, 3)

	// Primary slots go to distinct sessions first.
	assert.Equal(t, TierPrimary, got[0].Tier)
	assert.Equal(t, TierPrimary, got[1].Tier)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, "s2", got[1].SessionID)

	// Remaining slot is supporting and never repeats a picked entry.
	assert.Equal(t, TierSupporting, got[2].Tier)
}

func TestSelectDiverseEvidence_Bounds(t *testing.T) {
	entries := []Evidence{{SessionID: "s1", TurnID: 1, Snippet: "a"}}

	assert.Nil(t, SelectDiverseEvidence(entries, 0, 1))
	assert.Nil(t, SelectDiverseEvidence(nil, 3, 1))

	// primaryLimit below 1 is clamped up, not treated as zero.
	got := SelectDiverseEvidence(entries, 3, 0)
	require.Len(t, got, 1)
	assert.Equal(t, TierPrimary, got[0].Tier)
}
