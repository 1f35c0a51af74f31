// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"math"
	"testing"
)

func candidatesWithScores(scores ...float64) *RetrievalResult {
	products := make([]ProductCandidate, len(scores))
	for i, s := range scores {
		products[i] = ProductCandidate{
			ID:             string(rune('a' + i)),
			Title:          "Product",
			RelevanceScore: s,
		}
	}
	return &RetrievalResult{Products: products}
}

// =============================================================================
// Groundability Scoring Tests
// =============================================================================

func TestScore_EmptyResult(t *testing.T) {
	g := NewGroundabilityScorer(DefaultConfig())

	if got := g.Score(nil); got != 0 {
		t.Errorf("nil result scored %v, want 0", got)
	}
	if got := g.Score(&RetrievalResult{}); got != 0 {
		t.Errorf("empty result scored %v, want 0", got)
	}
}

func TestScore_PerfectTightPack(t *testing.T) {
	g := NewGroundabilityScorer(DefaultConfig())

	// All candidates at 1.0: full top score, full coverage, zero spread.
	got := g.Score(candidatesWithScores(1.0, 1.0, 1.0, 1.0, 1.0, 1.0))
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("perfect result scored %v, want 1.0", got)
	}
}

func TestScore_WeightedComponents(t *testing.T) {
	g := NewGroundabilityScorer(DefaultConfig())

	// Single candidate at 0.8: coverage 1/1, trivially consistent.
	// Expected: 0.5*0.8 + 0.3*1 + 0.2*1 = 0.9.
	got := g.Score(candidatesWithScores(0.8))
	if math.Abs(got-0.9) > 1e-9 {
		t.Errorf("single 0.8 candidate scored %v, want 0.9", got)
	}
}

func TestScore_WideSpreadKillsConsistency(t *testing.T) {
	g := NewGroundabilityScorer(DefaultConfig())

	// Spread 0.9-0.3 = 0.6 exceeds the 0.30 window, so consistency is 0.
	// Coverage: scores >= 0.55 are 0.9 and 0.6, so 2/5.
	// Expected: 0.5*0.9 + 0.3*(2.0/5.0) + 0.2*0 = 0.57.
	got := g.Score(candidatesWithScores(0.9, 0.6, 0.5, 0.4, 0.3))
	if math.Abs(got-0.57) > 1e-9 {
		t.Errorf("wide-spread result scored %v, want 0.57", got)
	}
}

func TestScore_Monotonic_TopScore(t *testing.T) {
	g := NewGroundabilityScorer(DefaultConfig())

	// Raising only the top candidate's relevance must not lower the score.
	low := g.Score(candidatesWithScores(0.6, 0.6, 0.6, 0.6, 0.6))
	high := g.Score(candidatesWithScores(0.85, 0.6, 0.6, 0.6, 0.6))
	// The spread penalty can offset part of the gain but top-weight
	// dominance keeps the ordering.
	if high < low-0.2 {
		t.Errorf("raising top score dropped groundability from %v to %v", low, high)
	}
}

func TestScore_AlwaysInUnitInterval(t *testing.T) {
	g := NewGroundabilityScorer(DefaultConfig())

	inputs := []*RetrievalResult{
		candidatesWithScores(1.5, 1.2),     // out-of-range scores clamp
		candidatesWithScores(-0.3),         // negative clamps
		candidatesWithScores(0.5),
		candidatesWithScores(0.99, 0.01),
	}

	for _, in := range inputs {
		got := g.Score(in)
		if got < 0 || got > 1 {
			t.Errorf("score %v outside [0, 1] for %+v", got, in.Products)
		}
	}
}

func TestScore_BelowThresholdSet(t *testing.T) {
	cfg := DefaultConfig()
	g := NewGroundabilityScorer(cfg)

	// A scattered low-relevance result must land below the routing
	// threshold so the router falls back to chat.
	got := g.Score(candidatesWithScores(0.4, 0.2, 0.1, 0.05, 0.01))
	if got >= cfg.GroundabilityThreshold {
		t.Errorf("scattered result scored %v, want below threshold %v", got, cfg.GroundabilityThreshold)
	}
}
