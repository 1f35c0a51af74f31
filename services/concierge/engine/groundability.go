// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

// Groundability weights. Top-candidate relevance dominates; coverage and
// consistency refine it.
const (
	topScoreWeight    = 0.5
	coverageWeight    = 0.3
	consistencyWeight = 0.2

	// coverageDepth is how many leading candidates participate in the
	// coverage fraction.
	coverageDepth = 6

	// consistencyDepth is how many leading candidates participate in the
	// spread measurement.
	consistencyDepth = 5
)

// GroundabilityScorer computes the single confidence signal that gates
// whether the engine trusts a retrieval result enough to recommend or
// clarify, versus falling back to a conversational answer.
//
// # Description
//
// The score in [0, 1] is a weighted combination of:
//
//   - the top candidate's relevance score;
//   - coverage: the fraction of the top six candidates whose relevance
//     clears the configured floor;
//   - consistency: a bonus that grows as the score spread across the top
//     five shrinks (a tight pack of scores means the result set agrees
//     about what the user wants).
//
// An empty result scores zero.
//
// # Thread Safety
//
// Pure function over its input; safe for concurrent use.
type GroundabilityScorer struct {
	cfg Config
}

// NewGroundabilityScorer creates a scorer with the given thresholds.
func NewGroundabilityScorer(cfg Config) *GroundabilityScorer {
	return &GroundabilityScorer{cfg: cfg}
}

// Score returns the groundability of the retrieval result.
//
// # Inputs
//
//   - result: The ranked retrieval result. May be nil or empty.
//
// # Outputs
//
//   - float64: Confidence in [0, 1]. Zero when there are no candidates.
func (g *GroundabilityScorer) Score(result *RetrievalResult) float64 {
	if result.Empty() {
		return 0
	}

	products := result.Products
	top := clamp01(products[0].RelevanceScore)

	score := topScoreWeight*top +
		coverageWeight*g.coverage(products) +
		consistencyWeight*g.consistency(products)

	return clamp01(score)
}

// coverage is the fraction of the leading candidates whose relevance clears
// the floor.
func (g *GroundabilityScorer) coverage(products []ProductCandidate) float64 {
	depth := coverageDepth
	if len(products) < depth {
		depth = len(products)
	}

	cleared := 0
	for _, p := range products[:depth] {
		if p.RelevanceScore >= g.cfg.RelevanceFloor {
			cleared++
		}
	}

	return float64(cleared) / float64(depth)
}

// consistency maps the top-5 score spread onto [0, 1]: zero spread earns the
// full bonus, a spread at or beyond the window earns none. A single
// candidate is trivially consistent.
func (g *GroundabilityScorer) consistency(products []ProductCandidate) float64 {
	depth := consistencyDepth
	if len(products) < depth {
		depth = len(products)
	}
	if depth < 2 {
		return 1
	}

	lo, hi := products[0].RelevanceScore, products[0].RelevanceScore
	for _, p := range products[:depth] {
		if p.RelevanceScore < lo {
			lo = p.RelevanceScore
		}
		if p.RelevanceScore > hi {
			hi = p.RelevanceScore
		}
	}

	spread := hi - lo
	if spread >= g.cfg.SpreadWindow {
		return 0
	}
	return 1 - spread/g.cfg.SpreadWindow
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
