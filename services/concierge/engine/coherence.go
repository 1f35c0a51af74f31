// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
)

// CoherenceViolation reports an assembled turn that contradicts its own
// declared mode. It is an internal invariant breach: the engine recovers by
// re-rendering under the corrected mode rather than raising to the caller,
// but a violation always indicates a logic bug upstream and is logged as a
// warning.
type CoherenceViolation struct {
	// Declared is the mode the turn claimed.
	Declared ModeKind

	// Corrected is the safe mode the turn should be re-rendered under.
	Corrected ModeKind

	// Reason describes the violated invariant.
	Reason string
}

func (v *CoherenceViolation) Error() string {
	return fmt.Sprintf("coherence violation in %s turn: %s (corrected to %s)", v.Declared, v.Reason, v.Corrected)
}

// CoherenceGate is the last line of defense against upstream bugs or
// template drift producing an incoherent turn.
//
// # Description
//
// Validates the assembled turn's segment set against the declared mode's
// invariants:
//
//   - chat: no products, no ask, no comparison;
//   - clarify: one ask, 2-6 options, at most the preview cap of products;
//   - recommend: 1-3 products, no ask;
//   - compare: a comparison block spanning at least 2 products;
//   - dead_end: no products, at least one alternative quick reply.
//
// The global product cap holds in every mode.
//
// # Thread Safety
//
// Pure function over the turn; safe for concurrent use.
type CoherenceGate struct {
	cfg Config
}

// NewCoherenceGate creates a gate with the given caps.
func NewCoherenceGate(cfg Config) *CoherenceGate {
	return &CoherenceGate{cfg: cfg}
}

// Validate checks the turn against its declared mode.
//
// # Outputs
//
//   - error: Nil when coherent; otherwise a *CoherenceViolation naming the
//     corrected mode the caller must re-render under.
func (g *CoherenceGate) Validate(turn *Turn) error {
	mode := turn.Meta.Mode
	products := turn.ProductCount()

	if products > g.cfg.MaxProductsPerTurn {
		return violation(mode, fmt.Sprintf("%d products exceeds the per-turn cap of %d", products, g.cfg.MaxProductsPerTurn))
	}

	switch mode {
	case ModeChat:
		if products > 0 {
			return violation(mode, "chat turns must not carry products")
		}
		if turn.HasSegment(SegmentAsk) || turn.HasSegment(SegmentComparison) {
			return violation(mode, "chat turns must not carry a clarifier or comparison")
		}

	case ModeClarify:
		if !turn.HasSegment(SegmentAsk) {
			return violation(mode, "clarify turns must carry an ask segment")
		}
		opts := turn.firstSegment(SegmentQuickReply)
		if opts == nil || len(opts.Options) < 2 || len(opts.Options) > 6 {
			return violation(mode, "clarify turns must offer 2-6 options")
		}
		if products > g.cfg.MaxProductsWithClarifier {
			return violation(mode, fmt.Sprintf("clarify turns may preview at most %d products", g.cfg.MaxProductsWithClarifier))
		}

	case ModeRecommend:
		if products < 1 || products > g.cfg.MaxProductsPerTurn {
			return violation(mode, fmt.Sprintf("recommend turns must carry 1-%d products", g.cfg.MaxProductsPerTurn))
		}
		if turn.HasSegment(SegmentAsk) {
			return violation(mode, "recommend turns must not carry a clarifier")
		}

	case ModeCompare:
		block := turn.firstSegment(SegmentComparison)
		if block == nil || block.Comparison == nil {
			return violation(mode, "compare turns must carry a comparison segment")
		}
		if len(block.Comparison.ProductIDs) < 2 {
			return violation(mode, "a comparison needs at least 2 products")
		}

	case ModeDeadEnd:
		if products > 0 {
			return violation(mode, "dead-end turns must not carry products")
		}
		opts := turn.firstSegment(SegmentQuickReply)
		if opts == nil || len(opts.Options) == 0 {
			return violation(mode, "dead-end turns must offer at least one alternative")
		}

	default:
		return violation(mode, "unknown mode")
	}

	return nil
}

// violation builds the correction: the safe fallback is always chat, which
// has the weakest segment requirements.
func violation(declared ModeKind, reason string) *CoherenceViolation {
	return &CoherenceViolation{
		Declared:  declared,
		Corrected: ModeChat,
		Reason:    reason,
	}
}
