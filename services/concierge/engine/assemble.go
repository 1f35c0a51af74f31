// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// assemble builds the renderable turn for the routed mode. Copy comes from
// the copy collaborator; the engine only supplies slot values.
func (e *Engine) assemble(ctx context.Context, shopID string, mode Mode, topic Topic, result *RetrievalResult, relaxSteps []RelaxationStep, relaxUndo []ClarifierOption) *Turn {
	switch m := mode.(type) {
	case ChatDecision:
		var evidence []string
		if topic == TopicProductInfo && !result.Empty() {
			evidence = e.fetchEvidence(ctx, shopID, result.Products[:1])
		}
		return e.assembleChat(ctx, topic, m.Reason, result, evidence)
	case ClarifyDecision:
		return e.assembleClarify(ctx, topic, m, result, relaxSteps)
	case RecommendDecision:
		return e.assembleRecommend(ctx, shopID, topic, m, result, relaxSteps, relaxUndo)
	case CompareDecision:
		return e.assembleCompare(ctx, topic, m, result)
	case DeadEndDecision:
		return e.assembleDeadEnd(ctx, topic, m)
	default:
		// Unreachable: the mode union is sealed. Fall back to chat so the
		// turn is still renderable.
		return e.assembleChat(ctx, topic, "unrecognized mode", nil, nil)
	}
}

func (e *Engine) assembleChat(ctx context.Context, topic Topic, reason string, result *RetrievalResult, evidence []string) *Turn {
	block := e.compose(ctx, ModeChat, topic, CopySlots{"reason": reason})

	turn := newTurn(ModeChat, topic)
	turn.Segments = append(turn.Segments, Segment{Type: SegmentNarrative, Text: block.Lead})
	if block.Detail != "" {
		turn.Segments = append(turn.Segments, Segment{Type: SegmentNote, Text: block.Detail})
	}
	for _, line := range evidence {
		turn.Segments = append(turn.Segments, Segment{Type: SegmentEvidence, Bullets: []string{line}})
	}
	return turn
}

func (e *Engine) assembleClarify(ctx context.Context, topic Topic, decision ClarifyDecision, result *RetrievalResult, relaxSteps []RelaxationStep) *Turn {
	slots := CopySlots{
		"facet": humanizeFacet(decision.Facet),
		"count": strconv.Itoa(len(result.Products)),
	}
	block := e.compose(ctx, ModeClarify, topic, slots)

	turn := newTurn(ModeClarify, topic)
	if len(relaxSteps) > 0 {
		turn.Segments = append(turn.Segments, Segment{Type: SegmentNote, Text: relaxationNote(relaxSteps)})
	}
	turn.Segments = append(turn.Segments,
		Segment{Type: SegmentNarrative, Text: block.Lead},
		Segment{Type: SegmentAsk, Text: block.Detail},
		Segment{Type: SegmentQuickReply, Options: decision.Options},
	)
	if preview := productsByID(result, decision.PreviewIDs); len(preview) > 0 {
		turn.Segments = append(turn.Segments, Segment{Type: SegmentProducts, Products: preview})
	}
	return turn
}

func (e *Engine) assembleRecommend(ctx context.Context, shopID string, topic Topic, decision RecommendDecision, result *RetrievalResult, relaxSteps []RelaxationStep, relaxUndo []ClarifierOption) *Turn {
	products := productsByID(result, decision.ProductIDs)
	block := e.compose(ctx, ModeRecommend, topic, CopySlots{
		"count": strconv.Itoa(len(products)),
	})

	turn := newTurn(ModeRecommend, topic)
	if len(relaxSteps) > 0 {
		turn.Segments = append(turn.Segments, Segment{Type: SegmentNote, Text: relaxationNote(relaxSteps)})
	}
	turn.Segments = append(turn.Segments,
		Segment{Type: SegmentNarrative, Text: block.Lead},
		Segment{Type: SegmentProducts, Products: products},
		Segment{Type: SegmentEvidence, Bullets: e.fetchEvidence(ctx, shopID, products)},
	)
	if len(relaxUndo) > 0 {
		turn.Segments = append(turn.Segments, Segment{Type: SegmentQuickReply, Options: relaxUndo})
	}
	return turn
}

func (e *Engine) assembleCompare(ctx context.Context, topic Topic, decision CompareDecision, result *RetrievalResult) *Turn {
	products := productsByID(result, decision.ProductIDs)
	block := e.compose(ctx, ModeCompare, topic, CopySlots{
		"count": strconv.Itoa(len(products)),
	})

	turn := newTurn(ModeCompare, topic)
	turn.Segments = append(turn.Segments,
		Segment{Type: SegmentNarrative, Text: block.Lead},
		Segment{Type: SegmentComparison, Comparison: comparisonBlock(products)},
	)
	return turn
}

func (e *Engine) assembleDeadEnd(ctx context.Context, topic Topic, decision DeadEndDecision) *Turn {
	block := e.compose(ctx, ModeDeadEnd, topic, CopySlots{
		"relaxed": strings.Join(decision.Exhausted, ", "),
	})

	turn := newTurn(ModeDeadEnd, topic)
	turn.Segments = append(turn.Segments,
		Segment{Type: SegmentNarrative, Text: block.Lead},
		Segment{Type: SegmentQuickReply, Options: deadEndAlternatives()},
	)
	if block.Detail != "" {
		turn.Segments = append(turn.Segments, Segment{Type: SegmentNote, Text: block.Detail})
	}
	return turn
}

// assemblePronounClarify builds the disambiguation turn emitted by the
// pronoun short-circuit. Retrieval is never invoked for these turns.
func (e *Engine) assemblePronounClarify(ctx context.Context, options []ClarifierOption) *Turn {
	block := e.compose(ctx, ModeClarify, TopicCommerce, CopySlots{"facet": "topic"})

	turn := newTurn(ModeClarify, TopicCommerce)
	turn.Meta.RetrievalSkipped = true
	turn.Meta.ChosenFacet = anchorClarifierFacet
	turn.Segments = append(turn.Segments,
		Segment{Type: SegmentNarrative, Text: block.Lead},
		Segment{Type: SegmentAsk, Text: block.Detail},
		Segment{Type: SegmentQuickReply, Options: options},
	)
	return turn
}

// compose invokes the copy collaborator with static fallbacks: copy
// problems never fail a turn.
func (e *Engine) compose(ctx context.Context, mode ModeKind, topic Topic, slots CopySlots) CopyBlock {
	block, err := e.copy.Compose(ctx, mode, topic, slots)
	if err != nil {
		slog.Warn("copy composition failed, using fallback", "mode", mode, "error", err)
		return fallbackCopy(mode)
	}
	if block.Lead == "" {
		block.Lead = fallbackCopy(mode).Lead
	}
	if mode == ModeClarify && block.Detail == "" {
		block.Detail = fallbackCopy(mode).Detail
	}
	return block
}

// fallbackCopy is the last-resort static copy per mode.
func fallbackCopy(mode ModeKind) CopyBlock {
	switch mode {
	case ModeClarify:
		return CopyBlock{
			Lead:   "I can narrow this down with one quick question.",
			Detail: "Which of these fits best?",
		}
	case ModeRecommend:
		return CopyBlock{Lead: "Here are the closest matches I found."}
	case ModeCompare:
		return CopyBlock{Lead: "Here is how they stack up side by side."}
	case ModeDeadEnd:
		return CopyBlock{Lead: "I could not find a match, even after loosening the search."}
	default:
		return CopyBlock{Lead: "Happy to help with that."}
	}
}

// fetchEvidence gathers one advisory fact line per product under a single
// short deadline. A missing enricher, an error, or an expired deadline all
// degrade to the fallback reason string; evidence never delays routing.
func (e *Engine) fetchEvidence(ctx context.Context, shopID string, products []ProductCandidate) []string {
	lines := make([]string, 0, len(products))

	if e.enricher == nil {
		for _, p := range products {
			lines = append(lines, fallbackReason(p))
		}
		return lines
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.EnrichmentTimeout)
	defer cancel()

	for _, p := range products {
		sheet, err := e.enricher.FactSheet(ctx, shopID, p.ID)
		if err != nil || strings.TrimSpace(sheet) == "" {
			if err != nil {
				slog.Debug("fact sheet unavailable", "productID", p.ID, "error", err)
			}
			lines = append(lines, fallbackReason(p))
			continue
		}
		lines = append(lines, firstSentence(sheet))
	}
	return lines
}

// fallbackReason is the degraded evidence line when no fact sheet arrives.
func fallbackReason(p ProductCandidate) string {
	if p.Vendor != "" {
		return fmt.Sprintf("%s by %s matches what you asked for.", p.Title, p.Vendor)
	}
	return fmt.Sprintf("%s matches what you asked for.", p.Title)
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexAny(text, ".!\n"); idx > 0 {
		return strings.TrimSpace(text[:idx+1])
	}
	return text
}

// relaxationNote renders the transparency message for a broadened search.
func relaxationNote(steps []RelaxationStep) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, s.Description)
	}
	return "I broadened your search: " + strings.Join(parts, "; ") + "."
}

// deadEndAlternatives are the actionable escapes offered instead of an
// empty response.
func deadEndAlternatives() []ClarifierOption {
	return []ClarifierOption{
		{Label: "Browse best sellers", Value: "browse_best_sellers"},
		{Label: "Notify me when available", Value: "notify_me"},
		{Label: "Talk to a human", Value: "contact_support"},
	}
}

// comparisonBlock builds the attribute table for 2-3 products.
func comparisonBlock(products []ProductCandidate) *ComparisonBlock {
	ids := make([]string, 0, len(products))
	prices := make([]string, 0, len(products))
	vendors := make([]string, 0, len(products))
	types := make([]string, 0, len(products))
	tags := make([]string, 0, len(products))

	for _, p := range products {
		ids = append(ids, p.ID)
		prices = append(prices, fmt.Sprintf("$%.2f", p.Price))
		vendors = append(vendors, orDash(p.Vendor))
		types = append(types, orDash(p.ProductType))
		tags = append(tags, orDash(strings.Join(p.Tags, ", ")))
	}

	return &ComparisonBlock{
		ProductIDs: ids,
		Rows: []ComparisonRow{
			{Attribute: "price", Values: prices},
			{Attribute: "vendor", Values: vendors},
			{Attribute: "type", Values: types},
			{Attribute: "tags", Values: tags},
		},
	}
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// productsByID resolves decision IDs back to candidates, preserving the
// decision's order.
func productsByID(result *RetrievalResult, ids []string) []ProductCandidate {
	if result == nil {
		return nil
	}
	byID := make(map[string]ProductCandidate, len(result.Products))
	for _, p := range result.Products {
		byID[p.ID] = p
	}

	out := make([]ProductCandidate, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func newTurn(mode ModeKind, topic Topic) *Turn {
	return &Turn{
		Meta: TurnMeta{
			TurnID: uuid.NewString(),
			Mode:   mode,
			Topic:  topic,
		},
	}
}
