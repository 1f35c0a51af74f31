// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the dialogue routing and retrieval-orchestration
// core of the concierge service.
//
// # Description
//
// The engine decides, turn by turn, whether the assistant should ask a
// clarifying question, show a small curated set of products, offer a
// side-by-side comparison, answer conversationally, or report a dead end.
// It is a pure function of (message, history, session state, collaborator
// results); it performs no persistence and generates no prose of its own.
//
// # Pipeline
//
// Per turn, strictly ordered:
//
//	pending clarifier resolution → pronoun check → topic classification →
//	retrieval → relaxation on empty → groundability + facet selection →
//	mode routing → turn assembly → coherence gate → state patch
//
// Each stage's output can short-circuit the next, so the order is not
// negotiable.
//
// # Thread Safety
//
// The Engine holds no per-turn mutable state and is safe for concurrent use
// across sessions. Turns for the same session must be serialized by the
// caller; the engine reads and later patches the same session record without
// optimistic concurrency control.
package engine

import (
	"time"
)

// =============================================================================
// Conversation Topics
// =============================================================================

// Topic is the coarse subject of a single user message.
type Topic string

const (
	// TopicRapport covers greetings, thanks, and other small talk.
	TopicRapport Topic = "rapport"

	// TopicStoreInfo covers questions about the store itself (hours,
	// identity, what it sells).
	TopicStoreInfo Topic = "store_info"

	// TopicPolicyInfo covers shipping, returns, refunds, and warranties.
	TopicPolicyInfo Topic = "policy_info"

	// TopicProductInfo covers informational product questions that do not
	// express shopping intent ("what is merino wool?").
	TopicProductInfo Topic = "product_info"

	// TopicCommerce covers shopping intent: finding, pricing, or buying
	// products. This is the classifier default.
	TopicCommerce Topic = "commerce"
)

// IsCommerce reports whether the topic expresses shopping intent.
func (t Topic) IsCommerce() bool { return t == TopicCommerce }

// WantsRetrieval reports whether a retrieval call is worth making for this
// topic. Product-info questions retrieve evidence even though they route to
// a conversational answer.
func (t Topic) WantsRetrieval() bool {
	return t == TopicCommerce || t == TopicProductInfo
}

// =============================================================================
// Messages
// =============================================================================

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of the conversation history. The history is owned
// by the caller and read-only to the engine.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// Retrieval Shapes
// =============================================================================

// ProductCandidate is the minimal product view the engine reads. Candidates
// are transient and engine-read-only; ranking is the retrieval service's job.
type ProductCandidate struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Price       float64  `json:"price"`
	Vendor      string   `json:"vendor"`
	ProductType string   `json:"product_type"`
	Tags        []string `json:"tags,omitempty"`

	// RelevanceScore is the retrieval service's confidence in this
	// candidate, in [0, 1].
	RelevanceScore float64 `json:"relevance_score"`
}

// RetrievalResult is a ranked, faceted product list produced fresh per turn
// by the retrieval collaborator. The engine never mutates it; a re-query
// produces a new result.
type RetrievalResult struct {
	// Products is ordered best-first.
	Products []ProductCandidate `json:"products"`

	// Facets maps facet name to the distinct values observed across the
	// result set (e.g. "vendor" -> ["Acme", "Northbound"]).
	Facets map[string][]string `json:"facets,omitempty"`
}

// Empty reports whether the result carries no candidates.
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Products) == 0
}

// =============================================================================
// Conversation Modes (tagged union)
// =============================================================================

// ModeKind names one of the five mutually exclusive conversation modes.
type ModeKind string

const (
	ModeChat      ModeKind = "chat"
	ModeClarify   ModeKind = "clarify"
	ModeRecommend ModeKind = "recommend"
	ModeCompare   ModeKind = "compare"
	ModeDeadEnd   ModeKind = "dead_end"
)

// Mode is the router's decision for one turn. Exactly one concrete mode is
// chosen per turn, never a blend; each variant carries exactly the data its
// renderer needs.
type Mode interface {
	Kind() ModeKind
	isMode()
}

// ChatDecision answers conversationally with no products or clarifier.
type ChatDecision struct {
	// Reason records why the router fell back to chat (non-commerce topic,
	// weak groundability, no viable facet). Audit only.
	Reason string
}

// ClarifyDecision asks one follow-up question about a facet.
type ClarifyDecision struct {
	Facet   string
	Options []ClarifierOption

	// Forced is set when the result count exceeded the always-clarify
	// ceiling and no facet cleared the entropy floor, so the options were
	// synthesized rather than facet-derived.
	Forced bool

	// PreviewIDs holds at most two product IDs shown alongside the question.
	PreviewIDs []string
}

// RecommendDecision shows a curated set of one to three products.
type RecommendDecision struct {
	ProductIDs []string
}

// CompareDecision shows a side-by-side comparison of two or three products.
type CompareDecision struct {
	ProductIDs []string
}

// DeadEndDecision reports that no products match even after relaxation.
type DeadEndDecision struct {
	// Exhausted lists the filters that were relaxed before giving up.
	Exhausted []string
}

func (ChatDecision) Kind() ModeKind      { return ModeChat }
func (ClarifyDecision) Kind() ModeKind   { return ModeClarify }
func (RecommendDecision) Kind() ModeKind { return ModeRecommend }
func (CompareDecision) Kind() ModeKind   { return ModeCompare }
func (DeadEndDecision) Kind() ModeKind   { return ModeDeadEnd }

func (ChatDecision) isMode()      {}
func (ClarifyDecision) isMode()   {}
func (RecommendDecision) isMode() {}
func (CompareDecision) isMode()   {}
func (DeadEndDecision) isMode()   {}

// ClarifierOption is one selectable answer to a clarifying question.
type ClarifierOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// =============================================================================
// Turn Output
// =============================================================================

// SegmentType identifies the renderable kind of a turn segment.
type SegmentType string

const (
	SegmentNarrative  SegmentType = "narrative"
	SegmentProducts   SegmentType = "products"
	SegmentAsk        SegmentType = "ask"
	SegmentQuickReply SegmentType = "quick_replies"
	SegmentEvidence   SegmentType = "evidence"
	SegmentComparison SegmentType = "comparison"
	SegmentNote       SegmentType = "note"
)

// Segment is one typed, ordered piece of an assembled turn. Only the fields
// relevant to the segment type are populated.
type Segment struct {
	Type SegmentType `json:"type"`

	// Text carries narrative, ask, and note content.
	Text string `json:"text,omitempty"`

	// Products carries the product list for products segments.
	Products []ProductCandidate `json:"products,omitempty"`

	// Options carries quick-reply choices.
	Options []ClarifierOption `json:"options,omitempty"`

	// Bullets carries evidence lines.
	Bullets []string `json:"bullets,omitempty"`

	// Comparison carries the side-by-side block.
	Comparison *ComparisonBlock `json:"comparison,omitempty"`
}

// ComparisonBlock is a side-by-side attribute table for 2-3 products.
type ComparisonBlock struct {
	ProductIDs []string        `json:"product_ids"`
	Rows       []ComparisonRow `json:"rows"`
}

// ComparisonRow compares a single attribute across the block's products.
// Values are aligned with ComparisonBlock.ProductIDs.
type ComparisonRow struct {
	Attribute string   `json:"attribute"`
	Values    []string `json:"values"`
}

// TurnMeta is the audit trail recorded alongside every turn. The test suite
// and the observability pipeline both rely on it.
type TurnMeta struct {
	TurnID        string           `json:"turn_id"`
	Mode          ModeKind         `json:"mode"`
	Topic         Topic            `json:"topic"`
	Groundability float64          `json:"groundability"`
	ChosenFacet   string           `json:"chosen_facet,omitempty"`
	Relaxations   []RelaxationStep `json:"relaxations,omitempty"`

	// CorrectedFrom and CorrectionReason are set when the coherence gate
	// rejected the originally assembled turn and forced a rebuild.
	CorrectedFrom    ModeKind `json:"corrected_from,omitempty"`
	CorrectionReason string   `json:"correction_reason,omitempty"`

	// RetrievalSkipped is set when the pipeline never called retrieval
	// (non-commerce topic or pronoun short-circuit).
	RetrievalSkipped bool `json:"retrieval_skipped,omitempty"`
}

// Turn is the engine's complete, renderable output for one user message.
type Turn struct {
	Segments []Segment `json:"segments"`
	Meta     TurnMeta  `json:"meta"`
}

// ProductCount returns the number of products surfaced across all segments.
func (t *Turn) ProductCount() int {
	n := 0
	for _, seg := range t.Segments {
		n += len(seg.Products)
	}
	return n
}

// HasSegment reports whether any segment of the given type is present.
func (t *Turn) HasSegment(st SegmentType) bool {
	for _, seg := range t.Segments {
		if seg.Type == st {
			return true
		}
	}
	return false
}

func (t *Turn) firstSegment(st SegmentType) *Segment {
	for i := range t.Segments {
		if t.Segments[i].Type == st {
			return &t.Segments[i]
		}
	}
	return nil
}

// RelaxationStep records one filter the relaxation engine dropped or widened
// while recovering from a zero-result search. The ordered log feeds both the
// "I broadened your search" messaging and the undo quick-choices.
type RelaxationStep struct {
	Facet         string `json:"facet"`
	PreviousValue string `json:"previous_value"`
	Description   string `json:"description"`
}
