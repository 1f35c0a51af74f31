// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RouteInput bundles everything the mode router consults. All fields are
// read-only to the router.
type RouteInput struct {
	Topic         Topic
	Message       string
	Result        *RetrievalResult
	Groundability float64

	// Facet and FacetOK carry the facet selector's verdict.
	Facet   FacetChoice
	FacetOK bool

	// RelaxedAway lists filters dropped during relaxation, for the
	// dead-end decision's audit trail.
	RelaxedAway []string
}

// ModeRouter is the deterministic gate that picks exactly one conversation
// mode per turn.
//
// # Description
//
// Transition rules, evaluated strictly in order:
//
//  1. Non-commerce topics route to chat unconditionally.
//  2. Zero retrieved products route to dead_end.
//  3. Groundability below threshold routes to chat (an informational answer
//     beats a weak recommendation).
//  4. A result count above the always-clarify ceiling forces clarify, with
//     synthesized options when no facet is viable, so an unfiltered catalog
//     is never dumped on the user.
//  5. Explicit comparison language with two or three results routes to
//     compare.
//  6. A result count at or below the curated-set cap routes to recommend.
//  7. Otherwise clarify when a facet cleared the entropy floor, else
//     recommend.
//
// The ordering encodes a strict preference for never overwhelming the user
// (rule 4 fires before the curated-set rule) while never asking a question
// that cannot narrow the set. Every branch is total; there is no unknown
// mode.
//
// # Thread Safety
//
// Pure function over RouteInput; safe for concurrent use.
type ModeRouter struct {
	cfg Config
}

// NewModeRouter creates a router with the given thresholds.
func NewModeRouter(cfg Config) *ModeRouter {
	return &ModeRouter{cfg: cfg}
}

// Route picks the turn's mode.
func (r *ModeRouter) Route(in RouteInput) Mode {
	// Rule 1: non-commerce topics never carry products or clarifiers.
	if !in.Topic.IsCommerce() {
		return ChatDecision{Reason: fmt.Sprintf("non-commerce topic %q", in.Topic)}
	}

	// Rule 2: nothing survived retrieval and relaxation.
	if in.Result.Empty() {
		return DeadEndDecision{Exhausted: in.RelaxedAway}
	}

	count := len(in.Result.Products)

	// Rule 3: retrieval is too weak to act on.
	if in.Groundability < r.cfg.GroundabilityThreshold {
		return ChatDecision{Reason: fmt.Sprintf("groundability %.2f below threshold", in.Groundability)}
	}

	// Rule 4: too many results to show responsibly.
	if count > r.cfg.AlwaysClarifyAbove {
		if in.FacetOK {
			return r.clarifyFromFacet(in)
		}
		return r.forcedClarify(in.Result)
	}

	// Rule 5: the user asked for a comparison and the set is comparable.
	if mentionsComparison(in.Message) && count >= 2 && count <= 3 {
		return CompareDecision{ProductIDs: leadingIDs(in.Result, count)}
	}

	// Rule 6: small enough to recommend directly.
	if count <= r.cfg.CuratedSetCap {
		return RecommendDecision{ProductIDs: leadingIDs(in.Result, count)}
	}

	// Rule 7: clarify when a question can still narrow the set.
	if in.FacetOK {
		return r.clarifyFromFacet(in)
	}
	return RecommendDecision{ProductIDs: leadingIDs(in.Result, r.cfg.MaxProductsPerTurn)}
}

// clarifyFromFacet builds the clarify decision for the selected facet. The
// option value keeps the catalog's observed spelling: it becomes an Equal
// filter against field-tokenized properties, which match case-sensitively.
func (r *ModeRouter) clarifyFromFacet(in RouteInput) ClarifyDecision {
	options := make([]ClarifierOption, 0, len(in.Facet.Values))
	for _, v := range in.Facet.Values {
		options = append(options, ClarifierOption{
			Label: v,
			Value: v,
		})
	}

	return ClarifyDecision{
		Facet:      in.Facet.Facet,
		Options:    options,
		PreviewIDs: leadingIDs(in.Result, r.cfg.MaxProductsWithClarifier),
	}
}

// PriceFilterFacet is the active-filter name carrying a price bound. Its
// values use the "under_N"/"over_N" grammar; retrieval translates them into
// numeric comparisons on the price property.
const PriceFilterFacet = "price"

// anyBudgetValue marks the option that declines a price clarifier. A
// matched answer closes the clarifier without setting any filter.
const anyBudgetValue = "any"

// forcedClarify synthesizes price-bound options when the result set is too
// large to show and no catalog facet is viable. The midpoint is derived
// from the observed price range so the question always splits the set.
func (r *ModeRouter) forcedClarify(result *RetrievalResult) ClarifyDecision {
	lo, hi := priceRange(result)
	mid := roundPrice((lo + hi) / 2)

	options := []ClarifierOption{
		{Label: fmt.Sprintf("Under $%.0f", mid), Value: fmt.Sprintf("under_%.0f", mid)},
		{Label: fmt.Sprintf("$%.0f and up", mid), Value: fmt.Sprintf("over_%.0f", mid)},
		{Label: "No budget in mind", Value: anyBudgetValue},
	}

	return ClarifyDecision{
		Facet:   PriceFilterFacet,
		Options: options,
		Forced:  true,
	}
}

// ParsePriceBound decodes an "under_N" or "over_N" price-filter value.
// under reports which direction the bound cuts; ok is false for any value
// outside the grammar, including "any".
func ParsePriceBound(value string) (bound float64, under bool, ok bool) {
	var raw string
	switch {
	case strings.HasPrefix(value, "under_"):
		under = true
		raw = strings.TrimPrefix(value, "under_")
	case strings.HasPrefix(value, "over_"):
		raw = strings.TrimPrefix(value, "over_")
	default:
		return 0, false, false
	}
	bound, err := strconv.ParseFloat(raw, 64)
	if err != nil || bound < 0 {
		return 0, false, false
	}
	return bound, under, true
}

// leadingIDs returns up to n product IDs from the head of the ranked list.
func leadingIDs(result *RetrievalResult, n int) []string {
	if n > len(result.Products) {
		n = len(result.Products)
	}
	ids := make([]string, 0, n)
	for _, p := range result.Products[:n] {
		ids = append(ids, p.ID)
	}
	return ids
}

// priceRange returns the observed min and max candidate price.
func priceRange(result *RetrievalResult) (float64, float64) {
	lo, hi := math.Inf(1), 0.0
	for _, p := range result.Products {
		if p.Price < lo {
			lo = p.Price
		}
		if p.Price > hi {
			hi = p.Price
		}
	}
	if math.IsInf(lo, 1) {
		lo = 0
	}
	return lo, hi
}

// roundPrice rounds to a shopper-friendly increment.
func roundPrice(v float64) float64 {
	switch {
	case v >= 100:
		return math.Round(v/25) * 25
	case v >= 20:
		return math.Round(v/5) * 5
	default:
		return math.Round(v)
	}
}
