// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"testing"
)

func rankedProducts(n int) *RetrievalResult {
	products := make([]ProductCandidate, n)
	for i := range products {
		products[i] = ProductCandidate{
			ID:             fmt.Sprintf("p%d", i+1),
			Title:          fmt.Sprintf("Product %d", i+1),
			Price:          float64(20 + i*10),
			Vendor:         "Acme",
			ProductType:    "jacket",
			RelevanceScore: 0.9,
		}
	}
	return &RetrievalResult{Products: products}
}

// =============================================================================
// Mode Routing Tests
// =============================================================================

func TestRoute_NonCommerceAlwaysChat(t *testing.T) {
	r := NewModeRouter(DefaultConfig())

	// Even a strong result set cannot pull a policy question into
	// recommendations.
	mode := r.Route(RouteInput{
		Topic:         TopicPolicyInfo,
		Message:       "do you ship to Canada?",
		Result:        rankedProducts(3),
		Groundability: 0.95,
	})

	if mode.Kind() != ModeChat {
		t.Errorf("expected chat for non-commerce topic, got %v", mode.Kind())
	}
}

func TestRoute_EmptyResultIsDeadEnd(t *testing.T) {
	r := NewModeRouter(DefaultConfig())

	mode := r.Route(RouteInput{
		Topic:       TopicCommerce,
		Message:     "left-handed titanium spork",
		Result:      &RetrievalResult{},
		RelaxedAway: []string{"price_bucket", "color"},
	})

	dead, ok := mode.(DeadEndDecision)
	if !ok {
		t.Fatalf("expected dead_end for empty result, got %v", mode.Kind())
	}
	if len(dead.Exhausted) != 2 {
		t.Errorf("expected 2 exhausted filters in the audit trail, got %v", dead.Exhausted)
	}
}

func TestRoute_WeakGroundabilityFallsToChat(t *testing.T) {
	cfg := DefaultConfig()
	r := NewModeRouter(cfg)

	mode := r.Route(RouteInput{
		Topic:         TopicCommerce,
		Message:       "something nice",
		Result:        rankedProducts(5),
		Groundability: cfg.GroundabilityThreshold - 0.01,
	})

	if mode.Kind() != ModeChat {
		t.Errorf("expected chat below the groundability threshold, got %v", mode.Kind())
	}
}

func TestRoute_LargeSetForcesClarify(t *testing.T) {
	cfg := DefaultConfig()
	r := NewModeRouter(cfg)

	mode := r.Route(RouteInput{
		Topic:         TopicCommerce,
		Message:       "show me jackets",
		Result:        rankedProducts(cfg.AlwaysClarifyAbove + 5),
		Groundability: 0.9,
		Facet:         FacetChoice{Facet: "color", Entropy: 2, Values: []string{"red", "blue", "green", "black"}},
		FacetOK:       true,
	})

	clarify, ok := mode.(ClarifyDecision)
	if !ok {
		t.Fatalf("expected clarify above the ceiling, got %v", mode.Kind())
	}
	if clarify.Facet != "color" {
		t.Errorf("expected the selected facet, got %q", clarify.Facet)
	}
	if clarify.Forced {
		t.Error("facet-derived clarify must not be marked forced")
	}
	if len(clarify.PreviewIDs) > cfg.MaxProductsWithClarifier {
		t.Errorf("preview %d products exceeds clarifier cap %d", len(clarify.PreviewIDs), cfg.MaxProductsWithClarifier)
	}
}

func TestRoute_LargeSetWithoutFacetSynthesizesOptions(t *testing.T) {
	cfg := DefaultConfig()
	r := NewModeRouter(cfg)

	mode := r.Route(RouteInput{
		Topic:         TopicCommerce,
		Message:       "show me everything",
		Result:        rankedProducts(cfg.AlwaysClarifyAbove + 1),
		Groundability: 0.9,
		FacetOK:       false,
	})

	clarify, ok := mode.(ClarifyDecision)
	if !ok {
		t.Fatalf("expected forced clarify, got %v", mode.Kind())
	}
	if !clarify.Forced {
		t.Error("synthesized clarify must be marked forced")
	}
	if len(clarify.Options) < 2 {
		t.Errorf("forced clarify needs at least 2 options, got %d", len(clarify.Options))
	}
	if clarify.Facet != PriceFilterFacet {
		t.Errorf("expected price options, got %q", clarify.Facet)
	}

	// The first two options must carry retrievable bounds: one cutting
	// under the midpoint, one at or above it.
	bound, under, ok := ParsePriceBound(clarify.Options[0].Value)
	if !ok || !under || bound <= 0 {
		t.Errorf("first option %q must decode to an under-bound", clarify.Options[0].Value)
	}
	bound, under, ok = ParsePriceBound(clarify.Options[1].Value)
	if !ok || under || bound <= 0 {
		t.Errorf("second option %q must decode to an over-bound", clarify.Options[1].Value)
	}
	if last := clarify.Options[len(clarify.Options)-1]; last.Value != "any" {
		t.Errorf("expected the no-budget escape last, got %+v", last)
	}
}

func TestRoute_ClarifyOptionsKeepCatalogSpelling(t *testing.T) {
	cfg := DefaultConfig()
	r := NewModeRouter(cfg)

	// Vendor values filter case-sensitively downstream, so the option
	// value must be the catalog's spelling, not a lowercased copy.
	mode := r.Route(RouteInput{
		Topic:         TopicCommerce,
		Message:       "show me jackets",
		Result:        rankedProducts(cfg.AlwaysClarifyAbove + 5),
		Groundability: 0.9,
		Facet:         FacetChoice{Facet: "vendor", Entropy: 2, Values: []string{"Acme", "Northbound"}},
		FacetOK:       true,
	})

	clarify, ok := mode.(ClarifyDecision)
	if !ok {
		t.Fatalf("expected clarify, got %v", mode.Kind())
	}
	for i, want := range []string{"Acme", "Northbound"} {
		if clarify.Options[i].Value != want {
			t.Errorf("option %d value = %q, want the observed spelling %q", i, clarify.Options[i].Value, want)
		}
	}
}

func TestParsePriceBound(t *testing.T) {
	cases := []struct {
		value string
		bound float64
		under bool
		ok    bool
	}{
		{"under_40", 40, true, true},
		{"over_40", 40, false, true},
		{"under_12.50", 12.5, true, true},
		{"any", 0, false, false},
		{"under_", 0, false, false},
		{"over_-5", 0, false, false},
		{"under_50x", 0, false, false},
	}
	for _, tc := range cases {
		bound, under, ok := ParsePriceBound(tc.value)
		if bound != tc.bound || under != tc.under || ok != tc.ok {
			t.Errorf("ParsePriceBound(%q) = (%v, %v, %v), want (%v, %v, %v)",
				tc.value, bound, under, ok, tc.bound, tc.under, tc.ok)
		}
	}
}

func TestRoute_ComparisonBeatsCuratedSet(t *testing.T) {
	r := NewModeRouter(DefaultConfig())

	// Two results with comparison language: compare must fire even though
	// the count is within the curated-set cap.
	mode := r.Route(RouteInput{
		Topic:         TopicCommerce,
		Message:       "compare these two jackets",
		Result:        rankedProducts(2),
		Groundability: 0.9,
	})

	compare, ok := mode.(CompareDecision)
	if !ok {
		t.Fatalf("expected compare for explicit comparison language, got %v", mode.Kind())
	}
	if len(compare.ProductIDs) != 2 {
		t.Errorf("expected both products in the comparison, got %v", compare.ProductIDs)
	}
}

func TestRoute_ComparisonNeedsComparableCount(t *testing.T) {
	r := NewModeRouter(DefaultConfig())

	// Comparison language with 7 results cannot compare; with a viable
	// facet it clarifies instead.
	mode := r.Route(RouteInput{
		Topic:         TopicCommerce,
		Message:       "compare your rain jackets",
		Result:        rankedProducts(7),
		Groundability: 0.9,
		Facet:         FacetChoice{Facet: "color", Entropy: 2, Values: []string{"red", "blue", "green", "black"}},
		FacetOK:       true,
	})

	if mode.Kind() != ModeClarify {
		t.Errorf("expected clarify for uncomparable count, got %v", mode.Kind())
	}
}

func TestRoute_SmallSetRecommends(t *testing.T) {
	cfg := DefaultConfig()
	r := NewModeRouter(cfg)

	mode := r.Route(RouteInput{
		Topic:         TopicCommerce,
		Message:       "waterproof jacket",
		Result:        rankedProducts(2),
		Groundability: 0.9,
		FacetOK:       true, // a viable facet must not override the curated set
		Facet:         FacetChoice{Facet: "color", Values: []string{"red", "blue"}},
	})

	rec, ok := mode.(RecommendDecision)
	if !ok {
		t.Fatalf("expected recommend for a curated-size set, got %v", mode.Kind())
	}
	if len(rec.ProductIDs) != 2 {
		t.Errorf("expected 2 products, got %v", rec.ProductIDs)
	}
}

func TestRoute_MidSizeSetPrefersClarify(t *testing.T) {
	r := NewModeRouter(DefaultConfig())

	mode := r.Route(RouteInput{
		Topic:         TopicCommerce,
		Message:       "rain jackets",
		Result:        rankedProducts(8),
		Groundability: 0.9,
		Facet:         FacetChoice{Facet: "color", Entropy: 2, Values: []string{"red", "blue", "green", "black"}},
		FacetOK:       true,
	})

	if mode.Kind() != ModeClarify {
		t.Errorf("expected clarify for mid-size set with viable facet, got %v", mode.Kind())
	}
}

func TestRoute_MidSizeSetWithoutFacetRecommendsCapped(t *testing.T) {
	cfg := DefaultConfig()
	r := NewModeRouter(cfg)

	mode := r.Route(RouteInput{
		Topic:         TopicCommerce,
		Message:       "rain jackets",
		Result:        rankedProducts(8),
		Groundability: 0.9,
		FacetOK:       false,
	})

	rec, ok := mode.(RecommendDecision)
	if !ok {
		t.Fatalf("expected recommend when no facet can narrow, got %v", mode.Kind())
	}
	if len(rec.ProductIDs) != cfg.MaxProductsPerTurn {
		t.Errorf("expected the per-turn cap of %d products, got %d", cfg.MaxProductsPerTurn, len(rec.ProductIDs))
	}
	// Best-ranked first.
	if rec.ProductIDs[0] != "p1" {
		t.Errorf("expected the top-ranked product first, got %v", rec.ProductIDs)
	}
}

func TestRoute_Deterministic(t *testing.T) {
	r := NewModeRouter(DefaultConfig())
	in := RouteInput{
		Topic:         TopicCommerce,
		Message:       "rain jackets",
		Result:        rankedProducts(8),
		Groundability: 0.9,
		Facet:         FacetChoice{Facet: "color", Entropy: 2, Values: []string{"red", "blue", "green", "black"}},
		FacetOK:       true,
	}

	first := r.Route(in)
	for i := 0; i < 10; i++ {
		if got := r.Route(in); got.Kind() != first.Kind() {
			t.Fatalf("routing changed between identical runs: %v then %v", first.Kind(), got.Kind())
		}
	}
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{212, 200},
		{130, 125},
		{47, 45},
		{23, 25},
		{12.4, 12},
	}

	for _, tt := range tests {
		if got := roundPrice(tt.in); got != tt.want {
			t.Errorf("roundPrice(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
