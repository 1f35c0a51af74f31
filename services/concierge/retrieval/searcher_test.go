// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"reflect"
	"strings"
	"testing"

	"github.com/clerkdesk/clerkdesk/services/concierge/datatypes"
	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
)

func productRow(id, title, vendor, ptype string, price float64, certainty float64, tags ...string) datatypes.ProductResult {
	row := datatypes.ProductResult{
		ProductID:   id,
		Title:       title,
		Vendor:      vendor,
		ProductType: ptype,
		Price:       price,
		Tags:        tags,
	}
	row.Additional.Certainty = certainty
	return row
}

func TestToCandidates_VectorPathUsesCertainty(t *testing.T) {
	rows := []datatypes.ProductResult{
		productRow("p1", "Shell Jacket", "Acme", "jacket", 179, 0.91),
		productRow("p2", "Rain Jacket", "Northbound", "jacket", 120, 0.84),
	}

	candidates := toCandidates(rows, false)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].RelevanceScore != 0.91 {
		t.Errorf("expected certainty as relevance, got %v", candidates[0].RelevanceScore)
	}
	if candidates[0].ID != "p1" || candidates[0].Vendor != "Acme" {
		t.Error("candidate fields not carried over")
	}
}

func TestToCandidates_LexicalPathDecaysByRank(t *testing.T) {
	rows := make([]datatypes.ProductResult, 15)
	for i := range rows {
		rows[i] = productRow("p", "t", "v", "pt", 10, 0)
	}

	candidates := toCandidates(rows, true)
	if candidates[0].RelevanceScore != bm25ScoreCeiling {
		t.Errorf("top lexical score should equal the ceiling, got %v", candidates[0].RelevanceScore)
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].RelevanceScore > candidates[i-1].RelevanceScore {
			t.Fatalf("lexical scores must be non-increasing, broke at rank %d", i)
		}
	}
	last := candidates[len(candidates)-1].RelevanceScore
	if last < 0.1 {
		t.Errorf("lexical score floor is 0.1, got %v", last)
	}
}

func TestDeriveFacets_PropertyFacets(t *testing.T) {
	candidates := []engine.ProductCandidate{
		{Vendor: "Acme", ProductType: "jacket", Price: 30},
		{Vendor: "Northbound", ProductType: "jacket", Price: 120},
	}

	facets := deriveFacets(candidates)
	if !reflect.DeepEqual(facets["vendor"], []string{"Acme", "Northbound"}) {
		t.Errorf("unexpected vendor facet: %v", facets["vendor"])
	}
	if !reflect.DeepEqual(facets["product_type"], []string{"jacket"}) {
		t.Errorf("unexpected product_type facet: %v", facets["product_type"])
	}
	if !reflect.DeepEqual(facets["price_bucket"], []string{"under_250", "under_50"}) {
		t.Errorf("price_bucket values should be sorted: %v", facets["price_bucket"])
	}
}

func TestDeriveFacets_TagFacets(t *testing.T) {
	candidates := []engine.ProductCandidate{
		{Vendor: "Acme", Tags: []string{"color:blue", "waterproof"}},
		{Vendor: "Acme", Tags: []string{"color:red", "color:blue"}},
	}

	facets := deriveFacets(candidates)
	if !reflect.DeepEqual(facets["color"], []string{"blue", "red"}) {
		t.Errorf("unexpected color facet: %v", facets["color"])
	}
	if _, ok := facets["waterproof"]; ok {
		t.Error("bare tags must not become facets")
	}
}

func TestDeriveFacets_Empty(t *testing.T) {
	if got := deriveFacets(nil); got != nil {
		t.Errorf("expected nil facets for no candidates, got %v", got)
	}
}

func TestBuildWhere_Deterministic(t *testing.T) {
	activeFilters := map[string]string{
		"color":        "blue",
		"vendor":       "Acme",
		"price_bucket": "under_50",
	}

	a := buildWhere("shop-1", activeFilters).String()
	b := buildWhere("shop-1", activeFilters).String()
	if a != b {
		t.Error("filter construction must not depend on map iteration order")
	}

	for _, want := range []string{"shop_id", "in_stock", "vendor", "price_bucket", "color:blue"} {
		if !strings.Contains(a, want) {
			t.Errorf("where clause missing %q: %s", want, a)
		}
	}
}

func TestBuildWhere_PriceBoundsAreNumericComparisons(t *testing.T) {
	// The price clarifier stores "under_N"/"over_N"; the filter has to
	// become a numeric comparison on the price property, never a string
	// Equal that no stored value can satisfy.
	under := buildWhere("shop-1", map[string]string{"price": "under_40"}).String()
	for _, want := range []string{"price", "LessThan", "40"} {
		if !strings.Contains(under, want) {
			t.Errorf("under-bound clause missing %q: %s", want, under)
		}
	}
	if strings.Contains(under, "under_40") {
		t.Errorf("raw grammar value leaked into the clause: %s", under)
	}

	over := buildWhere("shop-1", map[string]string{"price": "over_40"}).String()
	if !strings.Contains(over, "GreaterThanEqual") {
		t.Errorf("over-bound clause must be inclusive: %s", over)
	}
}

func TestBuildWhere_UnparseablePriceIsSkipped(t *testing.T) {
	clause := buildWhere("shop-1", map[string]string{"price": "cheap"}).String()
	if strings.Contains(clause, "cheap") {
		t.Errorf("malformed price filter must be ignored, got %s", clause)
	}
}
