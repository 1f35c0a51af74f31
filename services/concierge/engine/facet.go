// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"math"
	"sort"
	"strings"
)

// FacetVendor is the vendor facet name, subject to a domain-specific guard
// in the selector.
const FacetVendor = "vendor"

// FacetSelector picks the next product attribute worth asking about.
//
// # Description
//
// For each facet that has not exhausted its ask budget and is not already
// resolved by an active filter, the selector computes Shannon entropy over
// the facet's distinct values (assumed uniform) and ranks candidates by
// entropy descending. Facets with fewer than FacetMinValues or more than
// FacetMaxValues distinct values are discarded: the former cannot narrow the
// set, the latter would overwhelm the user.
//
// The vendor facet carries an extra guard: it is skipped on the very first
// clarification of a session unless the user already mentioned a brand, and
// always skipped when vendor coverage across candidates is below the floor
// or fewer than two distinct vendors exist.
//
// Returning no facet is a meaningful signal, not a failure: it tells the
// router that clarification cannot narrow the set and it must fall through
// to recommend, compare, or chat.
//
// # Thread Safety
//
// Pure function over its inputs; safe for concurrent use.
type FacetSelector struct {
	cfg Config
}

// NewFacetSelector creates a selector with the given thresholds.
func NewFacetSelector(cfg Config) *FacetSelector {
	return &FacetSelector{cfg: cfg}
}

// FacetChoice is a scored candidate facet.
type FacetChoice struct {
	Facet   string
	Entropy float64
	Values  []string
}

// Select returns the best facet to ask about, or ok=false when no facet
// clears the entropy floor.
//
// # Inputs
//
//   - result: Current retrieval result (facet distributions + candidates).
//   - state: Session state (ask counts, active filters, first-clarification
//     detection).
//   - message: Raw user message, consulted for brand mentions by the vendor
//     guard.
//
// # Outputs
//
//   - FacetChoice: The winning facet with its entropy and distinct values.
//   - bool: False when clarification is not viable.
func (f *FacetSelector) Select(result *RetrievalResult, state *SessionState, message string) (FacetChoice, bool) {
	if result == nil || len(result.Facets) == 0 {
		return FacetChoice{}, false
	}

	candidates := make([]FacetChoice, 0, len(result.Facets))
	for facet, values := range result.Facets {
		if state.ClarifierHistory[facet] >= f.cfg.MaxFacetAsks {
			continue
		}
		if _, resolved := state.ActiveFilters[facet]; resolved {
			continue
		}

		distinct := distinctValues(values)
		if len(distinct) < f.cfg.FacetMinValues || len(distinct) > f.cfg.FacetMaxValues {
			continue
		}

		if facet == FacetVendor && !f.vendorAskable(result, state, message, distinct) {
			continue
		}

		entropy := uniformEntropy(len(distinct))
		if entropy < f.cfg.EntropyFloor {
			continue
		}

		candidates = append(candidates, FacetChoice{
			Facet:   facet,
			Entropy: entropy,
			Values:  distinct,
		})
	}

	if len(candidates) == 0 {
		return FacetChoice{}, false
	}

	// Highest entropy wins; facet name breaks ties so the choice is
	// deterministic across runs.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Entropy != candidates[j].Entropy {
			return candidates[i].Entropy > candidates[j].Entropy
		}
		return candidates[i].Facet < candidates[j].Facet
	})

	return candidates[0], true
}

// vendorAskable applies the vendor-specific guard.
func (f *FacetSelector) vendorAskable(result *RetrievalResult, state *SessionState, message string, distinct []string) bool {
	if len(distinct) < 2 {
		return false
	}

	// Vendor coverage: fraction of candidates that carry a vendor at all.
	withVendor := 0
	for _, p := range result.Products {
		if p.Vendor != "" {
			withVendor++
		}
	}
	if len(result.Products) > 0 {
		coverage := float64(withVendor) / float64(len(result.Products))
		if coverage < f.cfg.VendorCoverageFloor {
			return false
		}
	}

	// First clarification of the session: only ask about vendor when the
	// user already brought a brand up.
	if len(state.ClarifierHistory) == 0 && !mentionsAnyFold(message, distinct) {
		return false
	}

	return true
}

// uniformEntropy is the Shannon entropy in bits of a uniform distribution
// over n values: log2(n).
func uniformEntropy(n int) float64 {
	if n <= 1 {
		return 0
	}
	return math.Log2(float64(n))
}

// distinctValues deduplicates case-insensitively, keeping first spelling and
// dropping empties.
func distinctValues(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if !seen[key] {
			seen[key] = true
			out = append(out, trimmed)
		}
	}
	return out
}

// mentionsAnyFold reports whether the message mentions any of the given
// terms, case-insensitively.
func mentionsAnyFold(message string, terms []string) bool {
	lower := strings.ToLower(message)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
