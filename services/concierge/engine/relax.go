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
	"sort"
	"strings"
)

// priceFacets are the facet names the relaxation engine treats as price
// bounds. Price is always the first constraint to go: it is the most common
// over-constraint and the cheapest to explain to the user.
var priceFacets = map[string]bool{
	"price":        true,
	"price_bucket": true,
	"max_price":    true,
}

// RelaxationOutcome is the result of the relaxation loop.
type RelaxationOutcome struct {
	// Result is the first non-empty retrieval result, or the final empty
	// result when relaxation exhausted every filter.
	Result *RetrievalResult

	// Steps is the ordered log of what was changed, for transparency
	// messaging.
	Steps []RelaxationStep

	// Undo offers one quick choice per dropped filter so the user can
	// restore a constraint.
	Undo []ClarifierOption

	// RemainingFilters is the filter set in effect for Result.
	RemainingFilters map[string]string
}

// Exhausted reports whether relaxation ran out of filters without finding
// any products. Control then passes to dead-end handling.
func (o *RelaxationOutcome) Exhausted() bool {
	return o.Result.Empty()
}

// RelaxationEngine progressively loosens active filters after a zero-result
// search.
//
// # Description
//
// Invoked only when the initial retrieval for a commerce or product-info
// query returns zero candidates. Each iteration identifies the single most
// restrictive active filter - price bound first, then the most specific
// remaining filter - removes it, and re-runs retrieval. The loop stops as
// soon as results appear, when no filters remain, or at the configured
// iteration cap, so it always terminates within a bounded number of
// retrieval calls. Only filters present in the active set are ever relaxed.
//
// # Thread Safety
//
// Stateless apart from config and the injected retriever; safe for
// concurrent use.
type RelaxationEngine struct {
	cfg       Config
	retriever Retriever
}

// NewRelaxationEngine creates a relaxation engine over the given retriever.
func NewRelaxationEngine(cfg Config, retriever Retriever) *RelaxationEngine {
	return &RelaxationEngine{cfg: cfg, retriever: retriever}
}

// Relax runs the relaxation loop.
//
// # Inputs
//
//   - ctx: Context for cancellation; each re-retrieval honors it.
//   - shopID, query, vector, limit: The original retrieval call's inputs.
//   - filters: The active filter set that produced zero results. The map is
//     copied; the caller's set is not mutated.
//
// # Outputs
//
//   - *RelaxationOutcome: Steps taken, undo choices, and the final result.
//   - error: Non-nil only when a re-retrieval itself fails; zero results
//     are not an error.
func (e *RelaxationEngine) Relax(ctx context.Context, shopID, query string, vector []float32, limit int, filters map[string]string) (*RelaxationOutcome, error) {
	remaining := make(map[string]string, len(filters))
	for k, v := range filters {
		remaining[k] = v
	}

	outcome := &RelaxationOutcome{
		Result:           &RetrievalResult{},
		RemainingFilters: remaining,
	}

	for i := 0; i < e.cfg.MaxRelaxationSteps && len(remaining) > 0; i++ {
		facet, ok := mostRestrictive(remaining)
		if !ok {
			break
		}

		previous := remaining[facet]
		delete(remaining, facet)

		step := RelaxationStep{
			Facet:         facet,
			PreviousValue: previous,
			Description:   describeRelaxation(facet, previous),
		}
		outcome.Steps = append(outcome.Steps, step)
		outcome.Undo = append(outcome.Undo, ClarifierOption{
			Label: fmt.Sprintf("Keep %s: %s", humanizeFacet(facet), previous),
			Value: fmt.Sprintf("restore:%s=%s", facet, previous),
		})

		slog.Info("relaxing over-constrained search",
			"shopID", shopID,
			"facet", facet,
			"previous", previous,
			"step", i+1)

		result, err := e.retriever.Search(ctx, shopID, query, vector, limit, remaining)
		if err != nil {
			return nil, fmt.Errorf("retrieval failed during relaxation step %d: %w", i+1, err)
		}

		if !result.Empty() {
			outcome.Result = result
			return outcome, nil
		}
	}

	return outcome, nil
}

// mostRestrictive picks the next filter to relax: any price facet first,
// then the filter with the most specific value (longest, as a proxy for
// specificity), with the facet name as a deterministic tie-break.
func mostRestrictive(filters map[string]string) (string, bool) {
	if len(filters) == 0 {
		return "", false
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if priceFacets[name] {
			return name, true
		}
	}

	best := names[0]
	for _, name := range names[1:] {
		if len(filters[name]) > len(filters[best]) {
			best = name
		}
	}
	return best, true
}

// describeRelaxation builds the human-readable step description used in
// "I broadened your search" messaging.
func describeRelaxation(facet, previous string) string {
	if priceFacets[facet] {
		return fmt.Sprintf("removed the price limit (%s)", previous)
	}
	return fmt.Sprintf("dropped the %s filter (%s)", humanizeFacet(facet), previous)
}

// humanizeFacet turns a facet key into display text: "price_bucket" ->
// "price bucket".
func humanizeFacet(facet string) string {
	return strings.ReplaceAll(facet, "_", " ")
}
