// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval implements the concierge's product search against
// Weaviate, plus the embedding client the search depends on.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/clerkdesk/clerkdesk/services/concierge/datatypes"
	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
)

// propertyFacets are the filter facets stored as first-class Product
// properties. Every other facet lives inside the tags array as "name:value".
var propertyFacets = map[string]bool{
	"vendor":       true,
	"product_type": true,
	"price_bucket": true,
}

// bm25ScoreCeiling caps the relevance assigned to lexical-only matches.
// Without a vector, certainty is unavailable and lexical rank is a weaker
// signal, so scores are normalized into [0, bm25ScoreCeiling].
const bm25ScoreCeiling = 0.6

// Searcher runs product retrieval against Weaviate.
//
// # Description
//
// Searcher implements the retrieval contract: query text, an optional query
// vector, and the session's active filters go in; a ranked, faceted product
// list comes out. With a vector present the search is nearVector and
// relevance is Weaviate's certainty. Without one (embedding degraded) the
// search falls back to BM25 over the title and description.
//
// # Thread Safety
//
// Safe for concurrent use.
type Searcher struct {
	client *weaviate.Client
}

var _ engine.Retriever = (*Searcher)(nil)

// NewSearcher creates a Searcher over the given Weaviate client.
func NewSearcher(client *weaviate.Client) *Searcher {
	return &Searcher{client: client}
}

// Search runs one retrieval call. Zero results is a valid outcome; an error
// means Weaviate could not answer at all.
func (s *Searcher) Search(
	ctx context.Context,
	shopID, query string,
	vector []float32,
	limit int,
	activeFilters map[string]string,
) (*engine.RetrievalResult, error) {
	where := buildWhere(shopID, activeFilters)

	fields := []graphql.Field{
		{Name: "product_id"},
		{Name: "title"},
		{Name: "price"},
		{Name: "price_bucket"},
		{Name: "vendor"},
		{Name: "product_type"},
		{Name: "tags"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	builder := s.client.GraphQL().Get().
		WithClassName(datatypes.ProductClass).
		WithFields(fields...).
		WithWhere(where).
		WithLimit(limit)

	if vector != nil {
		nearVector := s.client.GraphQL().NearVectorArgBuilder().
			WithVector(vector)
		builder = builder.WithNearVector(nearVector)
	} else {
		slog.Debug("No query vector, falling back to BM25", "shop_id", shopID)
		bm25 := s.client.GraphQL().Bm25ArgBuilder().
			WithQuery(query).
			WithProperties("title", "description", "tags")
		builder = builder.WithBM25(bm25)
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		slog.Error("Product search failed", "shop_id", shopID, "error", err)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProductQueryResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	candidates := toCandidates(parsed.Get.Product, vector == nil)
	return &engine.RetrievalResult{
		Products: candidates,
		Facets:   deriveFacets(candidates),
	}, nil
}

// buildWhere combines the shop scope, the stock guard, and the session's
// active filters into a single AND filter.
func buildWhere(shopID string, activeFilters map[string]string) *filters.WhereBuilder {
	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"shop_id"}).
			WithOperator(filters.Equal).
			WithValueString(shopID),
		filters.Where().
			WithPath([]string{"in_stock"}).
			WithOperator(filters.Equal).
			WithValueBoolean(true),
	}

	// Deterministic operand order regardless of map iteration.
	names := make([]string, 0, len(activeFilters))
	for name := range activeFilters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := activeFilters[name]
		if name == engine.PriceFilterFacet {
			operand, ok := priceOperand(value)
			if !ok {
				slog.Warn("ignoring unparseable price filter", "value", value)
				continue
			}
			operands = append(operands, operand)
			continue
		}
		if propertyFacets[name] {
			operands = append(operands, filters.Where().
				WithPath([]string{name}).
				WithOperator(filters.Equal).
				WithValueString(value))
			continue
		}
		// Non-property facets are stored inside tags as "name:value".
		operands = append(operands, filters.Where().
			WithPath([]string{"tags"}).
			WithOperator(filters.ContainsAny).
			WithValueText(name+":"+value))
	}

	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}

// priceOperand translates an "under_N"/"over_N" budget answer into a
// numeric comparison on the price property. Under is a strict bound so an
// "Under $40" shopper never sees a $40 product; over is inclusive.
func priceOperand(value string) (*filters.WhereBuilder, bool) {
	bound, under, ok := engine.ParsePriceBound(value)
	if !ok {
		return nil, false
	}
	op := filters.GreaterThanEqual
	if under {
		op = filters.LessThan
	}
	return filters.Where().
		WithPath([]string{"price"}).
		WithOperator(op).
		WithValueNumber(bound), true
}

// toCandidates converts parsed Weaviate rows into engine candidates, ranked
// best-first. Lexical results carry no certainty, so their relevance is a
// rank-decayed score under bm25ScoreCeiling.
func toCandidates(rows []datatypes.ProductResult, lexical bool) []engine.ProductCandidate {
	out := make([]engine.ProductCandidate, 0, len(rows))
	for i, row := range rows {
		score := row.Additional.Certainty
		if lexical {
			score = bm25ScoreCeiling - float64(i)*0.05
			if score < 0.1 {
				score = 0.1
			}
		}
		out = append(out, engine.ProductCandidate{
			ID:             row.ProductID,
			Title:          row.Title,
			Price:          row.Price,
			Vendor:         row.Vendor,
			ProductType:    row.ProductType,
			Tags:           row.Tags,
			RelevanceScore: score,
		})
	}
	return out
}

// deriveFacets computes the distinct-value distributions the clarifier
// selector reads, from the candidate set itself. Property facets come from
// their fields; "name:value" tags become additional facets.
func deriveFacets(candidates []engine.ProductCandidate) map[string][]string {
	seen := map[string]map[string]bool{}
	add := func(facet, value string) {
		if value == "" {
			return
		}
		if seen[facet] == nil {
			seen[facet] = map[string]bool{}
		}
		seen[facet][value] = true
	}

	for _, c := range candidates {
		add("vendor", c.Vendor)
		add("product_type", c.ProductType)
		add("price_bucket", datatypes.BucketForPrice(c.Price))
		for _, tag := range c.Tags {
			if name, value, ok := strings.Cut(tag, ":"); ok && name != "" {
				add(name, value)
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	facets := make(map[string][]string, len(seen))
	for facet, values := range seen {
		list := make([]string, 0, len(values))
		for v := range values {
			list = append(list, v)
		}
		sort.Strings(list)
		facets[facet] = list
	}
	return facets
}
