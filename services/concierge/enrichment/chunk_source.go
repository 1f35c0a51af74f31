// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/clerkdesk/clerkdesk/services/concierge/datatypes"
)

// factSheetChunks is how many leading description chunks form a fact sheet.
const factSheetChunks = 2

// ChunkSource reads fact sheets from the ProductChunk class in Weaviate.
//
// The fact sheet is the first chunks of the product description in ingest
// order, which is where spec-like copy (materials, weights, care) lives.
type ChunkSource struct {
	client *weaviate.Client
}

var _ FactSource = (*ChunkSource)(nil)

// NewChunkSource creates a ChunkSource over the given Weaviate client.
func NewChunkSource(client *weaviate.Client) *ChunkSource {
	return &ChunkSource{client: client}
}

// Fetch returns the fact sheet for one product, or an error when the product
// has no chunks.
func (s *ChunkSource) Fetch(ctx context.Context, shopID, productID string) (string, error) {
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"shop_id"}).
				WithOperator(filters.Equal).
				WithValueString(shopID),
			filters.Where().
				WithPath([]string{"product_id"}).
				WithOperator(filters.Equal).
				WithValueString(productID),
		})

	sortBy := graphql.Sort{Path: []string{"chunk_index"}, Order: graphql.Asc}

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunk_index"},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ProductChunkClass).
		WithFields(fields...).
		WithWhere(where).
		WithSort(sortBy).
		WithLimit(factSheetChunks).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("weaviate chunk lookup failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProductChunkQueryResponse](resp)
	if err != nil {
		return "", fmt.Errorf("failed to parse chunk results: %w", err)
	}

	chunks := parsed.Get.ProductChunk
	if len(chunks) == 0 {
		return "", fmt.Errorf("no chunks for product %s", productID)
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, strings.TrimSpace(c.Content))
	}
	return strings.Join(parts, " "), nil
}
