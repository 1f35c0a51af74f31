// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Type Parameters
//
//   - T: The target struct type with json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("Product").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[ProductQueryResponse](resp)
//	if err != nil { ... }
//
//	for _, p := range parsed.Get.Product {
//	    fmt.Println(p.Title)
//	}
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Common Weaviate Response Types
// =============================================================================

// ProductQueryResponse represents the response from querying the Product class.
type ProductQueryResponse struct {
	Get struct {
		Product []ProductResult `json:"Product"`
	} `json:"Get"`
}

// ProductResult represents a single product from a query.
type ProductResult struct {
	ShopID      string   `json:"shop_id"`
	ProductID   string   `json:"product_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Vendor      string   `json:"vendor"`
	ProductType string   `json:"product_type"`
	Price       float64  `json:"price"`
	PriceBucket string   `json:"price_bucket"`
	Tags        []string `json:"tags"`
	InStock     bool     `json:"in_stock"`
	Additional  struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// ProductChunkQueryResponse represents the response from querying the
// ProductChunk class.
type ProductChunkQueryResponse struct {
	Get struct {
		ProductChunk []ProductChunkResult `json:"ProductChunk"`
	} `json:"Get"`
}

// ProductChunkResult represents a single description chunk from a query.
type ProductChunkResult struct {
	ShopID     string `json:"shop_id"`
	ProductID  string `json:"product_id"`
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
	Additional struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}
