// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// MaxIngestBatch caps the number of products accepted per ingest request.
const MaxIngestBatch = 200

var catalogValidate *validator.Validate

func init() {
	catalogValidate = validator.New()
}

// ProductRecord is one catalog product on the ingest wire.
//
// # Description
//
// A ProductRecord carries everything retrieval needs: filterable merchandising
// attributes plus the free-text description that gets chunked and embedded.
// The price bucket is derived server-side when absent.
type ProductRecord struct {
	ProductID   string   `json:"product_id" validate:"required,max=128"`
	Title       string   `json:"title" validate:"required,max=512"`
	Description string   `json:"description" validate:"max=65536"`
	Vendor      string   `json:"vendor" validate:"max=256"`
	ProductType string   `json:"product_type" validate:"max=256"`
	Price       float64  `json:"price" validate:"gte=0"`
	PriceBucket string   `json:"price_bucket" validate:"omitempty,max=64"`
	Tags        []string `json:"tags" validate:"max=32,dive,max=128"`
	InStock     bool     `json:"in_stock"`
}

// IngestRequest is the POST /v1/catalog/products body.
type IngestRequest struct {
	ShopID   string          `json:"shop_id" validate:"required,max=128"`
	Products []ProductRecord `json:"products" validate:"required,min=1,max=200,dive"`
}

// Validate checks the request against its tags.
func (r *IngestRequest) Validate() error {
	return catalogValidate.Struct(r)
}

// EnsureDefaults derives server-side fields the storefront may omit.
func (r *IngestRequest) EnsureDefaults() {
	for i := range r.Products {
		if r.Products[i].PriceBucket == "" {
			r.Products[i].PriceBucket = BucketForPrice(r.Products[i].Price)
		}
	}
}

// BucketForPrice maps a price onto the coarse band used by clarifier options.
func BucketForPrice(price float64) string {
	switch {
	case price < 10:
		return "under_10"
	case price < 50:
		return "under_50"
	case price < 100:
		return "under_100"
	case price < 250:
		return "under_250"
	default:
		return "premium"
	}
}

// IngestResponse reports how many products and description chunks were
// written for an ingest request.
type IngestResponse struct {
	ShopID        string `json:"shop_id"`
	ProductCount  int    `json:"product_count"`
	ChunkCount    int    `json:"chunk_count"`
	SkippedCount  int    `json:"skipped_count,omitempty"`
	ElapsedMillis int64  `json:"elapsed_ms"`
}
