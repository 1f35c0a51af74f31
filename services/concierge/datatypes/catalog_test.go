// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "testing"

func validIngestRequest() *IngestRequest {
	return &IngestRequest{
		ShopID: "shop-1",
		Products: []ProductRecord{
			{
				ProductID:   "p-1",
				Title:       "Ridgeline Shell Jacket",
				Description: "Fully seam-sealed waterproof shell.",
				Vendor:      "Acme",
				ProductType: "jacket",
				Price:       179.00,
				InStock:     true,
			},
		},
	}
}

func TestIngestRequest_Validate_Valid(t *testing.T) {
	req := validIngestRequest()
	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestIngestRequest_Validate_EmptyProducts(t *testing.T) {
	req := validIngestRequest()
	req.Products = nil
	if err := req.Validate(); err == nil {
		t.Error("expected error for empty product list")
	}
}

func TestIngestRequest_Validate_MissingProductID(t *testing.T) {
	req := validIngestRequest()
	req.Products[0].ProductID = ""
	if err := req.Validate(); err == nil {
		t.Error("expected error for missing product_id")
	}
}

func TestIngestRequest_Validate_NegativePrice(t *testing.T) {
	req := validIngestRequest()
	req.Products[0].Price = -1
	if err := req.Validate(); err == nil {
		t.Error("expected error for negative price")
	}
}

func TestIngestRequest_Validate_BatchOverCap(t *testing.T) {
	req := validIngestRequest()
	record := req.Products[0]
	for i := 0; i <= MaxIngestBatch; i++ {
		req.Products = append(req.Products, record)
	}
	if err := req.Validate(); err == nil {
		t.Error("expected error for batch over the size cap")
	}
}

func TestIngestRequest_EnsureDefaults_DerivesBucket(t *testing.T) {
	req := validIngestRequest()
	req.EnsureDefaults()
	if req.Products[0].PriceBucket != "under_250" {
		t.Errorf("expected derived bucket under_250, got %q", req.Products[0].PriceBucket)
	}
}

func TestIngestRequest_EnsureDefaults_PreservesBucket(t *testing.T) {
	req := validIngestRequest()
	req.Products[0].PriceBucket = "custom_band"
	req.EnsureDefaults()
	if req.Products[0].PriceBucket != "custom_band" {
		t.Error("explicit price bucket should be preserved")
	}
}

func TestBucketForPrice(t *testing.T) {
	cases := []struct {
		price float64
		want  string
	}{
		{5, "under_10"},
		{10, "under_50"},
		{49.99, "under_50"},
		{99, "under_100"},
		{180, "under_250"},
		{900, "premium"},
	}
	for _, tc := range cases {
		if got := BucketForPrice(tc.price); got != tc.want {
			t.Errorf("BucketForPrice(%v) = %q, want %q", tc.price, got, tc.want)
		}
	}
}
