// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateShopID(t *testing.T) {
	tests := []struct {
		name    string
		shopID  string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "acme", false},
		{"single char", "a", false},
		{"with digit", "shop42", false},
		{"domain style", "acme.myshopify.com", false},
		{"with hyphen", "north-star-goods", false},
		{"with underscore", "outlet_store", false},
		{"uppercase allowed", "Acme", false},
		{"max length", strings.Repeat("a", 128), false},

		// Invalid identifiers - injection attempts
		{"empty", "", true},
		{"key traversal", "acme/other-shop", true},
		{"filter injection", `acme"} or {path:["*"]`, true},
		{"newline injection", "acme\nshop", true},
		{"too long", strings.Repeat("a", 129), true},
		{"special chars", "acme@#$", true},
		{"spaces", "ac me", true},
		{"unicode", "acme™", true},
		{"starts with dot", ".acme", true},
		{"starts with hyphen", "-acme", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateShopID(tt.shopID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateShopID(%q) error = %v, wantErr %v", tt.shopID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateProductID(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		wantErr   bool
	}{
		{"numeric", "8891234", false},
		{"handle", "wool-runner-navy", false},
		{"empty", "", true},
		{"slash", "prod/1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProductID(tt.productID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProductID(%q) error = %v, wantErr %v", tt.productID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateProductIDs(t *testing.T) {
	tests := []struct {
		name       string
		productIDs []string
		wantErr    bool
	}{
		{"all valid", []string{"p-1", "p-2", "p-3"}, false},
		{"one invalid", []string{"p-1", "bad!", "p-3"}, true},
		{"all invalid", []string{"a/b", "c d"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProductIDs(tt.productIDs)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProductIDs(%v) error = %v, wantErr %v", tt.productIDs, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeShopID(t *testing.T) {
	tests := []struct {
		name    string
		shopID  string
		want    string
		wantErr bool
	}{
		{"lowercase passthrough", "acme", "acme", false},
		{"uppercase normalized", "ACME", "acme", false},
		{"mixed case", "AcMe", "acme", false},
		{"with spaces trimmed", "  acme  ", "acme", false},
		{"invalid rejected", "bad!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeShopID(tt.shopID)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeShopID(%q) error = %v, wantErr %v", tt.shopID, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeShopID(%q) = %q, want %q", tt.shopID, got, tt.want)
			}
		})
	}
}
