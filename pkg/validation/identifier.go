// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, storage keys, or filters. Using these validators prevents
// injection attacks (filter injection, key prefix traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid shop and product identifiers.
// Allows: letters, digits, dots (shop domains like acme.myshopify.com),
// hyphens, and underscores. Max length: 128 characters.
//
// Slashes are deliberately excluded: identifiers are embedded in "/"
// separated storage keys, and a slash would let one shop's identifier
// escape into another shop's key prefix.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// ValidateShopID validates a shop identifier before it is used in catalog
// filters or session-store key prefixes.
//
// Valid shop IDs:
//   - 1-128 characters
//   - Letters and digits
//   - Dots (.) for domain-style IDs like acme.myshopify.com
//   - Hyphens (-) and underscores (_)
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateShopID(shopID); err != nil {
//	    return nil, fmt.Errorf("invalid shop: %w", err)
//	}
//	// Safe to use in a filter or storage key
func ValidateShopID(shopID string) error {
	if shopID == "" {
		return fmt.Errorf("shop identifier cannot be empty")
	}

	if !identifierPattern.MatchString(shopID) {
		return fmt.Errorf("invalid shop identifier format: %q (must be 1-128 alphanumeric chars, dots, hyphens, or underscores)", shopID)
	}

	return nil
}

// ValidateProductID validates a product identifier. Product IDs share the
// shop identifier grammar; they feed the same filters and storage keys.
func ValidateProductID(productID string) error {
	if productID == "" {
		return fmt.Errorf("product identifier cannot be empty")
	}

	if !identifierPattern.MatchString(productID) {
		return fmt.Errorf("invalid product identifier format: %q (must be 1-128 alphanumeric chars, dots, hyphens, or underscores)", productID)
	}

	return nil
}

// ValidateProductIDs validates multiple product identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateProductIDs(productIDs []string) error {
	var invalid []string
	for _, id := range productIDs {
		if err := ValidateProductID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid product identifiers: %v", invalid)
	}
	return nil
}

// SanitizeShopID normalizes and validates a shop identifier.
// Returns the lowercase identifier if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeShop, err := validation.SanitizeShopID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeShop is lowercase and validated
func SanitizeShopID(shopID string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(shopID))
	if err := ValidateShopID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
