// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable threshold the engine consults. All routing
// constants live here so no magic number is scattered through the decision
// code; a store profile YAML can override any of them per deployment.
//
// # Description
//
// Defaults come from DefaultConfig(). Stores with unusual catalogs (very few
// vendors, narrow price bands) override the facet and clarify settings via
// LoadProfile.
//
// # Thread Safety
//
// Config is read-only after construction.
type Config struct {
	// MaxProductsPerTurn caps the products surfaced in any single turn.
	MaxProductsPerTurn int `yaml:"max_products_per_turn"`

	// MaxProductsWithClarifier caps preview products on a clarify turn.
	MaxProductsWithClarifier int `yaml:"max_products_with_clarifier"`

	// AlwaysClarifyAbove forces a clarify turn when the result count
	// exceeds it, regardless of groundability.
	AlwaysClarifyAbove int `yaml:"always_clarify_above"`

	// CuratedSetCap is the result count at or below which the router
	// recommends directly.
	CuratedSetCap int `yaml:"curated_set_cap"`

	// GroundabilityThreshold is the minimum score at which the engine
	// trusts retrieval enough to recommend or clarify.
	GroundabilityThreshold float64 `yaml:"groundability_threshold"`

	// RelevanceFloor is the per-candidate relevance below which a candidate
	// does not count toward coverage.
	RelevanceFloor float64 `yaml:"relevance_floor"`

	// SpreadWindow is the top-5 score spread above which the consistency
	// bonus decays to zero.
	SpreadWindow float64 `yaml:"spread_window"`

	// EntropyFloor is the minimum Shannon entropy (bits) a facet must carry
	// to be worth asking about.
	EntropyFloor float64 `yaml:"entropy_floor"`

	// FacetMinValues and FacetMaxValues bound the distinct-value count of
	// an askable facet. Too few values cannot narrow; too many overwhelm.
	FacetMinValues int `yaml:"facet_min_values"`
	FacetMaxValues int `yaml:"facet_max_values"`

	// VendorCoverageFloor is the minimum fraction of candidates that must
	// carry a vendor before the vendor facet is askable.
	VendorCoverageFloor float64 `yaml:"vendor_coverage_floor"`

	// MaxFacetAsks is the per-session ask budget per facet. Once reached,
	// the facet is never selected again in the session.
	MaxFacetAsks int `yaml:"max_facet_asks"`

	// MaxRelaxationSteps bounds the relaxation loop (and therefore the
	// number of re-retrievals on a zero-result turn).
	MaxRelaxationSteps int `yaml:"max_relaxation_steps"`

	// AnchorDecay is the multiplicative confidence decay applied to the
	// topic anchor each turn it is not reinforced.
	AnchorDecay float64 `yaml:"anchor_decay"`

	// AnchorUsableConfidence is the minimum anchor confidence at which an
	// ambiguous pronoun resolves against the anchor instead of triggering
	// a disambiguation turn.
	AnchorUsableConfidence float64 `yaml:"anchor_usable_confidence"`

	// AssistantMentionConfidence and DominantCategoryConfidence are the
	// anchor confidences assigned by the weaker reinforcement sources.
	AssistantMentionConfidence float64 `yaml:"assistant_mention_confidence"`
	DominantCategoryConfidence float64 `yaml:"dominant_category_confidence"`

	// EnrichmentTimeout bounds advisory fact-sheet fetches. Expiry degrades
	// to a fallback reason string, never a failed turn.
	EnrichmentTimeout time.Duration `yaml:"enrichment_timeout"`

	// Categories and Brands are the store vocabulary used for anchor
	// replacement and for pronoun disambiguation choices.
	Categories []string `yaml:"categories"`
	Brands     []string `yaml:"brands"`
}

// DefaultConfig returns the hardcoded policy defaults.
func DefaultConfig() Config {
	return Config{
		MaxProductsPerTurn:         3,
		MaxProductsWithClarifier:   2,
		AlwaysClarifyAbove:         12,
		CuratedSetCap:              3,
		GroundabilityThreshold:     0.45,
		RelevanceFloor:             0.55,
		SpreadWindow:               0.30,
		EntropyFloor:               1.0,
		FacetMinValues:             2,
		FacetMaxValues:             6,
		VendorCoverageFloor:        0.5,
		MaxFacetAsks:               2,
		MaxRelaxationSteps:         4,
		AnchorDecay:                0.8,
		AnchorUsableConfidence:     0.4,
		AssistantMentionConfidence: 0.6,
		DominantCategoryConfidence: 0.45,
		EnrichmentTimeout:          1500 * time.Millisecond,
	}
}

// LoadProfile reads a store profile YAML over the defaults.
//
// # Description
//
// Missing keys keep their default values; present keys override. The profile
// is the supported way to tune the always-clarify ceiling, entropy floor,
// and store vocabulary without a rebuild.
//
// # Inputs
//
//   - path: Path to the YAML profile file.
//
// # Outputs
//
//   - Config: Defaults overlaid with the profile.
//   - error: Non-nil when the file is unreadable or malformed.
func LoadProfile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read store profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse store profile: %w", err)
	}

	return validateConfig(cfg), nil
}

// validateConfig corrects out-of-range values back to defaults. Invalid
// profiles degrade rather than fail startup.
func validateConfig(cfg Config) Config {
	defaults := DefaultConfig()

	if cfg.MaxProductsPerTurn < 1 || cfg.MaxProductsPerTurn > defaults.MaxProductsPerTurn {
		cfg.MaxProductsPerTurn = defaults.MaxProductsPerTurn
	}
	if cfg.MaxProductsWithClarifier < 1 || cfg.MaxProductsWithClarifier >= cfg.MaxProductsPerTurn {
		cfg.MaxProductsWithClarifier = defaults.MaxProductsWithClarifier
	}
	if cfg.CuratedSetCap < 1 {
		cfg.CuratedSetCap = defaults.CuratedSetCap
	}
	if cfg.AlwaysClarifyAbove <= cfg.CuratedSetCap {
		cfg.AlwaysClarifyAbove = defaults.AlwaysClarifyAbove
	}
	if cfg.GroundabilityThreshold <= 0 || cfg.GroundabilityThreshold >= 1 {
		cfg.GroundabilityThreshold = defaults.GroundabilityThreshold
	}
	if cfg.FacetMinValues < 2 {
		cfg.FacetMinValues = defaults.FacetMinValues
	}
	if cfg.FacetMaxValues < cfg.FacetMinValues {
		cfg.FacetMaxValues = defaults.FacetMaxValues
	}
	if cfg.MaxRelaxationSteps < 1 {
		cfg.MaxRelaxationSteps = defaults.MaxRelaxationSteps
	}
	if cfg.AnchorDecay <= 0 || cfg.AnchorDecay >= 1 {
		cfg.AnchorDecay = defaults.AnchorDecay
	}
	if cfg.EnrichmentTimeout <= 0 {
		cfg.EnrichmentTimeout = defaults.EnrichmentTimeout
	}

	return cfg
}
