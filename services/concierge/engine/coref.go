// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"regexp"
	"strings"
)

// pronounPattern matches referential pronouns that need an antecedent.
var pronounPattern = regexp.MustCompile(`(?i)\b(it|its|they|them|these|those|this\s+one|that\s+one)\b`)

// CoreferenceResolver maintains the topic anchor across turns and decides
// whether an ambiguous pronoun can be resolved or must trigger a
// clarification turn.
//
// # Description
//
// The anchor update precedence, strongest source first:
//
//  1. the message explicitly names a known category or brand → replace with
//     full confidence;
//  2. the previous assistant message named a category → replace with medium
//     confidence;
//  3. this turn's retrieval returned a dominant category → adopt it at
//     lower confidence;
//  4. otherwise keep the previous anchor, decayed multiplicatively.
//
// The pronoun check runs before topic classification. When the message
// contains an unresolved referential pronoun and the anchor's confidence is
// below the usable threshold, the engine short-circuits the whole pipeline
// and asks the user to disambiguate, bypassing retrieval entirely.
//
// # Thread Safety
//
// Pure functions over inputs and config; safe for concurrent use.
type CoreferenceResolver struct {
	cfg Config
}

// NewCoreferenceResolver creates a resolver with the given store vocabulary
// and decay settings.
func NewCoreferenceResolver(cfg Config) *CoreferenceResolver {
	return &CoreferenceResolver{cfg: cfg}
}

// NeedsDisambiguation reports whether the message must short-circuit to a
// pronoun clarification turn.
//
// # Description
//
// True when the message carries a referential pronoun, does not itself name
// a category or brand (which would resolve the reference in place), and the
// anchor is absent or below the usable confidence threshold.
//
// # Inputs
//
//   - message: Raw user text.
//   - anchor: Current topic anchor; may be nil on a first turn.
func (r *CoreferenceResolver) NeedsDisambiguation(message string, anchor *TopicAnchor) bool {
	if !pronounPattern.MatchString(message) {
		return false
	}
	if r.explicitSubject(message) != "" {
		return false
	}
	return anchor == nil || anchor.Confidence < r.cfg.AnchorUsableConfidence
}

// DisambiguationOptions returns the quick choices offered on a pronoun
// clarification turn: two to four subject choices plus an open-ended
// escape. Store categories are preferred, then brands; when the profile
// carries no vocabulary the product types seen in this session's newest
// retrieval stand in, so a default-configured store still gets a real
// question. Deterministic for fixed config and evidence.
func (r *CoreferenceResolver) DisambiguationOptions(recent []string) []ClarifierOption {
	options := make([]ClarifierOption, 0, 5)
	add := func(label string) {
		for _, opt := range options {
			if strings.EqualFold(opt.Label, label) {
				return
			}
		}
		options = append(options, ClarifierOption{Label: label, Value: strings.ToLower(label)})
	}

	for _, category := range r.cfg.Categories {
		if len(options) == 4 {
			break
		}
		add(category)
	}
	if len(options) < 2 {
		for _, brand := range r.cfg.Brands {
			if len(options) == 4 {
				break
			}
			add(brand)
		}
	}
	if len(options) < 2 {
		for _, subject := range recent {
			if len(options) == 4 {
				break
			}
			add(subject)
		}
	}

	options = append(options, ClarifierOption{Label: "Something else", Value: "something_else"})
	return options
}

// UpdateAnchor computes the next topic anchor from this turn's evidence.
//
// # Inputs
//
//   - message: Raw user text for this turn.
//   - prevAssistant: Text of the previous assistant message; empty on a
//     first turn.
//   - result: This turn's retrieval result; may be nil when retrieval was
//     skipped.
//   - prev: The anchor carried in from the last turn; may be nil.
//
// # Outputs
//
//   - *TopicAnchor: The replacement anchor, or nil when there is nothing to
//     anchor to (no prior anchor and no new evidence).
func (r *CoreferenceResolver) UpdateAnchor(message, prevAssistant string, result *RetrievalResult, prev *TopicAnchor) *TopicAnchor {
	// 1. Explicit mention in the user message wins outright.
	if subject := r.explicitSubject(message); subject != "" {
		kind := AnchorCategory
		if containsFold(r.cfg.Brands, subject) {
			kind = AnchorBrand
		}
		return &TopicAnchor{Kind: kind, Text: subject, Confidence: 1.0}
	}

	// 2. The assistant's own last message can establish the subject.
	if subject := r.categoryIn(prevAssistant); subject != "" {
		return &TopicAnchor{
			Kind:       AnchorCategory,
			Text:       subject,
			Confidence: r.cfg.AssistantMentionConfidence,
		}
	}

	// 3. A dominant category in this turn's retrieval is weaker evidence.
	if dominant := dominantCategory(result); dominant != "" {
		return &TopicAnchor{
			Kind:       AnchorCategory,
			Text:       dominant,
			Confidence: r.cfg.DominantCategoryConfidence,
		}
	}

	// 4. Nothing reinforced the anchor this turn: decay it.
	if prev != nil {
		return &TopicAnchor{
			Kind:       prev.Kind,
			Text:       prev.Text,
			Confidence: prev.Confidence * r.cfg.AnchorDecay,
		}
	}

	return nil
}

// explicitSubject returns the category or brand the message names, or "".
// Categories are checked before brands; the first vocabulary hit wins.
func (r *CoreferenceResolver) explicitSubject(message string) string {
	if subject := r.categoryIn(message); subject != "" {
		return subject
	}
	lower := strings.ToLower(message)
	for _, brand := range r.cfg.Brands {
		if brand != "" && strings.Contains(lower, strings.ToLower(brand)) {
			return brand
		}
	}
	return ""
}

func (r *CoreferenceResolver) categoryIn(text string) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	for _, category := range r.cfg.Categories {
		if category != "" && strings.Contains(lower, strings.ToLower(category)) {
			return category
		}
	}
	return ""
}

// dominantCategory returns the product type held by a strict majority of
// candidates, or "" when no type dominates.
func dominantCategory(result *RetrievalResult) string {
	if result.Empty() {
		return ""
	}

	counts := make(map[string]int)
	for _, p := range result.Products {
		if p.ProductType != "" {
			counts[strings.ToLower(p.ProductType)]++
		}
	}

	for _, p := range result.Products {
		if p.ProductType == "" {
			continue
		}
		if counts[strings.ToLower(p.ProductType)]*2 > len(result.Products) {
			return p.ProductType
		}
	}
	return ""
}
