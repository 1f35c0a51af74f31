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

// TopicClassifier maps raw user text to exactly one Topic.
//
// # Description
//
// Classification is an ordered list of named predicates evaluated
// top-to-bottom. The precedence is policy, not accident:
//
//  1. rapport greetings
//  2. policy phrases (shipping/returns/refunds)
//  3. store-identity phrases
//  4. price or shopping-verb override (forces commerce even when
//     informational phrasing is also present)
//  5. generic informational phrasing (product_info)
//  6. default commerce
//
// The classifier is total: every input maps to a topic, ambiguity is never
// an error. It is pure and side-effect free.
//
// # Thread Safety
//
// Safe for concurrent use; all state is compiled patterns.
type TopicClassifier struct {
	rules []topicRule
}

// topicRule is one named predicate in the precedence list.
type topicRule struct {
	name    string
	topic   Topic
	matches func(string) bool
}

var (
	rapportPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|howdy|good\s+(morning|afternoon|evening)|thanks|thank\s+you|cheers|bye|goodbye)\b`)

	policyPattern = regexp.MustCompile(`(?i)\b(shipping|ship\s+to|delivery|deliver|returns?\s+policy|return\s+(it|this|an?\s)|refunds?|exchange|warranty|track\s+my\s+order|order\s+status|cancel\s+my\s+order)\b`)

	storePattern = regexp.MustCompile(`(?i)\b(who\s+are\s+you|about\s+(your|this)\s+(store|shop)|store\s+hours|are\s+you\s+open|where\s+are\s+you\s+located|what\s+do\s+you\s+sell|gift\s+cards?)\b`)

	// pricePattern recognizes explicit price expressions: "$200",
	// "under 50 dollars", "how much", "price", "cost".
	pricePattern = regexp.MustCompile(`(?i)(\$\s?\d|\b\d+\s?(dollars|bucks|usd)\b|\b(price|cost|how\s+much|cheap(est)?|budget|under|less\s+than|at\s+most)\b)`)

	shoppingVerbPattern = regexp.MustCompile(`(?i)\b(buy|purchase|order|shop(ping)?\s+for|looking\s+for|show\s+me|find\s+me|need\s+a|want\s+a|recommend|suggest|gift\s+for|add\s+to\s+cart|compare)\b`)

	informationalPattern = regexp.MustCompile(`(?i)\b(what\s+is|what\s+are|what's\s+the\s+difference|explain|how\s+(do|does)\b.*\bwork|difference\s+between|tell\s+me\s+about|made\s+of|material)\b`)
)

// NewTopicClassifier builds the classifier with the standard precedence
// list.
func NewTopicClassifier() *TopicClassifier {
	return &TopicClassifier{
		rules: []topicRule{
			{name: "rapport_greeting", topic: TopicRapport, matches: rapportPattern.MatchString},
			{name: "policy_phrase", topic: TopicPolicyInfo, matches: policyPattern.MatchString},
			{name: "store_identity", topic: TopicStoreInfo, matches: storePattern.MatchString},
			// The override rule: an explicit price or purchase verb always
			// wins over an "explain/what is" pattern.
			{name: "price_override", topic: TopicCommerce, matches: pricePattern.MatchString},
			{name: "shopping_verb", topic: TopicCommerce, matches: shoppingVerbPattern.MatchString},
			{name: "informational", topic: TopicProductInfo, matches: informationalPattern.MatchString},
		},
	}
}

// Classify returns the topic of the given message text.
//
// # Description
//
// Evaluates the precedence list top-to-bottom and returns the first match.
// Messages matching no rule default to commerce, the safest assumption for
// a shopping surface.
//
// # Inputs
//
//   - text: Raw user message. Empty text classifies as rapport.
//
// # Outputs
//
//   - Topic: Always a valid topic; never an error.
func (c *TopicClassifier) Classify(text string) Topic {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return TopicRapport
	}

	for _, rule := range c.rules {
		if rule.matches(trimmed) {
			return rule.topic
		}
	}

	return TopicCommerce
}

// ClassifyWithRule returns the topic plus the name of the rule that fired,
// for the turn audit trail. A default classification reports "default".
func (c *TopicClassifier) ClassifyWithRule(text string) (Topic, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return TopicRapport, "empty_message"
	}

	for _, rule := range c.rules {
		if rule.matches(trimmed) {
			return rule.topic, rule.name
		}
	}

	return TopicCommerce, "default"
}

// mentionsComparison reports whether the message contains explicit
// comparison language. Used by the router for the compare mode gate.
var comparisonPattern = regexp.MustCompile(`(?i)\b(compare|versus|vs\.?)\b`)

func mentionsComparison(text string) bool {
	return comparisonPattern.MatchString(text)
}
