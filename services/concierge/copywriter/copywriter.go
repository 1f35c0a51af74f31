// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package copywriter renders the narrative strings of a turn from slot
// values. The decision core supplies slots only; all prose lives here.
package copywriter

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
)

// template is one lead/detail variant. Slot placeholders use {name} syntax
// and are substituted verbatim; unknown placeholders are left in place.
type template struct {
	lead   string
	detail string
}

// chatTemplates are keyed by topic; all other modes are topic-independent.
var chatTemplates = map[engine.Topic][]template{
	engine.TopicRapport: {
		{lead: "Happy to help! What are you shopping for today?"},
		{lead: "Hi there! Let me know what you're looking for and I'll point you the right way."},
	},
	engine.TopicStoreInfo: {
		{
			lead:   "Good question about the store.",
			detail: "Opening hours, locations, and contact details are on our store page; anything catalog-related I can answer right here.",
		},
	},
	engine.TopicPolicyInfo: {
		{
			lead:   "Here's the short version of our policy.",
			detail: "Returns are accepted within 30 days unworn with tags; full details are on the policy page.",
		},
	},
	engine.TopicProductInfo: {
		{lead: "Here's what I know about that."},
	},
	engine.TopicCommerce: {
		{
			lead:   "I'm not confident I found what you meant.",
			detail: "Could you describe it a little differently?",
		},
	},
}

var modeTemplates = map[engine.ModeKind][]template{
	engine.ModeClarify: {
		{
			lead:   "I found {count} options that could fit.",
			detail: "Which {facet} would you prefer?",
		},
		{
			lead:   "There are {count} matches so far.",
			detail: "Narrowing by {facet} would help. Any preference?",
		},
	},
	engine.ModeRecommend: {
		{lead: "Here are {count} picks I'd stand behind."},
		{lead: "These {count} stood out for what you described."},
	},
	engine.ModeCompare: {
		{lead: "Here's how those {count} stack up side by side."},
	},
	engine.ModeDeadEnd: {
		{
			lead: "I couldn't find anything matching, even after loosening {relaxed}.",
		},
	},
}

// Writer is the template-backed copy layer.
//
// # Description
//
// Writer picks a deterministic template variant per (mode, topic, slots) and
// substitutes slot values. When a paraphraser is attached, the rendered lead
// is optionally rewritten for variety; paraphrase failures fall back to the
// template output, so the turn never depends on the model being up.
//
// # Thread Safety
//
// Safe for concurrent use.
type Writer struct {
	paraphraser Paraphraser
}

var _ engine.CopyWriter = (*Writer)(nil)

// Paraphraser rewrites a rendered line while preserving its meaning.
type Paraphraser interface {
	Paraphrase(ctx context.Context, text string) (string, error)
}

// NewWriter creates a template-only Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WithParaphraser attaches an optional paraphrase layer.
func (w *Writer) WithParaphraser(p Paraphraser) *Writer {
	w.paraphraser = p
	return w
}

// Compose renders the lead/detail pair for the decided mode and topic.
func (w *Writer) Compose(ctx context.Context, mode engine.ModeKind, topic engine.Topic, slots engine.CopySlots) (engine.CopyBlock, error) {
	variants, err := templatesFor(mode, topic)
	if err != nil {
		return engine.CopyBlock{}, err
	}

	tpl := variants[variantIndex(mode, topic, slots, len(variants))]
	block := engine.CopyBlock{
		Lead:   substitute(tpl.lead, slots),
		Detail: substitute(tpl.detail, slots),
	}

	if w.paraphraser != nil {
		rewritten, perr := w.paraphraser.Paraphrase(ctx, block.Lead)
		if perr == nil && rewritten != "" {
			block.Lead = rewritten
		}
	}
	return block, nil
}

func templatesFor(mode engine.ModeKind, topic engine.Topic) ([]template, error) {
	if mode == engine.ModeChat {
		if variants, ok := chatTemplates[topic]; ok {
			return variants, nil
		}
		return chatTemplates[engine.TopicCommerce], nil
	}
	variants, ok := modeTemplates[mode]
	if !ok {
		return nil, fmt.Errorf("no copy templates for mode %q", mode)
	}
	return variants, nil
}

// variantIndex hashes the full slot context so identical turns always render
// identically while adjacent turns get variety.
func variantIndex(mode engine.ModeKind, topic engine.Topic, slots engine.CopySlots, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(mode))
	_, _ = h.Write([]byte(topic))
	for _, key := range []string{"reason", "facet", "count", "relaxed"} {
		_, _ = h.Write([]byte(slots[key]))
	}
	return int(h.Sum32() % uint32(n))
}

func substitute(text string, slots engine.CopySlots) string {
	if text == "" || len(slots) == 0 {
		return text
	}
	pairs := make([]string, 0, len(slots)*2)
	for name, value := range slots {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
