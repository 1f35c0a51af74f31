// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("clerkdesk.concierge.engine")

// TurnRequest carries one inbound user message plus its conversation
// context into the engine.
type TurnRequest struct {
	ShopID  string
	Message Message

	// History is the prior conversation, oldest first. Read-only.
	History []Message

	// State is the session record loaded by the caller; nil means a first
	// turn. The engine never mutates it; changes come back in the patch.
	State *SessionState
}

// TurnResult is the engine's complete output for one turn: the renderable
// turn and the state patch the caller must persist.
type TurnResult struct {
	Turn  *Turn
	Patch StatePatch
}

// Engine is the dialogue routing and retrieval-orchestration core.
//
// # Description
//
// Engine wires the eight decision components together and drives the
// per-turn pipeline. It is logically synchronous and single-threaded per
// request; concurrent turns for different sessions are fully independent.
//
// # Thread Safety
//
// Safe for concurrent use across sessions. The caller must serialize turns
// within one session.
type Engine struct {
	cfg Config

	topics   *TopicClassifier
	grounder *GroundabilityScorer
	facets   *FacetSelector
	router   *ModeRouter
	coref    *CoreferenceResolver
	gate     *CoherenceGate
	relaxer  *RelaxationEngine

	retriever Retriever
	embedder  Embedder
	copy      CopyWriter
	enricher  Enricher
}

// New creates an engine over the given collaborators.
//
// # Inputs
//
//   - cfg: Engine thresholds and store vocabulary.
//   - retriever: Retrieval collaborator. Must not be nil.
//   - embedder: Embedding collaborator. Must not be nil.
//   - copywriter: Copy/template collaborator. Must not be nil.
//   - enricher: Advisory fact-sheet collaborator. May be nil; evidence then
//     always uses the fallback reason strings.
func New(cfg Config, retriever Retriever, embedder Embedder, copywriter CopyWriter, enricher Enricher) *Engine {
	return &Engine{
		cfg:       cfg,
		topics:    NewTopicClassifier(),
		grounder:  NewGroundabilityScorer(cfg),
		facets:    NewFacetSelector(cfg),
		router:    NewModeRouter(cfg),
		coref:     NewCoreferenceResolver(cfg),
		gate:      NewCoherenceGate(cfg),
		relaxer:   NewRelaxationEngine(cfg, retriever),
		retriever: retriever,
		embedder:  embedder,
		copy:      copywriter,
		enricher:  enricher,
	}
}

// retrievalLimit is how many candidates one search requests. Wide enough
// for the always-clarify ceiling to be observable.
const retrievalLimit = 25

// RunTurn executes the full pipeline for one inbound message.
//
// # Description
//
// Stages run in a fixed, non-reorderable order: pending clarifier
// resolution, pronoun check, topic classification, retrieval, relaxation on
// empty, groundability and facet scoring, mode routing, turn assembly, and
// the coherence gate. Retrieval failures propagate as hard errors; every
// other failure path degrades to a complete, renderable turn.
//
// # Outputs
//
//   - *TurnResult: The assembled turn plus the session patch.
//   - error: Non-nil only when the retrieval collaborator fails.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	ctx, span := tracer.Start(ctx, "RunTurn")
	defer span.End()

	state := req.State.Clone()
	if state == nil {
		state = NewSessionState(req.ShopID, uuid.NewString())
	}

	patch := StatePatch{TurnDelta: 1}
	text := req.Message.Text

	// 1. Resolve any outstanding clarifier against this message.
	if state.Pending != nil {
		e.resolvePending(state, text, &patch)
	}

	// 2. Pronoun check. An unresolvable pronoun short-circuits everything,
	// including retrieval, but only when there is at least one real
	// subject to offer beside the escape; with an empty vocabulary and no
	// retrieval history yet, the turn proceeds down the pipeline instead
	// of asking a question no one can answer.
	if e.coref.NeedsDisambiguation(text, state.Anchor) {
		if options := e.coref.DisambiguationOptions(state.RecentTypes); len(options) >= 2 {
			span.SetAttributes(attribute.Bool("turn.pronoun_short_circuit", true))
			turn := e.assemblePronounClarify(ctx, options)
			patch.Pending = &PendingClarifier{
				Facet:   anchorClarifierFacet,
				Options: options,
			}
			return e.finish(turn, patch, state)
		}
		slog.Debug("pronoun unresolved but no disambiguation choices available")
	}

	// 3. Topic classification. Total; never an error.
	topic, rule := e.topics.ClassifyWithRule(text)
	span.SetAttributes(
		attribute.String("turn.topic", string(topic)),
		attribute.String("turn.topic_rule", rule),
	)

	// 4. Non-retrieval topics answer conversationally without touching
	// the search stack.
	if !topic.WantsRetrieval() {
		patch.Anchor = e.coref.UpdateAnchor(text, lastAssistantText(req.History), nil, state.Anchor)
		turn := e.assembleChat(ctx, topic, "non-commerce topic", nil, nil)
		turn.Meta.RetrievalSkipped = true
		return e.finish(turn, patch, state)
	}

	// 5. Retrieval. Embedding is best-effort; search is not.
	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("embedding failed, falling back to lexical-only retrieval",
			"shopID", req.ShopID, "error", err)
		vector = nil
	}

	result, err := e.retriever.Search(ctx, req.ShopID, text, vector, retrievalLimit, state.ActiveFilters)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	var relaxSteps []RelaxationStep
	var relaxUndo []ClarifierOption
	var relaxedAway []string

	if result.Empty() && len(state.ActiveFilters) > 0 {
		outcome, err := e.relaxer.Relax(ctx, req.ShopID, text, vector, retrievalLimit, state.ActiveFilters)
		if err != nil {
			return nil, err
		}
		result = outcome.Result
		relaxSteps = outcome.Steps
		relaxUndo = outcome.Undo
		for _, step := range outcome.Steps {
			relaxedAway = append(relaxedAway, step.Facet)
			patch.DropFilters = append(patch.DropFilters, step.Facet)
		}
	}

	streak := 0
	if result.Empty() {
		streak = state.ZeroResultStreak + 1
	}
	patch.ZeroResultStreak = &streak

	// Drop any stored filter the current facet distributions no longer
	// allow, so it cannot poison the next turn.
	if !result.Empty() {
		patch.DropFilters = append(patch.DropFilters, state.SanitizeFilters(result.Facets)...)
	}

	// Remember what kinds of products this turn surfaced; they seed the
	// pronoun disambiguation choices when the store vocabulary is empty.
	if types := distinctTypes(result, maxRecentTypes); len(types) > 0 {
		patch.RecentTypes = types
		state.RecentTypes = types
	}

	// 6. Score and select.
	groundability := e.grounder.Score(result)
	facet, facetOK := e.facets.Select(result, state, text)

	// 7. Route.
	mode := e.router.Route(RouteInput{
		Topic:         topic,
		Message:       text,
		Result:        result,
		Groundability: groundability,
		Facet:         facet,
		FacetOK:       facetOK,
		RelaxedAway:   relaxedAway,
	})
	span.SetAttributes(
		attribute.String("turn.mode", string(mode.Kind())),
		attribute.Float64("turn.groundability", groundability),
	)

	// Anchor maintenance happens with full retrieval evidence in hand.
	patch.Anchor = e.coref.UpdateAnchor(text, lastAssistantText(req.History), result, state.Anchor)

	// 8. Assemble.
	turn := e.assemble(ctx, req.ShopID, mode, topic, result, relaxSteps, relaxUndo)
	turn.Meta.Groundability = groundability
	turn.Meta.Relaxations = relaxSteps

	switch m := mode.(type) {
	case ClarifyDecision:
		turn.Meta.ChosenFacet = m.Facet
		patch.Pending = &PendingClarifier{Facet: m.Facet, Options: m.Options}
		patch.AskedFacets = append(patch.AskedFacets, m.Facet)
	}

	return e.finish(turn, patch, state)
}

// finish runs the coherence gate and seals the result. A violation is
// recovered locally: the turn is rebuilt as chat and the correction is
// recorded in the metadata for the observability pipeline.
func (e *Engine) finish(turn *Turn, patch StatePatch, state *SessionState) (*TurnResult, error) {
	if err := e.gate.Validate(turn); err != nil {
		violation := err.(*CoherenceViolation)
		slog.Warn("coherence gate rejected turn",
			"declared", violation.Declared,
			"reason", violation.Reason)

		rebuilt := e.assembleChat(context.Background(), turn.Meta.Topic, "coherence correction", nil, nil)
		rebuilt.Meta = turn.Meta
		rebuilt.Meta.Mode = violation.Corrected
		rebuilt.Meta.CorrectedFrom = violation.Declared
		rebuilt.Meta.CorrectionReason = violation.Reason

		// A corrected turn must not leave a clarifier open that it no
		// longer asks.
		patch.Pending = nil
		patch.ClearPending = true

		turn = rebuilt
	}

	return &TurnResult{Turn: turn, Patch: patch}, nil
}

// resolvePending applies the user's answer to the open clarifier: matched
// option, "skip", or free-text fallback. The clarifier closes in every
// case; exactly one may be open at a time.
func (e *Engine) resolvePending(state *SessionState, text string, patch *StatePatch) {
	pending := state.Pending
	patch.ClearPending = true
	state.Pending = nil

	if isSkipAnswer(text) {
		slog.Debug("clarifier skipped", "facet", pending.Facet)
		return
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	for _, opt := range pending.Options {
		if lower == strings.ToLower(opt.Value) || strings.Contains(lower, strings.ToLower(opt.Label)) {
			if pending.Facet == anchorClarifierFacet {
				// A resolved topic disambiguation establishes the anchor
				// rather than a filter.
				patch.Anchor = &TopicAnchor{Kind: AnchorCategory, Text: opt.Label, Confidence: 1.0}
				state.Anchor = patch.Anchor
				return
			}
			if opt.Value == anyBudgetValue {
				// "No budget in mind" declines the ask; there is no
				// constraint to record.
				slog.Debug("clarifier declined via any-option", "facet", pending.Facet)
				return
			}
			if patch.SetFilters == nil {
				patch.SetFilters = map[string]string{}
			}
			patch.SetFilters[pending.Facet] = opt.Value
			state.ActiveFilters[pending.Facet] = opt.Value
			return
		}
	}

	// Free-text fallback: no filter is set; the text itself carries the
	// narrowing signal into retrieval.
	slog.Debug("clarifier answered free-form", "facet", pending.Facet)
}

// anchorClarifierFacet is the reserved pending-clarifier facet name for
// pronoun disambiguation turns.
const anchorClarifierFacet = "topic"

// skipAnswers are the phrasings treated as declining a clarifier.
var skipAnswers = []string{"skip", "no preference", "any", "anything", "doesn't matter", "dont care", "don't care"}

func isSkipAnswer(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, s := range skipAnswers {
		if lower == s {
			return true
		}
	}
	return false
}

// lastAssistantText returns the newest assistant message in the history.
func lastAssistantText(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant {
			return history[i].Text
		}
	}
	return ""
}

// maxRecentTypes caps how many product types a turn remembers for later
// pronoun disambiguation.
const maxRecentTypes = 4

// distinctTypes lists the distinct product types in a result, best-ranked
// first, up to limit.
func distinctTypes(result *RetrievalResult, limit int) []string {
	if result.Empty() {
		return nil
	}
	seen := make(map[string]bool, limit)
	var out []string
	for _, p := range result.Products {
		if p.ProductType == "" {
			continue
		}
		key := strings.ToLower(p.ProductType)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p.ProductType)
		if len(out) == limit {
			break
		}
	}
	return out
}
