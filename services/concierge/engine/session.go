// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"log/slog"
	"strings"
	"time"
)

// =============================================================================
// Session State
// =============================================================================

// AnchorKind names what the topic anchor currently points at.
type AnchorKind string

const (
	AnchorCategory AnchorKind = "category"
	AnchorProduct  AnchorKind = "product"
	AnchorBrand    AnchorKind = "brand"
	AnchorGeneral  AnchorKind = "general"
)

// TopicAnchor is the remembered subject used to resolve pronouns. Its
// confidence decays multiplicatively each turn it is not reinforced and is
// replaced outright whenever a new explicit category or brand is mentioned.
type TopicAnchor struct {
	Kind       AnchorKind `json:"kind"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
}

// PendingClarifier is an outstanding question whose answer the next turn
// must resolve: by matched option, by "skip", or by free-text fallback.
// At most one is open at a time.
type PendingClarifier struct {
	Facet   string            `json:"facet"`
	Options []ClarifierOption `json:"options"`
}

// NegotiationState is carried for the negotiation add-on. The engine threads
// it through untouched; only the add-on reads or writes its fields.
type NegotiationState struct {
	OfferRound int     `json:"offer_round"`
	FloorPrice float64 `json:"floor_price"`
	LastOffer  float64 `json:"last_offer"`
}

// SessionState is the durable cross-turn record. The engine receives it by
// value-semantics contract (read, never mutate in place during a turn) and
// returns a StatePatch; the caller owns persistence.
type SessionState struct {
	SessionKey string `json:"session_key"`
	ShopID     string `json:"shop_id"`

	// ActiveFilters maps facet name to the resolved constraint value.
	// Every value must belong to the facet's allowed set at the time it is
	// set; SanitizeFilters re-checks before each retrieval.
	ActiveFilters map[string]string `json:"active_filters,omitempty"`

	// ClarifierHistory maps facet name to ask count. Monotonic; a facet is
	// excluded from re-asking once its count reaches the configured budget.
	ClarifierHistory map[string]int `json:"clarifier_history,omitempty"`

	Pending *PendingClarifier `json:"pending,omitempty"`
	Anchor  *TopicAnchor      `json:"anchor,omitempty"`

	// RecentTypes holds the distinct product types from the newest
	// non-empty retrieval, best-ranked first. Pronoun disambiguation
	// falls back to them when the store vocabulary is empty.
	RecentTypes []string `json:"recent_types,omitempty"`

	TurnCount        int `json:"turn_count"`
	ZeroResultStreak int `json:"zero_result_streak"`

	Negotiation *NegotiationState `json:"negotiation,omitempty"`

	// Summary is a short rolling dialogue summary maintained by the caller.
	Summary string `json:"summary,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionState returns the all-empty defaults for a first turn.
func NewSessionState(shopID, sessionKey string) *SessionState {
	return &SessionState{
		SessionKey:       sessionKey,
		ShopID:           shopID,
		ActiveFilters:    map[string]string{},
		ClarifierHistory: map[string]int{},
		UpdatedAt:        time.Now().UTC(),
	}
}

// Clone returns a deep copy. The engine works on a clone so a failed turn
// leaves the caller's state untouched.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s

	out.ActiveFilters = make(map[string]string, len(s.ActiveFilters))
	for k, v := range s.ActiveFilters {
		out.ActiveFilters[k] = v
	}
	out.ClarifierHistory = make(map[string]int, len(s.ClarifierHistory))
	for k, v := range s.ClarifierHistory {
		out.ClarifierHistory[k] = v
	}
	if s.Pending != nil {
		p := *s.Pending
		p.Options = append([]ClarifierOption(nil), s.Pending.Options...)
		out.Pending = &p
	}
	if s.Anchor != nil {
		a := *s.Anchor
		out.Anchor = &a
	}
	out.RecentTypes = append([]string(nil), s.RecentTypes...)
	if s.Negotiation != nil {
		n := *s.Negotiation
		out.Negotiation = &n
	}

	return &out
}

// SanitizeFilters drops any stored filter whose value no longer belongs to
// the facet's allowed set.
//
// # Description
//
// Catalogs drift between turns: a vendor disappears, a price bucket is
// renamed. A stale filter is never a hard error; it is dropped with a
// logged relaxation note and the turn proceeds.
//
// # Inputs
//
//   - allowed: Facet name to currently allowed values. Facets absent from
//     the map are not checked (no distribution means no evidence of drift).
//
// # Outputs
//
//   - []string: Names of the facets whose filters were dropped.
func (s *SessionState) SanitizeFilters(allowed map[string][]string) []string {
	var dropped []string
	for facet, value := range s.ActiveFilters {
		values, known := allowed[facet]
		if !known {
			continue
		}
		if !containsFold(values, value) {
			slog.Info("relaxation: dropping stale filter",
				"sessionKey", s.SessionKey,
				"facet", facet,
				"value", value)
			delete(s.ActiveFilters, facet)
			dropped = append(dropped, facet)
		}
	}
	return dropped
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}

// =============================================================================
// State Patch
// =============================================================================

// StatePatch is the engine's requested state change for one turn. Merges are
// field-specific: arrays are unioned, maps are merged, and nullable fields
// are overwritten only when explicitly present in the patch.
type StatePatch struct {
	// SetFilters is merged into ActiveFilters.
	SetFilters map[string]string `json:"set_filters,omitempty"`

	// DropFilters removes facets from ActiveFilters. Applied after
	// SetFilters so a drop always wins within one patch.
	DropFilters []string `json:"drop_filters,omitempty"`

	// AskedFacets increments each named facet's clarifier ask count.
	AskedFacets []string `json:"asked_facets,omitempty"`

	// Pending replaces the open clarifier when non-nil. ClearPending
	// closes it; the two are mutually exclusive.
	Pending      *PendingClarifier `json:"pending,omitempty"`
	ClearPending bool              `json:"clear_pending,omitempty"`

	// Anchor replaces the topic anchor when non-nil.
	Anchor *TopicAnchor `json:"anchor,omitempty"`

	// RecentTypes replaces the retrieval-evidence type list when non-nil.
	RecentTypes []string `json:"recent_types,omitempty"`

	// TurnDelta is added to TurnCount (normally 1).
	TurnDelta int `json:"turn_delta,omitempty"`

	// ZeroResultStreak overwrites the streak when non-nil.
	ZeroResultStreak *int `json:"zero_result_streak,omitempty"`

	// Negotiation replaces the negotiation record when non-nil.
	Negotiation *NegotiationState `json:"negotiation,omitempty"`

	// Summary overwrites the rolling summary when non-nil.
	Summary *string `json:"summary,omitempty"`
}

// Apply merges the patch into the state, honoring the field-specific merge
// rules. Returns the receiver for chaining.
func (s *SessionState) Apply(p StatePatch) *SessionState {
	if s.ActiveFilters == nil {
		s.ActiveFilters = map[string]string{}
	}
	if s.ClarifierHistory == nil {
		s.ClarifierHistory = map[string]int{}
	}

	for k, v := range p.SetFilters {
		s.ActiveFilters[k] = v
	}
	for _, k := range p.DropFilters {
		delete(s.ActiveFilters, k)
	}
	for _, facet := range p.AskedFacets {
		s.ClarifierHistory[facet]++
	}

	if p.Pending != nil {
		s.Pending = p.Pending
	} else if p.ClearPending {
		s.Pending = nil
	}

	if p.RecentTypes != nil {
		s.RecentTypes = p.RecentTypes
	}

	if p.Anchor != nil {
		s.Anchor = p.Anchor
	}

	s.TurnCount += p.TurnDelta
	if p.ZeroResultStreak != nil {
		s.ZeroResultStreak = *p.ZeroResultStreak
	}
	if p.Negotiation != nil {
		s.Negotiation = p.Negotiation
	}
	if p.Summary != nil {
		s.Summary = *p.Summary
	}

	s.UpdatedAt = time.Now().UTC()
	return s
}
