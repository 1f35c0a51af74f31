// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wire types of the concierge HTTP surface
// and the Weaviate schema it persists to.
//
// This file holds the turn endpoint request/response shapes. Catalog ingest
// types live in catalog.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
)

const (
	// MaxMessageBytes caps a single shopper message. Byte length, not rune
	// count, so oversized payloads are rejected before any processing.
	MaxMessageBytes = 8 * 1024

	// MaxHistoryMessages caps the conversation history carried per request.
	MaxHistoryMessages = 50
)

// turnValidate is the shared validator for turn datatypes, configured with
// the custom message-size rule.
var turnValidate *validator.Validate

func init() {
	turnValidate = validator.New()
	_ = turnValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxMessageBytes on string fields.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageBytes
}

// =============================================================================
// Turn Request
// =============================================================================

// TurnMessage is one conversation message on the wire.
type TurnMessage struct {
	ID        string `json:"id" validate:"omitempty,uuid4"`
	Role      string `json:"role" validate:"required,oneof=user assistant"`
	Text      string `json:"text" validate:"required,maxbytes"`
	Timestamp int64  `json:"timestamp"`
}

// TurnRequest is the POST /v1/turn body: one inbound shopper message plus
// its conversation context.
//
// # Validation
//
//   - ShopID: required
//   - SessionKey: optional; generated server-side when absent
//   - Message: required, role user, text capped at MaxMessageBytes
//   - History: at most MaxHistoryMessages, each element validated
type TurnRequest struct {
	ShopID     string        `json:"shop_id" validate:"required,max=128"`
	SessionKey string        `json:"session_key" validate:"omitempty,max=128"`
	Message    TurnMessage   `json:"message" validate:"required"`
	History    []TurnMessage `json:"history" validate:"max=50,dive"`
}

// Validate checks the request against its tags.
func (r *TurnRequest) Validate() error {
	if err := turnValidate.Struct(r); err != nil {
		return err
	}
	return turnValidate.Struct(&r.Message)
}

// EnsureDefaults fills server-generated identifiers so every turn is
// traceable even when the storefront omits them.
func (r *TurnRequest) EnsureDefaults() {
	if r.SessionKey == "" {
		r.SessionKey = uuid.NewString()
	}
	if r.Message.ID == "" {
		r.Message.ID = uuid.NewString()
	}
	if r.Message.Timestamp == 0 {
		r.Message.Timestamp = time.Now().UnixMilli()
	}
}

// EngineMessage converts the wire message into the engine's message shape.
func (m TurnMessage) EngineMessage() engine.Message {
	return engine.Message{
		ID:        m.ID,
		Role:      engine.Role(m.Role),
		Text:      m.Text,
		CreatedAt: time.UnixMilli(m.Timestamp),
	}
}

// EngineHistory converts the wire history, oldest first.
func (r *TurnRequest) EngineHistory() []engine.Message {
	out := make([]engine.Message, 0, len(r.History))
	for _, m := range r.History {
		out = append(out, m.EngineMessage())
	}
	return out
}

// =============================================================================
// Turn Response
// =============================================================================

// TurnResponse is the POST /v1/turn reply: the renderable turn plus the
// session key the storefront must echo on the next request.
type TurnResponse struct {
	SessionKey string       `json:"session_key"`
	Turn       *engine.Turn `json:"turn"`
}

// ErrorResponse is the uniform error body for the concierge API.
type ErrorResponse struct {
	Error string `json:"error"`
}
