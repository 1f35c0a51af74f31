// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the concierge's HTTP endpoints.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clerkdesk/clerkdesk/pkg/validation"
	"github.com/clerkdesk/clerkdesk/services/concierge/datatypes"
	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
	"github.com/clerkdesk/clerkdesk/services/concierge/observability"
	"github.com/clerkdesk/clerkdesk/services/concierge/sessionstore"
)

// HandleTurn runs one dialogue turn: load session, run the pipeline, apply
// the state patch, persist, respond.
func HandleTurn(eng *engine.Engine, sessions *sessionstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.TurnRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validation.ValidateShopID(req.ShopID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.EnsureDefaults()

		ctx := c.Request.Context()
		state, err := sessions.Load(ctx, req.ShopID, req.SessionKey)
		if err != nil {
			slog.Error("Failed to load session", "shop_id", req.ShopID, "session_key", req.SessionKey, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		if state == nil {
			state = engine.NewSessionState(req.ShopID, req.SessionKey)
		}

		metrics := observability.DefaultMetrics
		if metrics != nil {
			metrics.TurnStarted()
			defer metrics.TurnEnded()
		}
		started := time.Now()

		result, err := eng.RunTurn(ctx, engine.TurnRequest{
			ShopID:  req.ShopID,
			Message: req.Message.EngineMessage(),
			History: req.EngineHistory(),
			State:   state,
		})
		if err != nil {
			slog.Error("Turn failed", "shop_id", req.ShopID, "session_key", req.SessionKey, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "turn failed"})
			return
		}

		state.Apply(result.Patch)
		if err := sessions.Save(ctx, state); err != nil {
			// The turn already ran; losing the state update is worth a log
			// but not a failed response.
			slog.Error("Failed to persist session", "shop_id", req.ShopID, "session_key", req.SessionKey, "error", err)
		}

		recordTurnMetrics(metrics, result.Turn, time.Since(started))

		c.JSON(http.StatusOK, datatypes.TurnResponse{
			SessionKey: req.SessionKey,
			Turn:       result.Turn,
		})
	}
}

func recordTurnMetrics(m *observability.TurnMetrics, turn *engine.Turn, elapsed time.Duration) {
	if m == nil || turn == nil {
		return
	}
	meta := turn.Meta
	m.RecordTurn(string(meta.Mode), string(meta.Topic), elapsed.Seconds())
	if meta.CorrectedFrom != "" {
		m.RecordCorrection(string(meta.CorrectedFrom))
	}
	m.RecordRelaxation(len(meta.Relaxations), meta.Mode == engine.ModeDeadEnd)
	if !meta.RetrievalSkipped {
		m.RecordGroundability(meta.Groundability)
	}
}
