// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clerkdesk/clerkdesk/pkg/validation"
	"github.com/clerkdesk/clerkdesk/services/concierge/sessionstore"
)

// requireShopID extracts and validates the shop_id query parameter,
// writing a 400 response when it is missing or malformed.
func requireShopID(c *gin.Context) (string, bool) {
	shopID := c.Query("shop_id")
	if shopID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shop_id query parameter is required"})
		return "", false
	}
	if err := validation.ValidateShopID(shopID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return shopID, true
}

// ListSessions returns the sessions stored for one shop.
func ListSessions(store *sessionstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := requireShopID(c)
		if !ok {
			return
		}

		infos, err := store.List(c.Request.Context(), shopID)
		if err != nil {
			slog.Error("Failed to list sessions", "shop_id", shopID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": infos})
	}
}

// GetSession returns one full session state record.
func GetSession(store *sessionstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := requireShopID(c)
		if !ok {
			return
		}
		sessionKey := c.Param("sessionKey")

		state, err := store.Load(c.Request.Context(), shopID, sessionKey)
		if err != nil {
			slog.Error("Failed to load session", "shop_id", shopID, "session_key", sessionKey, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		if state == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// DeleteSession removes one session.
func DeleteSession(store *sessionstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := requireShopID(c)
		if !ok {
			return
		}
		sessionKey := c.Param("sessionKey")

		if err := store.Delete(c.Request.Context(), shopID, sessionKey); err != nil {
			slog.Error("Failed to delete session", "shop_id", shopID, "session_key", sessionKey, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}
		slog.Info("Deleted session", "shop_id", shopID, "session_key", sessionKey)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_key": sessionKey})
	}
}
