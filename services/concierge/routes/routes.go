// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
	"github.com/clerkdesk/clerkdesk/services/concierge/handlers"
	"github.com/clerkdesk/clerkdesk/services/concierge/retrieval"
	"github.com/clerkdesk/clerkdesk/services/concierge/sessionstore"
)

func SetupRoutes(router *gin.Engine, eng *engine.Engine, sessions *sessionstore.Store,
	client *weaviate.Client, embedder *retrieval.EmbeddingClient) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/turn", handlers.HandleTurn(eng, sessions))
		v1.POST("/catalog/products", handlers.HandleCatalogIngest(client, embedder))
		// Session administration routes
		sessionGroup := v1.Group("/sessions")
		{
			sessionGroup.GET("", handlers.ListSessions(sessions))
			sessionGroup.GET("/:sessionKey", handlers.GetSession(sessions))
			sessionGroup.DELETE("/:sessionKey", handlers.DeleteSession(sessions))
		}
	}
}
