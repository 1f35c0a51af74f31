// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/clerkdesk/clerkdesk/pkg/validation"
	"github.com/clerkdesk/clerkdesk/services/concierge/datatypes"
	"github.com/clerkdesk/clerkdesk/services/concierge/retrieval"
)

var (
	CHUNK_SIZE        = 500
	CHUNK_OVERLAP     = int(float64(CHUNK_SIZE) * 0.10) // Chunk_overlap is 10% of the CHUNK_SIZE
	defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}
)

// HandleCatalogIngest receives a product batch and writes products plus
// embedded description chunks to Weaviate.
func HandleCatalogIngest(client *weaviate.Client, embedder *retrieval.EmbeddingClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.IngestRequest
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
		for _, product := range req.Products {
			if err := validation.ValidateProductID(product.ProductID); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		req.EnsureDefaults()

		started := time.Now()
		resp, err := RunCatalogIngestion(c.Request.Context(), client, embedder, req)
		if err != nil {
			slog.Error("Catalog ingestion failed", "shop_id", req.ShopID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp.ElapsedMillis = time.Since(started).Milliseconds()

		slog.Info("Successfully ingested catalog batch",
			"shop_id", req.ShopID,
			"products", resp.ProductCount,
			"chunks", resp.ChunkCount)
		c.JSON(http.StatusCreated, resp)
	}
}

// RunCatalogIngestion is the reusable ingest logic: split descriptions,
// batch-embed, and batch-import products and chunks in one Weaviate call.
//
// Object IDs are derived from shop and product identity, so re-ingesting a
// product overwrites its previous record instead of duplicating it.
func RunCatalogIngestion(
	ctx context.Context,
	client *weaviate.Client,
	embedder *retrieval.EmbeddingClient,
	req datatypes.IngestRequest,
) (*datatypes.IngestResponse, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(CHUNK_SIZE),
		textsplitter.WithChunkOverlap(CHUNK_OVERLAP),
		textsplitter.WithSeparators(defaultSeparators),
	)

	// Collect every text to embed across the batch: one searchable text per
	// product, then each description chunk.
	var texts []string
	productChunks := make([][]string, len(req.Products))
	skipped := 0

	for i, p := range req.Products {
		texts = append(texts, searchableText(p))

		if p.Description == "" {
			continue
		}
		chunks, err := splitter.SplitText(p.Description)
		if err != nil {
			slog.Warn("Failed to split product description", "product_id", p.ProductID, "error", err)
			skipped++
			continue
		}
		productChunks[i] = chunks
		texts = append(texts, chunks...)
	}

	vectors, err := embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed catalog batch: %w", err)
	}

	var objects []*models.Object
	cursor := 0
	chunkCount := 0

	for i, p := range req.Products {
		objects = append(objects, &models.Object{
			Class:  datatypes.ProductClass,
			ID:     deterministicID(req.ShopID, p.ProductID, -1),
			Vector: vectors[cursor],
			Properties: map[string]interface{}{
				"shop_id":      req.ShopID,
				"product_id":   p.ProductID,
				"title":        p.Title,
				"description":  p.Description,
				"vendor":       p.Vendor,
				"product_type": p.ProductType,
				"price":        p.Price,
				"price_bucket": p.PriceBucket,
				"tags":         p.Tags,
				"in_stock":     p.InStock,
				"ingested_at":  time.Now().UnixMilli(),
			},
		})
		cursor++

		for j, chunk := range productChunks[i] {
			objects = append(objects, &models.Object{
				Class:  datatypes.ProductChunkClass,
				ID:     deterministicID(req.ShopID, p.ProductID, j),
				Vector: vectors[cursor],
				Properties: map[string]interface{}{
					"shop_id":     req.ShopID,
					"product_id":  p.ProductID,
					"content":     chunk,
					"chunk_index": j,
					"ingested_at": time.Now().UnixMilli(),
				},
			})
			cursor++
			chunkCount++
		}
	}

	resp, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to save objects to Weaviate: %w", err)
	}

	succeeded := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			succeeded++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item", "shop_id", req.ShopID, "error", errItem.Message)
			}
		}
	}
	if succeeded < len(objects) {
		slog.Warn("Errors encountered during Weaviate batch import",
			"shop_id", req.ShopID, "succeeded", succeeded, "total", len(objects))
	}

	return &datatypes.IngestResponse{
		ShopID:       req.ShopID,
		ProductCount: len(req.Products),
		ChunkCount:   chunkCount,
		SkippedCount: skipped,
	}, nil
}

// searchableText is the text a product is retrieved by: title, merchandising
// attributes, and the head of the description.
func searchableText(p datatypes.ProductRecord) string {
	text := p.Title + " " + p.Vendor + " " + p.ProductType
	if p.Description != "" {
		head := p.Description
		if len(head) > CHUNK_SIZE {
			head = head[:CHUNK_SIZE]
		}
		text += " " + head
	}
	return text
}

// deterministicID hashes identity into a stable UUID. chunkIndex -1 denotes
// the product object itself.
func deterministicID(shopID, productID string, chunkIndex int) strfmt.UUID {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s/%s/%d", shopID, productID, chunkIndex)))
	id, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(id.String())
}
