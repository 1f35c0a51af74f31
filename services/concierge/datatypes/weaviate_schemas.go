// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ProductClass is the Weaviate class that holds the shoppable catalog.
const ProductClass = "Product"

// ProductChunkClass holds embedded description chunks for evidence lookup.
const ProductChunkClass = "ProductChunk"

func GetProductSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ProductClass,
		Description: "A catalog product available for retrieval and recommendation.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "shop_id",
				DataType:        []string{"text"},
				Description:     "The shop this product belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "product_id",
				DataType:        []string{"text"},
				Description:     "The shop's stable identifier for the product.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "The product title shown to shoppers.",
				Tokenization: "word",
			},
			{
				Name:         "description",
				DataType:     []string{"text"},
				Description:  "The full product description.",
				Tokenization: "word",
			},
			{
				Name:            "vendor",
				DataType:        []string{"text"},
				Description:     "The brand or vendor name.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "product_type",
				DataType:        []string{"text"},
				Description:     "The catalog category (e.g., 'jacket', 'boot').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "price",
				DataType:        []string{"number"},
				Description:     "The current price in the shop currency.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "price_bucket",
				DataType:        []string{"text"},
				Description:     "Coarse price band used for clarifier options (e.g., 'under_50').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "tags",
				DataType:        []string{"text[]"},
				Description:     "Free-form merchandising tags.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "in_stock",
				DataType:        []string{"boolean"},
				Description:     "True if the product is currently purchasable.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the product was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetProductChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ProductChunkClass,
		Description: "An embedded slice of a product description, used for evidence lines.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "shop_id",
				DataType:        []string{"text"},
				Description:     "The shop this chunk belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "product_id",
				DataType:        []string{"text"},
				Description:     "The product this chunk was split from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text.",
				Tokenization: "word",
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "Zero-based position of the chunk within the description.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the chunk was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func EnsureWeaviateSchema(client *weaviate.Client) {
	schemaGetters := []func() *models.Class{
		GetProductSchema,
		GetProductChunkSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		// The client returns an error when the class does not exist yet.
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
