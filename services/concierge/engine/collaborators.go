// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
)

// Retriever is the retrieval collaborator: query + embedding + filters in,
// ranked and faceted product list out. The engine never re-ranks.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Retriever interface {
	// Search runs one retrieval call. A zero-result response is a valid
	// result, not an error; errors are reserved for the collaborator being
	// unable to answer at all.
	Search(ctx context.Context, shopID, query string, vector []float32, limit int, filters map[string]string) (*RetrievalResult, error)
}

// Embedder computes the query embedding, once per turn, skipped entirely
// for topics that never reach retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CopySlots carries the slot values the engine hands to the copy layer. The
// engine supplies only slots, never prose.
type CopySlots map[string]string

// CopyBlock is the copy layer's rendered lead/detail pair.
type CopyBlock struct {
	Lead   string
	Detail string
}

// CopyWriter is the copy/template collaborator. Given the decided mode and
// topic plus slot values it returns the narrative strings for the turn.
type CopyWriter interface {
	Compose(ctx context.Context, mode ModeKind, topic Topic, slots CopySlots) (CopyBlock, error)
}

// Enricher provides advisory fact sheets for evidence bullets. Calls are
// best-effort: the engine wraps them in a short cancellable deadline and a
// failed or slow fetch degrades to a fallback reason string.
type Enricher interface {
	FactSheet(ctx context.Context, shopID, productID string) (string, error)
}
