// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package enrichment serves product fact sheets for evidence bullets.
//
// Fact sheets are advisory: the turn pipeline wraps every call in a short
// deadline and degrades to a generic reason line when enrichment is slow or
// down. That makes this layer free to be aggressive about caching and
// deduplication without ever being load-bearing.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
	"github.com/clerkdesk/clerkdesk/services/concierge/storage/badger"
)

// DefaultCacheTTL is how long a cached fact sheet stays valid.
const DefaultCacheTTL = 6 * time.Hour

// DefaultFetchRate caps upstream fact-sheet fetches per second.
const DefaultFetchRate = 20

// FactSource fetches one product's fact sheet from the source of truth.
type FactSource interface {
	Fetch(ctx context.Context, shopID, productID string) (string, error)
}

// Enricher caches and deduplicates fact-sheet lookups.
//
// # Description
//
// Lookup order is badger cache, then the upstream source. Concurrent misses
// for the same product collapse into one upstream call via singleflight, and
// upstream calls are rate limited so a burst of recommendation turns cannot
// stampede the source.
//
// # Thread Safety
//
// Safe for concurrent use.
type Enricher struct {
	source  FactSource
	cache   *badger.DB
	group   singleflight.Group
	limiter *rate.Limiter
	ttl     time.Duration
}

var _ engine.Enricher = (*Enricher)(nil)

// New creates an Enricher over the given source and cache. The cache may be
// nil, in which case every lookup goes upstream (still deduplicated).
func New(source FactSource, cache *badger.DB) *Enricher {
	return &Enricher{
		source:  source,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(DefaultFetchRate), DefaultFetchRate),
		ttl:     DefaultCacheTTL,
	}
}

// WithTTL overrides the cache TTL.
func (e *Enricher) WithTTL(ttl time.Duration) *Enricher {
	e.ttl = ttl
	return e
}

// FactSheet returns the fact sheet for one product.
func (e *Enricher) FactSheet(ctx context.Context, shopID, productID string) (string, error) {
	key := factKey(shopID, productID)

	if sheet, ok := e.cached(ctx, key); ok {
		return sheet, nil
	}

	result, err, _ := e.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have filled the
		// cache while this one waited.
		if sheet, ok := e.cached(ctx, key); ok {
			return sheet, nil
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
		sheet, err := e.source.Fetch(ctx, shopID, productID)
		if err != nil {
			return "", err
		}
		e.store(ctx, key, sheet)
		return sheet, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func factKey(shopID, productID string) string {
	return "facts/" + shopID + "/" + productID
}

func (e *Enricher) cached(ctx context.Context, key string) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	var sheet string
	err := e.cache.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			sheet = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false
	}
	return sheet, true
}

func (e *Enricher) store(ctx context.Context, key, sheet string) {
	if e.cache == nil || sheet == "" {
		return
	}
	err := e.cache.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(key), []byte(sheet)).WithTTL(e.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("Failed to cache fact sheet", "key", key, "error", err)
	}
}
