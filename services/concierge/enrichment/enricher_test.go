// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package enrichment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/clerkdesk/clerkdesk/services/concierge/storage/badger"
)

type countingSource struct {
	mu      sync.Mutex
	calls   int32
	sheets  map[string]string
	err     error
	blockCh chan struct{}
}

func (s *countingSource) Fetch(_ context.Context, shopID, productID string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.blockCh != nil {
		<-s.blockCh
	}
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheets[shopID+"/"+productID], nil
}

func testCache(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.OpenDB(badger.InMemoryConfig())
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestFactSheet_FetchesAndCaches(t *testing.T) {
	source := &countingSource{sheets: map[string]string{
		"shop-1/p1": "Seam-sealed shell. 300g.",
	}}
	e := New(source, testCache(t))

	first, err := e.FactSheet(context.Background(), "shop-1", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != "Seam-sealed shell. 300g." {
		t.Errorf("unexpected sheet: %q", first)
	}

	second, err := e.FactSheet(context.Background(), "shop-1", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Error("cached sheet differs from fetched sheet")
	}
	if got := atomic.LoadInt32(&source.calls); got != 1 {
		t.Errorf("expected exactly 1 upstream fetch, got %d", got)
	}
}

func TestFactSheet_ConcurrentMissesCollapse(t *testing.T) {
	source := &countingSource{
		sheets:  map[string]string{"shop-1/p1": "sheet"},
		blockCh: make(chan struct{}),
	}
	e := New(source, testCache(t))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sheet, err := e.FactSheet(context.Background(), "shop-1", "p1")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			results[i] = sheet
		}(i)
	}

	close(source.blockCh)
	wg.Wait()

	if got := atomic.LoadInt32(&source.calls); got != 1 {
		t.Errorf("expected 1 collapsed fetch, got %d", got)
	}
	for i, sheet := range results {
		if sheet != "sheet" {
			t.Errorf("caller %d got %q", i, sheet)
		}
	}
}

func TestFactSheet_ErrorsNotCached(t *testing.T) {
	source := &countingSource{err: errors.New("source down")}
	e := New(source, testCache(t))

	if _, err := e.FactSheet(context.Background(), "shop-1", "p1"); err == nil {
		t.Fatal("expected source error")
	}

	// The failure must not be pinned: a recovered source serves the next call.
	source.err = nil
	source.sheets = map[string]string{"shop-1/p1": "recovered"}
	sheet, err := e.FactSheet(context.Background(), "shop-1", "p1")
	if err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if sheet != "recovered" {
		t.Errorf("expected recovered sheet, got %q", sheet)
	}
}

func TestFactSheet_NilCacheStillServes(t *testing.T) {
	source := &countingSource{sheets: map[string]string{"shop-1/p1": "sheet"}}
	e := New(source, nil)

	for i := 0; i < 3; i++ {
		if _, err := e.FactSheet(context.Background(), "shop-1", "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&source.calls); got != 3 {
		t.Errorf("without a cache every call goes upstream, got %d calls", got)
	}
}

func TestFactSheet_CancelledContext(t *testing.T) {
	source := &countingSource{sheets: map[string]string{"shop-1/p1": "sheet"}}
	e := New(source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.FactSheet(ctx, "shop-1", "p1"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
