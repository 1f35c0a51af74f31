// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
	"github.com/clerkdesk/clerkdesk/services/concierge/storage/badger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.OpenDB(badger.InMemoryConfig())
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestLoad_MissingSessionIsNil(t *testing.T) {
	store := testStore(t)

	state, err := store.Load(context.Background(), "shop-1", "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != nil {
		t.Error("missing session should load as nil")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	state := engine.NewSessionState("shop-1", "sess-1")
	state.ActiveFilters["color"] = "blue"
	state.ClarifierHistory["color"] = 1
	state.TurnCount = 3

	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, "shop-1", "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected stored session")
	}
	if loaded.ActiveFilters["color"] != "blue" || loaded.TurnCount != 3 {
		t.Errorf("state fields not round-tripped: %+v", loaded)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("save should stamp UpdatedAt")
	}
}

func TestSave_RejectsAnonymousState(t *testing.T) {
	store := testStore(t)

	if err := store.Save(context.Background(), &engine.SessionState{}); err == nil {
		t.Error("expected error for state without identifiers")
	}
	if err := store.Save(context.Background(), nil); err == nil {
		t.Error("expected error for nil state")
	}
}

func TestDelete_RemovesSession(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, engine.NewSessionState("shop-1", "sess-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "shop-1", "sess-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	state, err := store.Load(ctx, "shop-1", "sess-1")
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if state != nil {
		t.Error("deleted session should load as nil")
	}
}

func TestDelete_MissingSessionIsNoop(t *testing.T) {
	store := testStore(t)
	if err := store.Delete(context.Background(), "shop-1", "never-existed"); err != nil {
		t.Errorf("deleting a missing session should be a no-op, got: %v", err)
	}
}

func TestList_ScopedToShop(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, pair := range [][2]string{
		{"shop-1", "a"}, {"shop-1", "b"}, {"shop-2", "c"},
	} {
		if err := store.Save(ctx, engine.NewSessionState(pair[0], pair[1])); err != nil {
			t.Fatalf("save %v: %v", pair, err)
		}
	}

	infos, err := store.List(ctx, "shop-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions for shop-1, got %d", len(infos))
	}
	for _, info := range infos {
		if info.ShopID != "shop-1" {
			t.Errorf("foreign shop leaked into listing: %+v", info)
		}
	}
}

func TestDeleteIdle_RemovesOnlyStale(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	stale := engine.NewSessionState("shop-1", "stale")
	if err := store.Save(ctx, stale); err != nil {
		t.Fatalf("save stale: %v", err)
	}

	// Saving stamps now; move the cutoff forward past the stale session and
	// then write a fresh one.
	cutoff := time.Now().UTC().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)

	fresh := engine.NewSessionState("shop-1", "fresh")
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	removed, err := store.DeleteIdle(ctx, cutoff)
	if err != nil {
		t.Fatalf("delete idle: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed session, got %d", removed)
	}

	if state, _ := store.Load(ctx, "shop-1", "stale"); state != nil {
		t.Error("stale session should be gone")
	}
	if state, _ := store.Load(ctx, "shop-1", "fresh"); state == nil {
		t.Error("fresh session should survive")
	}
}
