// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sessionstore persists dialogue session state in BadgerDB.
//
// The turn pipeline is stateless per request: the handler loads the session
// here, runs the turn, applies the returned patch, and saves the result.
// Badger keeps the load/save pair off the network, which matters because it
// sits on every single turn.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
	"github.com/clerkdesk/clerkdesk/services/concierge/storage/badger"
)

const keyPrefix = "session/"

// Store reads and writes session state records.
//
// # Thread Safety
//
// Safe for concurrent use across sessions. Callers must serialize the
// load/patch/save cycle within one session; turns for the same session key
// are not concurrent by construction (one shopper, one conversation).
type Store struct {
	db *badger.DB
}

// New creates a Store over the given database.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

func sessionKey(shopID, key string) []byte {
	return []byte(keyPrefix + shopID + "/" + key)
}

// Load returns the session state, or nil when the session does not exist.
// A missing session is a first turn, not an error.
func (s *Store) Load(ctx context.Context, shopID, key string) (*engine.SessionState, error) {
	var state *engine.SessionState
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(sessionKey(shopID, key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			state = &engine.SessionState{}
			return json.Unmarshal(val, state)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load session %s/%s: %w", shopID, key, err)
	}
	return state, nil
}

// Save writes the session state, stamping UpdatedAt.
func (s *Store) Save(ctx context.Context, state *engine.SessionState) error {
	if state == nil || state.ShopID == "" || state.SessionKey == "" {
		return errors.New("session state must carry shop id and session key")
	}
	state.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set(sessionKey(state.ShopID, state.SessionKey), payload)
	})
	if err != nil {
		return fmt.Errorf("save session %s/%s: %w", state.ShopID, state.SessionKey, err)
	}
	return nil
}

// Delete removes one session. Deleting a missing session is a no-op.
func (s *Store) Delete(ctx context.Context, shopID, key string) error {
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Delete(sessionKey(shopID, key))
	})
	if err != nil {
		return fmt.Errorf("delete session %s/%s: %w", shopID, key, err)
	}
	return nil
}

// SessionInfo is the listing view of one stored session.
type SessionInfo struct {
	ShopID     string    `json:"shop_id"`
	SessionKey string    `json:"session_key"`
	TurnCount  int       `json:"turn_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// List returns the sessions for one shop, most recently updated first is not
// guaranteed; ordering follows key order.
func (s *Store) List(ctx context.Context, shopID string) ([]SessionInfo, error) {
	prefix := []byte(keyPrefix + shopID + "/")
	var out []SessionInfo

	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var state engine.SessionState
				if err := json.Unmarshal(val, &state); err != nil {
					return err
				}
				out = append(out, SessionInfo{
					ShopID:     state.ShopID,
					SessionKey: state.SessionKey,
					TurnCount:  state.TurnCount,
					UpdatedAt:  state.UpdatedAt,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", shopID, err)
	}
	return out, nil
}

// DeleteIdle removes every session not updated since the cutoff, across all
// shops, and returns how many were removed. The TTL scheduler calls this.
func (s *Store) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	prefix := []byte(keyPrefix)
	var expired [][]byte

	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(val []byte) error {
				var state engine.SessionState
				if err := json.Unmarshal(val, &state); err != nil {
					// An unreadable record is garbage; collect it too.
					expired = append(expired, key)
					return nil
				}
				if state.UpdatedAt.Before(cutoff) {
					expired = append(expired, key)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}

	for _, key := range expired {
		err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return 0, fmt.Errorf("delete expired session %s: %w", strings.TrimPrefix(string(key), keyPrefix), err)
		}
	}
	return len(expired), nil
}
