// Copyright 2025 Certen Protocol
//
// Package kvstore wraps CometBFT's dbm.DB interface as a durable mirror for
// the Queue adapter: every Save*/AppendTransitionLog call the in-memory
// Queue accepts can also be persisted here so a restart does not lose
// queued flows. The Queue itself remains the source of truth during a
// process's lifetime; this store exists to survive restarts, not to
// replace the in-memory maps.
package kvstore

import (
	dbm "github.com/cometbft/cometbft-db"
)

// Store wraps a CometBFT dbm.DB as a flat byte-key-value mirror.
type Store struct {
	db dbm.DB
}

// NewStore constructs a Store over the given underlying DB. Passing a nil
// db yields a no-op store: Get always misses, Set is silently discarded.
// This lets the orchestrator wire durability optionally without branching
// on whether a data directory was configured.
func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

// Get returns the value for key, or nil if absent. A nil value is not
// distinguished from a missing key; callers that need that distinction
// should encode presence into the stored value itself.
func (s *Store) Get(key []byte) ([]byte, error) {
	if s.db == nil {
		return nil, nil
	}
	return s.db.Get(key)
}

// Set durably persists key/value via SetSync, committing before returning.
func (s *Store) Set(key, value []byte) error {
	if s.db == nil {
		return nil
	}
	return s.db.SetSync(key, value)
}

// Delete removes key, a no-op if it is not present.
func (s *Store) Delete(key []byte) error {
	if s.db == nil {
		return nil
	}
	return s.db.DeleteSync(key)
}

// Iterate walks every key in [start, end) in ascending order, calling fn for
// each. Iteration stops early if fn returns false.
func (s *Store) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	if s.db == nil {
		return nil
	}
	iter, err := s.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer iter.Close()
	for ; iter.Valid(); iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}
