// Package filedb is a small embedded JSON document store kept in a single
// file. It serializes access with an in-process lock only: safe for one
// process, no protection between processes. Multi-instance deployments must
// use the postgres backend.
package filedb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type Store struct {
	mu   sync.RWMutex
	path string
	data map[string]map[string]json.RawMessage // collection -> id -> document
}

// Open loads the store file if it exists, otherwise starts empty.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: make(map[string]map[string]json.RawMessage),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("store file is corrupt: %w", err)
		}
	}

	return s, nil
}

// Tx is a staged set of reads and writes. Mutations are buffered and only
// applied (and persisted) when the Update callback returns nil, so a failed
// operation leaves the store untouched.
type Tx struct {
	store   *Store
	puts    map[string]map[string]json.RawMessage
	deletes map[string]map[string]bool
}

func (tx *Tx) Get(collection, id string, out any) (bool, error) {
	if tx.deletes[collection][id] {
		return false, nil
	}
	if raw, ok := tx.puts[collection][id]; ok {
		return true, json.Unmarshal(raw, out)
	}
	raw, ok := tx.store.data[collection][id]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (tx *Tx) Put(collection, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if tx.puts[collection] == nil {
		tx.puts[collection] = make(map[string]json.RawMessage)
	}
	tx.puts[collection][id] = raw
	delete(tx.deletes[collection], id)
	return nil
}

func (tx *Tx) Delete(collection, id string) {
	if tx.deletes[collection] == nil {
		tx.deletes[collection] = make(map[string]bool)
	}
	tx.deletes[collection][id] = true
	delete(tx.puts[collection], id)
}

// All returns every document in a collection, staged writes included.
// Order is unspecified; callers sort.
func (tx *Tx) All(collection string) []json.RawMessage {
	seen := make(map[string]bool)
	var out []json.RawMessage
	for id, raw := range tx.puts[collection] {
		seen[id] = true
		out = append(out, raw)
	}
	for id, raw := range tx.store.data[collection] {
		if seen[id] || tx.deletes[collection][id] {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// Count returns the number of documents in a collection.
func (tx *Tx) Count(collection string) int {
	n := 0
	for id := range tx.store.data[collection] {
		if !tx.deletes[collection][id] {
			if _, staged := tx.puts[collection][id]; !staged {
				n++
			}
		}
	}
	return n + len(tx.puts[collection])
}

// View runs fn with a read lock held. Writes made through the Tx are
// discarded.
func (s *Store) View(fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.newTx())
}

// Update runs fn with the write lock held. If fn returns nil the staged
// writes are applied and the whole store is flushed to disk.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.newTx()
	if err := fn(tx); err != nil {
		return err
	}

	for collection, docs := range tx.puts {
		if s.data[collection] == nil {
			s.data[collection] = make(map[string]json.RawMessage)
		}
		for id, raw := range docs {
			s.data[collection][id] = raw
		}
	}
	for collection, ids := range tx.deletes {
		for id := range ids {
			delete(s.data[collection], id)
		}
	}

	return s.flush()
}

func (s *Store) newTx() *Tx {
	return &Tx{
		store:   s,
		puts:    make(map[string]map[string]json.RawMessage),
		deletes: make(map[string]map[string]bool),
	}
}

// flush writes to a temp file and renames over the original so a crash
// mid-write never leaves a truncated store.
func (s *Store) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return os.Rename(tmp, s.path)
}
