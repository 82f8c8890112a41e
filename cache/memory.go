// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/petmal/genetrial/pkg/utils"
)

// MemoryStore is an in-process Store without persistence.
// It is primarily intended for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]map[string]Record
	progress map[string]map[string]string
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]map[string]Record),
		progress: make(map[string]map[string]string),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, runID string, caseKey string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[runID][caseKey]
	if !ok {
		return Record{}, fmt.Errorf("%w: case '%s' in run '%s'", ErrCacheMiss, caseKey, runID)
	}
	return record, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[record.RunID] == nil {
		s.records[record.RunID] = make(map[string]Record)
	}
	s.records[record.RunID][record.CaseKey] = record
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, runID string, caseKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[runID], caseKey)
	return nil
}

// Keys implements Store.
func (s *MemoryStore) Keys(ctx context.Context, runID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return utils.SortedKeys(s.records[runID]), nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, runID)
	delete(s.progress, runID)
	return nil
}

// CompletedCases implements Store.
func (s *MemoryStore) CompletedCases(ctx context.Context, runID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	completed := make(map[string]string, len(s.progress[runID]))
	for key, kind := range s.progress[runID] {
		completed[key] = kind
	}
	return completed, nil
}

// MarkCompleted implements Store.
func (s *MemoryStore) MarkCompleted(ctx context.Context, runID string, caseKey string, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress[runID] == nil {
		s.progress[runID] = make(map[string]string)
	}
	s.progress[runID][caseKey] = kind
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
