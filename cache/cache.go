// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package cache provides durable storage of finished trial case results
// so that interrupted runs can be resumed and repeated runs can reuse
// previously computed outcomes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned when no result is stored for the requested case.
	ErrCacheMiss = errors.New("no cached result")
	// ErrCacheUnavailable is returned when the cache store cannot be opened or accessed.
	ErrCacheUnavailable = errors.New("result cache unavailable")
)

// Record holds the persisted outcome of a single trial case.
// A record is immutable once written; re-running the case replaces
// the stored record in a single atomic write.
type Record struct {
	// RunID identifies the trial run the case belongs to.
	RunID string
	// CaseKey identifies the case within the run.
	CaseKey string
	// Kind is the result kind the case finished with.
	Kind string
	// FinalAnswer is the answer text produced by the model.
	FinalAnswer string
	// Conversation is a JSON snapshot of the full message exchange.
	Conversation json.RawMessage
	// ToolCalls is a JSON history of tool invocations made during the case.
	ToolCalls json.RawMessage
	// TokensUsed is the measured token usage of the case.
	TokensUsed int64
	// Duration is the wall-clock duration of the case.
	Duration time.Duration
	// CreatedAt is the time the record was written.
	CreatedAt time.Time
}

// Store persists trial case results and per-run completion state.
// A given (run, case) key is only ever written by the single worker
// currently processing that case.
type Store interface {
	// Get returns the stored record for the given case.
	// It returns ErrCacheMiss if no record is stored.
	Get(ctx context.Context, runID string, caseKey string) (Record, error)

	// Put inserts or replaces the record for the case identified by the record's key.
	Put(ctx context.Context, record Record) error

	// Delete removes the stored record for the given case.
	// Deleting an absent record is not an error.
	Delete(ctx context.Context, runID string, caseKey string) error

	// Keys returns the case keys of all records stored under the given run,
	// sorted in ascending order.
	Keys(ctx context.Context, runID string) ([]string, error)

	// Clear removes all records and completion state stored under the given run.
	Clear(ctx context.Context, runID string) error

	// CompletedCases returns the result kind of every case marked completed
	// under the given run, keyed by case key.
	CompletedCases(ctx context.Context, runID string) (map[string]string, error)

	// MarkCompleted records that the given case finished with the given result kind.
	// Marking an already completed case replaces its recorded kind.
	MarkCompleted(ctx context.Context, runID string, caseKey string, kind string) error

	// Close releases all resources held by the store.
	Close() error
}
