// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    run_id TEXT NOT NULL,
    case_key TEXT NOT NULL,
    kind TEXT NOT NULL,
    final_answer TEXT NOT NULL DEFAULT '',
    conversation BLOB,
    tool_calls BLOB,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    duration_ns INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, case_key)
);

CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);

CREATE TABLE IF NOT EXISTS progress (
    run_id TEXT NOT NULL,
    case_key TEXT NOT NULL,
    kind TEXT NOT NULL,
    completed_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, case_key)
);

CREATE INDEX IF NOT EXISTS idx_progress_run_id ON progress(run_id);
`

// SQLiteStore is a Store backed by an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the cache database at the given path.
// The special path ":memory:" creates a transient in-process database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	// SQLite allows a single writer at a time. A single pooled connection
	// also keeps ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, runID string, caseKey string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, final_answer, conversation, tool_calls, tokens_used, duration_ns, created_at
		FROM records WHERE run_id = ? AND case_key = ?
	`, runID, caseKey)

	record := Record{RunID: runID, CaseKey: caseKey}
	var conversation, toolCalls []byte
	var durationNs, createdNs int64
	if err := row.Scan(&record.Kind, &record.FinalAnswer, &conversation, &toolCalls, &record.TokensUsed, &durationNs, &createdNs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: case '%s' in run '%s'", ErrCacheMiss, caseKey, runID)
		}
		return Record{}, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	record.Conversation = json.RawMessage(conversation)
	record.ToolCalls = json.RawMessage(toolCalls)
	record.Duration = time.Duration(durationNs)
	record.CreatedAt = time.Unix(0, createdNs).UTC()
	return record, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, record Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (run_id, case_key, kind, final_answer, conversation, tool_calls, tokens_used, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, case_key) DO UPDATE SET
			kind = excluded.kind,
			final_answer = excluded.final_answer,
			conversation = excluded.conversation,
			tool_calls = excluded.tool_calls,
			tokens_used = excluded.tokens_used,
			duration_ns = excluded.duration_ns,
			created_at = excluded.created_at
	`,
		record.RunID,
		record.CaseKey,
		record.Kind,
		record.FinalAnswer,
		[]byte(record.Conversation),
		[]byte(record.ToolCalls),
		record.TokensUsed,
		int64(record.Duration),
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, runID string, caseKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE run_id = ? AND case_key = ?`, runID, caseKey); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Keys implements Store.
func (s *SQLiteStore) Keys(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT case_key FROM records WHERE run_id = ? ORDER BY case_key`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	defer rows.Close() //nolint:errcheck

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return keys, nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM progress WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// CompletedCases implements Store.
func (s *SQLiteStore) CompletedCases(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT case_key, kind FROM progress WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	defer rows.Close() //nolint:errcheck

	completed := make(map[string]string)
	for rows.Next() {
		var key, kind string
		if err := rows.Scan(&key, &kind); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		completed[key] = kind
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return completed, nil
}

// MarkCompleted implements Store.
func (s *SQLiteStore) MarkCompleted(ctx context.Context, runID string, caseKey string, kind string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress (run_id, case_key, kind, completed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, case_key) DO UPDATE SET
			kind = excluded.kind,
			completed_at = excluded.completed_at
	`, runID, caseKey, kind, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
