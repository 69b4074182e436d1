// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package audit keeps an append-only record of privileged requests.
//
// The log is written after each privileged request completes. It is never
// read on the request path.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one privileged request and its outcome.
type Entry struct {
	ID          int64     `json:"id"`
	Time        time.Time `json:"time"`
	Action      string    `json:"action"`
	UUID        string    `json:"uuid"`
	Peer        string    `json:"peer"`
	Description string    `json:"description"`
	Strategy    string    `json:"strategy"`
	Decision    string    `json:"decision"`
	Status      string    `json:"status"`
}

// Log handles the SQLite audit database
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database at path
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// SQLite allows one writer; requests record concurrently.
	db.SetMaxOpenConns(1)

	l := &Log{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return l, nil
}

// Close closes the database connection
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) initSchema() error {
	queries := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			action TEXT NOT NULL,
			uuid TEXT,
			peer TEXT,
			description TEXT,
			strategy TEXT NOT NULL,
			decision TEXT NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_time ON requests(time)`,
	}

	for _, query := range queries {
		if _, err := l.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Record appends e. A zero Time is replaced with the current time.
func (l *Log) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	query := `INSERT INTO requests (time, action, uuid, peer, description, strategy, decision, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.Exec(query,
		e.Time.UTC().Format(time.RFC3339Nano),
		e.Action, e.UUID, e.Peer, e.Description, e.Strategy, e.Decision, e.Status)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, time, action, uuid, peer, description, strategy, decision, status
		FROM requests ORDER BY id DESC LIMIT ?`
	rows, err := l.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		var uuid, peer, description sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Action, &uuid, &peer, &description, &e.Strategy, &e.Decision, &e.Status); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.UUID, e.Peer, e.Description = uuid.String, peer.String, description.String
		if e.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse audit time %q: %w", ts, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
