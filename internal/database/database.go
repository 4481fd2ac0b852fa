package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		token_address TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(chat_id, token_address)
	);`,
	`CREATE TABLE IF NOT EXISTS pinned_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		token_address TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(chat_id, token_address)
	);`,
	`CREATE TABLE IF NOT EXISTS marketcap_alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		token_address TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		threshold REAL NOT NULL DEFAULT 0,
		amount REAL NOT NULL DEFAULT 0,
		direction TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(chat_id, token_address)
	);`,
	`CREATE TABLE IF NOT EXISTS token_mc (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_address TEXT NOT NULL,
		market_cap_usd REAL DEFAULT 0,
		last_updated DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(token_address)
	);`,
	`CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT DEFAULT NULL,
		label_value TEXT DEFAULT NULL,
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`,
}

// Store is the sqlite backed persistence for subscriptions, pinned messages,
// market cap alerts, token market caps and saved metrics.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// sqlite allows one writer; an in-memory database also only lives on its connection
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to create table")
		}
	}

	log.Debugf("Database initialized successfully at %s", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
