// Package sqlite implements gencode.RunStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	gencode "github.com/nevindra/gencode"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements gencode.RunStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ gencode.RunStore = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: gencode.NopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the runs table and its index.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			prompt TEXT NOT NULL,
			code TEXT NOT NULL,
			status TEXT NOT NULL,
			kind TEXT NOT NULL,
			output TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_chat_created ON runs(chat_id, created_at DESC)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init: %w", err)
		}
	}
	s.logger.Debug("sqlite: init done", "duration", time.Since(start))
	return nil
}

// SaveRun inserts run, replacing any row with the same ID.
func (s *Store) SaveRun(ctx context.Context, run gencode.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
		 (id, chat_id, tag, prompt, code, status, kind, output, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ChatID, run.Tag, run.Prompt, run.Code, string(run.Status),
		run.Kind.String(), run.Output, run.DurationMs, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: save run: %w", err)
	}
	s.logger.Debug("sqlite: run saved", "id", run.ID, "status", run.Status)
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, chatID string, limit int) ([]gencode.Run, error) {
	query := `SELECT id, chat_id, tag, prompt, code, status, kind, output, duration_ms, created_at FROM runs`
	args := []any{}
	if chatID != "" {
		query += ` WHERE chat_id = ?`
		args = append(args, chatID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var runs []gencode.Run
	for rows.Next() {
		var r gencode.Run
		var status, kind string
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Tag, &r.Prompt, &r.Code, &status, &kind,
			&r.Output, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		r.Status = gencode.RunStatus(status)
		_ = r.Kind.UnmarshalText([]byte(kind))
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
