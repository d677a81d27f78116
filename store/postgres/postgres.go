// Package postgres implements gencode.RunStore using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor injection.
// The caller creates the pool; Close closes it.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	gencode "github.com/nevindra/gencode"
)

// Store implements gencode.RunStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ gencode.RunStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and returns a Store owning the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return New(pool), nil
}

// Init creates the runs table and index.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			prompt TEXT NOT NULL,
			code TEXT NOT NULL,
			status TEXT NOT NULL,
			kind TEXT NOT NULL,
			output TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			seq BIGSERIAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_chat_created ON runs (chat_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// SaveRun upserts run by ID.
func (s *Store) SaveRun(ctx context.Context, run gencode.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, chat_id, tag, prompt, code, status, kind, output, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status, kind = EXCLUDED.kind, output = EXCLUDED.output,
		   code = EXCLUDED.code, duration_ms = EXCLUDED.duration_ms`,
		run.ID, run.ChatID, run.Tag, run.Prompt, run.Code, string(run.Status),
		run.Kind.String(), run.Output, run.DurationMs, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, chatID string, limit int) ([]gencode.Run, error) {
	var rows pgx.Rows
	var err error
	const cols = `SELECT id, chat_id, tag, prompt, code, status, kind, output, duration_ms, created_at FROM runs`
	if chatID != "" {
		rows, err = s.pool.Query(ctx, cols+` WHERE chat_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2`, chatID, limit)
	} else {
		rows, err = s.pool.Query(ctx, cols+` ORDER BY created_at DESC, seq DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []gencode.Run
	for rows.Next() {
		var r gencode.Run
		var status, kind string
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Tag, &r.Prompt, &r.Code, &status, &kind,
			&r.Output, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		r.Status = gencode.RunStatus(status)
		_ = r.Kind.UnmarshalText([]byte(kind))
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
