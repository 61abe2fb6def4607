package leads

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createLeadsTable = `
CREATE TABLE IF NOT EXISTS leads (
	id          BIGSERIAL PRIMARY KEY,
	email       TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists leads in Postgres via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and ensures the leads table
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createLeadsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create leads table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Append inserts one lead row.
func (s *PostgresStore) Append(ctx context.Context, lead Lead) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (email, session_id, captured_at) VALUES ($1, $2, $3)`,
		lead.Email, lead.SessionID, lead.CapturedAt)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// All returns every captured lead, oldest first.
func (s *PostgresStore) All(ctx context.Context) ([]Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email, session_id, captured_at FROM leads ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.Email, &l.SessionID, &l.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read leads: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
