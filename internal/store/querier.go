package store

import (
	"context"
	"database/sql"
	"time"
)

// Querier is the subset of database/sql used by the repositories. Every
// statement returns rows, so no Exec method is needed.
// *sql.DB, *sql.Tx and *sql.Conn satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PasswordHasher turns plaintext passwords into one-way hashes and checks
// plaintext against a stored hash.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
