package postgres

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5/pgconn"
)

// schemaSQL holds the leads table and the indexes behind the dashboard's
// newest-first listing and its kind/status filters.
//
//go:embed schema.sql
var schemaSQL string

// execer is the part of *pgxpool.Pool that EnsureSchema needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the leads table and its listing indexes if they are
// missing. Every statement is IF NOT EXISTS, so it runs on each startup.
func EnsureSchema(ctx context.Context, db execer) error {
	_, err := db.Exec(ctx, schemaSQL)
	return err
}
