package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql []string
	err error
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.sql = append(r.sql, sql)
	return pgconn.CommandTag{}, r.err
}

func TestSchema_LeadsTableIsIdempotent(t *testing.T) {
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS leads")
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		assert.Contains(t, stmt, "IF NOT EXISTS", "statement must be safe to rerun: %s", stmt)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &recordingExecer{}
	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.Equal(t, []string{schemaSQL}, db.sql)

	db = &recordingExecer{err: errors.New("permission denied")}
	assert.EqualError(t, EnsureSchema(context.Background(), db), "permission denied")
}
