// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Lead fields are stored as individual columns; the chat transcript is kept
// as JSONB so that it can be inspected with SQL when needed.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/leaddesk/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

const leadColumns = `id, kind, status, name, email, company, phone, message, transcript, source_ip, created_at, updated_at`

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Put(ctx context.Context, lead *storage.Lead) error {
	if lead == nil || lead.ID == "" {
		return fmt.Errorf("lead id is required")
	}
	transcript, err := json.Marshal(transcriptOrEmpty(lead.Transcript))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id)
		 DO UPDATE SET kind = $2, status = $3, name = $4, email = $5, company = $6, phone = $7,
		               message = $8, transcript = $9, source_ip = $10, updated_at = $12`,
		lead.ID, string(lead.Kind), string(lead.Status), lead.Name, lead.Email, lead.Company,
		lead.Phone, lead.Message, transcript, lead.SourceIP, lead.CreatedAt, lead.UpdatedAt)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*storage.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *Store) List(ctx context.Context, filter storage.Filter) ([]*storage.Lead, error) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, "kind = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*storage.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func scanLead(row pgx.Row) (*storage.Lead, error) {
	var (
		lead       storage.Lead
		kind       string
		status     string
		transcript []byte
	)
	err := row.Scan(&lead.ID, &kind, &status, &lead.Name, &lead.Email, &lead.Company,
		&lead.Phone, &lead.Message, &transcript, &lead.SourceIP, &lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return nil, err
	}
	lead.Kind = storage.LeadKind(kind)
	lead.Status = storage.LeadStatus(status)
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &lead.Transcript); err != nil {
			return nil, fmt.Errorf("decoding transcript for %s: %w", lead.ID, err)
		}
		if len(lead.Transcript) == 0 {
			lead.Transcript = nil
		}
	}
	return &lead, nil
}

func transcriptOrEmpty(msgs []storage.Message) []storage.Message {
	if msgs == nil {
		return []storage.Message{}
	}
	return msgs
}
