package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Statically assert that PGStore implements the Store interface.
var _ Store = (*PGStore)(nil)

// DBPool abstracts the pgxpool.Pool methods the store needs, so a mock can
// stand in during tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore persists sequences in PostgreSQL. The prompt list lives in a
// jsonb column, so the table never needs a migration when prompts change
// shape.
type PGStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPGStore verifies the connection before returning the store.
func NewPGStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PGStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGStore{pool: pool, log: logger.Named("sequence_store")}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sequences (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    prompts     JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the sequences table when it is missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create sequences table: %w", err)
	}
	s.log.Debug("Sequence schema is in place.")
	return nil
}

// List returns all sequences ordered by name.
func (s *PGStore) List(ctx context.Context) ([]Sequence, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, name, description, prompts, created_at, updated_at
        FROM sequences
        ORDER BY name ASC;
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}
	defer rows.Close()

	var out []Sequence
	for rows.Next() {
		var seq Sequence
		if err := rows.Scan(&seq.ID, &seq.Name, &seq.Description, &seq.Prompts, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sequence row: %w", err)
		}
		out = append(out, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during sequence iteration: %w", err)
	}
	return out, nil
}

// Get loads a single sequence by ID.
func (s *PGStore) Get(ctx context.Context, id string) (Sequence, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT id, name, description, prompts, created_at, updated_at
        FROM sequences
        WHERE id = $1;
    `, id)

	var seq Sequence
	err := row.Scan(&seq.ID, &seq.Name, &seq.Description, &seq.Prompts, &seq.CreatedAt, &seq.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sequence{}, ErrNotFound
	}
	if err != nil {
		return Sequence{}, fmt.Errorf("failed to load sequence: %w", err)
	}
	return seq, nil
}

// Save validates and upserts seq, assigning an ID and CreatedAt on first
// save and bumping UpdatedAt on every save.
func (s *PGStore) Save(ctx context.Context, seq Sequence) (Sequence, error) {
	if err := seq.Validate(); err != nil {
		return Sequence{}, err
	}

	now := time.Now().UTC()
	if seq.ID == "" {
		seq.ID = uuid.NewString()
		seq.CreatedAt = now
	} else if seq.CreatedAt.IsZero() {
		seq.CreatedAt = now
	}
	seq.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
        INSERT INTO sequences (id, name, description, prompts, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            description = EXCLUDED.description,
            prompts = EXCLUDED.prompts,
            updated_at = EXCLUDED.updated_at;
    `, seq.ID, seq.Name, seq.Description, seq.Prompts, seq.CreatedAt, seq.UpdatedAt)
	if err != nil {
		return Sequence{}, fmt.Errorf("failed to save sequence: %w", err)
	}
	return seq, nil
}

// Delete removes a stored sequence.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sequences WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
