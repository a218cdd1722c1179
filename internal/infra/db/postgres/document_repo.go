package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultDocumentName = "predictions"

// DocumentRepository stores the prediction document as a single row.
type DocumentRepository struct {
	db   *sql.DB
	name string
}

func NewDocumentRepository(db *sql.DB, name string) *DocumentRepository {
	if strings.TrimSpace(name) == "" {
		name = defaultDocumentName
	}
	return &DocumentRepository{db: db, name: name}
}

// EnsureSchema creates the documents table when missing
func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS prediction_documents (
  name TEXT PRIMARY KEY,
  body TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

// Load returns nil, nil when the row does not exist yet
func (r *DocumentRepository) Load(ctx context.Context) ([]byte, error) {
	const q = `SELECT body FROM prediction_documents WHERE name=$1 LIMIT 1;`
	var body string
	err := r.db.QueryRowContext(ctx, q, r.name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// Update runs the read-modify-write cycle in one transaction, holding the
// document row with FOR UPDATE until commit.
func (r *DocumentRepository) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const seed = `
INSERT INTO prediction_documents (name, body, updated_at)
VALUES ($1, '', $2)
ON CONFLICT (name) DO NOTHING;
`
	if _, err = tx.ExecContext(ctx, seed, r.name, time.Now().UTC()); err != nil {
		return fmt.Errorf("seed document: %w", err)
	}

	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM prediction_documents WHERE name=$1 FOR UPDATE;`, r.name).Scan(&body)
	if err != nil {
		return fmt.Errorf("lock document: %w", err)
	}

	var current []byte
	if body != "" {
		current = []byte(body)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}

	const write = `UPDATE prediction_documents SET body=$1, updated_at=$2 WHERE name=$3;`
	if _, err = tx.ExecContext(ctx, write, string(next), time.Now().UTC(), r.name); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
