package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DocumentRepository stores the prediction document as a single row.
type DocumentRepository struct {
	db   *sql.DB
	name string
}

func NewDocumentRepository(db *sql.DB, name string) *DocumentRepository {
	return &DocumentRepository{db: db, name: stringOrDefault(name, defaultDocumentName)}
}

// EnsureSchema creates the documents table when missing
func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS prediction_documents (
  name VARCHAR(64) NOT NULL PRIMARY KEY,
  body LONGTEXT NOT NULL,
  updated_at DATETIME(3) NOT NULL
);`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

// Load returns nil, nil when the row does not exist yet
func (r *DocumentRepository) Load(ctx context.Context) ([]byte, error) {
	const q = `SELECT body FROM prediction_documents WHERE name = ? LIMIT 1;`
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

// Update seeds the row when missing, then locks it with SELECT ... FOR UPDATE
// so concurrent writers from other processes queue behind this transaction.
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

	const seed = `INSERT IGNORE INTO prediction_documents (name, body, updated_at) VALUES (?, '', ?);`
	if _, err = tx.ExecContext(ctx, seed, r.name, time.Now().UTC()); err != nil {
		return fmt.Errorf("seed document: %w", err)
	}

	const lock = `SELECT body FROM prediction_documents WHERE name = ? FOR UPDATE;`
	var body string
	if err = tx.QueryRowContext(ctx, lock, r.name).Scan(&body); err != nil {
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

	const write = `UPDATE prediction_documents SET body = ?, updated_at = ? WHERE name = ?;`
	if _, err = tx.ExecContext(ctx, write, string(next), time.Now().UTC(), r.name); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
