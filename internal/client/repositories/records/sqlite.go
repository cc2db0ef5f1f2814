package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/dbx"
)

type SQLiteRepository struct {
	db        *sql.DB
	origin    string
	retention int
	now       func() time.Time
}

type Option func(*SQLiteRepository)

// WithRetention keeps only the most recent n change-log rows. Zero keeps all.
func WithRetention(n int) Option {
	return func(r *SQLiteRepository) { r.retention = n }
}

func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

func NewSQLiteRepository(db *sql.DB, origin string, opts ...Option) *SQLiteRepository {
	r := &SQLiteRepository{db: db, origin: origin, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SQLiteRepository) Origin() string {
	return r.origin
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record[%s]: %w", key, err)
	}
	return []byte(value), nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return r.set(ctx, tx, key, value)
	})
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return r.delete(ctx, tx, key)
	})
}

func (r *SQLiteRepository) Batch(ctx context.Context, fn func(ctx context.Context, w Writer) error) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &txWriter{repo: r, tx: tx})
	})
}

func (r *SQLiteRepository) set(ctx context.Context, tx dbx.DBTX, key string, value []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value), r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set record[%s]: %w", key, err)
	}
	return r.logChange(ctx, tx, key)
}

func (r *SQLiteRepository) delete(ctx context.Context, tx dbx.DBTX, key string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete record[%s]: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	return r.logChange(ctx, tx, key)
}

func (r *SQLiteRepository) logChange(ctx context.Context, tx dbx.DBTX, key string) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO changes (key, origin, changed_at) VALUES (?, ?, ?)`,
		key, r.origin, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to log change[%s]: %w", key, err)
	}

	if r.retention <= 0 {
		return nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read change id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM changes WHERE id <= ?`, id-int64(r.retention)); err != nil {
		return fmt.Errorf("failed to prune changes: %w", err)
	}
	return nil
}

type txWriter struct {
	repo *SQLiteRepository
	tx   dbx.DBTX
}

func (w *txWriter) Set(ctx context.Context, key string, value []byte) error {
	return w.repo.set(ctx, w.tx, key, value)
}

func (w *txWriter) Delete(ctx context.Context, key string) error {
	return w.repo.delete(ctx, w.tx, key)
}
