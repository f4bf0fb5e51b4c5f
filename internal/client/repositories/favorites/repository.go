// Package favorites persists the record codes a user bookmarked together
// with a free-form annotation.
package favorites

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/dbx"
)

type Favorite struct {
	Code       string
	Annotation string
	CreatedAt  time.Time
}

type Repository interface {
	Add(ctx context.Context, code string, now time.Time) error
	Annotate(ctx context.Context, code, annotation string) error
	Remove(ctx context.Context, code string) error
	List(ctx context.Context) ([]Favorite, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Add is idempotent; an existing favorite keeps its annotation.
func (r *SQLiteRepository) Add(ctx context.Context, code string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO favorites (code, annotation, created_at) VALUES (?, '', ?)
		ON CONFLICT(code) DO NOTHING
	`, code, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to add favorite %s: %w", code, err)
	}
	return nil
}

func (r *SQLiteRepository) Annotate(ctx context.Context, code, annotation string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE favorites SET annotation = ? WHERE code = ?`, annotation, code)
	if err != nil {
		return fmt.Errorf("failed to annotate favorite %s: %w", code, err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) Remove(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("failed to remove favorite %s: %w", code, err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Favorite, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, annotation, created_at FROM favorites ORDER BY created_at, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var result []Favorite
	for rows.Next() {
		var f Favorite
		var created int64
		if err := rows.Scan(&f.Code, &f.Annotation, &created); err != nil {
			return nil, fmt.Errorf("failed to scan favorite row: %w", err)
		}
		f.CreatedAt = time.UnixMilli(created)
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorite rows: %w", err)
	}
	return result, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
