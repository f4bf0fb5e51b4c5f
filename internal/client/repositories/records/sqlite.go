package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/dbx"
	"github.com/dmitrijs2005/charasync/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, scope models.RecordScope, rec *models.CharaRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	var expires sql.NullInt64
	if rec.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: rec.ExpiresAt.UnixMilli(), Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO records (scope, id, owner_id, updated_at, expires_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, id) DO UPDATE SET
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at,
			body = excluded.body
	`, string(scope), rec.ID, rec.OwnerID, rec.UpdatedAt.UnixMilli(), expires, body)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, scope models.RecordScope, id string) (*models.CharaRecord, error) {
	var body []byte
	err := r.db.QueryRowContext(ctx, `SELECT body FROM records WHERE scope = ? AND id = ?`, string(scope), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return decode(body)
}

func (r *SQLiteRepository) List(ctx context.Context, scope models.RecordScope) ([]*models.CharaRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT body FROM records WHERE scope = ? ORDER BY owner_id, updated_at DESC, id
	`, string(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var result []*models.CharaRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		rec, err := decode(body)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, scope models.RecordScope, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE scope = ? AND id = ?`, string(scope), id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteScope(ctx context.Context, scope models.RecordScope) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE scope = ?`, string(scope)); err != nil {
		return fmt.Errorf("failed to clear %s records: %w", scope, err)
	}
	return nil
}

// PurgeExpired removes cached records whose expiry is at or before now.
func (r *SQLiteRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", err)
	}
	return res.RowsAffected()
}

func decode(body []byte) (*models.CharaRecord, error) {
	rec := &models.CharaRecord{}
	if err := json.Unmarshal(body, rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
