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

// PostgresRepository implements record storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func encode(rec *models.CharaRecord) ([]byte, sql.NullTime, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, sql.NullTime{}, fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	var expires sql.NullTime
	if rec.ExpiresAt != nil {
		expires = sql.NullTime{Time: *rec.ExpiresAt, Valid: true}
	}
	return body, expires, nil
}

func decode(body []byte, downloads int64) (*models.CharaRecord, error) {
	rec := &models.CharaRecord{}
	if err := json.Unmarshal(body, rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	rec.DownloadCount = downloads
	return rec, nil
}

// Create inserts rec. An existing id yields common.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, rec *models.CharaRecord) error {
	body, expires, err := encode(rec)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO records (id, owner_id, access_rule, share_rule, created_at, updated_at, expires_at, download_count, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, rec.ID, rec.OwnerID, string(rec.AccessRule), string(rec.ShareRule),
		rec.CreatedAt, rec.UpdatedAt, expires, rec.DownloadCount, body)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", rec.ID, common.ErrConflict)
	}
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*models.CharaRecord, error) {
	var (
		body      []byte
		downloads int64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&body, &downloads)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return decode(body, downloads)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.CharaRecord, error) {
	return r.get(ctx, `SELECT body, download_count FROM records WHERE id = $1`, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.CharaRecord, error) {
	return r.get(ctx, `SELECT body, download_count FROM records WHERE id = $1 FOR UPDATE`, id)
}

// Update rewrites the stored record. The owner cannot change; an unknown
// id or a different owner yields common.ErrNotFound.
func (r *PostgresRepository) Update(ctx context.Context, rec *models.CharaRecord) error {
	body, expires, err := encode(rec)
	if err != nil {
		return err
	}
	query := `
		UPDATE records SET access_rule = $3, share_rule = $4, updated_at = $5, expires_at = $6, body = $7
		WHERE id = $1 AND owner_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, rec.ID, rec.OwnerID, string(rec.AccessRule), string(rec.ShareRule),
		rec.UpdatedAt, expires, body)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, rec.ID)
}

func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.CharaRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	result := []*models.CharaRecord{}
	for rows.Next() {
		var (
			body      []byte
			downloads int64
		)
		if err := rows.Scan(&body, &downloads); err != nil {
			return nil, err
		}
		rec, err := decode(body, downloads)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.CharaRecord, error) {
	return r.list(ctx, `SELECT body, download_count FROM records WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
}

func (r *PostgresRepository) ListShared(ctx context.Context, viewerID string, now time.Time) ([]*models.CharaRecord, error) {
	query := `
		SELECT body, download_count FROM records
		WHERE share_rule = 'shared' AND owner_id <> $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY owner_id, updated_at DESC, id
	`
	return r.list(ctx, query, viewerID, now)
}

func (r *PostgresRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM records WHERE owner_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// IncrementDownloads bumps the download counter of id and returns the new
// value.
func (r *PostgresRepository) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE records SET download_count = download_count + 1 WHERE id = $1 RETURNING download_count`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes records whose expiry lies at or before now.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
