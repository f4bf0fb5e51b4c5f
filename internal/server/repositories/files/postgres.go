package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/dbx"
	"github.com/dmitrijs2005/charasync/internal/models"
	servermodels "github.com/dmitrijs2005/charasync/internal/server/models"
)

// PostgresRepository implements the file index over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Hash lists travel as one comma-joined text parameter; hashes are hex so
// the separator cannot appear inside one.
func joinHashes(hashes []models.Hash) string {
	parts := make([]string, len(hashes))
	for i, h := range hashes {
		parts[i] = string(h)
	}
	return strings.Join(parts, ",")
}

func (r *PostgresRepository) Register(ctx context.Context, hashes []models.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	query := `
		INSERT INTO files (hash)
		SELECT unnest(string_to_array($1, ','))
		ON CONFLICT (hash) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, joinHashes(hashes)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Uploaded(ctx context.Context, hashes []models.Hash) ([]models.Hash, error) {
	result := []models.Hash{}
	if len(hashes) == 0 {
		return result, nil
	}
	query := `SELECT hash FROM files WHERE uploaded AND hash = ANY(string_to_array($1, ','))`
	rows, err := r.db.QueryContext(ctx, query, joinHashes(hashes))
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	found := make(map[models.Hash]struct{}, len(hashes))
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		found[models.Hash(h)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, h := range hashes {
		if _, ok := found[h]; ok {
			result = append(result, h)
			delete(found, h)
		}
	}
	return result, nil
}

// MarkUploaded flags hash as uploaded, creating the row if the hash was
// never registered.
func (r *PostgresRepository) MarkUploaded(ctx context.Context, hash models.Hash, at time.Time) error {
	query := `
		INSERT INTO files (hash, uploaded, uploaded_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (hash) DO UPDATE SET uploaded = TRUE, uploaded_at = EXCLUDED.uploaded_at
	`
	if _, err := r.db.ExecContext(ctx, query, string(hash), at); err != nil {
		return fmt.Errorf("failed to mark uploaded: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, hash models.Hash) (*servermodels.FileObject, error) {
	query := `SELECT hash, uploaded, created_at, uploaded_at FROM files WHERE hash = $1`

	var (
		h          string
		uploadedAt sql.NullTime
	)
	result := &servermodels.FileObject{}
	err := r.db.QueryRowContext(ctx, query, string(hash)).Scan(&h, &result.Uploaded, &result.CreatedAt, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", hash, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	result.Hash = models.Hash(h)
	if uploadedAt.Valid {
		t := uploadedAt.Time
		result.UploadedAt = &t
	}
	return result, nil
}
