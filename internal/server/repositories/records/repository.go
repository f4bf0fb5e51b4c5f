// Package records declares the server-side record repository and its
// PostgreSQL implementation. Records are stored as a JSON body with the
// columns needed for filtering kept alongside.
package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/charasync/internal/models"
)

type Repository interface {
	Create(ctx context.Context, rec *models.CharaRecord) error
	// Get returns common.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.CharaRecord, error)
	// GetForUpdate is Get with a row lock; use inside a transaction.
	GetForUpdate(ctx context.Context, id string) (*models.CharaRecord, error)
	Update(ctx context.Context, rec *models.CharaRecord) error
	Delete(ctx context.Context, id, ownerID string) error

	ListByOwner(ctx context.Context, ownerID string) ([]*models.CharaRecord, error)
	// ListShared returns unexpired shared records not owned by viewerID.
	// Access rules are applied by the caller.
	ListShared(ctx context.Context, viewerID string, now time.Time) ([]*models.CharaRecord, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	IncrementDownloads(ctx context.Context, id string) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
