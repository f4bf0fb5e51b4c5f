// Package records caches owned and shared records in the client's SQLite
// database so the last known lists survive a restart.
package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/charasync/internal/models"
)

type Repository interface {
	Upsert(ctx context.Context, scope models.RecordScope, rec *models.CharaRecord) error
	Get(ctx context.Context, scope models.RecordScope, id string) (*models.CharaRecord, error)
	List(ctx context.Context, scope models.RecordScope) ([]*models.CharaRecord, error)
	Delete(ctx context.Context, scope models.RecordScope, id string) error
	DeleteScope(ctx context.Context, scope models.RecordScope) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
