package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/charasync/internal/client/repositories/records"
	"github.com/dmitrijs2005/charasync/internal/dbx"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// RecordCache keeps the last refreshed owned and shared lists in the local
// database. Each refresh replaces its scope wholesale.
type RecordCache struct {
	db  *sql.DB
	now func() time.Time
}

func NewRecordCache(db *sql.DB) *RecordCache {
	return &RecordCache{db: db, now: time.Now}
}

// Replace swaps the cached rows of scope for recs in one transaction.
func (c *RecordCache) Replace(ctx context.Context, scope models.RecordScope, recs []*models.CharaRecord) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		if err := repo.DeleteScope(ctx, scope); err != nil {
			return err
		}
		for _, r := range recs {
			if err := repo.Upsert(ctx, scope, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns the cached records of scope that have not expired.
func (c *RecordCache) Load(ctx context.Context, scope models.RecordScope) ([]*models.CharaRecord, error) {
	all, err := records.NewSQLiteRepository(c.db).List(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load %s cache: %w", scope, err)
	}
	now := c.now()
	out := all[:0]
	for _, r := range all {
		if !r.Expired(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *RecordCache) Upsert(ctx context.Context, scope models.RecordScope, rec *models.CharaRecord) error {
	return records.NewSQLiteRepository(c.db).Upsert(ctx, scope, rec)
}

func (c *RecordCache) Delete(ctx context.Context, scope models.RecordScope, id string) error {
	return records.NewSQLiteRepository(c.db).Delete(ctx, scope, id)
}

// Clear drops both scopes.
func (c *RecordCache) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		for _, scope := range []models.RecordScope{models.ScopeOwned, models.ScopeShared} {
			if err := repo.DeleteScope(ctx, scope); err != nil {
				return err
			}
		}
		return nil
	})
}

// PurgeExpired drops expired rows from both scopes.
func (c *RecordCache) PurgeExpired(ctx context.Context) (int64, error) {
	return records.NewSQLiteRepository(c.db).PurgeExpired(ctx, c.now())
}
