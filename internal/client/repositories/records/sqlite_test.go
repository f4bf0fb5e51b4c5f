package records

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  scope      TEXT NOT NULL,
  id         TEXT NOT NULL,
  owner_id   TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  expires_at INTEGER,
  body       BLOB NOT NULL,
  PRIMARY KEY (scope, id)
);`)
	require.NoError(t, err)
	return db
}

func record(id, owner string, updated time.Time) *models.CharaRecord {
	r := models.NewSkeleton(id, owner, updated)
	r.Description = "desc " + id
	return r
}

func TestUpsertAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	rec := record("r1", "alice", now)
	require.NoError(t, r.Upsert(ctx, models.ScopeOwned, rec))

	got, err := r.Get(ctx, models.ScopeOwned, "r1")
	require.NoError(t, err)
	assert.Equal(t, "desc r1", got.Description)
	assert.Equal(t, "alice", got.OwnerID)

	rec.Description = "changed"
	require.NoError(t, r.Upsert(ctx, models.ScopeOwned, rec))
	got, err = r.Get(ctx, models.ScopeOwned, "r1")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Description)
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.Get(context.Background(), models.ScopeShared, "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestScopesAreIndependent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.Upsert(ctx, models.ScopeOwned, record("a", "me", now)))
	require.NoError(t, r.Upsert(ctx, models.ScopeShared, record("b", "bob", now)))
	require.NoError(t, r.Upsert(ctx, models.ScopeShared, record("c", "amy", now)))

	owned, err := r.List(ctx, models.ScopeOwned)
	require.NoError(t, err)
	require.Len(t, owned, 1)

	shared, err := r.List(ctx, models.ScopeShared)
	require.NoError(t, err)
	require.Len(t, shared, 2)
	assert.Equal(t, "amy", shared[0].OwnerID)

	require.NoError(t, r.DeleteScope(ctx, models.ScopeShared))
	shared, err = r.List(ctx, models.ScopeShared)
	require.NoError(t, err)
	assert.Empty(t, shared)

	owned, err = r.List(ctx, models.ScopeOwned)
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestDelete(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, models.ScopeOwned, record("a", "me", time.Now())))
	require.NoError(t, r.Delete(ctx, models.ScopeOwned, "a"))
	require.NoError(t, r.Delete(ctx, models.ScopeOwned, "a"))

	_, err := r.Get(ctx, models.ScopeOwned, "a")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestPurgeExpired(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	expired := record("old", "me", now)
	expired.ExpiresAt = &past
	live := record("new", "me", now)
	live.ExpiresAt = &future

	require.NoError(t, r.Upsert(ctx, models.ScopeOwned, expired))
	require.NoError(t, r.Upsert(ctx, models.ScopeOwned, live))
	require.NoError(t, r.Upsert(ctx, models.ScopeOwned, record("forever", "me", now)))

	n, err := r.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	all, err := r.List(ctx, models.ScopeOwned)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDBErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	err := r.Upsert(ctx, models.ScopeOwned, record("x", "me", time.Now()))
	require.ErrorContains(t, err, "failed to upsert record x")

	_, err = r.List(ctx, models.ScopeOwned)
	require.ErrorContains(t, err, "failed to list records")

	err = r.DeleteScope(ctx, models.ScopeOwned)
	require.ErrorContains(t, err, "failed to clear owned records")
}
