package favorites

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/charasync/internal/common"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE favorites (
  code       TEXT PRIMARY KEY,
  annotation TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestAddAnnotateList(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	t0 := time.UnixMilli(1000)

	require.NoError(t, r.Add(ctx, "bob:r2", t0.Add(time.Second)))
	require.NoError(t, r.Add(ctx, "amy:r1", t0))
	require.NoError(t, r.Annotate(ctx, "amy:r1", "nice hat"))
	require.NoError(t, r.Add(ctx, "amy:r1", t0.Add(time.Hour)))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "amy:r1", list[0].Code)
	assert.Equal(t, "nice hat", list[0].Annotation)
	assert.Equal(t, t0.UnixMilli(), list[0].CreatedAt.UnixMilli())
	assert.Equal(t, "bob:r2", list[1].Code)
}

func TestMissingFavorite(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.ErrorIs(t, r.Annotate(ctx, "x:y", "a"), common.ErrNotFound)
	require.ErrorIs(t, r.Remove(ctx, "x:y"), common.ErrNotFound)
}

func TestRemove(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Add(ctx, "a:b", time.Now()))
	require.NoError(t, r.Remove(ctx, "a:b"))

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
