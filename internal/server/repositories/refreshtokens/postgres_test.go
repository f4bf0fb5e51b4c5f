package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresRepository(db), mock
}

func TestDigestHidesToken(t *testing.T) {
	d := digest("refresh-abc")
	assert.Len(t, d, 64)
	assert.NotContains(t, d, "refresh-abc")
	assert.Equal(t, d, digest("refresh-abc"))
	assert.NotEqual(t, d, digest("refresh-abd"))
}

func TestCreate(t *testing.T) {
	repo, mock := newRepo(t)
	exp := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(digest("tok"), "alice", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), "alice", "tok", exp))

	mock.ExpectExec(`INSERT INTO refresh_tokens`).WillReturnError(errors.New("db down"))
	err := repo.Create(context.Background(), "alice", "tok2", exp)
	assert.ErrorContains(t, err, "insert refresh token: db down")
}

func TestTake(t *testing.T) {
	repo, mock := newRepo(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectQuery(`DELETE FROM refresh_tokens WHERE token_hash = \$1 RETURNING user_id, expires_at`).
		WithArgs(digest("tok")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).AddRow("alice", exp))

	rt, err := repo.Take(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", rt.UserID)
	assert.Equal(t, "tok", rt.Token)
	assert.True(t, rt.Expires.Equal(exp))
}

func TestTake_Errors(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(`DELETE FROM refresh_tokens`).WillReturnError(sql.ErrNoRows)
	_, err := repo.Take(context.Background(), "used")
	assert.ErrorIs(t, err, common.ErrNotFound)

	mock.ExpectQuery(`DELETE FROM refresh_tokens`).WillReturnError(errors.New("conn reset"))
	_, err = repo.Take(context.Background(), "tok")
	assert.ErrorContains(t, err, "take refresh token: conn reset")
	assert.NotErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteExpired(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
