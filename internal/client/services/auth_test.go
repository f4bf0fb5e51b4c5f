package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/cryptox"
)

func insertMeta(t *testing.T, db *sql.DB, k string, v []byte) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO metadata(key,value) VALUES(?,?)`, k, v)
	require.NoError(t, err)
}

func getMeta(t *testing.T, db *sql.DB, k string) []byte {
	t.Helper()
	var v []byte
	err := db.QueryRow(`SELECT value FROM metadata WHERE key=?`, k).Scan(&v)
	require.NoError(t, err)
	return v
}

func seedOffline(t *testing.T, db *sql.DB, username, password string) {
	t.Helper()
	salt := []byte("salty")
	ver := cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte(password), salt))
	insertMeta(t, db, MetaUsername, []byte(username))
	insertMeta(t, db, MetaUserID, []byte("uid-"+username))
	insertMeta(t, db, MetaSalt, salt)
	insertMeta(t, db, MetaVerifier, ver)
}

func TestOfflineLogin_NoLocalData(t *testing.T) {
	svc := NewAuthService(&fakeClient{}, setupDB(t))

	_, err := svc.OfflineLogin(context.Background(), "user", []byte("pass"))
	require.ErrorIs(t, err, client.ErrLocalDataNotAvailable)
}

func TestOfflineLogin_UsernameMismatch_Unauthorized(t *testing.T) {
	db := setupDB(t)
	seedOffline(t, db, "other", "pass")
	svc := NewAuthService(&fakeClient{}, db)

	_, err := svc.OfflineLogin(context.Background(), "user", []byte("pass"))
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestOfflineLogin_WrongPassword_Unauthorized(t *testing.T) {
	db := setupDB(t)
	seedOffline(t, db, "user", "correct")
	svc := NewAuthService(&fakeClient{}, db)

	_, err := svc.OfflineLogin(context.Background(), "user", []byte("wrong"))
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestOfflineLogin_Success_ReturnsUserID(t *testing.T) {
	db := setupDB(t)
	seedOffline(t, db, "user", "pass")
	svc := NewAuthService(&fakeClient{}, db)

	got, err := svc.OfflineLogin(context.Background(), "user", []byte("pass"))
	require.NoError(t, err)
	require.Equal(t, "uid-user", got)
}

func TestOnlineLogin_GetSaltError_Wrapped(t *testing.T) {
	fc := &fakeClient{getSaltFn: func(string) ([]byte, error) { return nil, errors.New("network down") }}
	svc := NewAuthService(fc, setupDB(t))

	_, err := svc.OnlineLogin(context.Background(), "u", []byte("p"))
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "get salt error:"))
}

func TestOnlineLogin_LoginError_Wrapped(t *testing.T) {
	fc := &fakeClient{
		getSaltFn: func(string) ([]byte, error) { return []byte("s"), nil },
		loginFn:   func(string, []byte) (string, error) { return "", common.ErrUnauthorized },
	}
	svc := NewAuthService(fc, setupDB(t))

	_, err := svc.OnlineLogin(context.Background(), "u", []byte("p"))
	require.ErrorIs(t, err, common.ErrUnauthorized)
	require.True(t, strings.HasPrefix(err.Error(), "login error:"))
}

func TestOnlineLogin_Success_SavesOfflineData(t *testing.T) {
	db := setupDB(t)
	var sentVerifier []byte
	fc := &fakeClient{
		getSaltFn: func(string) ([]byte, error) { return []byte("salt"), nil },
		loginFn: func(u string, v []byte) (string, error) {
			sentVerifier = append([]byte(nil), v...)
			return "uid-42", nil
		},
	}
	svc := NewAuthService(fc, db)

	uid, err := svc.OnlineLogin(context.Background(), "user", []byte("pass"))
	require.NoError(t, err)
	require.Equal(t, "uid-42", uid)

	require.Equal(t, []byte("user"), getMeta(t, db, MetaUsername))
	require.Equal(t, []byte("uid-42"), getMeta(t, db, MetaUserID))
	require.Equal(t, []byte("salt"), getMeta(t, db, MetaSalt))
	require.Equal(t, sentVerifier, getMeta(t, db, MetaVerifier))

	want := cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte("pass"), []byte("salt")))
	require.Equal(t, want, sentVerifier)

	// the cached data now supports an offline login
	got, err := svc.OfflineLogin(context.Background(), "user", []byte("pass"))
	require.NoError(t, err)
	require.Equal(t, "uid-42", got)
}

func TestRegister_DelegatesToClient(t *testing.T) {
	var gotUser string
	var gotSalt, gotVerifier []byte
	fc := &fakeClient{registerFn: func(u string, s, v []byte) (string, error) {
		gotUser, gotSalt, gotVerifier = u, s, v
		return "uid-new", nil
	}}
	svc := NewAuthService(fc, setupDB(t))

	uid, err := svc.Register(context.Background(), "user", []byte("secret1"))
	require.NoError(t, err)
	require.Equal(t, "uid-new", uid)
	require.Equal(t, "user", gotUser)
	require.Len(t, gotSalt, 32)
	require.Equal(t, cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte("secret1"), gotSalt)), gotVerifier)
}

func TestRegister_Validation(t *testing.T) {
	fc := &fakeClient{}
	svc := NewAuthService(fc, setupDB(t))

	_, err := svc.Register(context.Background(), "u", []byte("secret1"))
	require.ErrorIs(t, err, common.ErrValidationFailed)

	_, err = svc.Register(context.Background(), "user", []byte("short"))
	require.ErrorIs(t, err, common.ErrValidationFailed)

	require.Zero(t, fc.count("Register"))
}

func TestRegister_ErrorFromClient(t *testing.T) {
	fc := &fakeClient{registerFn: func(string, []byte, []byte) (string, error) { return "", common.ErrConflict }}
	svc := NewAuthService(fc, setupDB(t))

	_, err := svc.Register(context.Background(), "user", []byte("secret1"))
	require.ErrorIs(t, err, common.ErrConflict)
}

func TestPing_Close_ClearOfflineData_Delegations(t *testing.T) {
	db := setupDB(t)
	insertMeta(t, db, "x", []byte("y"))
	fc := &fakeClient{}
	svc := NewAuthService(fc, db)

	require.NoError(t, svc.Ping(context.Background()))
	require.NoError(t, svc.Close(context.Background()))
	require.Equal(t, 1, fc.count("Close"))

	require.NoError(t, svc.ClearOfflineData(context.Background()))
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM metadata`).Scan(&n))
	require.Equal(t, 0, n)
}

func TestPing_Close_ErrorsPropagate(t *testing.T) {
	fc := &fakeClient{pingErr: common.ErrTransportFailure, closeErr: errors.New("io")}
	svc := NewAuthService(fc, setupDB(t))

	require.ErrorIs(t, svc.Ping(context.Background()), common.ErrTransportFailure)
	require.Error(t, svc.Close(context.Background()))
}
