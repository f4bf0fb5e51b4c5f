// Package services contains the application services of the charasync
// client: authentication, the owned record store, file dependency
// resolution, the transfer orchestrator, the lobby session manager and the
// small caches around them.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/cryptox"
	"github.com/dmitrijs2005/charasync/internal/dbx"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// Metadata keys written by the auth service.
const (
	MetaUsername = "username"
	MetaUserID   = "user_id"
	MetaSalt     = "salt"
	MetaVerifier = "verifier"
)

// AuthService defines authentication operations for the CLI.
//
// OnlineLogin authenticates against the server and caches what OfflineLogin
// needs to verify the same password later without a connection. Both return
// the account's user id.
type AuthService interface {
	OfflineLogin(ctx context.Context, username string, password []byte) (string, error)
	OnlineLogin(ctx context.Context, username string, password []byte) (string, error)
	Register(ctx context.Context, username string, password []byte) (string, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
}

type authService struct {
	client client.AuthClient
	closer interface{ Close() error }
	db     *sql.DB
}

// NewAuthService constructs an AuthService bound to the given API client and DB.
func NewAuthService(c client.Client, db *sql.DB) AuthService {
	return &authService{client: c, closer: c, db: db}
}

// OfflineLogin checks password against the cached salt and verifier. Missing
// cache entries yield client.ErrLocalDataNotAvailable; a mismatch yields
// client.ErrUnauthorized.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) (string, error) {
	values, err := metadata.NewSQLiteRepository(a.db).Lookup(ctx, MetaUsername, MetaUserID, MetaSalt, MetaVerifier)
	if err != nil {
		return "", fmt.Errorf("read offline data: %w", err)
	}
	savedUsername, salt, verifier := values[MetaUsername], values[MetaSalt], values[MetaVerifier]
	if len(savedUsername) == 0 || len(salt) == 0 || len(verifier) == 0 {
		return "", client.ErrLocalDataNotAvailable
	}
	if string(savedUsername) != username {
		return "", client.ErrUnauthorized
	}

	key := cryptox.DeriveMasterKey(password, salt)
	defer common.Wipe(key)
	if subtle.ConstantTimeCompare(verifier, cryptox.MakeVerifier(key)) == 0 {
		return "", client.ErrUnauthorized
	}
	return string(values[MetaUserID]), nil
}

// OnlineLogin fetches the salt, proves the password with its verifier and
// stores the offline login data.
func (a *authService) OnlineLogin(ctx context.Context, username string, password []byte) (string, error) {
	salt, err := a.client.GetSalt(ctx, username)
	if err != nil {
		return "", fmt.Errorf("get salt error: %w", err)
	}

	key := cryptox.DeriveMasterKey(password, salt)
	defer common.Wipe(key)
	verifier := cryptox.MakeVerifier(key)

	userID, err := a.client.Login(ctx, username, verifier)
	if err != nil {
		return "", fmt.Errorf("login error: %w", err)
	}

	if err := a.saveOfflineData(ctx, username, userID, salt, verifier); err != nil {
		return "", fmt.Errorf("offline data saving error: %w", err)
	}
	return userID, nil
}

func (a *authService) saveOfflineData(ctx context.Context, username, userID string, salt, verifier []byte) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).Store(ctx, map[string][]byte{
			MetaUsername: []byte(username),
			MetaUserID:   []byte(userID),
			MetaSalt:     salt,
			MetaVerifier: verifier,
		})
	})
}

// Register creates a new account with a fresh random salt and returns its
// user id.
func (a *authService) Register(ctx context.Context, username string, password []byte) (string, error) {
	if !models.ValidIdentity(username) {
		return "", fmt.Errorf("username %q: %w", username, common.ErrValidationFailed)
	}
	if len(password) < MinPasswordLen {
		return "", fmt.Errorf("password shorter than %d characters: %w", MinPasswordLen, common.ErrValidationFailed)
	}

	salt := common.RandomBytes(32)
	key := cryptox.DeriveMasterKey(password, salt)
	defer common.Wipe(key)

	return a.client.Register(ctx, username, salt, cryptox.MakeVerifier(key))
}

// MinPasswordLen is the shortest password Register accepts.
const MinPasswordLen = 6

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.closer.Close()
}

// ClearOfflineData wipes locally cached auth metadata (e.g., on logout).
func (a *authService) ClearOfflineData(ctx context.Context) error {
	return metadata.NewSQLiteRepository(a.db).Clear(ctx)
}
