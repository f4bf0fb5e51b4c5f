// Package refreshtokens stores the server-issued refresh tokens. Only a
// digest of each token is persisted.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/charasync/internal/server/models"
)

type Repository interface {
	// Create stores token for userID until expires.
	Create(ctx context.Context, userID, token string, expires time.Time) error

	// Take removes token and returns what it was issued for, so a token
	// can be exchanged once. Unknown tokens yield common.ErrNotFound.
	Take(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
