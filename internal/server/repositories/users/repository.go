// Package users declares the server-side account repository and its
// PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/charasync/internal/server/models"
)

type Repository interface {
	// Create inserts user. A taken username yields common.ErrConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	// Exists reports whether an account with id is registered.
	Exists(ctx context.Context, id string) (bool, error)
}
