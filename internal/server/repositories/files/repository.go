// Package files keeps the server's index of content-addressed blobs: which
// hashes clients announced and which of them are confirmed uploaded.
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/charasync/internal/models"
	servermodels "github.com/dmitrijs2005/charasync/internal/server/models"
)

type Repository interface {
	// Register records hashes as pending; known hashes are left untouched.
	Register(ctx context.Context, hashes []models.Hash) error
	// Uploaded returns the subset of hashes confirmed uploaded, in input order.
	Uploaded(ctx context.Context, hashes []models.Hash) ([]models.Hash, error)
	MarkUploaded(ctx context.Context, hash models.Hash, at time.Time) error
	Get(ctx context.Context, hash models.Hash) (*servermodels.FileObject, error)
}
