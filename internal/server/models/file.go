package models

import (
	"time"

	"github.com/dmitrijs2005/charasync/internal/models"
)

// FileObject is the server's index entry for one content-addressed blob.
// The bytes live in object storage under StorageKey.
type FileObject struct {
	Hash       models.Hash
	Uploaded   bool
	CreatedAt  time.Time
	UploadedAt *time.Time
}

// StorageKey is the object-storage key of a blob.
func StorageKey(h models.Hash) string {
	return "files/" + string(h)
}
