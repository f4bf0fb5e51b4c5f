package models

import "time"

// TransferTask is a presigned URL for moving one file.
type TransferTask struct {
	Hash      Hash      `json:"hash"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
