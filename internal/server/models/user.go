// Package models defines server-side rows persisted in the database that
// have no counterpart in the shared domain model.
package models

import "time"

// User is an account. ID is the username chosen at registration.
type User struct {
	ID        string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}
