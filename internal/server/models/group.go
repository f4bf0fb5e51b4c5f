package models

import "time"

// Group is a password-protected membership list. The first user to join a
// group id creates it and becomes its owner.
type Group struct {
	ID        string
	OwnerID   string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}
