// Package common contains shared constants and sentinel errors used across
// charasync components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// MetadataKeyUserID and MetadataKeyUsername are the keys under which the
// client keeps the authenticated identity in its local metadata table.
const (
	MetadataKeyUserID   = "user_id"
	MetadataKeyUsername = "username"
)
