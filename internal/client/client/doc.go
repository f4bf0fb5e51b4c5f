// Package client is the client-side transport for charasync.
//
// Client is the transport-agnostic contract used by the services layer: the
// auth handshake, record, file, relationship and lobby calls. GRPCClient is
// its gRPC implementation. It attaches the access token to every call,
// refreshes an expired token once and retries, and maps status codes to the
// sentinel errors in package common, so callers match failures with
// errors.Is(err, common.ErrRateLimited) and the like.
//
// InitDatabase opens the local SQLite cache and applies its migrations.
package client
