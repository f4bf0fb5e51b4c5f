// Package cli provides the interactive charasync command-line client.
//
// It wires configuration, the local SQLite cache, the content-addressed
// file cache and the client services behind a small REPL. Login falls back
// to the cached credentials when the server is unreachable, in which case
// the cached records stay browsable.
//
// Commands cover owned records (create, edit, save, delete), shared
// records and share codes, favorites, pairs and groups, the lobby session
// and nearby pose discovery. Type 'help' at the prompt for the list.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
