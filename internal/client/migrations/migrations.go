// Package migrations embeds the SQL migrations of the client cache.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
