// Package migrations embeds the goose SQL migrations for the relays schema.
// Per-relay credential tables are created at runtime and are not part of it.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
