// Package migrations embeds the SQL schema files applied by cmd/migrate.
package migrations

import "embed"

// Files holds every NNN_description.sql migration.
//
//go:embed *.sql
var Files embed.FS
