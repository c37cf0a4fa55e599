// Package migrations embeds the SQL migrations of the indexed schema.
package migrations

import "embed"

// FS holds the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
