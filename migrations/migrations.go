// Package migrations embeds the catalog schema applied at startup by
// database.RunMigrations.
package migrations

import "embed"

// FS holds every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
