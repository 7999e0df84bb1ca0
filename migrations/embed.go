// Package migrations embeds the SQL schema so the binary carries its own
// migrations. Pass FS to (*database.DB).Migrate.
package migrations

import "embed"

// FS holds every YYYYMMDD_HHMMSS_name.up.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
