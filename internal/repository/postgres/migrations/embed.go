package migrations

import "embed"

// FS contains embedded Postgres migrations for the activity archive and users.
//
//go:embed *.sql
var FS embed.FS
