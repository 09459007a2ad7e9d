package migrations

import "embed"

// PostgresFS holds the PostgreSQL schema migrations.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS
