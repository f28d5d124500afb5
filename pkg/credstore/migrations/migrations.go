package migrations

import "embed"

// Migrations holds the SQL migration files for the SQLite credential backend.
//
//go:embed *.sql
var Migrations embed.FS
