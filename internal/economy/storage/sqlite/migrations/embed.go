package migrations

import "embed"

// FS contains embedded SQLite migrations for economy storage.
//
//go:embed *.sql
var FS embed.FS
