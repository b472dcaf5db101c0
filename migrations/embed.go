// Package migrations embeds the ledger schema migrations.
package migrations

import "embed"

// FS holds the versioned SQL files consumed by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
