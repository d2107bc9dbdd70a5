// Package migrations embeds the SQL schema so binaries carry their own
// migrations.
package migrations

import "embed"

// FS holds the golang-migrate files, named NNNNNN_name.{up,down}.sql
//
//go:embed *.sql
var FS embed.FS
