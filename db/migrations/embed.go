// Package migrations embeds the SQL schema so the binary can migrate itself.
package migrations

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
