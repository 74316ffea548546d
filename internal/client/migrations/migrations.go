// Package migrations embeds the CLI state database migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
