// Package migrations holds the relational schema as goose SQL migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
