// Package migrations embeds the versioned schema used by both store
// backends.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
