// Package migrations embeds the event history schema into the binary.
package migrations

import "embed"

// FS holds every *.sql migration at its root. Pass it as
// database.Config.Migrations.
//
//go:embed *.sql
var FS embed.FS
