// Package migrations embeds the oilfoxd schema so the binary can migrate a
// fresh database without SQL files on disk.
package migrations

import "embed"

// FS holds every migration at its root. Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
