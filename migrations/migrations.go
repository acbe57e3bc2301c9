// Package migrations embeds the versioned SQL files applied by the migrator.
package migrations

import "embed"

// Postgres holds postgres/NNNN_name.sql.
//
//go:embed postgres/*.sql
var Postgres embed.FS
