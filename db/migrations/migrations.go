// Package migrations embeds the SQL schema migrations so the binary can
// migrate any environment it is deployed to without shipping loose files.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS
