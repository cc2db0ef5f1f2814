// Package migrations embeds the goose SQL migrations of the client databases.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed durable/*.sql
var durable embed.FS

//go:embed session/*.sql
var session embed.FS

// Durable holds the migrations of the shared store every instance opens.
func Durable() fs.FS {
	sub, _ := fs.Sub(durable, "durable")
	return sub
}

// Session holds the migrations of the private per-instance session store.
func Session() fs.FS {
	sub, _ := fs.Sub(session, "session")
	return sub
}
