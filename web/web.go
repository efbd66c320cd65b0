// Package web embeds the default site served when no static root is
// configured.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:site
var embedFS embed.FS

// Site returns the embedded site rooted at the directory holding the HTML
// pages.
func Site() fs.FS {
	site, err := fs.Sub(embedFS, "site")
	if err != nil {
		// only possible if the embed directive above is broken
		panic(err)
	}
	return site
}
