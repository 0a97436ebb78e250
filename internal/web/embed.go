// Package web holds the browser display client served at /display. It
// connects to /api/ws and shows the text of every element, or of a single
// element with ?element=<id>.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:display
var embeddedFS embed.FS

// GetFS returns the display assets rooted at the directory holding index.html.
func GetFS() fs.FS {
	sub, err := fs.Sub(embeddedFS, "display")
	if err != nil {
		// Unreachable with a valid embed directive.
		panic(err)
	}
	return sub
}

// GetHTTPFS returns the display assets for use with http.FileServer.
func GetHTTPFS() http.FileSystem {
	return http.FS(GetFS())
}

// ListEmbeddedFiles returns every embedded file, for debugging.
func ListEmbeddedFiles() []string {
	var files []string
	fs.WalkDir(GetFS(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}
