//go:build !ui_embed

// Package ui serves the web frontend. Without the ui_embed tag it serves a
// single built-in page that controls the worker and answers close requests.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed fallback
var fallbackFS embed.FS

// Handler serves the built-in page.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(fallbackFS, "fallback")
	if err != nil {
		return nil, err
	}
	return spaHandler(fsys), nil
}
