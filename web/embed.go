// Package web embeds the chat page (dist/) and serves it as a single-page
// application. API and WebSocket routes are registered before the catch-all.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

// SPAHandler returns an http.Handler that serves the embedded chat page.
// Paths that name an embedded asset are served as files; anything else gets
// index.html so client-side links keep working after a reload.
func SPAHandler() http.Handler {
	assets, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to open embedded dist: " + err.Error())
	}
	files := http.FileServerFS(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" || name == "." || !exists(assets, name) {
			// The page is tiny and changes with each release.
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeFileFS(w, r, assets, indexFile)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
