package ui

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// spaHandler serves fsys as a single page app: existing files are served as
// is, extensionless paths fall back to index.html for client side routing,
// and anything else is a 404. Vite puts content hashed bundles under
// /assets, which may be cached forever; index.html never is.
func spaHandler(fsys fs.FS) http.Handler {
	files := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		name := strings.TrimPrefix(p, "/")

		if name != "" && isFile(fsys, name) {
			if strings.HasPrefix(p, "/assets/") {
				w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			}
			files.ServeHTTP(w, r)
			return
		}

		if name != "" && strings.Contains(path.Base(p), ".") {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		index := r.Clone(r.Context())
		index.URL.Path = "/"
		files.ServeHTTP(w, index)
	})
}

func isFile(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
