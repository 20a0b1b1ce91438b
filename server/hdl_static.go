package main

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// serveStatic serves files of the single-page web app from dir. Paths which do not match
// a file are answered with index.html so the client-side router can handle them.
func serveStatic(dir string) http.Handler {
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dir == "" {
			writeJSON(w, http.StatusNotFound, &errorResponse{Message: "Not found"})
			return
		}

		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if fi, err := os.Stat(name); err == nil && !fi.IsDir() {
			http.ServeFile(w, r, name)
			return
		}

		if _, err := os.Stat(index); err != nil {
			writeJSON(w, http.StatusNotFound, &errorResponse{Message: "Not found"})
			return
		}
		http.ServeFile(w, r, index)
	})
}
