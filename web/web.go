// Package web serves the embedded marketing site and admin dashboard.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var content embed.FS

// Handler returns an http.Handler serving the embedded site. Paths under
// /admin that do not name a file fall back to the dashboard shell so that
// client-side routes survive a reload. Other unknown paths get the site's
// 404 page.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(content, "dist")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}
	return handlerFS(fsys)
}

func handlerFS(fsys fs.FS) (http.Handler, error) {
	adminIndex, err := fs.ReadFile(fsys, "admin/index.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded admin/index.html: %w", err)
	}
	notFound, err := fs.ReadFile(fsys, "404.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded 404.html: %w", err)
	}

	static := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")

		if strings.HasPrefix(cleanPath, "assets/") {
			w.Header().Set("Cache-Control", "public, max-age=86400")
		}

		if cleanPath == "admin" || strings.HasPrefix(cleanPath, "admin/") {
			if !isFile(fsys, cleanPath) {
				w.Header().Set("Cache-Control", "no-store")
				writeHTML(w, http.StatusOK, adminIndex)
				return
			}
		}

		if exists(fsys, cleanPath) {
			static.ServeHTTP(w, r)
			return
		}

		writeHTML(w, http.StatusNotFound, notFound)
	}), nil
}

// exists reports whether name is a file, or a directory holding index.html.
func exists(fsys fs.FS, name string) bool {
	if name == "" || name == "." {
		name = "index.html"
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err = fs.Stat(fsys, path.Join(name, "index.html"))
		return err == nil
	}
	return true
}

func isFile(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
