package server

import (
	"embed"
	"io/fs"
)

//go:embed static
var embedded embed.FS

// staticFS serves /static/; dashboardHTML is its index page, served at /.
var (
	staticFS      = must(fs.Sub(embedded, "static"))
	dashboardHTML = must(fs.ReadFile(staticFS, "index.html"))
)

func must[T any](v T, err error) T {
	if err != nil {
		panic("server: embedded assets: " + err.Error())
	}
	return v
}
