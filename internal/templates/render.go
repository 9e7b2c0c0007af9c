// Package templates holds the server-rendered pages of the browser login surface.
package templates

import (
	"embed"
	"html/template"
)

//go:embed html/*.html
var files embed.FS

// Load parses every page. Page names are their file names, e.g. "login.html".
func Load() (*template.Template, error) {
	return template.New("").ParseFS(files, "html/*.html")
}

// MustLoad is Load for the composition root, where a broken template is fatal.
func MustLoad() *template.Template {
	return template.Must(Load())
}
