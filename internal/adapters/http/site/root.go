// Package site serves the landing page and its static files.
package site

import (
	"context"
	"net/http"
)

// Register attaches the embedded site to mux. More specific routes
// registered elsewhere take precedence.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /", http.FileServer(FS()))
}
