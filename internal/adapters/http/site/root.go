// Package site serves the embedded landing page.
package site

import (
	"net/http"
)

// Router is the part of a chi router the site needs.
type Router interface {
	Get(pattern string, h http.HandlerFunc)
}

// Register attaches the landing page to r at /.
func Register(r Router) {
	if r == nil {
		panic("router is nil")
	}
	r.Get("/", NewRootHandler().HandleRoot)
}

// RootHandler handles root path requests.
type RootHandler struct {
	files http.Handler
}

// NewRootHandler creates a new root handler.
func NewRootHandler() *RootHandler {
	return &RootHandler{files: http.FileServer(FS())}
}

// HandleRoot handles GET / and serves index.html.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	h.files.ServeHTTP(w, r)
}
