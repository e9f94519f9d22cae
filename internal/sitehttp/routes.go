// Package sitehttp mounts the rendered site as the router's fallback.
package sitehttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Routes struct {
	Site http.Handler
}

func New(site http.Handler) *Routes {
	return &Routes{Site: site}
}

// RegisterRoutes must be registered last so explicit routes win. NotFound is
// used instead of a wildcard so health and API routes are never shadowed.
// A nil Site leaves chi's defaults in place.
func (rt *Routes) RegisterRoutes(r chi.Router) {
	if rt.Site == nil {
		return
	}
	r.NotFound(rt.Site.ServeHTTP)
	r.MethodNotAllowed(rt.Site.ServeHTTP)
}
