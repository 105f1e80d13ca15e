package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type contextKey string

// routeInfo reads the matched route pattern and document id. chi fills its
// route context while routing, so this is only meaningful after next has run.
func routeInfo(r *http.Request) (pattern, documentID string) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "", ""
	}
	return rctx.RoutePattern(), rctx.URLParam("id")
}
