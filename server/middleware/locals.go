package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/render"
)

// Locals makes sure every request carries a scratch map that handlers and later middleware can
// use to share values, e.g. data for a view. See [LocalsFrom].
func Locals(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LocalsFrom(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), ctxLocals, map[string]any{}))
		}
		next.ServeHTTP(w, r)
	})
}

// Uptime answers health checks with 200 {"status":"ok"}.
func Uptime(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
