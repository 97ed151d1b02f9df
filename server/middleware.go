package server

import (
	"log/slog"
	"net/http"
)

// Debug is middleware that can be inserted anywhere and will print some useful debug information about the current
// request on logger.
func Debug(logger *slog.Logger, printFullRequest bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if printFullRequest {
				logger.Debug("Debug middleware",
					"method", r.Method,
					"path", r.URL.Path,
					"query", r.URL.RawQuery,
					"remote", r.RemoteAddr,
					"headers", r.Header,
				)
			} else {
				logger.Debug("Debug middleware", "method", r.Method, "path", r.URL.Path)
			}

			h.ServeHTTP(w, r)
		})
	}
}
