package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/prior-it/kickoff/server/middleware"
)

var (
	ErrNoViewEngine = errors.New("no view engine configured")
	ErrViewNotFound = errors.New("view not found")
)

func DefaultErrorHandler(apollo *Apollo, err error) {
	apollo.Error("Server error", "error", err)
	code, msg := func() (int, string) {
		switch {
		case errors.Is(err, middleware.ErrBodyTooLarge):
			return http.StatusRequestEntityTooLarge, "request entity too large"
		case errors.Is(err, middleware.ErrMalformedBody):
			return http.StatusBadRequest, "bad request"
		}
		return http.StatusInternalServerError, "internal server error"
	}()
	render.Status(apollo.Request, code)
	render.PlainText(apollo.Writer, apollo.Request, msg)
}
