package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/a-h/templ"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/gorilla/schema"
	"github.com/prior-it/kickoff/server/middleware"
)

// Apollo wraps a single request and its response writer with helpers for the values the
// bootstrap middleware attaches: cookies, parsed bodies and locals.
type Apollo struct {
	Writer  http.ResponseWriter
	Request *http.Request
	logger  *slog.Logger
	views   ViewEngine
	decoder *schema.Decoder
}

func (apollo *Apollo) StatusCode(code int) {
	apollo.Writer.WriteHeader(code)
}

// Log the specified error message. args is a list of structured fields to add to the error message.
// The arguments should alternate between a field's name (string) and its value (any).
// This behaves the same as [log/slog.Error]
//
// # Example
//
//	apollo.Error("Something went wrong", "error", err, "user", user)
func (apollo *Apollo) Error(msg string, args ...any) {
	apollo.logger.Error(msg, args...)
}

// Log the specified debug message. args is a list of structured fields to add to the message.
// This behaves the same as [log/slog.Debug]
func (apollo *Apollo) Debug(msg string, args ...any) {
	apollo.logger.Debug(msg, args...)
}

// LogString will add the specified field and its value to the current request's log entry
func (apollo *Apollo) LogString(field string, value string) {
	apollo.LogField(field, slog.StringValue(value))
}

// LogField will add the specified field and its value to the current request's log entry.
// This only has an effect when the structured request logger is attached.
//
// # Example
//
//	apollo.LogField("user_id", slog.IntValue(user.id))
func (apollo *Apollo) LogField(field string, value slog.Value) {
	httplog.LogEntrySetField(apollo.Context(), field, value)
}

// Context returns the request's context.
func (apollo *Apollo) Context() context.Context {
	return apollo.Request.Context()
}

// Path returns the full path of the request.
func (apollo *Apollo) Path() string {
	return apollo.Request.URL.Path
}

// Method returns the effective request method, after any method override.
func (apollo *Apollo) Method() string {
	return apollo.Request.Method
}

// OriginalMethod returns the method the client actually sent.
func (apollo *Apollo) OriginalMethod() string {
	if method, ok := middleware.OriginalMethod(apollo.Context()); ok {
		return method
	}
	return apollo.Request.Method
}

// GetPath returns the value for the named path wildcard in the router pattern
// that matched the request.
// It returns the empty string if the request was not matched against a pattern
// or there is no such wildcard in the pattern.
//
// E.g.: A route defined as `/users/{id}` can call `GetPath("id")` to return the
// value for "id" in the current path.
func (apollo *Apollo) GetPath(key string) string {
	return apollo.Request.PathValue(key)
}

// GetQuery returns the first value associated with the given query parameter in the request url.
// If there are no values set for the query param, this returns the empty string.
func (apollo *Apollo) GetQuery(param string) string {
	return apollo.Request.URL.Query().Get(param)
}

// GetHeader returns the first value associated with the given header in the request.
func (apollo *Apollo) GetHeader(header string) string {
	return apollo.Request.Header.Get(header)
}

// AddHeader adds the header, value pair to the response header. It appends to any existing values associated with key.
func (apollo *Apollo) AddHeader(header string, value string) {
	apollo.Writer.Header().Add(header, value)
}

// Locals returns the per-request scratch map, or nil if the locals middleware is not attached.
func (apollo *Apollo) Locals() map[string]any {
	return middleware.LocalsFrom(apollo.Context())
}

// Cookie returns the value of a plain cookie parsed by the cookie middleware.
func (apollo *Apollo) Cookie(name string) (string, bool) {
	value, ok := middleware.Cookies(apollo.Context())[name]
	return value, ok
}

// SignedCookie returns the value of a verified signed cookie.
func (apollo *Apollo) SignedCookie(name string) (string, bool) {
	value, ok := middleware.SignedCookies(apollo.Context())[name]
	return value, ok
}

// Body returns the body as parsed by the body middleware, see [middleware.Body].
func (apollo *Apollo) Body() any {
	return middleware.Body(apollo.Context())
}

// DecodeJSON decodes the JSON request body into v.
//
// # Example:
//
//	var data SomeStruct
//	if err := apollo.DecodeJSON(&data); err != nil {
//		return fmt.Errorf("cannot parse body: %w", err)
//	}
func (apollo *Apollo) DecodeJSON(v any) error {
	if raw := middleware.RawBody(apollo.Context()); raw != nil {
		if err := render.DecodeJSON(bytes.NewReader(raw), v); err != nil {
			return fmt.Errorf("%w: %w", middleware.ErrMalformedBody, err)
		}
		return nil
	}
	if err := render.DecodeJSON(apollo.Request.Body, v); err != nil {
		return fmt.Errorf("%w: %w", middleware.ErrMalformedBody, err)
	}
	return nil
}

// ParseForm decodes the urlencoded request body into a struct using `schema` tags.
func (apollo *Apollo) ParseForm(v any) error {
	form, ok := apollo.Body().(url.Values)
	if !ok {
		if err := apollo.Request.ParseForm(); err != nil {
			return fmt.Errorf("%w: %w", middleware.ErrMalformedBody, err)
		}
		form = apollo.Request.PostForm
	}
	if err := apollo.decoder.Decode(v, form); err != nil {
		return fmt.Errorf("%w: %w", middleware.ErrMalformedBody, err)
	}
	return nil
}

// JSON writes v as a JSON response with the given status code.
func (apollo *Apollo) JSON(status int, v any) {
	render.Status(apollo.Request, status)
	render.JSON(apollo.Writer, apollo.Request, v)
}

// Render renders the named view with the active view engine. When data is nil, the request
// locals are passed to the view instead.
func (apollo *Apollo) Render(view string, data any) error {
	if apollo.views == nil {
		return ErrNoViewEngine
	}
	if data == nil {
		data = apollo.Locals()
	}
	var buf bytes.Buffer
	if err := apollo.views.Render(&buf, view, data); err != nil {
		return err
	}
	apollo.Writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(apollo.Writer)
	return err
}

// RenderComponent renders the specified templ component in the response body.
func (apollo *Apollo) RenderComponent(component templ.Component) error {
	return component.Render(apollo.Context(), apollo.Writer)
}

// Redirect will return a response that redirects the user to the specified url.
// If HTMX is available, this will redirect using HTMX.
func (apollo *Apollo) Redirect(url string) {
	if apollo.GetHeader("HX-Request") == "true" {
		apollo.AddHeader("HX-Redirect", url)
		apollo.StatusCode(http.StatusOK)
	} else {
		apollo.AddHeader("Location", url)
		apollo.StatusCode(http.StatusSeeOther)
	}
}
