package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/render"
)

var (
	ErrBodyTooLarge  = errors.New("request body too large")
	ErrMalformedBody = errors.New("malformed request body")
)

// JSONBody parses application/json (and */*+json) request bodies of at most limit bytes.
// The decoded value is available through [Body] and the raw bytes through [RawBody].
//
// Only objects and arrays are accepted at the top level; an empty body counts as an empty
// object. Oversized bodies are answered with 413 and malformed ones with 400.
func JSONBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasBody(r.Context()) || !hasPayload(r) || !isJSON(r) {
				next.ServeHTTP(w, r)
				return
			}

			buf, err := readBody(r, limit)
			if err != nil {
				rejectBody(w, r, err)
				return
			}

			var value any = map[string]any{}
			if trimmed := bytes.TrimSpace(buf); len(trimmed) > 0 {
				if trimmed[0] != '{' && trimmed[0] != '[' {
					rejectBody(w, r, fmt.Errorf("%w: top-level value must be an object or array", ErrMalformedBody))
					return
				}
				value = nil
				if err := decodeStrict(trimmed, &value); err != nil {
					rejectBody(w, r, fmt.Errorf("%w: %w", ErrMalformedBody, err))
					return
				}
			}

			r.Body = io.NopCloser(bytes.NewReader(buf))
			ctx := context.WithValue(r.Context(), ctxBody, value)
			ctx = context.WithValue(ctx, ctxRawBody, json.RawMessage(buf))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// URLEncodedBody parses application/x-www-form-urlencoded request bodies of at most limit
// bytes into flat [net/url.Values]; keys such as "user[name]" are not expanded into nested
// structures. The values are available through [Body] and as the request's PostForm.
func URLEncodedBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasBody(r.Context()) || !hasPayload(r) ||
				!isMediaType(r, "application/x-www-form-urlencoded") {
				next.ServeHTTP(w, r)
				return
			}

			buf, err := readBody(r, limit)
			if err != nil {
				rejectBody(w, r, err)
				return
			}
			values, err := url.ParseQuery(string(buf))
			if err != nil {
				rejectBody(w, r, fmt.Errorf("%w: %w", ErrMalformedBody, err))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(buf))
			ctx := context.WithValue(r.Context(), ctxBody, values)
			r = r.WithContext(ctx)
			r.PostForm = values
			r.Form = mergeValues(values, r.URL.Query())
			next.ServeHTTP(w, r)
		})
	}
}

// decodeStrict decodes exactly one JSON value from buf; anything after it is an error.
func decodeStrict(buf []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after the top-level value")
	}
	return nil
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if limit > 0 && r.ContentLength > limit {
		return nil, ErrBodyTooLarge
	}
	reader := r.Body
	if limit > 0 {
		reader = io.NopCloser(io.LimitReader(r.Body, limit+1))
	}
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read request body: %w", err)
	}
	if limit > 0 && int64(len(buf)) > limit {
		return nil, ErrBodyTooLarge
	}
	return buf, nil
}

func rejectBody(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, ErrBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	render.Status(r, status)
	render.PlainText(w, r, http.StatusText(status))
}

func hasPayload(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

func isJSON(r *http.Request) bool {
	mt := mediaType(r)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func isMediaType(r *http.Request, expected string) bool {
	return mediaType(r) == expected
}

func mediaType(r *http.Request) string {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}

func mergeValues(sets ...url.Values) url.Values {
	merged := url.Values{}
	for _, set := range sets {
		for key, values := range set {
			merged[key] = append(merged[key], values...)
		}
	}
	return merged
}
