package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Methods a client may switch to through [MethodOverride].
var overridableMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// MethodOverride lets clients that can only send GET and POST (e.g. HTML forms) use other HTTP
// methods. A POST request carrying a `key` field in its query string or, failing that, in its
// urlencoded body is routed as if it was sent with that method. At most bodyLimit bytes of the
// body are inspected and the body is left untouched for the handlers that follow.
//
// The method the client actually used is available through [OriginalMethod].
func MethodOverride(key string, bodyLimit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			original := r.Method
			ctx := context.WithValue(r.Context(), ctxOriginalMethod, original)
			r = r.WithContext(ctx)

			if original == http.MethodPost {
				method := r.URL.Query().Get(key)
				if method == "" && isMediaType(r, "application/x-www-form-urlencoded") {
					method = peekForm(r, bodyLimit).Get(key)
				}
				method = strings.ToUpper(strings.TrimSpace(method))
				if overridableMethods[method] {
					r.Method = method
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

// peekForm parses an urlencoded body without consuming it.
func peekForm(r *http.Request, limit int64) url.Values {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	r.Body = readCloser{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	if err != nil || int64(len(buf)) > limit {
		return nil
	}
	values, err := url.ParseQuery(string(buf))
	if err != nil {
		return nil
	}
	return values
}
