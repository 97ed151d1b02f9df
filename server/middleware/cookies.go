package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
)

// CookieParser parses the Cookie header once per request. The result is available through
// [Cookies] and, when secret is not empty, [SignedCookies].
//
// Signed cookies are values produced by [SignCookie] with the same secret. Cookies that fail
// verification are kept as plain cookies. When a cookie name occurs more than once, the first
// occurrence wins.
func CookieParser(secret string) func(http.Handler) http.Handler {
	codec := newCodec(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Cookies(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}

			cookies := map[string]string{}
			signed := map[string]string{}
			for _, cookie := range r.Cookies() {
				if _, seen := cookies[cookie.Name]; seen {
					continue
				}
				if _, seen := signed[cookie.Name]; seen {
					continue
				}
				if codec != nil {
					var value string
					if err := codec.Decode(cookie.Name, cookie.Value, &value); err == nil {
						signed[cookie.Name] = value
						continue
					}
				}
				cookies[cookie.Name] = cookie.Value
			}

			ctx := context.WithValue(r.Context(), ctxCookies, cookies)
			ctx = context.WithValue(ctx, ctxSignedCookies, signed)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SignCookie encodes value so that [CookieParser] configured with the same secret reports it
// as a signed cookie named name.
func SignCookie(secret string, name string, value string) (string, error) {
	codec := newCodec(secret)
	if codec == nil {
		return "", fmt.Errorf("cannot sign cookie %q without a secret", name)
	}
	encoded, err := codec.Encode(name, value)
	if err != nil {
		return "", fmt.Errorf("cannot sign cookie %q: %w", name, err)
	}
	return encoded, nil
}

func newCodec(secret string) *securecookie.SecureCookie {
	if secret == "" {
		return nil
	}
	return securecookie.New([]byte(secret), nil)
}
