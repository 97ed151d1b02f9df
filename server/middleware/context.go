package middleware

import (
	"context"
	"encoding/json"
)

type contextKey uint

const (
	ctxCookies contextKey = iota
	ctxSignedCookies
	ctxBody
	ctxRawBody
	ctxLocals
	ctxOriginalMethod
)

// Cookies returns the plain cookies parsed by [CookieParser]. Cookies that were successfully
// verified as signed cookies are not part of this map.
func Cookies(ctx context.Context) map[string]string {
	cookies, _ := ctx.Value(ctxCookies).(map[string]string)
	return cookies
}

// SignedCookies returns the verified signed cookies parsed by [CookieParser].
func SignedCookies(ctx context.Context) map[string]string {
	cookies, _ := ctx.Value(ctxSignedCookies).(map[string]string)
	return cookies
}

// Body returns the parsed request body: the decoded JSON value for JSON requests and
// [net/url.Values] for urlencoded forms. It returns nil if no body parser handled the request.
func Body(ctx context.Context) any {
	return ctx.Value(ctxBody)
}

// RawBody returns the raw bytes of a parsed JSON body.
func RawBody(ctx context.Context) json.RawMessage {
	raw, _ := ctx.Value(ctxRawBody).(json.RawMessage)
	return raw
}

// LocalsFrom returns the per-request scratch map. It returns nil if [Locals] did not run.
func LocalsFrom(ctx context.Context) map[string]any {
	locals, _ := ctx.Value(ctxLocals).(map[string]any)
	return locals
}

// OriginalMethod returns the method the client actually used before any [MethodOverride].
func OriginalMethod(ctx context.Context) (string, bool) {
	method, ok := ctx.Value(ctxOriginalMethod).(string)
	return method, ok
}

func hasBody(ctx context.Context) bool {
	return ctx.Value(ctxBody) != nil
}
