package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// ResponseTime adds a header with the time spent handling the request, formatted in
// milliseconds with three decimals, e.g. "X-Response-Time: 1.234ms". The header is set just
// before the status line is written.
func ResponseTime(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &timingWriter{ResponseWriter: w, header: header, start: time.Now()}
			next.ServeHTTP(tw, r)
			tw.stamp()
		})
	}
}

type timingWriter struct {
	http.ResponseWriter
	header  string
	start   time.Time
	stamped bool
}

func (tw *timingWriter) stamp() {
	if tw.stamped {
		return
	}
	tw.stamped = true
	elapsed := float64(time.Since(tw.start).Microseconds()) / 1000 //nolint:mnd
	tw.Header().Set(tw.header, strconv.FormatFloat(elapsed, 'f', 3, 64)+"ms")
}

func (tw *timingWriter) WriteHeader(code int) {
	tw.stamp()
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	tw.stamp()
	return tw.ResponseWriter.Write(b)
}

func (tw *timingWriter) Flush() {
	tw.stamp()
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets [net/http.ResponseController] reach the underlying writer.
func (tw *timingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}

// PoweredBy replaces the X-Powered-By header with value, or removes it when value is empty.
func PoweredBy(value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if value == "" {
				w.Header().Del("X-Powered-By")
			} else {
				w.Header().Set("X-Powered-By", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
