package middleware

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
)

var tokenPattern = regexp.MustCompile(`:([-\w]{2,})(?:\[([^\]]+)\])?`)

// segment is either a literal piece of the format or a token.
type segment struct {
	literal string
	token   string
	arg     string
}

// FormatLogger is a chi [middleware.LogFormatter] that renders one line per request from a
// format such as ":date :remote-addr :method :status :url".
//
// Supported tokens are :date, :remote-addr, :method, :status, :url, :response-time,
// :http-version, :user-agent, :referrer, :res[Header-Name] and :req[Header-Name].
// Unknown tokens are written as they are, empty values are written as "-".
type FormatLogger struct {
	segments []segment
	logger   *slog.Logger
}

// NewFormatLogger compiles format once; the resulting formatter is safe for concurrent use.
func NewFormatLogger(format string, logger *slog.Logger) *FormatLogger {
	if logger == nil {
		logger = slog.Default()
	}
	f := &FormatLogger{logger: logger}
	last := 0
	for _, match := range tokenPattern.FindAllStringSubmatchIndex(format, -1) {
		if match[0] > last {
			f.segments = append(f.segments, segment{literal: format[last:match[0]]})
		}
		s := segment{token: format[match[2]:match[3]]}
		if match[4] >= 0 {
			s.arg = format[match[4]:match[5]]
		}
		if !knownToken(s.token) {
			s = segment{literal: format[match[0]:match[1]]}
		}
		f.segments = append(f.segments, s)
		last = match[1]
	}
	if last < len(format) {
		f.segments = append(f.segments, segment{literal: format[last:]})
	}
	return f
}

// Logger returns middleware that logs every request on logger using format.
func Logger(format string, logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(NewFormatLogger(format, logger))
}

func (f *FormatLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &formatEntry{formatter: f, request: r}
}

// Format renders the log line for a finished request.
func (f *FormatLogger) Format(
	r *http.Request,
	status int,
	header http.Header,
	elapsed time.Duration,
) string {
	var b strings.Builder
	for _, s := range f.segments {
		if s.token == "" {
			b.WriteString(s.literal)
			continue
		}
		value := tokenValue(s, r, status, header, elapsed)
		if value == "" {
			value = "-"
		}
		b.WriteString(value)
	}
	return b.String()
}

type formatEntry struct {
	formatter *FormatLogger
	request   *http.Request
}

func (e *formatEntry) Write(status, _ int, header http.Header, elapsed time.Duration, _ interface{}) {
	e.formatter.logger.Info(e.formatter.Format(e.request, status, header, elapsed))
}

func (e *formatEntry) Panic(v interface{}, stack []byte) {
	e.formatter.logger.Error(
		"Request panicked",
		"panic", fmt.Sprint(v),
		"stack", string(stack),
		"url", e.request.URL.RequestURI(),
	)
}

func knownToken(token string) bool {
	switch token {
	case "date", "remote-addr", "method", "status", "url", "response-time", "http-version",
		"user-agent", "referrer", "res", "req":
		return true
	}
	return false
}

func tokenValue(
	s segment,
	r *http.Request,
	status int,
	header http.Header,
	elapsed time.Duration,
) string {
	switch s.token {
	case "date":
		return time.Now().UTC().Format(http.TimeFormat)
	case "remote-addr":
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	case "method":
		return r.Method
	case "status":
		if status == 0 {
			return ""
		}
		return strconv.Itoa(status)
	case "url":
		return r.URL.RequestURI()
	case "response-time":
		return strconv.FormatFloat(float64(elapsed.Microseconds())/1000, 'f', 3, 64) //nolint:mnd
	case "http-version":
		return fmt.Sprintf("%d.%d", r.ProtoMajor, r.ProtoMinor)
	case "user-agent":
		return r.UserAgent()
	case "referrer":
		return r.Referer()
	case "res":
		return header.Get(s.arg)
	case "req":
		return r.Header.Get(s.arg)
	}
	return ""
}

// HTTPLoggerOptions configures the structured request logger.
type HTTPLoggerOptions struct {
	Name    string
	Version string
	Env     string
	Level   slog.Level
	JSON    bool
	Verbose bool
	// Writer defaults to os.Stdout
	Writer io.Writer
	// Requests to these routes are only logged when they fail, or once every 10 seconds.
	QuietRoutes []string
}

// HTTPLogger is middleware that will log HTTP requests as structured records, including context
// that might be added by the handler itself by calling apollo.LogField.
func HTTPLogger(opts HTTPLoggerOptions) func(http.Handler) http.Handler {
	sourceFieldName := ""
	if opts.Verbose {
		sourceFieldName = "source"
	}
	logger := httplog.NewLogger(opts.Name, httplog.Options{
		LogLevel: opts.Level,
		JSON:     opts.JSON,
		Concise:  !opts.Verbose,
		Tags: map[string]string{
			"version": opts.Version,
			"env":     opts.Env,
		},
		RequestHeaders:  opts.Verbose,
		ResponseHeaders: opts.Verbose,
		QuietDownRoutes: opts.QuietRoutes,
		QuietDownPeriod: 10 * time.Second, //nolint:mnd
		SourceFieldName: sourceFieldName,
		Writer:          opts.Writer,
	})
	return httplog.RequestLogger(logger)
}
