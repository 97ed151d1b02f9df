package bootstrap

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prior-it/kickoff/config"
	"github.com/prior-it/kickoff/server"
	"github.com/prior-it/kickoff/server/middleware"
)

// App is the application handle the initializer configures. [server.Server] implements it.
type App interface {
	Set(setting string, value any)
	Attach(middlewares ...func(http.Handler) http.Handler)
	Route(method string, pattern string, handler http.Handler)
	RegisterEngine(name string, engine server.ViewEngine)
	Logger() *slog.Logger
}

// Applications that expose their configuration get a named structured logger and debug output.
type configured interface {
	Config() *config.Config
}

// Applications that can serve a directory of static assets.
type staticServer interface {
	StaticFiles(pattern string, dir string) error
}

const (
	defaultViewsDir = "views"
	viewReloadDelay = 100 * time.Millisecond
)

// Global wires the standard middleware stack and routes onto app and returns the normalized
// environment name. See [GlobalWithDefaults].
func Global(app App, environment any, opts *config.Options) string {
	return GlobalWithDefaults(app, environment, opts, config.StandardDefaults())
}

// GlobalWithDefaults configures app from an environment descriptor and an options record.
//
// The environment is nil, a bare environment name, or a map holding NODE_ENV and PORT; see
// [config.NormalizeEnvironment]. A nil opts behaves like an empty options record. Malformed
// values never fail the call: they fall back to defaults.
//
// Middleware is attached in a fixed order: request logger, response time, powered-by, method
// override, cookies, JSON body, urlencoded body, locals and metrics. Routes are registered
// last, so no middleware can be attached to app after this call.
func GlobalWithDefaults(
	app App,
	environment any,
	opts *config.Options,
	defaults config.Defaults,
) string {
	return run(app, environment, opts, defaults)
}

func run(
	app App,
	environment any,
	opts *config.Options,
	defaults config.Defaults,
	extra ...func(http.Handler) http.Handler,
) string {
	p := resolve(app, environment, opts, defaults)
	p.extra = extra
	for _, s := range steps {
		if s.when != nil && !s.when(p) {
			continue
		}
		s.apply(p)
		p.logger.Debug("Bootstrap step applied", "step", s.name)
	}
	return p.env.NodeEnv
}

// Minimal creates a new server for stt and configures it with the options from cfg.
// The Minimal bootstrapper is perfect for very lightweight applications or (almost) static sites.
//
// You can supply additional middleware if you want to, it runs after the standard stack.
//
// Note that this function will add routes before returning, which means it is not possible to add
// additional middleware after calling this function.
func Minimal[state server.State](
	stt state,
	cfg *config.Config,
	environment any,
	middlewares ...func(http.Handler) http.Handler,
) (*server.Server[state], string) {
	if cfg == nil {
		panic("You need to supply a config.Config value to bootstrap a new server")
	}
	defaults := config.StandardDefaults()
	env := config.NormalizeEnvironment(environment, defaults)
	logger := NewLogger(os.Stdout, cfg, env.NodeEnv)

	s := server.New(stt, cfg).
		WithLogger(logger)
	nodeEnv := run(s, env, &cfg.Options, defaults, middlewares...)
	return s, nodeEnv
}

// NewLogger creates the application logger and makes it the slog default. Plaintext logs are
// colored in the DEVELOPMENT environment.
func NewLogger(w io.Writer, cfg *config.Config, nodeEnv string) *slog.Logger {
	var logger *slog.Logger
	loggerOptions := &slog.HandlerOptions{
		Level:     cfg.Log.Level.ToSlog(),
		AddSource: cfg.Log.Verbose && cfg.App.Debug,
	}
	switch {
	case cfg.Log.Format == config.LogFormatPlaintext && nodeEnv == config.EnvDevelopment:
		logger = slog.New(tint.NewHandler(w, &tint.Options{
			Level:      loggerOptions.Level,
			AddSource:  loggerOptions.AddSource,
			TimeFormat: time.TimeOnly,
		}))
	case cfg.Log.Format == config.LogFormatPlaintext:
		logger = slog.New(slog.NewTextHandler(w, loggerOptions))
	default:
		logger = slog.New(slog.NewJSONHandler(w, loggerOptions))
	}
	slog.SetDefault(logger)
	return logger
}

// plan is the resolved input of a single initializer run.
type plan struct {
	app      App
	env      config.Environment
	opts     config.Options
	defaults config.Defaults
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *middleware.Metrics
	extra    []func(http.Handler) http.Handler
}

func resolve(app App, environment any, opts *config.Options, defaults config.Defaults) *plan {
	p := &plan{
		app:      app,
		env:      config.NormalizeEnvironment(environment, defaults),
		defaults: defaults,
		logger:   app.Logger(),
	}
	if opts != nil {
		p.opts = *opts
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if c, ok := app.(configured); ok {
		p.cfg = c.Config()
	}
	if p.cfg == nil {
		p.cfg = &config.Config{}
	}
	return p
}

func (p *plan) development() bool {
	return p.env.NodeEnv == config.EnvDevelopment
}

func (p *plan) bodyLimit() int64 {
	if p.opts.BodyLimit > 0 {
		return p.opts.BodyLimit
	}
	return p.defaults.BodyLimit
}

func (p *plan) logFormat() string {
	if p.opts.LogFormat != "" {
		return p.opts.LogFormat
	}
	return p.defaults.LogFormat
}
