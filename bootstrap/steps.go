package bootstrap

import (
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prior-it/kickoff/config"
	"github.com/prior-it/kickoff/server"
	"github.com/prior-it/kickoff/server/middleware"
)

// step is one entry of the initializer. Steps run in slice order; a step whose when returns
// false is skipped.
type step struct {
	name  string
	when  func(p *plan) bool
	apply func(p *plan)
}

// Middleware steps must precede route steps: the router rejects middleware once a route exists.
var steps = []step{
	{name: "port", apply: applyPort},
	{name: "views", when: hasViews, apply: applyViews},
	{name: "logger", when: wantsLogger, apply: applyLogger},
	{name: "debug", when: debugging, apply: applyDebug},
	{name: "sentry", when: reportsErrors, apply: applySentry},
	{name: "trust proxy", apply: applyTrustProxy},
	{name: "response time", when: wantsResponseTime, apply: applyResponseTime},
	{name: "powered by", apply: applyPoweredBy},
	{name: "method override", apply: applyMethodOverride},
	{name: "cookies", when: parseCookies, apply: applyCookies},
	{name: "json body", when: parseJSON, apply: applyJSONBody},
	{name: "urlencoded body", when: parseURLEncoded, apply: applyURLEncodedBody},
	{name: "locals", apply: applyLocals},
	{name: "metrics", when: wantsMetrics, apply: applyMetrics},
	{name: "extra", when: hasExtra, apply: applyExtra},
	{name: "uptime route", when: wantsUptime, apply: applyUptime},
	{name: "metrics route", when: wantsMetrics, apply: applyMetricsRoute},
	{name: "static", when: hasStatic, apply: applyStatic},
}

func applyPort(p *plan) {
	p.app.Set(server.SettingPort, p.env.Port)
	p.app.Set(server.SettingEnv, p.env.NodeEnv)
}

func hasViews(p *plan) bool {
	return p.opts.Views != nil
}

func applyViews(p *plan) {
	views := *p.opts.Views
	engineName := p.defaults.ViewEngine
	if views.Type != "" && views.Type != engineName {
		p.logger.Warn(
			"Unsupported view engine requested, falling back",
			"requested", views.Type,
			"engine", engineName,
		)
	}
	if views.Path == "" {
		views.Path = defaultViewsDir
	}

	engine := server.NewHTMLEngine(views.Path, p.logger)
	if p.development() {
		if err := engine.Watch(viewReloadDelay); err != nil {
			p.logger.Warn("Could not watch views for changes", "dir", views.Path, "error", err)
		}
	}
	p.app.RegisterEngine(engineName, engine)
	p.app.Set(server.SettingViewEngine, engineName)
	p.app.Set(server.SettingViews, views.Path)
}

func wantsLogger(p *plan) bool {
	return p.development() && p.opts.Logging
}

func applyLogger(p *plan) {
	if p.logFormat() != config.LogFormatStructured {
		p.app.Attach(middleware.Logger(p.logFormat(), p.logger))
		return
	}
	name := p.cfg.App.Name
	if name == "" {
		name = "kickoff"
	}
	p.app.Attach(middleware.HTTPLogger(middleware.HTTPLoggerOptions{
		Name:    name,
		Version: p.cfg.App.Version,
		Env:     p.env.NodeEnv,
		Level:   p.cfg.Log.Level.ToSlog(),
		JSON:    p.cfg.Log.Format == config.LogFormatJSON,
		Verbose: p.cfg.Log.Verbose || p.cfg.App.Debug,
		QuietRoutes: quietRoutes(
			p.opts.UptimeRoute,
			p.opts.MetricsRoute,
			"/favicon.ico",
		),
	}))
}

func quietRoutes(routes ...string) []string {
	quiet := make([]string, 0, len(routes))
	for _, route := range routes {
		if route != "" {
			quiet = append(quiet, route)
		}
	}
	return quiet
}

func debugging(p *plan) bool {
	return p.cfg.App.Debug
}

// Fully disable caching in debug mode
func applyDebug(p *plan) {
	p.app.Attach(
		server.Debug(p.logger, p.cfg.Log.Verbose),
		chimiddleware.NoCache,
	)
}

func reportsErrors(p *plan) bool {
	return p.cfg.Sentry.Enabled
}

func applySentry(p *plan) {
	p.logger.Debug("Trying to initialise Sentry")
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              p.cfg.Sentry.DSN,
		Debug:            p.cfg.App.Debug,
		AttachStacktrace: true,
		SampleRate:       p.cfg.Sentry.SampleRate,
		EnableTracing:    p.cfg.Sentry.TracesRate > 0,
		TracesSampleRate: p.cfg.Sentry.TracesRate,
		ServerName:       p.cfg.App.Name,
		Release:          p.cfg.App.Version,
		Environment:      p.env.NodeEnv,
	})
	if err != nil {
		p.logger.Error("Sentry initialization failed", "error", err)
		return
	}
	p.logger.Debug("Sentry initialised")

	handler := sentryhttp.New(sentryhttp.Options{
		Repanic:         true,
		WaitForDelivery: true,
		Timeout:         5 * time.Second, //nolint:mnd
	})
	p.app.Attach(handler.Handle)
}

func applyTrustProxy(p *plan) {
	p.app.Set(server.SettingTrustProxy, p.opts.TrustProxy)
}

func wantsResponseTime(p *plan) bool {
	return p.opts.ResponseTime.Enabled()
}

func applyResponseTime(p *plan) {
	header := p.opts.ResponseTime.ValueOr(p.defaults.ResponseTimeHeader)
	p.app.Attach(middleware.ResponseTime(header))
}

func applyPoweredBy(p *plan) {
	if p.opts.PoweredBy == "" {
		p.app.Set(server.SettingPoweredBy, false)
	}
	p.app.Attach(middleware.PoweredBy(p.opts.PoweredBy))
}

func applyMethodOverride(p *plan) {
	p.app.Attach(middleware.MethodOverride(p.defaults.MethodOverrideKey, p.bodyLimit()))
}

func parseCookies(p *plan) bool {
	return p.opts.ParseCookies.Or(true)
}

func applyCookies(p *plan) {
	p.app.Attach(middleware.CookieParser(p.opts.CookieSecret))
}

func parseJSON(p *plan) bool {
	return p.opts.BodyJSON.Or(true)
}

func applyJSONBody(p *plan) {
	p.app.Attach(middleware.JSONBody(p.bodyLimit()))
}

func parseURLEncoded(p *plan) bool {
	return p.opts.BodyURLEncoded.Or(true)
}

func applyURLEncodedBody(p *plan) {
	p.app.Attach(middleware.URLEncodedBody(p.bodyLimit()))
}

func applyLocals(p *plan) {
	p.app.Attach(middleware.Locals)
}

func wantsMetrics(p *plan) bool {
	return p.opts.MetricsRoute != ""
}

func applyMetrics(p *plan) {
	p.metrics = middleware.NewMetrics("", p.opts.MetricsRoute)
	p.app.Attach(p.metrics.Middleware)
}

func hasExtra(p *plan) bool {
	return len(p.extra) > 0
}

func applyExtra(p *plan) {
	p.app.Attach(p.extra...)
}

func wantsUptime(p *plan) bool {
	return p.opts.UptimeRoute != ""
}

func applyUptime(p *plan) {
	p.app.Route(http.MethodGet, p.opts.UptimeRoute, http.HandlerFunc(middleware.Uptime))
}

func applyMetricsRoute(p *plan) {
	p.app.Route(http.MethodGet, p.opts.MetricsRoute, p.metrics.Handler())
}

func hasStatic(p *plan) bool {
	return p.opts.Static != nil && p.opts.Static.Path != ""
}

func applyStatic(p *plan) {
	files, ok := p.app.(staticServer)
	if !ok {
		p.logger.Warn("Application cannot serve static files", "dir", p.opts.Static.Path)
		return
	}
	prefix := strings.TrimSuffix(p.opts.Static.Prefix, "/")
	if prefix == "" {
		prefix = "/static"
	}
	if err := files.StaticFiles(prefix, p.opts.Static.Path); err != nil {
		p.logger.Warn("Could not serve static files", "dir", p.opts.Static.Path, "error", err)
	}
}
