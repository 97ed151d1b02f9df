package bootstrap_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prior-it/kickoff/bootstrap"
	"github.com/prior-it/kickoff/config"
	"github.com/prior-it/kickoff/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type route struct {
	method  string
	pattern string
	handler http.Handler
}

// recordingApp records every call the initializer makes.
type recordingApp struct {
	mu       sync.Mutex
	settings map[string]any
	attached int
	routes   []route
	engines  map[string]server.ViewEngine
	logs     *bytes.Buffer
	logger   *slog.Logger
}

func newRecordingApp(t *testing.T) *recordingApp {
	t.Helper()
	logs := &bytes.Buffer{}
	app := &recordingApp{
		settings: map[string]any{},
		engines:  map[string]server.ViewEngine{},
		logs:     logs,
		logger:   slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	t.Cleanup(func() {
		for _, engine := range app.engines {
			if closer, ok := engine.(io.Closer); ok {
				_ = closer.Close()
			}
		}
	})
	return app
}

func (app *recordingApp) Set(setting string, value any) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.settings[setting] = value
}

func (app *recordingApp) Attach(middlewares ...func(http.Handler) http.Handler) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.attached += len(middlewares)
}

func (app *recordingApp) Route(method string, pattern string, handler http.Handler) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.routes = append(app.routes, route{method: method, pattern: pattern, handler: handler})
}

func (app *recordingApp) RegisterEngine(name string, engine server.ViewEngine) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.engines[name] = engine
}

func (app *recordingApp) Logger() *slog.Logger {
	return app.logger
}

// records returns every log record with the given message.
func (app *recordingApp) records(t *testing.T, msg string) []map[string]any {
	t.Helper()
	var records []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(app.logs.Bytes()))
	for scanner.Scan() {
		var record map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		if record["msg"] == msg {
			records = append(records, record)
		}
	}
	return records
}

// steps returns the names of the applied initializer steps, in order.
func (app *recordingApp) steps(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, record := range app.records(t, "Bootstrap step applied") {
		names = append(names, record["step"].(string))
	}
	return names
}

func TestGlobalEnvironment(t *testing.T) {
	t.Run("ok: missing environment defaults to PRODUCTION", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		env := bootstrap.Global(app, nil, nil)
		assert.Equal(t, "PRODUCTION", env)
		assert.Equal(t, "PRODUCTION", app.settings[server.SettingEnv])
		assert.Equal(t, 3000, app.settings[server.SettingPort])
	})

	t.Run("ok: empty environment name defaults to PRODUCTION", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		assert.Equal(t, "PRODUCTION", bootstrap.Global(app, map[string]any{"NODE_ENV": ""}, nil))
	})

	t.Run("ok: string environment equals NODE_ENV map", func(t *testing.T) {
		t.Parallel()
		name := gofakeit.LetterN(10)
		fromString := newRecordingApp(t)
		fromMap := newRecordingApp(t)
		assert.Equal(t, name, bootstrap.Global(fromString, name, nil))
		assert.Equal(t, name, bootstrap.Global(fromMap, map[string]any{"NODE_ENV": name}, nil))
		assert.Equal(t, fromMap.settings, fromString.settings)
	})

	t.Run("ok: number environment yields PRODUCTION", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		assert.Equal(t, "PRODUCTION", bootstrap.Global(app, 42, nil))
	})

	t.Run("ok: port parsing", func(t *testing.T) {
		t.Parallel()
		random := gofakeit.Number(1024, 65535)
		cases := []struct {
			port     any
			expected int
		}{
			{nil, 3000},
			{"eighty", 3000},
			{"1234", 1234},
			{5678, 5678},
			{strconv.Itoa(random), random},
		}
		for _, c := range cases {
			app := newRecordingApp(t)
			env := map[string]any{"NODE_ENV": "TEST"}
			if c.port != nil {
				env["PORT"] = c.port
			}
			bootstrap.Global(app, env, nil)
			assert.Equal(t, c.expected, app.settings[server.SettingPort], "PORT %#v", c.port)
		}
	})
}

func TestGlobalViews(t *testing.T) {
	t.Run("ok: no views means no view settings", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, nil, &config.Options{})
		assert.NotContains(t, app.settings, server.SettingViewEngine)
		assert.NotContains(t, app.settings, server.SettingViews)
		assert.Empty(t, app.engines)
	})

	t.Run("ok: views default to the html engine", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, nil, &config.Options{Views: &config.ViewOptions{Path: "/p"}})
		assert.Equal(t, "html", app.settings[server.SettingViewEngine])
		assert.Equal(t, "/p", app.settings[server.SettingViews])
		assert.Contains(t, app.engines, "html")
		assert.Empty(t, app.records(t, "Unsupported view engine requested, falling back"))
	})

	t.Run("ok: unsupported view engines are forced to html with a warning", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, nil, &config.Options{
			Views: &config.ViewOptions{Type: "custom", Path: "/p"},
		})
		assert.Equal(t, "html", app.settings[server.SettingViewEngine])
		assert.Equal(t, "/p", app.settings[server.SettingViews])

		warnings := app.records(t, "Unsupported view engine requested, falling back")
		require.Len(t, warnings, 1)
		assert.Equal(t, "WARN", warnings[0]["level"])
		assert.Equal(t, "custom", warnings[0]["requested"])
	})

	t.Run("ok: engine names are matched exactly", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, nil, &config.Options{Views: &config.ViewOptions{Type: "HTML"}})
		assert.Equal(t, "html", app.settings[server.SettingViewEngine])
		warnings := app.records(t, "Unsupported view engine requested, falling back")
		require.Len(t, warnings, 1)
		assert.Equal(t, "HTML", warnings[0]["requested"])
	})

	t.Run("ok: the caller's options are not modified", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		opts := &config.Options{Views: &config.ViewOptions{Type: "custom"}}
		bootstrap.Global(app, nil, opts)
		assert.Equal(t, "custom", opts.Views.Type)
		assert.Empty(t, opts.Views.Path)
		assert.Equal(t, "views", app.settings[server.SettingViews])
	})
}

func TestGlobalLogger(t *testing.T) {
	cases := []struct {
		env      string
		logging  bool
		attached bool
	}{
		{"DEVELOPMENT", true, true},
		{"DEVELOPMENT", false, false},
		{"PRODUCTION", true, false},
		{"PRODUCTION", false, false},
		{"development", true, false},
	}
	for _, c := range cases {
		t.Run("ok: logger for "+c.env+" logging="+strconv.FormatBool(c.logging), func(t *testing.T) {
			t.Parallel()
			app := newRecordingApp(t)
			bootstrap.Global(app, c.env, &config.Options{Logging: c.logging})
			if c.attached {
				assert.Contains(t, app.steps(t), "logger")
			} else {
				assert.NotContains(t, app.steps(t), "logger")
			}
		})
	}
}

func TestGlobalSteps(t *testing.T) {
	t.Run("ok: default steps", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, nil, nil)
		assert.Equal(t, []string{
			"port",
			"trust proxy",
			"powered by",
			"method override",
			"cookies",
			"json body",
			"urlencoded body",
			"locals",
		}, app.steps(t))
		// powered by, method override, cookies, json, urlencoded, locals
		assert.Equal(t, 6, app.attached)
		assert.Equal(t, false, app.settings[server.SettingTrustProxy])
		assert.Equal(t, false, app.settings[server.SettingPoweredBy])
		assert.Empty(t, app.routes)
	})

	t.Run("ok: every step in registration order", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, "DEVELOPMENT", &config.Options{
			Logging:      true,
			ResponseTime: config.On(),
			TrustProxy:   true,
			PoweredBy:    "Acme",
			UptimeRoute:  "/uptime",
			MetricsRoute: "/metrics",
			Static:       &config.StaticOptions{Prefix: "/assets", Path: t.TempDir()},
		})
		assert.Equal(t, []string{
			"port",
			"logger",
			"trust proxy",
			"response time",
			"powered by",
			"method override",
			"cookies",
			"json body",
			"urlencoded body",
			"locals",
			"metrics",
			"uptime route",
			"metrics route",
			"static",
		}, app.steps(t))
		assert.Equal(t, true, app.settings[server.SettingTrustProxy])
		assert.NotContains(t, app.settings, server.SettingPoweredBy)
		assert.Len(t, app.records(t, "Application cannot serve static files"), 1)
	})

	t.Run("ok: parsers can be switched off", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, nil, &config.Options{
			ParseCookies:   config.Some(false),
			BodyJSON:       config.Some(false),
			BodyURLEncoded: config.Some(false),
		})
		steps := app.steps(t)
		assert.NotContains(t, steps, "cookies")
		assert.NotContains(t, steps, "json body")
		assert.NotContains(t, steps, "urlencoded body")
		assert.Contains(t, steps, "locals")
	})

	t.Run("ok: explicitly enabled parsers are attached", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, nil, &config.Options{
			ParseCookies:   config.Some(true),
			BodyJSON:       config.Some(true),
			BodyURLEncoded: config.Some(true),
		})
		assert.Subset(t, app.steps(t), []string{"cookies", "json body", "urlencoded body"})
	})
}

func TestGlobalUptime(t *testing.T) {
	t.Run("ok: uptime route responds with status ok", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, nil, &config.Options{UptimeRoute: "/health"})
		require.Len(t, app.routes, 1)
		assert.Equal(t, http.MethodGet, app.routes[0].method)
		assert.Equal(t, "/health", app.routes[0].pattern)

		recorder := httptest.NewRecorder()
		app.routes[0].handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())
	})

	t.Run("ok: no uptime route by default", func(t *testing.T) {
		t.Parallel()
		app := newRecordingApp(t)
		bootstrap.Global(app, nil, &config.Options{})
		assert.Empty(t, app.routes)
	})
}

func TestGlobalWithDefaults(t *testing.T) {
	t.Run("ok: defaults record is used for fallbacks", func(t *testing.T) {
		t.Parallel()
		defaults := config.StandardDefaults()
		defaults.NodeEnv = "STAGING"
		defaults.Port = 8080

		app := newRecordingApp(t)
		env := bootstrap.GlobalWithDefaults(app, map[string]any{"PORT": "nope"}, nil, defaults)
		assert.Equal(t, "STAGING", env)
		assert.Equal(t, 8080, app.settings[server.SettingPort])
	})
}

func TestNewLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	cases := []struct {
		name    string
		format  config.LogFormat
		env     string
		isJSON  bool
		message string
	}{
		{"json", config.LogFormatJSON, "PRODUCTION", true, `"msg":"hello"`},
		{"plaintext", config.LogFormatPlaintext, "PRODUCTION", false, "msg=hello"},
		{"colored plaintext", config.LogFormatPlaintext, "DEVELOPMENT", false, "hello"},
	}
	for _, c := range cases {
		t.Run("ok: "+c.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			cfg := &config.Config{Log: config.LogConfig{Format: c.format, Level: config.LogLevelWarn}}
			logger := bootstrap.NewLogger(out, cfg, c.env)
			assert.Same(t, logger, slog.Default())

			logger.Info("skipped")
			logger.Warn("hello")
			assert.NotContains(t, out.String(), "skipped")
			assert.Contains(t, out.String(), c.message)
			assert.Equal(t, c.isJSON, json.Valid(bytes.TrimSpace(out.Bytes())))
		})
	}
}

// configuredApp is a recordingApp that also exposes its configuration.
type configuredApp struct {
	*recordingApp
	cfg *config.Config
}

func (app *configuredApp) Config() *config.Config {
	return app.cfg
}

func TestGlobalSentry(t *testing.T) {
	t.Run("ok: skipped unless enabled", func(t *testing.T) {
		t.Parallel()
		app := &configuredApp{recordingApp: newRecordingApp(t), cfg: &config.Config{}}
		bootstrap.Global(app, nil, nil)
		assert.NotContains(t, app.steps(t), "sentry")
		assert.Empty(t, app.records(t, "Sentry initialised"))
	})

	t.Run("ok: attached after debug when enabled", func(t *testing.T) {
		t.Parallel()
		app := &configuredApp{recordingApp: newRecordingApp(t), cfg: &config.Config{
			App:    config.AppConfig{Debug: true},
			Sentry: config.SentryConfig{Enabled: true},
		}}
		bootstrap.Global(app, nil, nil)
		assert.Equal(t, []string{"port", "debug", "sentry", "trust proxy"}, app.steps(t)[:4])
		assert.Len(t, app.records(t, "Sentry initialised"), 1)
		// debug (2), sentry, powered by, method override, cookies, json, urlencoded, locals
		assert.Equal(t, 9, app.attached)
	})
}
