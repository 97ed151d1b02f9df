package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/schema"
	"github.com/prior-it/kickoff/config"
	"github.com/vearutop/statigz"
)

// Names of the settings the server itself understands.
const (
	SettingPort       = "port"
	SettingEnv        = "env"
	SettingViewEngine = "view engine"
	SettingViews      = "views"
	SettingTrustProxy = "trust proxy"
	SettingPoweredBy  = "x-powered-by"
)

// PoweredBy is the default value of the X-Powered-By header.
const PoweredBy = "Kickoff"

const defaultPort = 3000

type (
	ErrorHandler    func(apollo *Apollo, err error)
	NotFoundHandler func(apollo *Apollo)
)

type State interface {
	Close(ctx context.Context)
}

type Server[state State] struct {
	mux          *chi.Mux
	state        state
	logger       *slog.Logger
	errorHandler ErrorHandler
	cfg          *config.Config
	registry     *registry
	decoder      *schema.Decoder
}

// registry holds the named settings and view engines. It is shared between a server and the
// groups created from it.
type registry struct {
	mu       sync.RWMutex
	settings map[string]any
	engines  map[string]ViewEngine
}

type (
	Handler[state any]    func(apollo *Apollo, state state) error
	Middleware[state any] func(apollo *Apollo, state state) (context.Context, error)
)

// New creates a new server with the specified state object and configuration.
func New[state State](s state, cfg *config.Config) *Server[state] {
	if cfg == nil {
		cfg = &config.Config{}
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	server := &Server[state]{
		mux:          chi.NewMux(),
		state:        s,
		logger:       slog.Default(),
		errorHandler: DefaultErrorHandler,
		cfg:          cfg,
		registry: &registry{
			settings: map[string]any{
				SettingPoweredBy:  true,
				SettingTrustProxy: false,
			},
			engines: map[string]ViewEngine{},
		},
		decoder: decoder,
	}

	// Attach default not found handler
	server.WithNotFoundHandler(
		func(apollo *Apollo) {
			render.Status(apollo.Request, http.StatusNotFound)
			render.PlainText(
				apollo.Writer,
				apollo.Request,
				fmt.Sprintf("Page %q not found", apollo.Path()),
			)
		},
	)

	return server
}

func (server *Server[state]) WithErrorHandler(errorHandler ErrorHandler) *Server[state] {
	server.errorHandler = errorHandler
	return server
}

func (server *Server[state]) WithNotFoundHandler(notFoundHandler NotFoundHandler) *Server[state] {
	server.mux.NotFound(server.handle(func(apollo *Apollo, _ state) error {
		notFoundHandler(apollo)
		return nil
	}))
	return server
}

func (server *Server[state]) WithLogger(logger *slog.Logger) *Server[state] {
	server.logger = logger
	return server
}

func (server *Server[state]) WithConfig(cfg *config.Config) *Server[state] {
	server.cfg = cfg
	return server
}

// Logger returns the logger used by this server and its handlers.
func (server *Server[state]) Logger() *slog.Logger {
	return server.logger
}

// Config returns the configuration this server was created with.
func (server *Server[state]) Config() *config.Config {
	return server.cfg
}

// Set assigns a named setting, e.g. "port" or "trust proxy".
func (server *Server[state]) Set(setting string, value any) {
	server.registry.mu.Lock()
	defer server.registry.mu.Unlock()
	server.registry.settings[setting] = value
}

// Setting returns the value of a named setting, or nil if it was never set.
func (server *Server[state]) Setting(setting string) any {
	server.registry.mu.RLock()
	defer server.registry.mu.RUnlock()
	return server.registry.settings[setting]
}

// Enabled reports whether a boolean setting is switched on.
func (server *Server[state]) Enabled(setting string) bool {
	enabled, ok := server.Setting(setting).(bool)
	return ok && enabled
}

// RegisterEngine makes a view engine available under name. The engine used to render views is
// selected with the "view engine" setting.
func (server *Server[state]) RegisterEngine(name string, engine ViewEngine) {
	server.registry.mu.Lock()
	defer server.registry.mu.Unlock()
	server.registry.engines[name] = engine
}

// Engine returns the view engine registered under name.
func (server *Server[state]) Engine(name string) (ViewEngine, bool) {
	server.registry.mu.RLock()
	defer server.registry.mu.RUnlock()
	engine, ok := server.registry.engines[name]
	return engine, ok
}

// activeEngine returns the engine selected by the "view engine" setting, if any.
func (server *Server[state]) activeEngine() ViewEngine {
	name, ok := server.Setting(SettingViewEngine).(string)
	if !ok {
		return nil
	}
	engine, _ := server.Engine(name)
	return engine
}

// Port returns the configured port, or 3000 if none was set.
func (server *Server[state]) Port() int {
	if port, ok := server.Setting(SettingPort).(int); ok {
		return port
	}
	return defaultPort
}

func (server *Server[state]) NewApollo(w http.ResponseWriter, r *http.Request) *Apollo {
	return &Apollo{
		Writer:  w,
		Request: r,
		logger:  server.logger,
		views:   server.activeEngine(),
		decoder: server.decoder,
	}
}

func (server *Server[state]) handle(handler Handler[state]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apollo := server.NewApollo(w, r)
		err := handler(apollo, server.state)
		if err != nil {
			server.errorHandler(apollo, err)
		}
		_ = r.Body.Close()
	}
}

// Utility function that converts Apollo middleware to a http handler
func (server *Server[state]) HandlerMiddleware(
	middleware Middleware[state],
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apollo := server.NewApollo(w, r)
			ctx, err := middleware(apollo, server.state)
			if err != nil {
				server.errorHandler(apollo, err)
			} else {
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// Start runs the server until ctx is cancelled or the process receives SIGINT or SIGTERM.
// If no listener is provided, a new TCP listener will be created on the configured host and port.
func (server *Server[state]) Start(ctx context.Context, listener net.Listener) error {
	// Handle OS signals to cancel the context
	ctxServer, stopSignal := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignal()

	host := fmt.Sprintf("%v:%v", server.cfg.App.Host, server.Port())
	if listener != nil {
		host = listener.Addr().String()
	}
	httpServer := &http.Server{
		Addr:              host,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second, //nolint:mnd
	}

	errorCh := make(chan error, 1)
	// Run the actual server
	go func() {
		server.logger.Info("Starting server", "host", host, "env", server.Setting(SettingEnv))
		var err error
		if listener != nil {
			err = httpServer.Serve(listener)
		} else {
			err = httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorCh <- err
		}
		close(errorCh)
	}()

	var errServer error
	select {
	case err := <-errorCh:
		errServer = err
	case <-ctxServer.Done():
		server.logger.Info("Server interrupt received")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(
		context.Background(),
		time.Duration(max(server.cfg.App.ShutdownTimeout, 1))*time.Second,
	)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		server.logger.Error("Could not shut down the server gracefully", "error", err)
	}
	server.Shutdown(ctxShutdown)

	return errServer
}

// Shutdown will release all server resources. You generally don't need to call this manually.
func (server *Server[state]) Shutdown(ctx context.Context) {
	sentryTimeout := max(0, time.Duration(server.cfg.App.ShutdownTimeout-1))
	sentry.Flush(sentryTimeout * time.Second)

	server.registry.mu.RLock()
	for name, engine := range server.registry.engines {
		if closer, ok := engine.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				server.logger.Error("Could not close view engine", "engine", name, "error", err)
			}
		}
	}
	server.registry.mu.RUnlock()
	server.state.Close(ctx)
}

// ServeHTTP implements [net/http.Handler].
func (server *Server[state]) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if server.Enabled(SettingPoweredBy) {
		writer.Header().Set("X-Powered-By", PoweredBy)
	}
	if server.Enabled(SettingTrustProxy) {
		middleware.RealIP(server.mux).ServeHTTP(writer, request)
		return
	}
	server.mux.ServeHTTP(writer, request)
}

// UseStd appends a stdlib middleware handler to the middleware stack.
//
// The middleware stack for any server will execute before searching for a matching
// route to a specific handler, which provides opportunity to respond early,
// change the course of the request execution, or set request-scoped values for
// the next Handler.
func (server *Server[state]) UseStd(middlewares ...func(http.Handler) http.Handler) *Server[state] {
	server.mux.Use(middlewares...)
	return server
}

// Attach is [Server.UseStd] without the chaining, used by the bootstrap initializer.
func (server *Server[state]) Attach(middlewares ...func(http.Handler) http.Handler) {
	server.UseStd(middlewares...)
}

// Use appends an Apollo middleware handler to the middleware stack.
func (server *Server[state]) Use(
	middlewares ...Middleware[state],
) *Server[state] {
	for _, mi := range middlewares {
		server.mux.Use(server.HandlerMiddleware(mi))
	}
	return server
}

// Handle adds the route `pattern` that matches any http method to
// execute the `handler` [net/http.Handler].
func (server *Server[state]) Handle(pattern string, handler http.Handler) *Server[state] {
	server.mux.Handle(pattern, handler)
	return server
}

// Route adds the route `pattern` for a single http method to execute the `handler` [net/http.Handler].
func (server *Server[state]) Route(method string, pattern string, handler http.Handler) {
	server.mux.Method(method, pattern, handler)
}

// StaticFiles serves all files in the `dir` directory at the `pattern` url.
// In the DEVELOPMENT environment files are read from disk on every request, otherwise they are
// compressed once on start-up.
//
// Example:
//
//	server.StaticFiles("/assets/", "./static/")
func (server *Server[state]) StaticFiles(pattern string, dir string) error {
	if server.Setting(SettingEnv) == config.EnvDevelopment {
		server.Handle(
			pattern+"*",
			http.StripPrefix(pattern, http.FileServer(http.Dir(dir))),
		)
		return nil
	}
	files, ok := os.DirFS(dir).(fs.ReadDirFS)
	if !ok {
		return fmt.Errorf("cannot list static directory %q", dir)
	}
	server.Handle(
		pattern+"*",
		http.StripPrefix(pattern, statigz.FileServer(files, statigz.EncodeOnInit)),
	)
	return nil
}

// Group attaches another Handler or Router as a subrouter along a routing
// path. It's very useful to split up a large API as many independent routers and
// compose them as a single service. Or to attach an additional set of middleware
// along a group of endpoints, e.g. a subtree of authenticated endpoints.
//
// Note that Group() does NOT return the original server but rather
// a subroute server that only serves routes along the specified Group pattern.
// Settings and view engines are shared with the original server.
func (server *Server[state]) Group(
	pattern string,
) *Server[state] {
	srv := *server
	srv.mux = chi.NewMux()
	server.mux.Mount(pattern, srv.mux)
	return &srv
}

// GetStd adds the route `pattern` that matches a GET http method to execute a stdlib handler.
func (server *Server[state]) GetStd(pattern string, handlerFn http.HandlerFunc) *Server[state] {
	server.mux.Get(pattern, handlerFn)
	return server
}

// Get adds the route `pattern` that matches a GET http method to execute the `handlerFn` HandlerFunc.
func (server *Server[state]) Get(
	pattern string,
	handlerFn func(apollo *Apollo, state state) error,
) *Server[state] {
	server.mux.Get(pattern, server.handle(handlerFn))
	return server
}

// Post adds the route `pattern` that matches a POST http method to execute the `handlerFn` http.HandlerFunc.
func (server *Server[state]) Post(
	pattern string,
	handlerFn func(apollo *Apollo, state state) error,
) *Server[state] {
	server.mux.Post(pattern, server.handle(handlerFn))
	return server
}

// Put adds the route `pattern` that matches a PUT http method to execute the `handlerFn` http.HandlerFunc.
func (server *Server[state]) Put(
	pattern string,
	handlerFn func(apollo *Apollo, state state) error,
) *Server[state] {
	server.mux.Put(pattern, server.handle(handlerFn))
	return server
}

// Patch adds the route `pattern` that matches a PATCH http method to execute the `handlerFn` http.HandlerFunc.
func (server *Server[state]) Patch(
	pattern string,
	handlerFn func(apollo *Apollo, state state) error,
) *Server[state] {
	server.mux.Patch(pattern, server.handle(handlerFn))
	return server
}

// Delete adds the route `pattern` that matches a DELETE http method to execute the `handlerFn` http.HandlerFunc.
func (server *Server[state]) Delete(
	pattern string,
	handlerFn func(apollo *Apollo, state state) error,
) *Server[state] {
	server.mux.Delete(pattern, server.handle(handlerFn))
	return server
}

// Page adds the route `pattern` that matches a GET http method to render the named view with the
// request locals as its data.
func (server *Server[state]) Page(pattern string, view string) *Server[state] {
	server.mux.Get(pattern, server.handle(func(apollo *Apollo, _ state) error {
		return apollo.Render(view, nil)
	}))
	return server
}
