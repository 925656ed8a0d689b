package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/km-arc/cubex/framework/config"
	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/database"
	"github.com/km-arc/cubex/framework/events"
	gohttp "github.com/km-arc/cubex/framework/http"
	"github.com/km-arc/cubex/framework/logging"
	"github.com/km-arc/cubex/framework/providers"
	"github.com/km-arc/cubex/framework/routing"
)

// Names the application binds its own parts under in the service manager.
const (
	ServiceConfig = "config"
	ServiceLogger = "logger"
	ServiceEvents = "events"
)

// Events raised by the application in the EventScope namespace.
const (
	EventScope           = "cubex/services"
	EventServiceResolved = "service.resolved"
)

const shutdownTimeout = 30 * time.Second

// Application wires the configuration, logger, service manager, event
// manager, routes and controllers together and serves them over HTTP or
// from the command line.
//
//	application, err := app.New()
//	application.Controllers().Handle("home", homeHandler)
//	application.AddRoutes(routing.NewRoute("/", "home"))
//	err = application.Run(ctx)
type Application struct {
	config      *config.Config
	logger      *zap.Logger
	registry    *container.ProviderRegistry
	services    *container.Manager
	events      *events.Manager
	controllers *gohttp.ControllerRegistry
	pool        *database.Pool
	routes      []*routing.Route
}

// Option configures an Application.
type Option func(*Application)

// WithConfig uses cfg instead of loading .env.
func WithConfig(cfg *config.Config) Option {
	return func(a *Application) { a.config = cfg }
}

// WithLogger uses logger instead of building one from the log config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Application) { a.logger = logger }
}

// WithRegistry uses reg instead of the framework providers.
func WithRegistry(reg *container.ProviderRegistry) Option {
	return func(a *Application) { a.registry = reg }
}

// New creates the application. The service and route files named by the
// config are loaded here; services are configured on first use.
func New(opts ...Option) (*Application, error) {
	a := &Application{controllers: gohttp.NewControllerRegistry()}
	for _, opt := range opts {
		opt(a)
	}

	if a.config == nil {
		a.config = config.Load()
	}
	if a.logger == nil {
		logger, err := logging.New(logging.Config{
			Level:  a.config.Log.Level,
			Format: a.config.Log.Format,
		})
		if err != nil {
			return nil, fmt.Errorf("app: logger: %w", err)
		}
		a.logger = logger
	}
	if a.registry == nil {
		a.registry = providers.NewRegistry()
	}

	a.events = events.NewManager(events.WithLogger(a.logger.Named("events")))
	a.services = container.NewManager(a.registry, container.WithLogger(a.logger.Named("services")))
	a.pool = database.NewPool()

	a.services.Bind(ServiceConfig, a.config)
	a.services.Bind(ServiceLogger, a.logger)
	a.services.Bind(ServiceEvents, a.events)
	a.services.Bind(database.PoolService, a.pool)
	a.services.OnResolved(func(name string, instance any) {
		a.events.Trigger(context.Background(), events.NewEvent(EventServiceResolved).
			From(EventScope, instance).
			With("service", name))
	})

	if err := a.loadServices(a.config.Cubex.Services); err != nil {
		return nil, err
	}
	if err := a.loadRoutes(a.config.Cubex.Routes); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Application) loadServices(path string) error {
	if path == "" {
		return nil
	}
	cfgs, err := config.LoadServices(path)
	if err != nil {
		return fmt.Errorf("app: services: %w", err)
	}
	for _, cfg := range cfgs {
		if err := a.services.RegisterConfig(cfg); err != nil {
			return fmt.Errorf("app: services: %w", err)
		}
	}
	a.logger.Info("services loaded", zap.String("file", path), zap.Int("count", len(cfgs)))
	return nil
}

func (a *Application) loadRoutes(path string) error {
	if path == "" {
		return nil
	}
	routes, err := routing.LoadFile(path)
	if err != nil {
		return fmt.Errorf("app: routes: %w", err)
	}
	a.routes = append(a.routes, routes...)
	a.logger.Info("routes loaded", zap.String("file", path), zap.Int("count", len(routes)))
	return nil
}

// Config returns the application configuration.
func (a *Application) Config() *config.Config { return a.config }

// Logger returns the root logger.
func (a *Application) Logger() *zap.Logger { return a.logger }

// Services returns the service manager.
func (a *Application) Services() *container.Manager { return a.services }

// Events returns the event manager.
func (a *Application) Events() *events.Manager { return a.events }

// Controllers returns the registry controller-name route targets resolve in.
func (a *Application) Controllers() *gohttp.ControllerRegistry { return a.controllers }

// Routes returns the top-level routes.
func (a *Application) Routes() []*routing.Route { return a.routes }

// AddRoutes appends top-level routes after those loaded from file.
func (a *Application) AddRoutes(routes ...*routing.Route) {
	a.routes = append(a.routes, routes...)
}

// Dispatcher returns a dispatcher over the current routes.
func (a *Application) Dispatcher() *gohttp.Dispatcher {
	return gohttp.NewDispatcher(a.routes,
		gohttp.WithControllers(a.controllers),
		gohttp.WithServices(a.services),
		gohttp.WithEvents(a.events),
		gohttp.WithLogger(a.logger.Named("http")),
	)
}

// Handler returns the HTTP handler: request ids, access logs and panic
// recovery around the dispatcher, plus /metrics.
func (a *Application) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(a.logger.Named("access")))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", a.Dispatcher())
	return r
}

// Run serves HTTP on APP_PORT until ctx is cancelled, then shuts the
// server down and closes the services.
func (a *Application) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.config.App.Port,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.String("app", a.config.App.Name),
			zap.String("env", a.config.App.Env),
			zap.String("addr", srv.Addr),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = a.Close(context.Background())
			return fmt.Errorf("app: serve: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown failed", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// RunCLI serves path through the dispatcher without a server and writes the
// response body to w. Arguments of the form key=value become query input; a
// bare argument is set to "true". Verbs are not filtered. It returns the
// response status.
//
//	status, err := application.RunCLI(ctx, "/reports/daily", []string{"format=csv"}, os.Stdout)
func (a *Application) RunCLI(ctx context.Context, path string, args []string, w io.Writer) (int, error) {
	query := url.Values{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			value = "true"
		}
		query.Add(key, value)
	}

	target := "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("app: cli request: %w", err)
	}
	req.Method = ""
	req.RequestURI = target

	rw := &cliResponseWriter{header: http.Header{}, w: w}
	a.Dispatcher().ServeHTTP(rw, req)
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.status, rw.err
}

// Close closes every resolved service and the shared database pool.
func (a *Application) Close(ctx context.Context) error {
	err := errors.Join(a.services.Close(ctx), a.pool.Close())
	_ = a.logger.Sync()
	return err
}

// cliResponseWriter writes a response body to a plain writer.
type cliResponseWriter struct {
	header http.Header
	status int
	w      io.Writer
	err    error
}

func (c *cliResponseWriter) Header() http.Header { return c.header }

func (c *cliResponseWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *cliResponseWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	n, err := c.w.Write(p)
	if err != nil && c.err == nil {
		c.err = err
	}
	return n, err
}
