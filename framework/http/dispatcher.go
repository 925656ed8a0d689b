package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/events"
	"github.com/km-arc/cubex/framework/routing"
)

// Events raised by the Dispatcher in the EventScope namespace.
const (
	EventScope     = "cubex/http"
	EventDispatch  = "dispatch"
	EventNoRoute   = "dispatch.noroute"
	EventFailed    = "dispatch.failed"
	unmatchedRoute = "unmatched"
)

// ErrInvalidTarget is returned for route results the dispatcher cannot serve.
var ErrInvalidTarget = errors.New("invalid route target")

// Dispatcher matches requests against a route tree and serves the target of
// the best route. Targets may be an http.Handler, a handler func, a
// HandlerFunc or the name of a registered controller.
//
// Before serving, a "dispatch" event is raised; a listener returning an
// http.Handler takes over the request.
type Dispatcher struct {
	routes      []*routing.Route
	controllers *ControllerRegistry
	services    *container.Manager
	events      *events.Manager
	logger      *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithControllers sets the registry used for controller-name targets.
func WithControllers(c *ControllerRegistry) DispatcherOption {
	return func(d *Dispatcher) { d.controllers = c }
}

// WithServices sets the manager handed to controller factories.
func WithServices(m *container.Manager) DispatcherOption {
	return func(d *Dispatcher) { d.services = m }
}

// WithEvents sets the event manager dispatch events are raised on.
func WithEvents(e *events.Manager) DispatcherOption {
	return func(d *Dispatcher) { d.events = e }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher creates a dispatcher for routes.
func NewDispatcher(routes []*routing.Route, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		routes:      routes,
		controllers: NewControllerRegistry(),
		events:      events.NewManager(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Routes returns the dispatcher's route tree.
func (d *Dispatcher) Routes() []*routing.Route { return d.routes }

// Match returns the route that would serve r, or nil.
func (d *Dispatcher) Match(r *http.Request) *routing.Route {
	return routing.NewRouter(d.routes, r.Method).GetRoute(RoutePath(r))
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	path := RoutePath(r)
	pattern := unmatchedRoute

	defer func() {
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m := metrics()
		m.requests.WithLabelValues(pattern, r.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	}()

	route := routing.NewRouter(d.routes, r.Method).GetRoute(path)
	if route == nil {
		d.events.Trigger(r.Context(), events.NewEvent(EventNoRoute).From(EventScope, r).
			With("path", path).With("method", r.Method))
		d.logger.Debug("no route matched", zap.String("method", r.Method), zap.String("path", path))
		NewResponse(ww).NotFound("No controller found for " + path)
		return
	}
	pattern = route.Pattern()
	r = r.WithContext(routing.WithRoute(r.Context(), route))

	override := d.events.TriggerUntil(r.Context(), events.NewEvent(EventDispatch).From(EventScope, r).
		With("path", path).With("method", r.Method).With("route", pattern))
	if h, ok := override.(http.Handler); ok {
		h.ServeHTTP(ww, r)
		return
	}

	h, err := d.resolve(route.Result())
	if err != nil {
		d.events.Trigger(r.Context(), events.NewEvent(EventFailed).From(EventScope, r).
			With("path", path).With("route", pattern).With("error", err.Error()))
		d.logger.Error("dispatch failed",
			zap.String("path", path),
			zap.String("route", pattern),
			zap.Error(err),
		)
		if errors.Is(err, ErrControllerNotFound) || route.Result() == nil {
			NewResponse(ww).NotFound("No controller found for " + path)
			return
		}
		NewResponse(ww).ServerError()
		return
	}
	h.ServeHTTP(ww, r)
}

func (d *Dispatcher) resolve(target any) (http.Handler, error) {
	switch t := target.(type) {
	case http.Handler:
		return t, nil
	case func(http.ResponseWriter, *http.Request):
		return http.HandlerFunc(t), nil
	case func(*Response, *Request) error:
		return HandlerFunc(t), nil
	case string:
		return d.controllers.Resolve(t, d.services)
	default:
		return nil, ErrInvalidTarget
	}
}
