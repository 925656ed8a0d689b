package http

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"

	"github.com/km-arc/cubex/framework/container"
)

// ErrControllerNotFound is returned when a route names an unknown controller.
var ErrControllerNotFound = errors.New("controller not found")

// HandlerFunc is a handler working on the wrapped request and response. A
// returned error is rendered with Response.Fail.
type HandlerFunc func(res *Response, req *Request) error

// ServeHTTP implements http.Handler.
func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := NewResponse(w)
	if err := f(res, NewRequest(r)); err != nil {
		res.Fail(err)
	}
}

// ControllerFactory builds the handler for a controller. It receives the
// service manager so controllers can resolve what they need.
type ControllerFactory func(m *container.Manager) (http.Handler, error)

// ControllerRegistry maps controller names used as route results to
// factories.
//
//	controllers.Register("users", func(m *container.Manager) (http.Handler, error) {
//	    db, err := container.Resolve[*database.Connection](m, "db")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return &UsersController{db: db}, nil
//	})
type ControllerRegistry struct {
	mu        sync.RWMutex
	factories map[string]ControllerFactory
}

// NewControllerRegistry creates an empty registry.
func NewControllerRegistry() *ControllerRegistry {
	return &ControllerRegistry{factories: make(map[string]ControllerFactory)}
}

// Register adds a controller factory, replacing any previous one.
func (c *ControllerRegistry) Register(name string, f ControllerFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

// Handle registers a ready handler under name.
func (c *ControllerRegistry) Handle(name string, h http.Handler) {
	c.Register(name, func(*container.Manager) (http.Handler, error) { return h, nil })
}

// Resolve builds the controller called name.
func (c *ControllerRegistry) Resolve(name string, m *container.Manager) (http.Handler, error) {
	c.mu.RLock()
	f, ok := c.factories[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrControllerNotFound, name)
	}
	h, err := f(m)
	if err != nil {
		return nil, fmt.Errorf("http: controller %s: %w", name, err)
	}
	return h, nil
}

// Names returns the registered controller names, sorted.
func (c *ControllerRegistry) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.factories))
}
