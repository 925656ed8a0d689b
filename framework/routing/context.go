package routing

import (
	"context"
	"net/http"
)

type routeKey struct{}

// WithRoute stores the matched route in ctx.
func WithRoute(ctx context.Context, r *Route) context.Context {
	return context.WithValue(ctx, routeKey{}, r)
}

// FromContext returns the matched route stored by the dispatcher.
func FromContext(ctx context.Context) (*Route, bool) {
	r, ok := ctx.Value(routeKey{}).(*Route)
	return r, ok && r != nil
}

// Param extracts a named capture of the matched route, e.g. the "id" of
// "/users/:id". It returns "" outside a dispatched request.
func Param(r *http.Request, key string) string {
	route, ok := FromContext(r.Context())
	if !ok {
		return ""
	}
	return route.Param(key)
}
