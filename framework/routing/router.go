package routing

import (
	"slices"
	"strings"
)

// Router picks the most specific route for a path. It is cheap to build and
// is meant to be created per dispatch with the request verb.
type Router struct {
	routes []*Route
	verb   string
}

// NewRouter creates a router over routes. An empty verb disables verb
// filtering.
//
//	route := routing.NewRouter(routes, r.Method).GetRoute(r.URL.Path)
func NewRouter(routes []*Route, verb string) *Router {
	return &Router{routes: routes, verb: strings.ToUpper(verb)}
}

// Verb returns the verb the router filters on.
func (r *Router) Verb() string { return r.verb }

// Routes returns the top-level routes.
func (r *Router) Routes() []*Route { return slices.Clone(r.routes) }

// GetRoute returns a matched copy of the best route for path, or nil.
//
// Every top-level route is tried. Among the candidates the route with more
// path segments wins, then a raw regex match beats a placeholder match, then
// the longer pattern wins. Remaining ties keep registration order.
func (r *Router) GetRoute(path string) *Route {
	path = normalizePath(path)

	var candidates []*Route
	for _, route := range r.routes {
		if m := route.match(path, r.verb, ""); m != nil {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		lookups().unmatched.Inc()
		return nil
	}
	lookups().matched.Inc()

	slices.SortStableFunc(candidates, compareSpecificity)
	return candidates[0]
}

// compareSpecificity orders a before b when a is more specific.
func compareSpecificity(a, b *Route) int {
	if sa, sb := a.Segments(), b.Segments(); sa != sb {
		return sb - sa
	}
	if a.matchedOn != b.matchedOn {
		return int(a.matchedOn) - int(b.matchedOn)
	}
	return len(b.pattern) - len(a.pattern)
}
