package routing

import (
	"maps"
	"slices"
	"strings"
)

// AnyVerb matches every HTTP verb.
const AnyVerb = "ANY"

// MatchStrategy records how a route pattern matched a path.
// Lower values are stronger.
type MatchStrategy int

const (
	// NoMatch means the route has not been matched.
	NoMatch MatchStrategy = iota
	// MatchedRaw means the pattern matched when used literally as a regex.
	MatchedRaw
	// MatchedSimplified means the pattern only matched after :placeholder expansion.
	MatchedSimplified
)

func (s MatchStrategy) String() string {
	switch s {
	case MatchedRaw:
		return "raw"
	case MatchedSimplified:
		return "simplified"
	default:
		return "none"
	}
}

// Route binds a path pattern to a dispatch target.
//
// A configured Route is never modified by matching. Router.GetRoute returns a
// matched copy that carries the full pattern, the captured data and the
// strategy that produced the match, so one route tree can serve concurrent
// requests.
type Route struct {
	pattern  string
	result   any
	verbs    []string
	excluded []string
	routes   []*Route

	data      map[string]string
	matchedOn MatchStrategy
}

// NewRoute creates a route. With no verbs the route accepts ANY.
//
//	routing.NewRoute("/users/:id@num", "users.show", "GET", "HEAD")
func NewRoute(pattern string, result any, verbs ...string) *Route {
	r := &Route{pattern: pattern, result: result}
	for _, v := range verbs {
		r.verbs = appendVerb(r.verbs, v)
	}
	if len(r.verbs) == 0 {
		r.verbs = []string{AnyVerb}
	}
	return r
}

// Add appends sub-routes. Their patterns are relative to this route.
func (r *Route) Add(routes ...*Route) *Route {
	r.routes = append(r.routes, routes...)
	return r
}

// ExcludeVerb rejects the given verbs even when the whitelist would allow them.
func (r *Route) ExcludeVerb(verbs ...string) *Route {
	for _, v := range verbs {
		r.excluded = appendVerb(r.excluded, v)
	}
	return r
}

// Pattern returns the route pattern. On a matched route this is the full
// pattern including every parent prefix, normalised with a trailing slash.
func (r *Route) Pattern() string { return r.pattern }

// Result returns the dispatch target.
func (r *Route) Result() any { return r.result }

// Verbs returns the verb whitelist.
func (r *Route) Verbs() []string { return slices.Clone(r.verbs) }

// ExcludedVerbs returns the verb blacklist.
func (r *Route) ExcludedVerbs() []string { return slices.Clone(r.excluded) }

// Routes returns the sub-routes in declaration order.
func (r *Route) Routes() []*Route { return slices.Clone(r.routes) }

// HasRoutes reports whether the route has sub-routes.
func (r *Route) HasRoutes() bool { return len(r.routes) > 0 }

// Data returns the named captures of a matched route.
func (r *Route) Data() map[string]string {
	if r.data == nil {
		return map[string]string{}
	}
	return maps.Clone(r.data)
}

// Param returns a single named capture, or "".
func (r *Route) Param(key string) string { return r.data[key] }

// MatchedOn reports how the route matched. Unmatched routes return NoMatch.
func (r *Route) MatchedOn() MatchStrategy { return r.matchedOn }

// Segments counts the "/"-separated segments of the pattern.
func (r *Route) Segments() int { return countSegments(r.pattern) }

// AllowsVerb reports whether the route accepts verb. An empty verb is
// always accepted.
func (r *Route) AllowsVerb(verb string) bool {
	if verb == "" {
		return true
	}
	verb = strings.ToUpper(verb)
	if slices.Contains(r.excluded, verb) {
		return false
	}
	return slices.Contains(r.verbs, AnyVerb) || slices.Contains(r.verbs, verb)
}

// match tries the route against a normalised path. prefix is the joined
// pattern of the parent routes.
func (r *Route) match(path, verb, prefix string) *Route {
	if !r.AllowsVerb(verb) {
		return nil
	}
	full := joinPattern(prefix, r.pattern)

	if len(r.routes) == 0 {
		captures, on := matchPattern(full, path, true)
		if on == NoMatch {
			return nil
		}
		return r.matched(full, captures, on)
	}

	if _, on := matchPattern(full, path, false); on == NoMatch {
		return nil
	}
	// Siblings are not ranked: the first sub-route that matches wins.
	for _, sub := range r.routes {
		if m := sub.match(path, verb, full); m != nil {
			return m
		}
	}
	return nil
}

func (r *Route) matched(full string, data map[string]string, on MatchStrategy) *Route {
	return &Route{
		pattern:   full,
		result:    r.result,
		verbs:     r.verbs,
		excluded:  r.excluded,
		data:      data,
		matchedOn: on,
	}
}

func appendVerb(verbs []string, v string) []string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" || slices.Contains(verbs, v) {
		return verbs
	}
	return append(verbs, v)
}

// Walk visits every route depth first with its joined pattern.
func Walk(routes []*Route, fn func(r *Route, pattern string, depth int)) {
	walk(routes, "", 0, fn)
}

func walk(routes []*Route, prefix string, depth int, fn func(*Route, string, int)) {
	for _, r := range routes {
		full := joinPattern(prefix, r.pattern)
		fn(r, full, depth)
		walk(r.routes, full, depth+1, fn)
	}
}
