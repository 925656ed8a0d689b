// Package routing resolves request paths to dispatch targets.
//
// # Patterns
//
// A pattern is first tried literally as a regular expression anchored at
// both ends. If that fails, simple placeholders are expanded and the match
// is retried:
//
//	:name        [^/]+
//	:name@alpha  \w+
//	:name@num    [1-9]\d*
//	:name@all    .*
//
// Patterns and paths are compared with a trailing slash, so "/users" and
// "/users/" are the same route. Named captures become the route data.
//
// # Specificity
//
// Router.GetRoute tries every top-level route and ranks the candidates:
//
//  1. more path segments first
//  2. a raw regex match before a placeholder match
//  3. the longer pattern first
//  4. registration order
//
// # Sub-routes
//
// A route with sub-routes matches as a prefix and never dispatches by
// itself. Its sub-routes are tried in declaration order with the parent
// pattern prepended, and the first one that matches wins. Use an empty
// sub-route pattern to dispatch on the parent path:
//
//	users := routing.NewRoute("/users", nil).Add(
//	    routing.NewRoute("", "users.index"),
//	    routing.NewRoute(":id@num", "users.show"),
//	)
//
// Route tables can also be written as ordered YAML, see ParseYAML.
package routing
