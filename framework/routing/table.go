package routing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRouteTable is returned when a route file is not an ordered
// mapping of patterns to targets.
var ErrInvalidRouteTable = errors.New("invalid route table")

// Entry is one ordered row of a route table. Value is either a dispatch
// target or a nested []Entry holding sub-routes.
//
// Key is a pattern, optionally preceded by verbs:
//
//	"/users"              any verb
//	"GET|HEAD /users"     whitelist
//	"!DELETE /users"      blacklist
type Entry struct {
	Key   string
	Value any
}

// FromArray builds route trees from an ordered table.
//
//	routes := routing.FromArray([]routing.Entry{
//	    {"/", "home"},
//	    {"/users", []routing.Entry{
//	        {"", "users.index"},
//	        {":id@num", "users.show"},
//	        {"POST :id@num", "users.update"},
//	    }},
//	})
func FromArray(entries []Entry) []*Route {
	routes := make([]*Route, 0, len(entries))
	for _, e := range entries {
		verbs, excluded, pattern := parseKey(e.Key)

		var route *Route
		if subs, ok := e.Value.([]Entry); ok {
			route = NewRoute(pattern, nil, verbs...).Add(FromArray(subs)...)
		} else {
			route = NewRoute(pattern, e.Value, verbs...)
		}
		routes = append(routes, route.ExcludeVerb(excluded...))
	}
	return routes
}

func parseKey(key string) (verbs, excluded []string, pattern string) {
	head, rest, found := strings.Cut(strings.TrimSpace(key), " ")
	if !found || !isVerbList(head) {
		return nil, nil, strings.TrimSpace(key)
	}
	for _, v := range strings.Split(head, "|") {
		if strings.HasPrefix(v, "!") {
			excluded = append(excluded, v[1:])
			continue
		}
		verbs = append(verbs, v)
	}
	return verbs, excluded, strings.TrimSpace(rest)
}

func isVerbList(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c != '|' && c != '!' && (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// ParseYAML reads an ordered YAML mapping of route entries. The mapping may
// sit at the document root or under a top-level "routes" key.
//
//	routes:
//	  /: home
//	  /users:
//	    "": users.index
//	    ":id@num": users.show
func ParseYAML(data []byte) ([]*Route, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("routing: parse routes: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.MappingNode && len(root.Content) == 2 &&
		root.Content[0].Value == "routes" && root.Content[1].Kind == yaml.MappingNode {
		root = root.Content[1]
	}

	entries, err := entriesFromNode(root)
	if err != nil {
		return nil, err
	}
	return FromArray(entries), nil
}

// LoadFile reads a YAML route file.
func LoadFile(path string) ([]*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routing: read %s: %w", path, err)
	}
	return ParseYAML(data)
}

func entriesFromNode(node *yaml.Node) ([]Entry, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: expected a mapping", ErrInvalidRouteTable, node.Line)
	}
	entries := make([]Entry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: pattern must be a string", ErrInvalidRouteTable, key.Line)
		}

		switch value.Kind {
		case yaml.ScalarNode:
			var target any
			if value.Tag != "!!null" {
				target = value.Value
			}
			entries = append(entries, Entry{Key: key.Value, Value: target})
		case yaml.MappingNode:
			subs, err := entriesFromNode(value)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Key: key.Value, Value: subs})
		default:
			return nil, fmt.Errorf("%w: line %d: unsupported value for %q", ErrInvalidRouteTable, value.Line, key.Value)
		}
	}
	return entries, nil
}
