package routing

import (
	"regexp"
	"strings"
	"sync"
)

// placeholder matches ":name" with an optional "@type" suffix. The leading
// group keeps "(?:" and escaped colons out of the conversion.
var placeholder = regexp.MustCompile(`(^|[^?\\]):([A-Za-z_][A-Za-z0-9_]*)(?:@(alpha|num|all))?`)

var placeholderTypes = map[string]string{
	"alpha": `\w+`,
	"num":   `[1-9]\d*`,
	"all":   `.*`,
	"":      `[^/]+`,
}

// compiled caches compiled expressions. A nil entry records a pattern that
// does not compile.
var compiled sync.Map

func compile(expr string) *regexp.Regexp {
	if v, ok := compiled.Load(expr); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	compiled.Store(expr, re)
	return re
}

// matchPattern runs pattern against path, first literally and then with
// placeholders expanded. Both must be normalised. With anchorEnd false the
// pattern only has to match a prefix of the path.
func matchPattern(pattern, path string, anchorEnd bool) (map[string]string, MatchStrategy) {
	if data, ok := exec(pattern, path, anchorEnd); ok {
		return data, MatchedRaw
	}
	if converted, changed := ConvertPlaceholders(pattern); changed {
		if data, ok := exec(converted, path, anchorEnd); ok {
			return data, MatchedSimplified
		}
	}
	return nil, NoMatch
}

func exec(pattern, path string, anchorEnd bool) (map[string]string, bool) {
	expr := "^(?:" + pattern + ")"
	if anchorEnd {
		expr += "$"
	}
	re := compile(expr)
	if re == nil {
		return nil, false
	}
	sub := re.FindStringSubmatch(path)
	if sub == nil {
		return nil, false
	}
	data := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		if _, seen := data[name]; seen && sub[i] == "" {
			continue
		}
		data[name] = sub[i]
	}
	return data, true
}

// ConvertPlaceholders rewrites ":name", ":name@alpha", ":name@num" and
// ":name@all" into named capture groups. changed is false when the pattern
// has no placeholders.
func ConvertPlaceholders(pattern string) (converted string, changed bool) {
	converted = placeholder.ReplaceAllStringFunc(pattern, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		changed = true
		return sub[1] + "(?P<" + sub[2] + ">" + placeholderTypes[sub[3]] + ")"
	})
	return converted, changed
}

// normalizePath gives the request path a leading and trailing slash.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// normalizePattern strips explicit anchors and gives the pattern a leading
// and trailing slash. The empty pattern becomes "/", which as a leaf only
// matches the root path.
func normalizePattern(p string) string {
	p = strings.TrimPrefix(p, "^")
	if strings.HasSuffix(p, "$") && !strings.HasSuffix(p, `\$`) {
		p = strings.TrimSuffix(p, "$")
	}
	return normalizePath(p)
}

func joinPattern(prefix, p string) string {
	if prefix == "" {
		return normalizePattern(p)
	}
	p = strings.TrimPrefix(strings.TrimPrefix(p, "^"), "/")
	return normalizePattern(strings.TrimSuffix(prefix, "/") + "/" + p)
}

func countSegments(pattern string) int {
	trimmed := strings.Trim(pattern, "/")
	if trimmed == "" {
		return 0
	}
	n := 0
	for _, s := range strings.Split(trimmed, "/") {
		if s != "" {
			n++
		}
	}
	return n
}
