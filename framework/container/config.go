package container

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// Reserved configuration keys.
const (
	KeyProvider   = "service_provider"
	KeyFactory    = "service_factory"
	KeyRegisterAs = "register_service_as"
	KeyShared     = "register_service_shared"
)

// ServiceConfig is a named, read-only bag of options for one service.
// The service_provider key names the provider that implements it.
type ServiceConfig struct {
	name   string
	values map[string]any
}

// NewServiceConfig copies values into a new config.
//
//	cfg := container.NewServiceConfig("cache", map[string]any{
//	    "service_provider": "cache.redis",
//	    "addr":             "localhost:6379",
//	})
func NewServiceConfig(name string, values map[string]any) *ServiceConfig {
	return &ServiceConfig{name: name, values: maps.Clone(values)}
}

// Name returns the config section name.
func (c *ServiceConfig) Name() string { return c.name }

// Provider returns the provider key, or "".
func (c *ServiceConfig) Provider() string { return c.String(KeyProvider, "") }

// Factory returns the factory key, or "".
func (c *ServiceConfig) Factory() string { return c.String(KeyFactory, "") }

// Has reports whether key is set.
func (c *ServiceConfig) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Get returns the raw value for key.
func (c *ServiceConfig) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// All returns a copy of every option.
func (c *ServiceConfig) All() map[string]any { return maps.Clone(c.values) }

// Keys returns the option keys sorted.
func (c *ServiceConfig) Keys() []string {
	keys := slices.Collect(maps.Keys(c.values))
	slices.Sort(keys)
	return keys
}

// With returns a copy of the config with key set to value.
func (c *ServiceConfig) With(key string, value any) *ServiceConfig {
	values := maps.Clone(c.values)
	if values == nil {
		values = make(map[string]any, 1)
	}
	values[key] = value
	return &ServiceConfig{name: c.name, values: values}
}

// Strings returns every option rendered as a string, for validation.
func (c *ServiceConfig) Strings() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = stringify(v)
	}
	return out
}

// ── Typed getters ────────────────────────────────────────────────────────────

// String returns key as a string, or def when unset.
func (c *ServiceConfig) String(key, def string) string {
	v, ok := c.values[key]
	if !ok || v == nil {
		return def
	}
	return stringify(v)
}

// Int returns key as an int, or def when unset or not convertible.
func (c *ServiceConfig) Int(key string, def int) int {
	switch v := c.values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if out, ok := castString[int](v); ok {
			return out
		}
	}
	return def
}

// Float returns key as a float64, or def when unset or not convertible.
func (c *ServiceConfig) Float(key string, def float64) float64 {
	switch v := c.values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if out, ok := castString[float64](v); ok {
			return out
		}
	}
	return def
}

// Bool returns key as a bool, or def when unset or not convertible.
// "yes"/"no" and "on"/"off" are accepted as in INI files.
func (c *ServiceConfig) Bool(key string, def bool) bool {
	switch v := c.values[key].(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "on":
			return true
		case "no", "off", "":
			return false
		}
		if out, ok := castString[bool](v); ok {
			return out
		}
	}
	return def
}

// Duration returns key as a time.Duration. Strings are parsed with
// time.ParseDuration, bare numbers are seconds.
func (c *ServiceConfig) Duration(key string, def time.Duration) time.Duration {
	switch v := c.values[key].(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, ok := castString[float64](v); ok {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return def
}

// List returns key as a string slice. Arrays are converted element by
// element; a string is split on commas.
func (c *ServiceConfig) List(key string, def []string) []string {
	switch v := c.values[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		return out
	case string:
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return def
}

func castString[T any](s string) (T, bool) {
	var zero T
	v, err := cast.FromType(strings.TrimSpace(s), reflect.TypeOf(zero))
	if err != nil {
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any, []string:
		return strings.Trim(fmt.Sprint(t), "[]")
	default:
		return fmt.Sprint(t)
	}
}
