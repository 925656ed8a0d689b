package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/km-arc/cubex/framework/routing"
	"github.com/km-arc/cubex/framework/validation"
)

// PathParam is the query parameter that overrides the request path, as set
// by web-server rewrites (/app?__path__=/users/1 style).
const PathParam = "__path__"

const maxMemory = 32 << 20 // 32 MB

// ErrEmptyBody is returned by Bind for JSON requests without a body.
var ErrEmptyBody = errors.New("empty request body")

// Request wraps *http.Request with input and route helpers.
type Request struct {
	raw *http.Request
}

// NewRequest wraps a standard *http.Request.
func NewRequest(r *http.Request) *Request {
	return &Request{raw: r}
}

// Raw returns the underlying *http.Request.
func (req *Request) Raw() *http.Request { return req.raw }

// ── Routing ──────────────────────────────────────────────────────────────────

// RoutePath returns the path used for route matching: the __path__ query
// parameter when present, else the URL path.
func RoutePath(r *http.Request) string {
	if p := r.URL.Query().Get(PathParam); p != "" {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		return p
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// Path returns the path used for route matching.
func (req *Request) Path() string { return RoutePath(req.raw) }

// Route returns the matched route, or nil outside a dispatched request.
func (req *Request) Route() *routing.Route {
	r, _ := routing.FromContext(req.raw.Context())
	return r
}

// RouteParam returns a named capture of the matched route, falling back to
// chi URL params for handlers mounted directly on chi.
func (req *Request) RouteParam(key string) string {
	if v := routing.Param(req.raw, key); v != "" {
		return v
	}
	return chi.URLParam(req.raw, key)
}

// ── Binding ──────────────────────────────────────────────────────────────────

// Bind decodes the request body into v: JSON bodies via `json` tags, form
// and multipart bodies field by field through the same tags.
func (req *Request) Bind(v any) error {
	ct := req.ContentType()

	switch {
	case strings.Contains(ct, "application/json"):
		defer req.raw.Body.Close()
		body, err := io.ReadAll(req.raw.Body)
		if err != nil {
			return err
		}
		if len(body) == 0 {
			return ErrEmptyBody
		}
		return json.Unmarshal(body, v)
	case strings.Contains(ct, "multipart/form-data"):
		if err := req.raw.ParseMultipartForm(maxMemory); err != nil {
			return err
		}
		return bindForm(req.raw.MultipartForm.Value, v)
	default:
		if err := req.raw.ParseForm(); err != nil {
			return err
		}
		return bindForm(req.raw.PostForm, v)
	}
}

func bindForm(values map[string][]string, v any) error {
	m := make(map[string]any, len(values))
	for k, vals := range values {
		if len(vals) == 1 {
			m[k] = vals[0]
		} else {
			m[k] = vals
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// ── Input ────────────────────────────────────────────────────────────────────

// Input returns a query or body value. The __path__ override is not input.
func (req *Request) Input(key string, fallback ...string) string {
	if key == PathParam {
		return first(fallback, "")
	}
	_ = req.raw.ParseForm()
	v := req.raw.FormValue(key)
	if v == "" {
		return first(fallback, "")
	}
	return v
}

// Query returns a query-string value.
func (req *Request) Query(key string, fallback ...string) string {
	v := req.raw.URL.Query().Get(key)
	if v == "" {
		return first(fallback, "")
	}
	return v
}

// All returns all input as a flat map (query + post).
func (req *Request) All() map[string]string {
	_ = req.raw.ParseForm()
	out := make(map[string]string, len(req.raw.Form))
	for k, v := range req.raw.Form {
		if len(v) > 0 && k != PathParam {
			out[k] = v[0]
		}
	}
	return out
}

// Has reports whether key is present and non-empty.
func (req *Request) Has(key string) bool {
	return req.Input(key) != ""
}

// Validate checks All() against rules.
//
//	if err := req.Validate(validation.Rules{"page": "integer|min:1"}); err != nil { ... }
func (req *Request) Validate(rules validation.Rules) error {
	return validation.Validate(req.All(), rules)
}

// ── Headers ──────────────────────────────────────────────────────────────────

// Header returns a request header value.
func (req *Request) Header(key string) string {
	return req.raw.Header.Get(key)
}

// BearerToken extracts the token from Authorization: Bearer <token>.
func (req *Request) BearerToken() string {
	auth := req.raw.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

// IP returns the client IP (respects RealIP middleware).
func (req *Request) IP() string {
	return req.raw.RemoteAddr
}

// Method returns the HTTP method.
func (req *Request) Method() string { return req.raw.Method }

// ContentType returns the Content-Type header value.
func (req *Request) ContentType() string {
	return req.raw.Header.Get("Content-Type")
}

// IsJSON reports whether the request sends or expects JSON.
func (req *Request) IsJSON() bool {
	return strings.Contains(req.raw.Header.Get("Accept"), "application/json") ||
		strings.Contains(req.ContentType(), "application/json")
}
