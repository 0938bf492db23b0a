// Package resources routes resource URIs to handlers through URI templates
package resources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/yosida95/uritemplate/v3"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/monitoring"
)

const defaultMIMEType = "text/plain"

// Content is the text produced by a resource read
type Content struct {
	URI      string
	MIMEType string
	Text     string
}

// Handler produces the content for a matched URI. params holds the decoded placeholder values.
type Handler func(ctx context.Context, uri string, params map[string]string) (*Content, error)

// Template is a registered URI template
type Template struct {
	URITemplate string
	Name        string
	Description string
	MIMEType    string
	// Params lists placeholder names in template order
	Params []string

	handler Handler
	tpl     *uritemplate.Template
	pattern *regexp.Regexp
}

// Static reports whether the template has no placeholders, i.e. names exactly one resource
func (t *Template) Static() bool {
	return len(t.Params) == 0
}

// Expand builds a concrete URI from placeholder values
func (t *Template) Expand(params map[string]string) (string, error) {
	values := uritemplate.Values{}
	for name, value := range params {
		values.Set(name, uritemplate.String(value))
	}
	return t.tpl.Expand(values)
}

// Tail reports whether the last placeholder ends the template and so binds the rest of the URI
func (t *Template) Tail() bool {
	return !t.Static() && strings.HasSuffix(t.URITemplate, "{"+t.Params[len(t.Params)-1]+"}")
}

func (t *Template) match(uri string) (map[string]string, bool, error) {
	m := t.pattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, false, nil
	}
	params := make(map[string]string, len(t.Params))
	for i, name := range t.Params {
		value, err := url.PathUnescape(m[i+1])
		if err != nil {
			return nil, true, customErrors.WrapResourceError(err, customErrors.KindInvalidArguments,
				fmt.Sprintf("invalid escape in %s", name))
		}
		params[name] = value
	}
	return params, true, nil
}

// Option customizes a template registration
type Option func(*Template)

// WithName sets the advertised name
func WithName(name string) Option {
	return func(t *Template) { t.Name = name }
}

// WithDescription sets the advertised description
func WithDescription(description string) Option {
	return func(t *Template) { t.Description = description }
}

// WithMIMEType sets the MIME type reported for reads
func WithMIMEType(mimeType string) Option {
	return func(t *Template) { t.MIMEType = mimeType }
}

var (
	expression = regexp.MustCompile(`\{([^{}]*)\}`)
	varName    = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// compile validates raw and builds its structural matcher: each placeholder binds one path
// segment, except a placeholder ending the template, which binds the remaining tail.
func compile(raw string) (*uritemplate.Template, *regexp.Regexp, []string, error) {
	tpl, err := uritemplate.New(raw)
	if err != nil {
		return nil, nil, nil, err
	}

	locs := expression.FindAllStringSubmatchIndex(raw, -1)
	seen := make(map[string]bool, len(locs))
	names := make([]string, 0, len(locs))

	var b strings.Builder
	b.WriteString("^")
	last := 0
	for i, loc := range locs {
		b.WriteString(regexp.QuoteMeta(raw[last:loc[0]]))
		name := raw[loc[2]:loc[3]]
		if !varName.MatchString(name) {
			return nil, nil, nil, fmt.Errorf("placeholder %q must be a simple {name} expression", name)
		}
		if seen[name] {
			return nil, nil, nil, fmt.Errorf("placeholder %q appears more than once", name)
		}
		seen[name] = true
		names = append(names, name)

		if i == len(locs)-1 && loc[1] == len(raw) {
			b.WriteString("(.+)")
		} else {
			b.WriteString("([^/]+)")
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(raw[last:]))
	b.WriteString("$")

	if len(tpl.Varnames()) != len(names) {
		return nil, nil, nil, fmt.Errorf("unsupported expression in %q", raw)
	}

	pattern, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, nil, err
	}
	return tpl, pattern, names, nil
}

// Router maps URIs to the first registered template that matches them
type Router struct {
	mu        sync.RWMutex
	templates []*Template
	logger    *logging.Logger
}

// NewRouter creates an empty router
func NewRouter(logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Router{logger: logger.WithName("resource-router")}
}

// RegisterTemplate adds a template. Templates are tried in registration order.
func (r *Router) RegisterTemplate(uriTemplate string, handler Handler, opts ...Option) error {
	if handler == nil {
		return customErrors.NewResourceErrorf(customErrors.KindInvalidArguments, "template %s has no handler", uriTemplate)
	}
	tpl, pattern, names, err := compile(uriTemplate)
	if err != nil {
		return customErrors.WrapResourceError(err, customErrors.KindInvalidArguments,
			fmt.Sprintf("invalid uri template %s", uriTemplate))
	}

	t := &Template{
		URITemplate: uriTemplate,
		Name:        uriTemplate,
		MIMEType:    defaultMIMEType,
		Params:      names,
		handler:     handler,
		tpl:         tpl,
		pattern:     pattern,
	}
	for _, opt := range opts {
		opt(t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.templates {
		if existing.URITemplate == uriTemplate {
			return customErrors.NewResourceErrorf(customErrors.KindInvalidArguments, "template %s already registered", uriTemplate)
		}
	}
	r.templates = append(r.templates, t)
	r.logger.DebugKV("Registered resource template", "template", uriTemplate, "params", names)
	return nil
}

// Templates returns the registered templates in registration order
func (r *Router) Templates() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Template(nil), r.templates...)
}

// Resolve finds the template for uri and extracts its placeholder values
func (r *Router) Resolve(uri string) (*Template, map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.templates {
		params, ok, err := t.match(uri)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			return t, params, nil
		}
	}
	return nil, nil, customErrors.NewResourceErrorf(customErrors.KindUnknownResource, "unknown resource %s", uri)
}

// Read resolves uri and runs its handler. Handler failures that are not typed become UpstreamError.
func (r *Router) Read(ctx context.Context, uri string) (content *Content, err error) {
	label := "unmatched"
	defer func() {
		monitoring.RecordResourceRead(label, err)
	}()

	t, params, err := r.Resolve(uri)
	if err != nil {
		return nil, err
	}
	label = t.URITemplate

	content, err = t.handler(ctx, uri, params)
	if err != nil {
		if customErrors.KindOf(err) == customErrors.KindUnknown {
			err = customErrors.WrapResourceError(err, customErrors.KindUpstream, fmt.Sprintf("failed to read %s", uri))
		}
		r.logger.DebugKV("Resource read failed", "uri", uri, "error", err)
		return nil, err
	}
	if content.URI == "" {
		content.URI = uri
	}
	if content.MIMEType == "" {
		content.MIMEType = t.MIMEType
	}
	return content, nil
}
