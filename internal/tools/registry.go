// Package tools holds the tool registry of a host: named operations with an input schema,
// executed under a timeout with their failures mapped onto typed errors.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/monitoring"
)

// timeoutGrace is how long a handler may take to report its own failure once its deadline passes
const timeoutGrace = time.Second

// HandlerFunc executes a tool with validated arguments
type HandlerFunc func(ctx context.Context, args Args) (*mcp.CallToolResult, error)

// Registration is one registered tool
type Registration struct {
	Name        string
	Description string
	Schema      *Schema
	Timeout     time.Duration

	handler  HandlerFunc
	compiled *jsonschema.Schema
}

// Tool returns the descriptor advertised for the registration
func (r *Registration) Tool() mcp.Tool {
	return mcp.Tool{
		Name:        r.Name,
		Description: r.Description,
		InputSchema: r.Schema.InputSchema(),
	}
}

// Option customizes a registration
type Option func(*Registration)

// WithTimeout overrides the registry's default timeout for one tool
func WithTimeout(d time.Duration) Option {
	return func(r *Registration) {
		if d > 0 {
			r.Timeout = d
		}
	}
}

// Registry manages the tools of one host
type Registry struct {
	mu             sync.RWMutex
	tools          map[string]*Registration
	order          []string
	server         string
	defaultTimeout time.Duration
	logger         *logging.Logger
}

// NewRegistry creates an empty registry. server labels the metrics it records.
func NewRegistry(server string, defaultTimeout time.Duration, logger *logging.Logger) *Registry {
	if defaultTimeout <= 0 {
		defaultTimeout = config.DefaultToolTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		tools:          make(map[string]*Registration),
		server:         server,
		defaultTimeout: defaultTimeout,
		logger:         logger.WithName("tool-registry"),
	}
}

// Register adds a tool. Registering a name twice fails with DuplicateTool.
func (r *Registry) Register(name, description string, schema *Schema, handler HandlerFunc, opts ...Option) error {
	if name == "" {
		return customErrors.NewToolError(customErrors.KindInvalidArguments, "tool name must not be empty")
	}
	if handler == nil {
		return customErrors.NewToolErrorf(customErrors.KindInvalidArguments, "tool %s has no handler", name)
	}
	if schema == nil {
		schema = Object()
	}

	reg := &Registration{
		Name:        name,
		Description: description,
		Schema:      schema,
		Timeout:     r.defaultTimeout,
		handler:     handler,
	}
	for _, opt := range opts {
		opt(reg)
	}

	compiled, err := compileSchema(name, schema)
	if err != nil {
		return customErrors.WrapToolError(err, customErrors.KindInvalidArguments,
			fmt.Sprintf("invalid input schema for tool %s", name))
	}
	reg.compiled = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return customErrors.NewToolErrorf(customErrors.KindDuplicateTool, "tool %s already registered", name)
	}
	r.tools[name] = reg
	r.order = append(r.order, name)
	r.logger.DebugKV("Registered tool", "tool", name, "timeout", reg.Timeout)
	return nil
}

func compileSchema(name string, schema *Schema) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("tool-%s.json", name)
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// Get returns the registration for name
func (r *Registry) Get(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// List returns the registrations in registration order
func (r *Registry) List() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Registration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Invoke validates args against the tool's schema and runs its handler under the tool timeout.
// Every failure is a typed error; an unknown tool never reaches a handler.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (result *mcp.CallToolResult, err error) {
	start := time.Now()
	defer func() {
		monitoring.RecordToolInvocation(name, r.server, string(customErrors.KindOf(err)), time.Since(start))
	}()

	reg, ok := r.Get(name)
	if !ok {
		return nil, customErrors.NewToolErrorf(customErrors.KindUnknownTool, "unknown tool %s", name)
	}

	normalized, err := normalize(args)
	if err != nil {
		return nil, customErrors.WrapToolError(err, customErrors.KindInvalidArguments,
			fmt.Sprintf("invalid arguments for %s", name))
	}
	if err := reg.compiled.Validate(normalized); err != nil {
		return nil, customErrors.NewToolError(customErrors.KindInvalidArguments,
			fmt.Sprintf("invalid arguments for %s: %s", name, validationMessage(err)))
	}

	r.logger.DebugKV("Invoking tool", "tool", name)
	return r.run(ctx, reg, Args(normalized.(map[string]interface{})))
}

type outcome struct {
	result *mcp.CallToolResult
	err    error
}

func (r *Registry) run(parent context.Context, reg *Registration, args Args) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(parent, reg.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.ErrorKV("Tool handler panicked", "tool", reg.Name, "panic", p, "stack", string(debug.Stack()))
				done <- outcome{err: customErrors.NewToolErrorf(customErrors.KindToolExecution,
					"tool %s panicked: %v", reg.Name, p)}
			}
		}()
		res, err := reg.handler(ctx, args)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		return finish(reg.Name, out)
	case <-ctx.Done():
	}

	if parent.Err() != nil {
		return nil, customErrors.WrapToolError(parent.Err(), customErrors.KindCancelled,
			fmt.Sprintf("tool %s cancelled", reg.Name))
	}

	select {
	case out := <-done:
		if out.err != nil && customErrors.KindOf(out.err) != customErrors.KindUnknown {
			return nil, out.err
		}
	case <-time.After(timeoutGrace):
	}
	r.logger.WarnKV("Tool timed out", "tool", reg.Name, "timeout", reg.Timeout)
	return nil, customErrors.NewToolErrorf(customErrors.KindToolExecution,
		"tool %s timed out after %s", reg.Name, reg.Timeout).WithData("tool", reg.Name)
}

func finish(name string, out outcome) (*mcp.CallToolResult, error) {
	if out.err != nil {
		if customErrors.KindOf(out.err) != customErrors.KindUnknown {
			return nil, out.err
		}
		return nil, customErrors.WrapToolError(out.err, customErrors.KindToolExecution,
			fmt.Sprintf("tool %s failed", name))
	}
	if out.result == nil {
		return Text(""), nil
	}
	return out.result, nil
}

// normalize round-trips args through JSON so the validator and handlers see one representation
func normalize(args map[string]interface{}) (interface{}, error) {
	if args == nil {
		return map[string]interface{}{}, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// validationMessage flattens a validator error into its leaf messages
func validationMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var parts []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			parts = append(parts, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(parts, "; ")
}

// Text builds a successful text result
func Text(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}
