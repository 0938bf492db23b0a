// Package aggregator connects to several MCP hosts and exposes their tools as one catalog.
// Each backend gets its own Session; invocations are routed back to the Session that
// advertised the tool.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/monitoring"
	"github.com/YongpengFu/mcp-server/internal/observability"
	"github.com/YongpengFu/mcp-server/internal/session"
	"github.com/YongpengFu/mcp-server/internal/transport"
)

// Dialer opens the channel to one backend
type Dialer func(ctx context.Context, name string, cfg config.MCPServerConfig) (transport.Channel, error)

// Options configures an Aggregator
type Options struct {
	// RequireAll fails ConnectAll as soon as one backend cannot be brought up
	RequireAll         bool
	CollisionPolicy    string
	NamespaceSeparator string
	CallTimeout        time.Duration
	ClientName         string
	ClientVersion      string
	Transport          transport.Options
	// Dialer overrides how channels are opened; nil uses transport.Open
	Dialer Dialer
	Logger *logging.Logger
	Tracer observability.TracingHandler
}

// OptionsFromConfig derives aggregator options from the loaded configuration
func OptionsFromConfig(cfg *config.Config, logger *logging.Logger) Options {
	return Options{
		RequireAll:         cfg.Aggregator.RequireAll,
		CollisionPolicy:    cfg.Aggregator.CollisionPolicy,
		NamespaceSeparator: cfg.Aggregator.NamespaceSeparator,
		CallTimeout:        cfg.Timeouts.GetCallTimeout(),
		ClientName:         cfg.Observability.ServiceName,
		ClientVersion:      cfg.Host.Version,
		Transport: transport.Options{
			ReceiveTimeout:   cfg.Timeouts.GetReceiveTimeout(),
			CloseGracePeriod: cfg.Timeouts.GetCloseGracePeriod(),
			Logger:           logger,
		},
		Logger: logger,
		Tracer: observability.NewTracingHandler(cfg, logger),
	}
}

// Aggregator owns one Session per backend and the merged tool catalog
type Aggregator struct {
	opts   Options
	logger *logging.Logger
	tracer observability.TracingHandler
	dial   Dialer

	mu       sync.RWMutex
	servers  map[string]config.MCPServerConfig
	sessions map[string]*session.Session
	catalog  *Catalog
	failures map[string]error
	closed   bool
}

// New creates an Aggregator with no backends configured
func New(opts Options) *Aggregator {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.CollisionPolicy == "" {
		opts.CollisionPolicy = config.CollisionReject
	}
	if opts.NamespaceSeparator == "" {
		opts.NamespaceSeparator = config.DefaultNamespaceSeparator
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = config.DefaultCallTimeout
	}
	logger := opts.Logger.WithName("aggregator")
	if opts.Tracer == nil {
		opts.Tracer = observability.NewDisabledProvider(logger)
	}
	if opts.Transport.Logger == nil {
		opts.Transport.Logger = opts.Logger
	}

	a := &Aggregator{
		opts:     opts,
		logger:   logger,
		tracer:   opts.Tracer,
		dial:     opts.Dialer,
		servers:  make(map[string]config.MCPServerConfig),
		failures: make(map[string]error),
		catalog:  newCatalog(),
	}
	if a.dial == nil {
		a.dial = func(ctx context.Context, name string, cfg config.MCPServerConfig) (transport.Channel, error) {
			return transport.Open(ctx, name, cfg, opts.Transport)
		}
	}
	return a
}

// Configure replaces the backend set. Disabled entries are kept but never dialed.
// It must be called before ConnectAll.
func (a *Aggregator) Configure(servers map[string]config.MCPServerConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sessions != nil {
		return customErrors.NewAggregatorError(customErrors.KindInvalidConfig, "cannot reconfigure a connected aggregator")
	}
	switch a.opts.CollisionPolicy {
	case config.CollisionReject, config.CollisionNamespace:
	default:
		return customErrors.NewAggregatorErrorf(customErrors.KindInvalidConfig, "unknown collision policy %q", a.opts.CollisionPolicy)
	}

	next := make(map[string]config.MCPServerConfig, len(servers))
	for name, server := range servers {
		if strings.TrimSpace(name) == "" {
			return customErrors.NewAggregatorError(customErrors.KindInvalidConfig, "server name must not be empty")
		}
		if !server.Disabled && a.opts.Dialer == nil {
			if err := config.ValidateServer(name, &server); err != nil {
				return err
			}
		}
		next[name] = server
	}
	a.servers = next
	return nil
}

// connectResult is the outcome of bringing up one backend
type connectResult struct {
	name    string
	session *session.Session
	err     error
}

// ConnectAll opens and initializes every enabled backend concurrently and merges their tools.
// A backend that fails is recorded in Failures and left out of the catalog, unless
// RequireAll is set, in which case the first failure cancels the other connects and is returned.
func (a *Aggregator) ConnectAll(ctx context.Context) (*Catalog, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, customErrors.NewAggregatorError(customErrors.KindTransportClosed, "aggregator closed")
	}
	if a.sessions != nil {
		a.mu.Unlock()
		return nil, customErrors.NewAggregatorError(customErrors.KindInvalidConfig, "aggregator already connected")
	}
	names := make([]string, 0, len(a.servers))
	for name, server := range a.servers {
		if server.Disabled {
			a.logger.InfoKV("Skipping disabled server", "server", name)
			continue
		}
		names = append(names, name)
	}
	servers := a.servers
	a.mu.Unlock()
	sort.Strings(names)

	results := make([]connectResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			sess, err := a.connect(gctx, name, servers[name])
			results[i] = connectResult{name: name, session: sess, err: err}
			if err != nil && a.opts.RequireAll {
				return err
			}
			return nil
		})
	}
	waitErr := g.Wait()

	sessions := make(map[string]*session.Session)
	failures := make(map[string]error)
	for _, res := range results {
		if res.err != nil {
			failures[res.name] = res.err
			monitoring.RecordConnectFailure(res.name)
			a.logger.WarnKV("Backend failed to connect", "server", res.name, "error", res.err)
			continue
		}
		if res.session != nil {
			sessions[res.name] = res.session
		}
	}

	if waitErr != nil {
		closeSessions(sessions)
		a.recordFailures(failures)
		return nil, waitErr
	}

	catalog, err := a.merge(sessions, servers)
	if err != nil {
		closeSessions(sessions)
		a.recordFailures(failures)
		return nil, err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		closeSessions(sessions)
		return nil, customErrors.NewAggregatorError(customErrors.KindTransportClosed, "aggregator closed")
	}
	a.sessions = sessions
	a.catalog = catalog
	a.failures = failures
	a.mu.Unlock()

	monitoring.ConnectedServers.Set(float64(len(sessions)))
	if len(sessions) == 0 && len(names) > 0 {
		a.logger.Warn("No backend could be connected; the catalog is empty")
	}
	a.logger.InfoKV("Aggregated tool catalog", "servers", len(sessions), "failed", len(failures), "tools", catalog.Len())
	return catalog, nil
}

func (a *Aggregator) recordFailures(failures map[string]error) {
	a.mu.Lock()
	a.failures = failures
	a.mu.Unlock()
}

// connect dials one backend and runs its handshake within the backend's initialize timeout
func (a *Aggregator) connect(ctx context.Context, name string, cfg config.MCPServerConfig) (*session.Session, error) {
	initCtx, cancel := context.WithTimeout(ctx, cfg.GetInitializeTimeout())
	defer cancel()

	logger := a.logger.WithName(name)
	logger.InfoKV("Connecting to backend", "transport", cfg.GetTransport())

	ch, err := a.dial(initCtx, name, cfg)
	if err != nil {
		return nil, connectError(name, "failed to open channel", err)
	}

	sess := session.New(name, ch, session.Options{
		CallTimeout:   a.opts.CallTimeout,
		ClientName:    a.opts.ClientName,
		ClientVersion: a.opts.ClientVersion,
		Logger:        logger,
		Tracer:        a.tracer,
	})
	manifest, err := sess.Initialize(initCtx)
	if err != nil {
		_ = sess.Close()
		return nil, connectError(name, "initialize failed", err)
	}

	logger.InfoKV("Backend initialized", "server_name", manifest.ServerInfo.Name, "tools", len(manifest.Tools),
		"resource_templates", len(manifest.ResourceTemplates))
	return sess, nil
}

// connectError keeps the kind of a typed cause and classifies plain errors
func connectError(name, message string, err error) error {
	kind := customErrors.KindOf(err)
	if kind == customErrors.KindUnknown {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			kind = customErrors.KindCancelled
		default:
			kind = customErrors.KindTransportClosed
		}
	}
	return customErrors.WrapAggregatorError(err, kind, fmt.Sprintf("server %s: %s", name, message)).
		WithData("server", name)
}

// merge builds the catalog from the connected sessions.
// Servers are visited in name order so the result does not depend on connect timing.
func (a *Aggregator) merge(sessions map[string]*session.Session, servers map[string]config.MCPServerConfig) (*Catalog, error) {
	names := make([]string, 0, len(sessions))
	for name := range sessions {
		names = append(names, name)
	}
	sort.Strings(names)

	owners := make(map[string][]string)
	offered := make(map[string][]mcp.Tool)
	for _, name := range names {
		filter := servers[name].Tools
		for _, tool := range sessions[name].Manifest().Tools {
			if !filter.Allowed(tool.Name) {
				a.logger.DebugKV("Tool filtered out", "server", name, "tool", tool.Name)
				continue
			}
			owners[tool.Name] = append(owners[tool.Name], name)
			offered[name] = append(offered[name], tool)
		}
	}

	catalog := newCatalog()
	for _, name := range names {
		for _, tool := range offered[name] {
			public := tool.Name
			if others := owners[tool.Name]; len(others) > 1 {
				if a.opts.CollisionPolicy != config.CollisionNamespace {
					return nil, customErrors.NewAggregatorErrorf(customErrors.KindDuplicateTool,
						"tool %q is advertised by servers %s", tool.Name, strings.Join(others, ", ")).
						WithData("tool", tool.Name).
						WithData("servers", others)
				}
				public = name + a.opts.NamespaceSeparator + tool.Name
			}
			if existing, ok := catalog.entries[public]; ok {
				return nil, customErrors.NewAggregatorErrorf(customErrors.KindDuplicateTool,
					"tool name %q from server %s collides with %s", public, name, existing.Server).
					WithData("tool", public).
					WithData("servers", []string{existing.Server, name})
			}
			catalog.add(Tool{Name: public, Server: name, RemoteName: tool.Name, Definition: tool})
		}
	}
	return catalog, nil
}

// Invoke routes a call to the backend that owns name. The backend's result or error is
// returned unchanged; nothing is retried.
func (a *Aggregator) Invoke(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	a.mu.RLock()
	closed := a.closed
	entry, ok := a.catalog.Lookup(name)
	var sess *session.Session
	if ok {
		sess = a.sessions[entry.Server]
	}
	a.mu.RUnlock()

	if closed {
		return nil, customErrors.NewAggregatorError(customErrors.KindTransportClosed, "aggregator closed")
	}
	if !ok || sess == nil {
		monitoring.RecordToolInvocation(name, "", string(customErrors.KindUnknownTool), 0)
		return nil, customErrors.NewAggregatorErrorf(customErrors.KindUnknownTool, "unknown tool %q", name).
			WithData("tool", name)
	}

	invocationID := uuid.NewString()
	input, _ := json.Marshal(args)
	ctx, span := a.tracer.StartSpan(ctx, "aggregator.invoke", observability.SpanTypeTool, string(input), map[string]string{
		"invocation.id": invocationID,
		"tool.name":     name,
		"server.name":   entry.Server,
	})
	defer span.End()

	logger := a.logger.With("invocation_id", invocationID, "tool", name, "server", entry.Server)
	logger.Debug("Routing tool call")

	start := time.Now()
	result, err := sess.Call(ctx, entry.RemoteName, args)
	elapsed := time.Since(start)
	a.tracer.SetDuration(span, elapsed)

	monitoring.RecordToolInvocation(name, entry.Server, string(customErrors.KindOf(err)), elapsed)
	if err != nil {
		a.tracer.RecordError(span, err, "ERROR")
		logger.WarnKV("Tool call failed", "error", err, "elapsed", elapsed)
		return nil, err
	}
	a.tracer.SetOutput(span, session.ResultText(result))
	a.tracer.RecordSuccess(span, "tool call completed")
	return result, nil
}

// ReadResource reads uri from the named backend
func (a *Aggregator) ReadResource(ctx context.Context, server, uri string) (*session.Content, error) {
	sess, err := a.session(server)
	if err != nil {
		return nil, err
	}
	return sess.ReadResource(ctx, uri)
}

// GetPrompt renders a prompt advertised by the named backend
func (a *Aggregator) GetPrompt(ctx context.Context, server, name string, args map[string]string) ([]session.PromptMessage, error) {
	sess, err := a.session(server)
	if err != nil {
		return nil, err
	}
	return sess.GetPrompt(ctx, name, args)
}

func (a *Aggregator) session(server string) (*session.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, customErrors.NewAggregatorError(customErrors.KindTransportClosed, "aggregator closed")
	}
	sess, ok := a.sessions[server]
	if !ok {
		return nil, customErrors.NewAggregatorErrorf(customErrors.KindUnknownResource, "no connected server %q", server).
			WithData("server", server)
	}
	return sess, nil
}

// Catalog returns the current merged catalog
func (a *Aggregator) Catalog() *Catalog {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.catalog
}

// Tools returns the merged tools sorted by public name
func (a *Aggregator) Tools() []Tool {
	return a.Catalog().Tools()
}

// Resources lists the resource templates and static resources of every connected backend
func (a *Aggregator) Resources() []Resource {
	a.mu.RLock()
	names := make([]string, 0, len(a.sessions))
	for name := range a.sessions {
		names = append(names, name)
	}
	sessions := a.sessions
	a.mu.RUnlock()
	sort.Strings(names)

	var out []Resource
	for _, name := range names {
		manifest := sessions[name].Manifest()
		if manifest == nil {
			continue
		}
		for _, tpl := range manifest.ResourceTemplates {
			raw := ""
			if tpl.URITemplate != nil && tpl.URITemplate.Template != nil {
				raw = tpl.URITemplate.Raw()
			}
			out = append(out, Resource{Server: name, URI: raw, Name: tpl.Name, Description: tpl.Description, Template: true})
		}
		for _, res := range manifest.Resources {
			out = append(out, Resource{Server: name, URI: res.URI, Name: res.Name, Description: res.Description})
		}
	}
	return out
}

// Failures returns the backends that could not be connected and why
func (a *Aggregator) Failures() map[string]error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]error, len(a.failures))
	for name, err := range a.failures {
		out[name] = err
	}
	return out
}

// Servers returns the names of the connected backends
func (a *Aggregator) Servers() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.sessions))
	for name := range a.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down every session. Calls in flight fail with Cancelled.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	sessions := a.sessions
	a.sessions = nil
	a.catalog = newCatalog()
	a.mu.Unlock()

	monitoring.ConnectedServers.Set(0)
	return closeSessions(sessions)
}

func closeSessions(sessions map[string]*session.Session) error {
	var errs []error
	for name, sess := range sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
