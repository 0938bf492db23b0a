// Package host serves a tool registry, a resource router and prompts over MCP
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	mcpServer "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/prompts"
	"github.com/YongpengFu/mcp-server/internal/resources"
	"github.com/YongpengFu/mcp-server/internal/tools"
)

const defaultShutdownTimeout = 10 * time.Second

// Server exposes one host's tools, resources and prompts
type Server struct {
	name    string
	logger  *logging.Logger
	tools   *tools.Registry
	router  *resources.Router
	prompts *prompts.Registry
	mcp     *mcpServer.MCPServer
	sse     *mcpServer.SSEServer
}

// NewServer creates the MCP server and registers everything currently in the registries.
// router and prompts may be nil.
func NewServer(name, version string, registry *tools.Registry, router *resources.Router, promptRegistry *prompts.Registry, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if router == nil {
		router = resources.NewRouter(logger)
	}
	if promptRegistry == nil {
		promptRegistry = prompts.NewRegistry()
	}

	opts := []mcpServer.ServerOption{
		mcpServer.WithToolCapabilities(false),
		mcpServer.WithLogging(),
		mcpServer.WithRecovery(),
	}
	if len(router.Templates()) > 0 {
		opts = append(opts, mcpServer.WithResourceCapabilities(false, false))
	}
	if len(promptRegistry.List()) > 0 {
		opts = append(opts, mcpServer.WithPromptCapabilities(false))
	}

	s := &Server{
		name:    name,
		logger:  logger.WithName("host"),
		tools:   registry,
		router:  router,
		prompts: promptRegistry,
		mcp:     mcpServer.NewMCPServer(name, version, opts...),
	}
	s.registerTools()
	s.registerResources()
	s.registerPrompts()
	s.sse = mcpServer.NewSSEServer(s.mcp)
	return s
}

// MCP returns the underlying server, e.g. to embed it behind an in-process channel
func (s *Server) MCP() *mcpServer.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	for _, reg := range s.tools.List() {
		name := reg.Name
		s.mcp.AddTool(reg.Tool(), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := any(req.Params.Arguments).(map[string]any)
			result, err := s.tools.Invoke(ctx, name, args)
			if err != nil {
				s.logger.DebugKV("Tool call failed", "tool", name, "error", err)
				return mcp.NewToolResultError(err.Error()), nil
			}
			return result, nil
		})
		s.logger.InfoKV("Registered MCP tool", "tool", name)
	}
}

func (s *Server) registerResources() {
	read := func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		content, err := s.router.Read(ctx, req.Params.URI)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      content.URI,
			MIMEType: content.MIMEType,
			Text:     content.Text,
		}}, nil
	}

	for _, t := range s.router.Templates() {
		if t.Static() {
			s.mcp.AddResource(mcp.NewResource(t.URITemplate, t.Name,
				mcp.WithResourceDescription(t.Description),
				mcp.WithMIMEType(t.MIMEType)), read)
		} else {
			s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(wireTemplate(t), t.Name,
				mcp.WithTemplateDescription(t.Description),
				mcp.WithTemplateMIMEType(t.MIMEType)), read)
		}
		s.logger.InfoKV("Registered MCP resource", "template", t.URITemplate)
	}
}

// wireTemplate turns a trailing {name} into {+name} so the server's own matcher
// lets the tail through to the router, which applies the real matching rules
func wireTemplate(t *resources.Template) string {
	if !t.Tail() {
		return t.URITemplate
	}
	last := t.Params[len(t.Params)-1]
	return strings.TrimSuffix(t.URITemplate, "{"+last+"}") + "{+" + last + "}"
}

func (s *Server) registerPrompts() {
	for _, p := range s.prompts.List() {
		name, description := p.Name, p.Description
		opts := []mcp.PromptOption{mcp.WithPromptDescription(description)}
		for _, arg := range p.Arguments {
			argOpts := []mcp.ArgumentOption{mcp.ArgumentDescription(arg.Description)}
			if arg.Required {
				argOpts = append(argOpts, mcp.RequiredArgument())
			}
			opts = append(opts, mcp.WithArgument(arg.Name, argOpts...))
		}

		s.mcp.AddPrompt(mcp.NewPrompt(name, opts...), func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			msgs, err := s.prompts.Render(ctx, name, req.Params.Arguments)
			if err != nil {
				return nil, err
			}
			out := make([]mcp.PromptMessage, 0, len(msgs))
			for _, m := range msgs {
				out = append(out, mcp.NewPromptMessage(mcp.Role(m.Role), mcp.NewTextContent(m.Text)))
			}
			return mcp.NewGetPromptResult(description, out), nil
		})
		s.logger.InfoKV("Registered MCP prompt", "prompt", name)
	}
}

// ServeStdio serves newline-delimited JSON-RPC on in/out until ctx ends or in closes
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpServer.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(s.logger.StdLogger())
	s.logger.InfoKV("Serving MCP over stdio", "server", s.name)

	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Handler returns the HTTP surface: the SSE stream and message endpoint, /health and /metrics
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger.StdLogger(), NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","server":%q}`, s.name)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/sse", s.sse)
	r.Handle("/message", s.sse)
	return r
}

// ServeSSE serves the HTTP surface on listenAddr and blocks until ctx ends or the listener fails
func (s *Server) ServeSSE(ctx context.Context, listenAddr string) error {
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.InfoKV("Serving MCP over SSE", "server", s.name, "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("failed to start MCP HTTP server: %w", err)
			return
		}
		errChan <- nil
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, shutting down MCP HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		// open event streams would hold Shutdown until its deadline
		if err := s.sse.Shutdown(shutdownCtx); err != nil {
			s.logger.WarnKV("SSE server shutdown error", "error", err)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mcp server shutdown failed: %w", err)
		}
		return <-errChan
	case err := <-errChan:
		return err
	}
}
