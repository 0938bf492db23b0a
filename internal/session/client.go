package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/observability"
)

// maxListPages guards against a host that never stops paginating
const maxListPages = 100

// Manifest is the capability set a host advertised during initialization
type Manifest struct {
	ServerInfo        mcp.Implementation
	ProtocolVersion   string
	Instructions      string
	Tools             []mcp.Tool
	ResourceTemplates []mcp.ResourceTemplate
	Resources         []mcp.Resource
	Prompts           []mcp.Prompt
}

// Tool looks up an advertised tool by name
func (m *Manifest) Tool(name string) (mcp.Tool, bool) {
	for _, tool := range m.Tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return mcp.Tool{}, false
}

// Content is the decoded result of a resource read
type Content struct {
	URI      string
	MIMEType string
	Text     string
	Encoding string
}

// PromptMessage is one rendered prompt message
type PromptMessage struct {
	Role string
	Text string
}

// Initialize performs the handshake and fetches the capability manifest.
// It may run once per session; other requests before it completes are rejected.
func (s *Session) Initialize(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	if s.initStarted {
		s.mu.Unlock()
		return nil, customErrors.NewSessionError(customErrors.KindProtocolViolation, "session already initialized")
	}
	s.initStarted = true
	s.mu.Unlock()

	result, rpcErr, err := s.request(ctx, MethodInitialize, map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    s.opts.ClientName,
			"version": s.opts.ClientVersion,
		},
	})
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, decodeRPCError(rpcErr, MethodInitialize, customErrors.KindProtocolViolation)
	}

	var init mcp.InitializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		return nil, customErrors.WrapSessionError(err, customErrors.KindProtocolViolation, "invalid initialize result")
	}

	if err := s.notify(ctx, NotificationInitialized, nil); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		ServerInfo:      init.ServerInfo,
		ProtocolVersion: init.ProtocolVersion,
		Instructions:    init.Instructions,
	}

	if init.Capabilities.Tools != nil {
		if manifest.Tools, err = s.listTools(ctx); err != nil {
			return nil, err
		}
	}
	if init.Capabilities.Resources != nil {
		if manifest.ResourceTemplates, manifest.Resources, err = s.listResources(ctx); err != nil {
			return nil, err
		}
	}
	if init.Capabilities.Prompts != nil {
		if manifest.Prompts, err = s.listPrompts(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.manifest = manifest
	s.mu.Unlock()

	s.logger.InfoKV("Session initialized",
		"serverName", init.ServerInfo.Name,
		"protocolVersion", init.ProtocolVersion,
		"tools", len(manifest.Tools),
		"resourceTemplates", len(manifest.ResourceTemplates),
		"resources", len(manifest.Resources),
		"prompts", len(manifest.Prompts))
	return manifest, nil
}

// Manifest returns the manifest captured by Initialize, or nil before it completes
func (s *Session) Manifest() *Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest
}

func (s *Session) ready() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, s.closeErr
	}
	if s.manifest == nil {
		return nil, customErrors.NewSessionError(customErrors.KindProtocolViolation, "session not initialized")
	}
	return s.manifest, nil
}

// list fetches every page of a paginated list method
func (s *Session) list(ctx context.Context, method string, page func(json.RawMessage) (mcp.Cursor, error)) error {
	var cursor mcp.Cursor
	for i := 0; i < maxListPages; i++ {
		var params interface{}
		if cursor != "" {
			params = map[string]interface{}{"cursor": cursor}
		}
		result, rpcErr, err := s.request(ctx, method, params)
		if err != nil {
			return err
		}
		if rpcErr != nil {
			return decodeRPCError(rpcErr, method, customErrors.KindProtocolViolation)
		}
		next, err := page(result)
		if err != nil {
			return customErrors.WrapSessionError(err, customErrors.KindProtocolViolation, fmt.Sprintf("invalid %s result", method))
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
	return customErrors.NewSessionError(customErrors.KindProtocolViolation, fmt.Sprintf("%s did not finish after %d pages", method, maxListPages))
}

func (s *Session) listTools(ctx context.Context) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	err := s.list(ctx, MethodToolsList, func(raw json.RawMessage) (mcp.Cursor, error) {
		var res mcp.ListToolsResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", err
		}
		tools = append(tools, res.Tools...)
		return res.NextCursor, nil
	})
	return tools, err
}

func (s *Session) listResources(ctx context.Context) ([]mcp.ResourceTemplate, []mcp.Resource, error) {
	var templates []mcp.ResourceTemplate
	err := s.list(ctx, MethodResourceTemplatesList, func(raw json.RawMessage) (mcp.Cursor, error) {
		var res mcp.ListResourceTemplatesResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", err
		}
		templates = append(templates, res.ResourceTemplates...)
		return res.NextCursor, nil
	})
	if err != nil {
		return nil, nil, err
	}

	var resources []mcp.Resource
	err = s.list(ctx, MethodResourcesList, func(raw json.RawMessage) (mcp.Cursor, error) {
		var res mcp.ListResourcesResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", err
		}
		resources = append(resources, res.Resources...)
		return res.NextCursor, nil
	})
	return templates, resources, err
}

func (s *Session) listPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	var prompts []mcp.Prompt
	err := s.list(ctx, MethodPromptsList, func(raw json.RawMessage) (mcp.Cursor, error) {
		var res mcp.ListPromptsResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", err
		}
		prompts = append(prompts, res.Prompts...)
		return res.NextCursor, nil
	})
	return prompts, err
}

// ListResources re-queries the host for its resource templates and static resources
func (s *Session) ListResources(ctx context.Context) ([]mcp.ResourceTemplate, []mcp.Resource, error) {
	if _, err := s.ready(); err != nil {
		return nil, nil, err
	}
	return s.listResources(ctx)
}

// Call invokes a tool advertised in the manifest. A tool-level failure comes back as a typed error.
func (s *Session) Call(ctx context.Context, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	manifest, err := s.ready()
	if err != nil {
		return nil, err
	}
	if _, ok := manifest.Tool(tool); !ok {
		return nil, customErrors.NewSessionError(customErrors.KindUnknownTool,
			fmt.Sprintf("tool %q is not advertised by %s", tool, s.name))
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	input, _ := json.Marshal(args)
	ctx, span := s.tracer.StartSpan(ctx, MethodToolsCall, observability.SpanTypeRequest, string(input),
		map[string]string{"tool": tool, "server": s.name})
	defer span.End()
	start := time.Now()

	result, err := s.callTool(ctx, tool, args)
	s.tracer.SetDuration(span, time.Since(start))
	if err != nil {
		s.tracer.RecordError(span, err, string(customErrors.KindOf(err)))
		return nil, err
	}
	s.tracer.SetOutput(span, ResultText(result))
	s.tracer.RecordSuccess(span, "tool call completed")
	return result, nil
}

func (s *Session) callTool(ctx context.Context, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	raw, rpcErr, err := s.request(ctx, MethodToolsCall, map[string]interface{}{
		"name":      tool,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, decodeRPCError(rpcErr, MethodToolsCall, customErrors.KindToolExecution)
	}

	result, err := mcp.ParseCallToolResult(&raw)
	if err != nil {
		return nil, customErrors.WrapSessionError(err, customErrors.KindProtocolViolation, "invalid tools/call result")
	}

	if result.IsError {
		text := ResultText(result)
		if typed, ok := customErrors.Parse(text); ok {
			return nil, typed
		}
		return nil, customErrors.NewToolError(customErrors.KindToolExecution, text).WithData("tool", tool)
	}
	return result, nil
}

// ReadResource reads one resource by concrete URI
func (s *Session) ReadResource(ctx context.Context, uri string) (*Content, error) {
	if _, err := s.ready(); err != nil {
		return nil, err
	}

	raw, rpcErr, err := s.request(ctx, MethodResourcesRead, map[string]interface{}{"uri": uri})
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, decodeRPCError(rpcErr, MethodResourcesRead, customErrors.KindUpstream)
	}

	result, err := mcp.ParseReadResourceResult(&raw)
	if err != nil {
		return nil, customErrors.WrapSessionError(err, customErrors.KindProtocolViolation, "invalid resources/read result")
	}
	if len(result.Contents) == 0 {
		return nil, customErrors.NewResourceErrorf(customErrors.KindNotFound, "no content for %s", uri)
	}

	switch c := result.Contents[0].(type) {
	case mcp.TextResourceContents:
		return &Content{URI: c.URI, MIMEType: c.MIMEType, Text: c.Text, Encoding: "utf-8"}, nil
	case *mcp.TextResourceContents:
		return &Content{URI: c.URI, MIMEType: c.MIMEType, Text: c.Text, Encoding: "utf-8"}, nil
	case mcp.BlobResourceContents:
		return decodeBlob(c.URI, c.MIMEType, c.Blob)
	case *mcp.BlobResourceContents:
		return decodeBlob(c.URI, c.MIMEType, c.Blob)
	default:
		return nil, customErrors.NewSessionError(customErrors.KindProtocolViolation, fmt.Sprintf("unsupported resource contents %T", c))
	}
}

func decodeBlob(uri, mimeType, blob string) (*Content, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, customErrors.WrapResourceError(err, customErrors.KindUpstream, "invalid base64 resource blob")
	}
	if !utf8.Valid(data) {
		return nil, customErrors.NewResourceErrorf(customErrors.KindUpstream, "resource %s is not valid UTF-8 text", uri)
	}
	return &Content{URI: uri, MIMEType: mimeType, Text: string(data), Encoding: "utf-8"}, nil
}

// GetPrompt renders a prompt advertised by the host
func (s *Session) GetPrompt(ctx context.Context, name string, args map[string]string) ([]PromptMessage, error) {
	if _, err := s.ready(); err != nil {
		return nil, err
	}

	raw, rpcErr, err := s.request(ctx, MethodPromptsGet, map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, decodeRPCError(rpcErr, MethodPromptsGet, customErrors.KindUpstream)
	}

	var res struct {
		Messages []struct {
			Role    string `json:"role"`
			Content struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, customErrors.WrapSessionError(err, customErrors.KindProtocolViolation, "invalid prompts/get result")
	}

	messages := make([]PromptMessage, 0, len(res.Messages))
	for _, m := range res.Messages {
		messages = append(messages, PromptMessage{Role: m.Role, Text: m.Content.Text})
	}
	return messages, nil
}

// Ping checks that the host is responsive
func (s *Session) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, rpcErr, err := s.request(ctx, MethodPing, nil)
	if err != nil {
		return err
	}
	if rpcErr != nil {
		return decodeRPCError(rpcErr, MethodPing, customErrors.KindProtocolViolation)
	}
	return nil
}

// ResultText concatenates the text content of a tool result
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var sb strings.Builder
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			sb.WriteString(c.Text)
		case *mcp.TextContent:
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}
