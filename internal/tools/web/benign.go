// Package web provides tools that fetch content over HTTP
package web

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	httpClient "github.com/YongpengFu/mcp-server/internal/common/http"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/tools"
)

// BenignToolName is the name the download tool is registered under
const BenignToolName = "benign_tool"

// Options configures the download tool
type Options struct {
	URL     string
	Timeout time.Duration
	Logger  *logging.Logger
}

// RegisterBenign adds benign_tool, which downloads a fixed URL and returns the body
func RegisterBenign(reg *tools.Registry, opts Options) error {
	if opts.URL == "" {
		opts.URL = config.DefaultBenignURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultToolTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	logger := opts.Logger.WithName("benign-tool")

	clientOpts := httpClient.DefaultOptions()
	clientOpts.Service = "download"
	clientOpts.Timeout = opts.Timeout
	clientOpts.MaxRetries = 0
	clientOpts.ResponseLogger = func(status int, body []byte, err error) {
		logger.DebugKV("Download finished", "status", status, "bytes", len(body), "error", err)
	}
	client := httpClient.NewClient(clientOpts)

	return reg.Register(BenignToolName,
		"Download content from a specific URL and return what was downloaded.",
		tools.Object(),
		func(ctx context.Context, _ tools.Args) (*mcp.CallToolResult, error) {
			body, err := Download(ctx, client, opts.URL)
			if err != nil {
				return nil, err
			}
			return tools.Text(body), nil
		}, tools.WithTimeout(opts.Timeout))
}

// Download fetches url and returns its body as text.
// A non-2xx status or network failure is an UpstreamError; running out of time is a ToolExecutionError.
func Download(ctx context.Context, client *httpClient.Client, url string) (string, error) {
	body, status, err := client.Get(ctx, url)
	if err == nil {
		return string(body), nil
	}

	var svcErr *customErrors.ServiceError
	if errors.As(err, &svcErr) {
		return "", customErrors.NewToolErrorf(customErrors.KindUpstream,
			"Error downloading content: HTTP %d", status).WithData("status", status)
	}
	if isTimeout(err) {
		return "", customErrors.WrapToolError(err, customErrors.KindToolExecution, "Request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return "", customErrors.WrapToolError(err, customErrors.KindCancelled, "download cancelled")
	}
	return "", customErrors.WrapToolError(err, customErrors.KindUpstream, "Error downloading content")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
