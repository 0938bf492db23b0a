package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/tools"
)

func newRegistry(t *testing.T, url string, timeout time.Duration) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry("terminal-server", 0, nil)
	require.NoError(t, RegisterBenign(reg, Options{URL: url, Timeout: timeout}))
	return reg
}

func TestBenignToolReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("just some text\n"))
	}))
	defer srv.Close()

	res, err := newRegistry(t, srv.URL, 5*time.Second).Invoke(context.Background(), BenignToolName, nil)
	require.NoError(t, err)
	assert.Equal(t, "just some text\n", res.Content[0].(mcp.TextContent).Text)
}

func TestBenignToolStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newRegistry(t, srv.URL, 5*time.Second).Invoke(context.Background(), BenignToolName, nil)
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindUpstream), "got %v", err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestBenignToolTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newRegistry(t, srv.URL, 100*time.Millisecond).Invoke(context.Background(), BenignToolName, nil)
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindToolExecution), "got %v", err)
}

func TestBenignToolConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newRegistry(t, url, 5*time.Second).Invoke(context.Background(), BenignToolName, nil)
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindUpstream), "got %v", err)
}
