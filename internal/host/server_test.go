package host

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/session"
	"github.com/YongpengFu/mcp-server/internal/transport"
)

func terminalConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "resource")
	require.NoError(t, os.MkdirAll(base, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "notes.txt"), []byte("hello"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0o600))

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("downloaded"))
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Host.ResourceDir = base
	cfg.Host.BenignURL = upstream.URL
	cfg.Host.PokeAPIBaseURL = upstream.URL
	return cfg
}

func connect(t *testing.T, srv *Server) *session.Session {
	t.Helper()
	ch := transport.NewInProcess(srv.MCP(), transport.Options{})
	sess := session.New("embedded", ch, session.Options{CallTimeout: 5 * time.Second})
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestTerminalServerManifest(t *testing.T) {
	srv, err := NewTerminalServer(terminalConfig(t), nil)
	require.NoError(t, err)
	sess := connect(t, srv)

	m, err := sess.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "terminal-server", m.ServerInfo.Name)

	var toolNames []string
	for _, tool := range m.Tools {
		toolNames = append(toolNames, tool.Name)
	}
	assert.ElementsMatch(t, []string{"terminal", "benign_tool"}, toolNames)

	var templates []string
	for _, tpl := range m.ResourceTemplates {
		templates = append(templates, tpl.URITemplate.Raw())
	}
	assert.Contains(t, templates, "local://file/{+path}")
	assert.Contains(t, templates, "pokemon://pokemon/{+pokemon_id}")

	require.Len(t, m.Resources, 1)
	assert.Equal(t, "pokemon://starters", m.Resources[0].URI)

	require.Len(t, m.Prompts, 1)
	assert.Equal(t, "get_research_prompt", m.Prompts[0].Name)
}

func TestTerminalServerResources(t *testing.T) {
	srv, err := NewTerminalServer(terminalConfig(t), nil)
	require.NoError(t, err)
	sess := connect(t, srv)
	_, err = sess.Initialize(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	content, err := sess.ReadResource(ctx, "local://file/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", content.Text)

	for _, uri := range []string{"local://file/../secret.txt", "local://file/../../etc/passwd"} {
		_, err = sess.ReadResource(ctx, uri)
		assert.True(t, customErrors.IsKind(err, customErrors.KindAccessDenied), "%s: got %v", uri, err)
	}

	_, err = sess.ReadResource(ctx, "local://file/missing.txt")
	assert.True(t, customErrors.IsKind(err, customErrors.KindNotFound), "got %v", err)

	_, err = sess.ReadResource(ctx, "nope://anything")
	assert.True(t, customErrors.IsKind(err, customErrors.KindUnknownResource), "got %v", err)

	starters, err := sess.ReadResource(ctx, "pokemon://starters")
	require.NoError(t, err)
	assert.Contains(t, starters.Text, "Bulbasaur")
	assert.Equal(t, "application/json", starters.MIMEType)
}

func TestTerminalServerTools(t *testing.T) {
	srv, err := NewTerminalServer(terminalConfig(t), nil)
	require.NoError(t, err)
	sess := connect(t, srv)
	_, err = sess.Initialize(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	res, err := sess.Call(ctx, "benign_tool", nil)
	require.NoError(t, err)
	assert.Equal(t, "downloaded", session.ResultText(res))

	if runtime.GOOS != "windows" {
		res, err = sess.Call(ctx, "terminal", map[string]interface{}{"command": "echo hi"})
		require.NoError(t, err)
		assert.Equal(t, "STDOUT:\nhi\n\n\n\nReturn code: 0", session.ResultText(res))
	}

	_, err = sess.Call(ctx, "terminal", map[string]interface{}{"command": 42})
	assert.True(t, customErrors.IsKind(err, customErrors.KindInvalidArguments), "got %v", err)

	msgs, err := sess.GetPrompt(ctx, "get_research_prompt", map[string]string{"query": "fire types"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "Hello, world! fire types", msgs[0].Text)
}

func TestShellCanBeDisabled(t *testing.T) {
	cfg := terminalConfig(t)
	disabled := false
	cfg.Host.EnableShell = &disabled

	srv, err := NewTerminalServer(cfg, nil)
	require.NoError(t, err)
	sess := connect(t, srv)
	m, err := sess.Initialize(context.Background())
	require.NoError(t, err)

	_, ok := m.Tool("terminal")
	assert.False(t, ok)
}

func TestMathServerOverSSE(t *testing.T) {
	srv, err := NewMathServer(nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","server":"math_server"}`, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := transport.OpenSSE(ctx, transport.SSEOptions{URL: ts.URL + "/sse"}, nil)
	require.NoError(t, err)
	sess := session.New("math", ch, session.Options{CallTimeout: 5 * time.Second})
	defer sess.Close()

	m, err := sess.Initialize(ctx)
	require.NoError(t, err)
	assert.Len(t, m.Tools, 3)
	assert.Empty(t, m.ResourceTemplates)

	res, err := sess.Call(ctx, "add", map[string]interface{}{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, "5", session.ResultText(res))

	_, err = sess.Call(ctx, "add", map[string]interface{}{"a": "x", "b": 3})
	assert.True(t, customErrors.IsKind(err, customErrors.KindInvalidArguments), "got %v", err)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, err := NewMathServer(nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeSSEStopsOnCancel(t *testing.T) {
	srv, err := NewMathServer(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeSSE(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeStdio(t *testing.T) {
	srv, err := NewMathServer(nil)
	require.NoError(t, err)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.ServeStdio(ctx, inR, outW) }()

	go func() {
		_, _ = inW.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"))
	}()

	buf := make([]byte, 4096)
	n, err := outR.Read(buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(buf[:n-1]))
}
